package gateway

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractMedia_NoMarker(t *testing.T) {
	text, media := extractMedia("just text")
	assert.Equal(t, "just text", text)
	assert.Nil(t, media)
}

func TestExtractMedia_RemoteURL(t *testing.T) {
	text, media := extractMedia("Here is the chart:\nMEDIA: https://cdn.example.com/chart.png\nDone.")

	assert.Equal(t, "Here is the chart:\nDone.", text)
	require.Len(t, media, 1)
	assert.Equal(t, "https://cdn.example.com/chart.png", media[0].URL)
	assert.Equal(t, "image/png", media[0].Type)
	assert.False(t, media[0].Local())
}

func TestExtractMedia_LocalPathWrapped(t *testing.T) {
	text, media := extractMedia("Saved.\nMEDIA:/tmp/out/my photo.jpg")

	assert.Equal(t, "Saved.", text)
	require.Len(t, media, 1)
	assert.Equal(t, "mc-media://local/tmp/out/my%20photo.jpg", media[0].URL)
	assert.Equal(t, "/tmp/out/my photo.jpg", media[0].Path)
	assert.Equal(t, "image/jpeg", media[0].Type)
	assert.True(t, media[0].Local())
}

func TestExtractMedia_FileURLAndQuotes(t *testing.T) {
	_, media := extractMedia("MEDIA: `file:///var/data/a.png`")
	require.Len(t, media, 1)
	assert.Equal(t, "/var/data/a.png", media[0].Path)
}

func TestExtractMedia_InlinePrefixKept(t *testing.T) {
	text, media := extractMedia("Result MEDIA: https://x.io/a.pdf")
	assert.Equal(t, "Result", text)
	require.Len(t, media, 1)
	assert.Equal(t, "application/pdf", media[0].Type)
}

func TestExtractMedia_NotATarget(t *testing.T) {
	// 토큰 뒤가 URL/경로가 아니면 텍스트로 유지
	text, media := extractMedia("The MEDIA: field is documented")
	assert.Equal(t, "The MEDIA: field is documented", text)
	assert.Empty(t, media)
}

func TestExtractMedia_WindowsPath(t *testing.T) {
	_, media := extractMedia(`MEDIA: C:\Users\me\shot.png`)
	require.Len(t, media, 1)
	assert.Equal(t, "mc-media://local/C:/Users/me/shot.png", media[0].URL)
}

func TestCollectMedia_PayloadFieldsDeduplicated(t *testing.T) {
	fromText := []MediaRef{{URL: "https://x.io/a.png", Type: "image/png"}}

	media := collectMedia(fromText, "https://x.io/a.png", "image/png")
	assert.Len(t, media, 1)

	media = collectMedia(nil, "https://x.io/b.webm", "video/webm")
	require.Len(t, media, 1)
	assert.Equal(t, "video/webm", media[0].Type)

	assert.Empty(t, collectMedia(nil, "not a url", ""))
}
