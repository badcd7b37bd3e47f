package gateway

import (
	"mime"
	"net/url"
	"path/filepath"
	"strings"
)

// MediaMarker는 어시스턴트 텍스트 안에서 첨부 미디어를 가리키는 토큰입니다.
const MediaMarker = "MEDIA:"

// LocalMediaScheme은 로컬 경로 미디어를 감싸는 URL 스킴입니다.
// 호스트 측 리졸버가 이 스킴을 받아 실제 파일을 읽습니다.
const LocalMediaScheme = "mc-media"

// MediaRef는 스트림에서 추출한 미디어 참조입니다.
type MediaRef struct {
	// URL은 원격 URL 또는 mc-media://local/<path> 형태의 URL입니다.
	URL string `json:"url"`
	// Type은 MIME 타입입니다. 알 수 없으면 비어 있습니다.
	Type string `json:"type,omitempty"`
	// Path는 로컬 미디어의 원래 파일 경로입니다.
	Path string `json:"path,omitempty"`
}

// Local은 로컬 파일을 가리키는 참조인지 반환합니다.
func (m MediaRef) Local() bool {
	return m.Path != ""
}

// extractMedia는 MEDIA: 토큰이 있는 줄을 텍스트에서 제거하고 미디어 참조로 반환합니다.
// 토큰 뒤가 URL이나 경로가 아니면 그 줄은 텍스트로 남깁니다.
func extractMedia(text string) (string, []MediaRef) {
	if !strings.Contains(text, MediaMarker) {
		return text, nil
	}

	var (
		kept  []string
		media []MediaRef
	)
	for _, line := range strings.Split(text, "\n") {
		idx := strings.Index(line, MediaMarker)
		if idx < 0 {
			kept = append(kept, line)
			continue
		}

		target := cleanMediaTarget(line[idx+len(MediaMarker):])
		ref, ok := resolveMedia(target, "")
		if !ok {
			kept = append(kept, line)
			continue
		}
		media = append(media, ref)

		// 토큰 앞에 다른 텍스트가 있으면 그 부분은 유지
		if prefix := strings.TrimRight(line[:idx], " \t"); prefix != "" {
			kept = append(kept, prefix)
		}
	}

	return strings.TrimRight(strings.Join(kept, "\n"), " \t\n"), media
}

// cleanMediaTarget은 토큰 뒤 값의 공백, 따옴표, 백틱을 제거합니다.
func cleanMediaTarget(s string) string {
	s = strings.TrimSpace(s)
	s = strings.Trim(s, "`\"'<>")
	// 첫 공백 이후는 설명 텍스트로 간주
	if i := strings.IndexAny(s, " \t"); i >= 0 && !looksLikePath(s) {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}

// resolveMedia는 URL 또는 경로 문자열을 MediaRef로 변환합니다.
// mediaType이 비어 있으면 확장자로 MIME 타입을 추정합니다.
func resolveMedia(target, mediaType string) (MediaRef, bool) {
	if target == "" {
		return MediaRef{}, false
	}

	if strings.HasPrefix(target, "file://") {
		u, err := url.Parse(target)
		if err != nil || u.Path == "" {
			return MediaRef{}, false
		}
		target = u.Path
	}

	if isRemoteURL(target) {
		if mediaType == "" {
			mediaType = guessMediaType(target)
		}
		return MediaRef{URL: target, Type: mediaType}, true
	}

	if !looksLikePath(target) {
		return MediaRef{}, false
	}

	if mediaType == "" {
		mediaType = guessMediaType(target)
	}
	return MediaRef{URL: localMediaURL(target), Type: mediaType, Path: target}, true
}

// isRemoteURL은 http(s) 또는 data URL인지 확인합니다.
func isRemoteURL(s string) bool {
	lower := strings.ToLower(s)
	if strings.HasPrefix(lower, "data:") {
		return true
	}
	if !strings.HasPrefix(lower, "http://") && !strings.HasPrefix(lower, "https://") {
		return false
	}
	u, err := url.Parse(s)
	return err == nil && u.Host != ""
}

// looksLikePath는 절대 경로, 홈 경로, 윈도우 드라이브 경로인지 확인합니다.
func looksLikePath(s string) bool {
	if strings.HasPrefix(s, "/") || strings.HasPrefix(s, "~/") {
		return true
	}
	// C:\ 또는 C:/
	return len(s) >= 3 && s[1] == ':' && (s[2] == '\\' || s[2] == '/') &&
		((s[0] >= 'a' && s[0] <= 'z') || (s[0] >= 'A' && s[0] <= 'Z'))
}

// localMediaURL은 로컬 경로를 mc-media://local/<path> URL로 감쌉니다.
func localMediaURL(path string) string {
	u := url.URL{
		Scheme: LocalMediaScheme,
		Host:   "local",
		Path:   "/" + strings.TrimPrefix(strings.ReplaceAll(path, "\\", "/"), "/"),
	}
	return u.String()
}

func guessMediaType(target string) string {
	if strings.HasPrefix(strings.ToLower(target), "data:") {
		if end := strings.IndexAny(target, ";,"); end > len("data:") {
			return target[len("data:"):end]
		}
		return ""
	}
	if u, err := url.Parse(target); err == nil && u.Path != "" {
		target = u.Path
	}
	ext := strings.ToLower(filepath.Ext(target))
	if ext == "" {
		return ""
	}
	if t := mime.TypeByExtension(ext); t != "" {
		// "; charset=utf-8" 같은 파라미터 제거
		if i := strings.Index(t, ";"); i >= 0 {
			t = t[:i]
		}
		return t
	}
	return ""
}

// collectMedia는 텍스트에서 추출한 미디어와 페이로드의 mediaUrl을 합칩니다.
// 같은 URL은 한 번만 포함됩니다.
func collectMedia(fromText []MediaRef, mediaURL, mediaType string) []MediaRef {
	media := fromText
	if mediaURL == "" {
		return media
	}

	ref, ok := resolveMedia(mediaURL, mediaType)
	if !ok {
		return media
	}
	for _, existing := range media {
		if existing.URL == ref.URL {
			return media
		}
	}
	return append(media, ref)
}
