package cmd

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lstailors/LST-MissionControl-sub000/internal/auth"
	"github.com/lstailors/LST-MissionControl-sub000/internal/config"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Gateway: config.GatewayConfig{URL: "ws://127.0.0.1:18789", SessionKey: "main"},
		Auth:    config.AuthConfig{CredentialsFile: filepath.Join(t.TempDir(), "credentials.json")},
	}
}

// TestCollectStatus_NotPaired는 자격 증명 파일이 없을 때를 테스트합니다.
func TestCollectStatus_NotPaired(t *testing.T) {
	cfg := testConfig(t)

	info, err := collectStatus(cfg)
	require.NoError(t, err)
	assert.False(t, info.Paired)
	assert.Empty(t, info.Token)
	assert.Equal(t, "ws://127.0.0.1:18789", info.Gateway)

	var buf bytes.Buffer
	printStatusFull(&buf, info)
	assert.Contains(t, buf.String(), "mctl pair")
}

// TestCollectStatus_Paired는 저장된 토큰이 마스킹되어 표시되는지 테스트합니다.
func TestCollectStatus_Paired(t *testing.T) {
	cfg := testConfig(t)
	store := auth.NewCredentialStore(cfg.Auth.CredentialsFile)
	store.SetContext(cfg.Gateway.URL, "dev-123")
	require.NoError(t, store.SaveToken("gw-token-abcdefghijkl"))

	info, err := collectStatus(cfg)
	require.NoError(t, err)
	assert.True(t, info.Paired)
	assert.Equal(t, "dev-123", info.DeviceID)
	assert.NotContains(t, info.Token, "abcdefghijkl")
	require.NotNil(t, info.PairedAt)

	var buf bytes.Buffer
	require.NoError(t, printStatusJSON(&buf, info))
	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, true, decoded["paired"])
	assert.NotContains(t, buf.String(), "gw-token-abcdefghijkl")
}

func TestPrintStatusFull_ProbeFailure(t *testing.T) {
	info := &StatusInfo{Gateway: "ws://gw", Probe: &ProbeInfo{Error: "connection refused"}}

	var buf bytes.Buffer
	printStatusFull(&buf, info)
	assert.Contains(t, buf.String(), "connection refused")
	assert.Contains(t, buf.String(), "idle")
}
