package auth

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/lstailors/LST-MissionControl-sub000/internal/protocol"
)

func TestLoadOrCreateIdentity_PersistsKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missioncontrol", DefaultIdentityFile)

	first, err := LoadOrCreateIdentity(path)
	if err != nil {
		t.Fatalf("LoadOrCreateIdentity() error = %v", err)
	}
	if len(first.DeviceID()) != 64 {
		t.Errorf("DeviceID 길이 = %d, want 64 (sha256 hex)", len(first.DeviceID()))
	}

	second, err := LoadOrCreateIdentity(path)
	if err != nil {
		t.Fatalf("두 번째 LoadOrCreateIdentity() error = %v", err)
	}
	if first.DeviceID() != second.DeviceID() {
		t.Errorf("다시 읽은 키의 DeviceID가 다릅니다: %s != %s", first.DeviceID(), second.DeviceID())
	}
	if first.PublicKeyBase64() != second.PublicKeyBase64() {
		t.Error("다시 읽은 공개키가 다릅니다")
	}

	if runtime.GOOS != "windows" {
		info, err := os.Stat(path)
		if err != nil {
			t.Fatal(err)
		}
		if perm := info.Mode().Perm(); perm != 0600 {
			t.Errorf("key file permission = %o, want 0600", perm)
		}
	}
}

func TestLoadOrCreateIdentity_RejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), DefaultIdentityFile)
	if err := os.WriteFile(path, []byte("not a pem"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadOrCreateIdentity(path); err == nil {
		t.Error("손상된 키 파일에 오류가 없습니다")
	}
}

func TestDeviceIdentity_SignVerify(t *testing.T) {
	id, err := LoadOrCreateIdentity(filepath.Join(t.TempDir(), DefaultIdentityFile))
	if err != nil {
		t.Fatal(err)
	}

	req := protocol.SignRequest{
		ClientID:   "mctl",
		ClientMode: "cli",
		Role:       "operator",
		Scopes:     []string{"operator.read", "operator.write"},
		Token:      "tok",
		Nonce:      "n-42",
		SignedAtMs: 1767225600000,
	}
	info, err := id.Sign(req)
	if err != nil {
		t.Fatalf("Sign() error = %v", err)
	}

	if info.ID != id.DeviceID() || info.Nonce != "n-42" || info.SignedAt != req.SignedAtMs {
		t.Errorf("unexpected device info: %+v", info)
	}
	if !Verify(info, req) {
		t.Error("서명 검증 실패")
	}

	// nonce가 다르면 다른 페이로드이므로 검증 실패
	tampered := req
	tampered.Nonce = "n-43"
	if Verify(info, tampered) {
		t.Error("변조된 요청이 검증을 통과했습니다")
	}
}
