// Package auth는 게이트웨이 자격 증명 보관, 디바이스 키, 페어링 API 클라이언트를 제공합니다.
package auth

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Credentials는 페어링으로 받은 게이트웨이 토큰과 부가 정보입니다.
type Credentials struct {
	Token      string    `json:"token"`
	DeviceID   string    `json:"device_id,omitempty"`
	GatewayURL string    `json:"gateway_url,omitempty"`
	PairedAt   time.Time `json:"paired_at,omitempty"`
}

// IsValid는 토큰이 있는지 확인합니다. 게이트웨이 토큰은 만료 시각을 갖지 않습니다.
func (c *Credentials) IsValid() bool {
	return c != nil && c.Token != ""
}

// ConfigDir은 설정과 자격 증명을 두는 디렉터리입니다.
// XDG_CONFIG_HOME이 있으면 그 아래, 없으면 ~/.config/missioncontrol입니다.
func ConfigDir() (string, error) {
	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("get home directory: %w", err)
		}
		configDir = filepath.Join(home, ".config")
	}
	return filepath.Join(configDir, "missioncontrol"), nil
}

// DefaultCredentialsPath는 기본 자격 증명 파일 경로입니다.
func DefaultCredentialsPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "credentials.json"), nil
}

// CredentialStore는 자격 증명을 0600 권한의 JSON 파일에 보관합니다.
// gateway.TokenStore를 구현하여 페어링 직후 토큰을 저장합니다.
type CredentialStore struct {
	path string
	mu   sync.Mutex

	// gatewayURL과 deviceID는 SaveToken 시 함께 기록됩니다.
	gatewayURL string
	deviceID   string
	now        func() time.Time
}

// NewCredentialStore는 path에 자격 증명을 보관하는 저장소를 생성합니다.
func NewCredentialStore(path string) *CredentialStore {
	return &CredentialStore{path: path, now: time.Now}
}

// Path는 자격 증명 파일 경로를 반환합니다.
func (s *CredentialStore) Path() string {
	return s.path
}

// SetContext는 이후 SaveToken에 함께 기록할 게이트웨이 URL과 디바이스 ID를 설정합니다.
func (s *CredentialStore) SetContext(gatewayURL, deviceID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gatewayURL = gatewayURL
	s.deviceID = deviceID
}

// SaveToken은 새 토큰을 저장합니다.
func (s *CredentialStore) SaveToken(token string) error {
	s.mu.Lock()
	creds := &Credentials{
		Token:      token,
		DeviceID:   s.deviceID,
		GatewayURL: s.gatewayURL,
		PairedAt:   s.now().UTC(),
	}
	s.mu.Unlock()

	return s.Save(creds)
}

// Save는 자격 증명을 파일에 씁니다. 디렉터리는 0700, 파일은 0600입니다.
func (s *CredentialStore) Save(creds *Credentials) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0700); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	data, err := json.MarshalIndent(creds, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal credentials: %w", err)
	}

	if err := os.WriteFile(s.path, data, 0600); err != nil {
		return fmt.Errorf("write credentials file: %w", err)
	}
	// umask로 권한이 완화되지 않도록 명시적으로 설정
	if err := os.Chmod(s.path, 0600); err != nil {
		return fmt.Errorf("set credentials file permissions: %w", err)
	}
	return nil
}

// Load는 저장된 자격 증명을 읽습니다. 파일이 없으면 nil, nil입니다.
func (s *CredentialStore) Load() (*Credentials, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read credentials file: %w", err)
	}

	var creds Credentials
	if err := json.Unmarshal(data, &creds); err != nil {
		return nil, fmt.Errorf("parse credentials file: %w", err)
	}
	return &creds, nil
}

// Clear는 저장된 자격 증명을 삭제합니다. 파일이 없어도 오류가 아닙니다.
func (s *CredentialStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove credentials file: %w", err)
	}
	return nil
}

// Exists는 자격 증명 파일이 있는지 확인합니다.
func (s *CredentialStore) Exists() bool {
	_, err := os.Stat(s.path)
	return err == nil
}

// MaskToken은 로그용으로 토큰을 가립니다.
// 앞 8자만 보이고, 8자 이하 토큰은 전부 가립니다.
func MaskToken(token string) string {
	if len(token) <= 8 {
		return "***"
	}
	return token[:8] + "..."
}
