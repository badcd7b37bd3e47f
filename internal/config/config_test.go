package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
)

// newTestViper는 기본값과 MC_ 환경변수 바인딩이 된 viper를 만듭니다.
func newTestViper(t *testing.T) *viper.Viper {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	v := viper.New()
	SetDefaults(v)
	BindEnv(v)
	return v
}

func validConfig(t *testing.T) *Config {
	t.Helper()
	cfg, err := LoadFrom(newTestViper(t))
	if err != nil {
		t.Fatalf("LoadFrom() error = %v", err)
	}
	return cfg
}

// TestLoadFrom_Defaults는 기본값이 유효한 설정인지 테스트합니다.
func TestLoadFrom_Defaults(t *testing.T) {
	cfg := validConfig(t)

	if err := cfg.Validate(); err != nil {
		t.Fatalf("기본 설정이 유효하지 않습니다: %v", err)
	}
	if cfg.Gateway.SessionKey != "main" {
		t.Errorf("SessionKey = %q, want main", cfg.Gateway.SessionKey)
	}
	if len(cfg.Gateway.Scopes) != 2 {
		t.Errorf("Scopes = %v", cfg.Gateway.Scopes)
	}
	if cfg.Gateway.RequestTimeout() != 120*time.Second {
		t.Errorf("RequestTimeout() = %v", cfg.Gateway.RequestTimeout())
	}
	if cfg.Gateway.ChallengeGrace() != 750*time.Millisecond {
		t.Errorf("ChallengeGrace() = %v", cfg.Gateway.ChallengeGrace())
	}
	if cfg.Reconnection.InitialDelay() != time.Second || cfg.Reconnection.MaxDelay() != 30*time.Second {
		t.Errorf("재연결 지연 = %v..%v", cfg.Reconnection.InitialDelay(), cfg.Reconnection.MaxDelay())
	}
	if cfg.Heartbeat.Timeout() != 45*time.Second {
		t.Errorf("Heartbeat.Timeout() = %v", cfg.Heartbeat.Timeout())
	}
	if cfg.Queue.Limit != 50 {
		t.Errorf("Queue.Limit = %d", cfg.Queue.Limit)
	}
	if filepath.Base(cfg.Auth.CredentialsFile) != "credentials.json" {
		t.Errorf("CredentialsFile = %q", cfg.Auth.CredentialsFile)
	}
}

// TestLoadFrom_EnvOverride는 MC_ 환경변수가 기본값보다 우선하는지 테스트합니다.
func TestLoadFrom_EnvOverride(t *testing.T) {
	v := newTestViper(t)
	t.Setenv("MC_GATEWAY_URL", "wss://gw.example.com/ws")
	t.Setenv("MC_GATEWAY_TOKEN", "env-token")
	t.Setenv("MC_QUEUE_LIMIT", "7")

	cfg, err := LoadFrom(v)
	if err != nil {
		t.Fatalf("LoadFrom() error = %v", err)
	}
	if cfg.Gateway.URL != "wss://gw.example.com/ws" {
		t.Errorf("Gateway.URL = %q", cfg.Gateway.URL)
	}
	if cfg.Gateway.Token != "env-token" {
		t.Errorf("Gateway.Token = %q", cfg.Gateway.Token)
	}
	if cfg.Queue.Limit != 7 {
		t.Errorf("Queue.Limit = %d, want 7", cfg.Queue.Limit)
	}
}

// TestLoadFrom_ConfigFile는 YAML 설정 파일 값이 적용되는지 테스트합니다.
func TestLoadFrom_ConfigFile(t *testing.T) {
	v := newTestViper(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := []byte("gateway:\n  url: ws://10.0.0.2:18789\n  session_key: ops\nreconnection:\n  max_attempts: 3\n")
	if err := os.WriteFile(path, data, 0600); err != nil {
		t.Fatal(err)
	}
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		t.Fatalf("ReadInConfig() error = %v", err)
	}

	cfg, err := LoadFrom(v)
	if err != nil {
		t.Fatalf("LoadFrom() error = %v", err)
	}
	if cfg.Gateway.URL != "ws://10.0.0.2:18789" || cfg.Gateway.SessionKey != "ops" {
		t.Errorf("gateway = %+v", cfg.Gateway)
	}
	if cfg.Reconnection.MaxAttempts != 3 {
		t.Errorf("MaxAttempts = %d, want 3", cfg.Reconnection.MaxAttempts)
	}
	// 파일에 없는 키는 기본값 유지
	if cfg.Heartbeat.TimeoutSeconds != 45 {
		t.Errorf("Heartbeat.TimeoutSeconds = %d, want 45", cfg.Heartbeat.TimeoutSeconds)
	}
}

// TestConfig_Validate는 설정 검증을 테스트합니다.
func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "기본값", mutate: func(*Config) {}},
		{name: "wss URL", mutate: func(c *Config) { c.Gateway.URL = "wss://gw.example.com/ws" }},
		{name: "http URL", mutate: func(c *Config) { c.Gateway.URL = "http://gw.example.com" }, wantErr: true},
		{name: "호스트 없음", mutate: func(c *Config) { c.Gateway.URL = "ws://" }, wantErr: true},
		{name: "빈 client_id", mutate: func(c *Config) { c.Gateway.ClientID = "" }, wantErr: true},
		{name: "요청 타임아웃 0", mutate: func(c *Config) { c.Gateway.RequestTimeoutSeconds = 0 }, wantErr: true},
		{name: "재연결 무제한", mutate: func(c *Config) { c.Reconnection.MaxAttempts = 0 }},
		{name: "재연결 음수", mutate: func(c *Config) { c.Reconnection.MaxAttempts = -1 }, wantErr: true},
		{name: "최대 지연이 초기 지연보다 작음", mutate: func(c *Config) { c.Reconnection.MaxDelayMs = 10 }, wantErr: true},
		{name: "배수 1 미만", mutate: func(c *Config) { c.Reconnection.BackoffMultiplier = 0.5 }, wantErr: true},
		{name: "heartbeat 0", mutate: func(c *Config) { c.Heartbeat.TimeoutSeconds = 0 }, wantErr: true},
		{name: "네트워크 감시 끔", mutate: func(c *Config) { c.Heartbeat.NetworkCheckSeconds = 0 }},
		{name: "큐 0", mutate: func(c *Config) { c.Queue.Limit = 0 }, wantErr: true},
		{name: "잘못된 로그 레벨", mutate: func(c *Config) { c.Logging.Level = "verbose" }, wantErr: true},
		{name: "잘못된 로그 포맷", mutate: func(c *Config) { c.Logging.Format = "xml" }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig(t)
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConfigDir(t *testing.T) {
	tmp := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", tmp)

	if got, want := ConfigDir(), filepath.Join(tmp, "missioncontrol"); got != want {
		t.Errorf("ConfigDir() = %q, want %q", got, want)
	}
	if got := DefaultConfigPath(); filepath.Base(got) != "config.yaml" {
		t.Errorf("DefaultConfigPath() = %q", got)
	}
	if err := EnsureConfigDir(); err != nil {
		t.Fatalf("EnsureConfigDir() error = %v", err)
	}
	if _, err := os.Stat(ConfigDir()); err != nil {
		t.Errorf("설정 디렉토리가 생성되지 않았습니다: %v", err)
	}
}

func TestExpandPath(t *testing.T) {
	home, _ := os.UserHomeDir()

	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "틸드로 시작하는 경로",
			input:    "~/config/test.yaml",
			expected: filepath.Join(home, "config/test.yaml"),
		},
		{
			name:     "절대 경로",
			input:    "/etc/config.yaml",
			expected: "/etc/config.yaml",
		},
		{
			name:     "빈 문자열",
			input:    "",
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if result := expandPath(tt.input); result != tt.expected {
				t.Errorf("expandPath() = %q, want %q", result, tt.expected)
			}
		})
	}
}
