// Package config는 mctl의 설정 관리를 담당합니다.
// 우선순위: 플래그 > 환경변수(MC_) > 설정 파일 > 기본값
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix는 환경변수 접두사입니다. gateway.url은 MC_GATEWAY_URL로 덮어씁니다.
const EnvPrefix = "MC"

// Config는 전체 애플리케이션 설정입니다.
type Config struct {
	Gateway      GatewayConfig      `mapstructure:"gateway" yaml:"gateway"`
	Auth         AuthConfig         `mapstructure:"auth" yaml:"auth"`
	Device       DeviceConfig       `mapstructure:"device" yaml:"device"`
	Reconnection ReconnectionConfig `mapstructure:"reconnection" yaml:"reconnection"`
	Heartbeat    HeartbeatConfig    `mapstructure:"heartbeat" yaml:"heartbeat"`
	Queue        QueueConfig        `mapstructure:"queue" yaml:"queue"`
	Logging      LoggingConfig      `mapstructure:"logging" yaml:"logging"`
	Metrics      MetricsConfig      `mapstructure:"metrics" yaml:"metrics"`
}

// GatewayConfig는 게이트웨이 연결과 클라이언트 식별 설정입니다.
type GatewayConfig struct {
	// URL은 게이트웨이 WebSocket 주소입니다 (ws:// 또는 wss://).
	URL string `mapstructure:"url" yaml:"url"`
	// Token은 저장된 자격 증명보다 우선하는 토큰입니다. 파일보다 MC_GATEWAY_TOKEN 사용을 권장합니다.
	Token      string   `mapstructure:"token" yaml:"token,omitempty"`
	SessionKey string   `mapstructure:"session_key" yaml:"session_key"`
	ClientID   string   `mapstructure:"client_id" yaml:"client_id"`
	Role       string   `mapstructure:"role" yaml:"role"`
	Scopes     []string `mapstructure:"scopes" yaml:"scopes"`
	Locale     string   `mapstructure:"locale" yaml:"locale,omitempty"`
	// RequestTimeoutSeconds는 요청 응답 대기 시간(초)입니다.
	RequestTimeoutSeconds int `mapstructure:"request_timeout_seconds" yaml:"request_timeout_seconds"`
	// ChallengeGraceMs는 connect.challenge를 기다리는 시간(밀리초)입니다.
	ChallengeGraceMs int `mapstructure:"challenge_grace_ms" yaml:"challenge_grace_ms"`
}

// AuthConfig는 자격 증명 보관과 페어링 설정입니다.
type AuthConfig struct {
	CredentialsFile    string `mapstructure:"credentials_file" yaml:"credentials_file"`
	PairPollIntervalMs int    `mapstructure:"pair_poll_interval_ms" yaml:"pair_poll_interval_ms"`
}

// DeviceConfig는 디바이스 서명 설정입니다.
type DeviceConfig struct {
	// Enabled가 false면 핸드셰이크에 디바이스 증명을 싣지 않습니다.
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	KeyFile string `mapstructure:"key_file" yaml:"key_file"`
}

// ReconnectionConfig는 재연결 설정입니다.
type ReconnectionConfig struct {
	// MaxAttempts는 최대 재연결 시도 횟수입니다. 0이면 무제한입니다.
	MaxAttempts       int     `mapstructure:"max_attempts" yaml:"max_attempts"`
	InitialDelayMs    int     `mapstructure:"initial_delay_ms" yaml:"initial_delay_ms"`
	MaxDelayMs        int     `mapstructure:"max_delay_ms" yaml:"max_delay_ms"`
	BackoffMultiplier float64 `mapstructure:"backoff_multiplier" yaml:"backoff_multiplier"`
}

// HeartbeatConfig는 연결 감시 설정입니다.
type HeartbeatConfig struct {
	// TimeoutSeconds 동안 아무 프레임도 받지 못하면 연결을 끊습니다.
	TimeoutSeconds int `mapstructure:"timeout_seconds" yaml:"timeout_seconds"`
	// NetworkCheckSeconds는 네트워크 변경 감지 간격입니다. 0이면 감시하지 않습니다.
	NetworkCheckSeconds int `mapstructure:"network_check_seconds" yaml:"network_check_seconds"`
}

// QueueConfig는 오프라인 큐 설정입니다.
type QueueConfig struct {
	Limit int `mapstructure:"limit" yaml:"limit"`
}

// LoggingConfig는 로깅 설정입니다.
type LoggingConfig struct {
	// Level은 로그 레벨입니다 (debug, info, warn, error).
	Level string `mapstructure:"level" yaml:"level"`
	// Format은 로그 포맷입니다 (json, text).
	Format string `mapstructure:"format" yaml:"format"`
	// File은 로그 파일 경로입니다. 비어있으면 stderr로 출력합니다.
	File string `mapstructure:"file" yaml:"file"`
}

// MetricsConfig는 Prometheus 노출 설정입니다.
type MetricsConfig struct {
	// Addr이 비어 있지 않으면 해당 주소에서 /metrics를 제공합니다 (예: 127.0.0.1:9464).
	Addr string `mapstructure:"addr" yaml:"addr"`
}

// ConfigDir은 설정 디렉터리입니다 (~/.config/missioncontrol, XDG_CONFIG_HOME 우선).
func ConfigDir() string {
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, "missioncontrol")
}

// DefaultConfigPath는 기본 설정 파일 경로를 반환합니다.
func DefaultConfigPath() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}

// EnsureConfigDir는 설정 디렉토리가 존재하는지 확인하고 없으면 생성합니다.
func EnsureConfigDir() error {
	if err := os.MkdirAll(ConfigDir(), 0700); err != nil {
		return fmt.Errorf("설정 디렉토리 생성 실패: %w", err)
	}
	return nil
}

// SetDefaults는 v에 기본 설정값을 정의합니다.
func SetDefaults(v *viper.Viper) {
	dir := ConfigDir()

	// 게이트웨이
	v.SetDefault("gateway.url", "ws://127.0.0.1:18789")
	v.SetDefault("gateway.token", "")
	v.SetDefault("gateway.session_key", "main")
	v.SetDefault("gateway.client_id", "mctl")
	v.SetDefault("gateway.role", "operator")
	v.SetDefault("gateway.scopes", []string{"operator.read", "operator.write"})
	v.SetDefault("gateway.locale", "")
	v.SetDefault("gateway.request_timeout_seconds", 120)
	v.SetDefault("gateway.challenge_grace_ms", 750)

	// 인증
	v.SetDefault("auth.credentials_file", filepath.Join(dir, "credentials.json"))
	v.SetDefault("auth.pair_poll_interval_ms", 2000)

	// 디바이스
	v.SetDefault("device.enabled", true)
	v.SetDefault("device.key_file", filepath.Join(dir, "device.pem"))

	// 재연결
	v.SetDefault("reconnection.max_attempts", 10)
	v.SetDefault("reconnection.initial_delay_ms", 1000)
	v.SetDefault("reconnection.max_delay_ms", 30000)
	v.SetDefault("reconnection.backoff_multiplier", 2.0)

	// 연결 감시
	v.SetDefault("heartbeat.timeout_seconds", 45)
	v.SetDefault("heartbeat.network_check_seconds", 5)

	v.SetDefault("queue.limit", 50)

	// 로깅
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("logging.file", "")

	v.SetDefault("metrics.addr", "")
}

// BindEnv는 MC_ 접두사 환경변수를 바인딩합니다. 중첩 키의 .은 _로 바뀝니다.
func BindEnv(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

// Load는 전역 viper에서 설정을 읽습니다.
func Load() (*Config, error) {
	return LoadFrom(viper.GetViper())
}

// LoadFrom은 v에서 설정을 읽고 경로의 ~를 확장합니다.
func LoadFrom(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("설정 파싱 실패: %w", err)
	}

	cfg.Auth.CredentialsFile = expandPath(cfg.Auth.CredentialsFile)
	cfg.Device.KeyFile = expandPath(cfg.Device.KeyFile)
	cfg.Logging.File = expandPath(cfg.Logging.File)

	return &cfg, nil
}

// Validate는 설정의 유효성을 검사합니다.
func (c *Config) Validate() error {
	u, err := url.Parse(c.Gateway.URL)
	if err != nil || (u.Scheme != "ws" && u.Scheme != "wss") || u.Host == "" {
		return fmt.Errorf("유효하지 않은 게이트웨이 URL: %q (ws:// 또는 wss://)", c.Gateway.URL)
	}
	if c.Gateway.ClientID == "" {
		return fmt.Errorf("gateway.client_id가 비어 있습니다")
	}
	if c.Gateway.RequestTimeoutSeconds <= 0 {
		return fmt.Errorf("gateway.request_timeout_seconds는 1 이상이어야 합니다")
	}
	if c.Gateway.ChallengeGraceMs < 0 {
		return fmt.Errorf("gateway.challenge_grace_ms는 0 이상이어야 합니다")
	}

	if c.Reconnection.MaxAttempts < 0 {
		return fmt.Errorf("max_attempts는 0 이상이어야 합니다 (0 = 무제한)")
	}
	if c.Reconnection.InitialDelayMs <= 0 {
		return fmt.Errorf("initial_delay_ms는 1 이상이어야 합니다")
	}
	if c.Reconnection.MaxDelayMs < c.Reconnection.InitialDelayMs {
		return fmt.Errorf("max_delay_ms(%d)는 initial_delay_ms(%d)보다 작을 수 없습니다",
			c.Reconnection.MaxDelayMs, c.Reconnection.InitialDelayMs)
	}
	if c.Reconnection.BackoffMultiplier < 1 {
		return fmt.Errorf("backoff_multiplier는 1 이상이어야 합니다")
	}

	if c.Heartbeat.TimeoutSeconds <= 0 {
		return fmt.Errorf("heartbeat.timeout_seconds는 1 이상이어야 합니다")
	}
	if c.Heartbeat.NetworkCheckSeconds < 0 {
		return fmt.Errorf("heartbeat.network_check_seconds는 0 이상이어야 합니다")
	}
	if c.Queue.Limit <= 0 {
		return fmt.Errorf("queue.limit은 1 이상이어야 합니다")
	}

	validLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("유효하지 않은 로그 레벨: %s (debug, info, warn, error 중 하나)", c.Logging.Level)
	}

	validFormats := map[string]bool{
		"json": true,
		"text": true,
	}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("유효하지 않은 로그 포맷: %s (json, text 중 하나)", c.Logging.Format)
	}

	return nil
}

// RequestTimeout은 요청 응답 대기 시간입니다.
func (g GatewayConfig) RequestTimeout() time.Duration {
	return time.Duration(g.RequestTimeoutSeconds) * time.Second
}

// ChallengeGrace는 connect.challenge 유예 시간입니다.
func (g GatewayConfig) ChallengeGrace() time.Duration {
	return time.Duration(g.ChallengeGraceMs) * time.Millisecond
}

// InitialDelay는 첫 재연결 지연입니다.
func (r ReconnectionConfig) InitialDelay() time.Duration {
	return time.Duration(r.InitialDelayMs) * time.Millisecond
}

// MaxDelay는 재연결 지연 상한입니다.
func (r ReconnectionConfig) MaxDelay() time.Duration {
	return time.Duration(r.MaxDelayMs) * time.Millisecond
}

// Timeout은 무활동 허용 시간입니다.
func (h HeartbeatConfig) Timeout() time.Duration {
	return time.Duration(h.TimeoutSeconds) * time.Second
}

// NetworkCheckInterval은 네트워크 변경 감지 간격입니다.
func (h HeartbeatConfig) NetworkCheckInterval() time.Duration {
	return time.Duration(h.NetworkCheckSeconds) * time.Second
}

// PairPollInterval은 페어링 승인 폴링 간격입니다.
func (a AuthConfig) PairPollInterval() time.Duration {
	return time.Duration(a.PairPollIntervalMs) * time.Millisecond
}

// expandPath는 ~를 홈 디렉토리로 확장합니다.
func expandPath(path string) string {
	if path == "" {
		return ""
	}
	if path[0] == '~' {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[1:])
	}
	return path
}
