// Package logger는 구조화된 로깅을 제공합니다.
// 모든 출력은 토큰과 서명 같은 민감 정보를 마스킹한 뒤 기록됩니다.
package logger

import (
	"io"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/lstailors/LST-MissionControl-sub000/internal/config"
)

// 민감 정보 패턴
var sensitivePatterns = []*regexp.Regexp{
	// JWT 토큰 패턴 (eyJ로 시작하는 Base64)
	regexp.MustCompile(`(eyJ[a-zA-Z0-9\-_]+\.eyJ[a-zA-Z0-9\-_]+\.[a-zA-Z0-9\-_]+)`),
	// Bearer 토큰
	regexp.MustCompile(`(Bearer\s+[a-zA-Z0-9\-_\.]+)`),
	// 키-값 패턴 (token=, signature=, key= 등). JSON 로그의 "token":"..." 형태도 포함
	regexp.MustCompile(`((?:api[_-]?key|apikey|key|token|secret|password|signature)"?\s*[=:]\s*"?)([a-zA-Z0-9\-_\.]{10,})`),
}

// kvSeparator는 키-값 패턴에서 키와 값을 나눕니다.
var kvSeparator = regexp.MustCompile(`[=:]`)

// maskedWriter는 민감 정보를 마스킹하는 io.Writer입니다.
type maskedWriter struct {
	underlying io.Writer
}

// Write는 민감 정보를 마스킹한 후 기록합니다.
func (w *maskedWriter) Write(p []byte) (n int, err error) {
	masked := MaskSensitive(string(p))
	return w.underlying.Write([]byte(masked))
}

// Setup은 전역 로거를 초기화합니다.
// 표준 출력은 채팅 출력에 쓰이므로 로그는 기본적으로 stderr로 갑니다.
func Setup(cfg config.LoggingConfig) {
	// 로그 레벨 설정
	level := parseLevel(cfg.Level)
	zerolog.SetGlobalLevel(level)

	// 타임스탬프 포맷 설정 (RFC3339)
	zerolog.TimeFieldFormat = time.RFC3339

	// 출력 대상 설정
	var output io.Writer = os.Stderr
	if cfg.File != "" {
		file, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
		if err != nil {
			// 파일 열기 실패 시 stderr 사용
			log.Warn().Err(err).Str("file", cfg.File).Msg("로그 파일을 열 수 없어 stderr를 사용합니다")
		} else {
			output = file
		}
	}

	// 민감 정보 마스킹 Writer 래핑
	maskedOutput := &maskedWriter{underlying: output}

	// 포맷 설정
	if cfg.Format == "text" {
		// 콘솔 포맷 (개발 시 가독성)
		consoleWriter := zerolog.ConsoleWriter{
			Out:        maskedOutput,
			TimeFormat: time.RFC3339,
		}
		log.Logger = withCaller(zerolog.New(consoleWriter).With().Timestamp(), level).Logger()
	} else {
		// JSON 포맷
		log.Logger = withCaller(zerolog.New(maskedOutput).With().Timestamp(), level).Logger()
	}
}

// withCaller는 debug 레벨에서만 호출 위치를 붙입니다.
func withCaller(ctx zerolog.Context, level zerolog.Level) zerolog.Context {
	if level <= zerolog.DebugLevel {
		return ctx.Caller()
	}
	return ctx
}

// parseLevel은 문자열 레벨을 zerolog.Level로 변환합니다.
func parseLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// MaskSensitive는 문자열에서 민감 정보를 마스킹합니다.
func MaskSensitive(input string) string {
	result := input
	for _, pattern := range sensitivePatterns {
		result = pattern.ReplaceAllStringFunc(result, func(match string) string {
			// 키-값 패턴 처리 (api_key=xxx 형태)
			if strings.Contains(match, "=") || strings.Contains(match, ":") {
				parts := kvSeparator.Split(match, 2)
				if len(parts) == 2 {
					prefix := parts[0] + string(match[len(parts[0])])
					value := strings.TrimSpace(parts[1])
					quote := ""
					if strings.HasPrefix(value, `"`) {
						quote, value = `"`, value[1:]
					}
					return prefix + quote + maskValue(value)
				}
			}
			// Bearer 토큰 처리
			if strings.HasPrefix(match, "Bearer ") {
				return "Bearer " + maskValue(strings.TrimPrefix(match, "Bearer "))
			}
			// 일반 토큰/키 마스킹
			return maskValue(match)
		})
	}
	return result
}

// maskValue는 값을 마스킹합니다.
// 앞 4자와 뒤 4자만 남기고 나머지는 ***로 대체합니다.
func maskValue(value string) string {
	value = strings.TrimSpace(value)
	if len(value) <= 8 {
		return "***"
	}
	return value[:4] + "***" + value[len(value)-4:]
}

// Debug는 디버그 레벨 로그를 기록합니다.
func Debug() *zerolog.Event {
	return log.Debug()
}

// Info는 정보 레벨 로그를 기록합니다.
func Info() *zerolog.Event {
	return log.Info()
}

// Warn은 경고 레벨 로그를 기록합니다.
func Warn() *zerolog.Event {
	return log.Warn()
}

// Error는 오류 레벨 로그를 기록합니다.
func Error() *zerolog.Event {
	return log.Error()
}

// Component는 component 필드를 붙인 로거를 반환합니다.
func Component(name string) zerolog.Logger {
	return log.With().Str("component", name).Logger()
}

// WithRun은 채팅 실행 컨텍스트를 추가한 로거를 반환합니다.
func WithRun(runID, sessionKey string) zerolog.Logger {
	return log.With().
		Str("run_id", runID).
		Str("session", sessionKey).
		Logger()
}
