// config.go는 설정 관리 명령을 구현합니다.
package cmd

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/lstailors/LST-MissionControl-sub000/internal/config"
)

// configCmd는 설정 관리를 위한 상위 명령어입니다.
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "설정을 관리합니다",
	Long: `설정 파일의 값을 조회하거나 수정합니다.

설정 파일 위치: ~/.config/missioncontrol/config.yaml

주의: 게이트웨이 토큰은 'mctl pair'로 받거나 환경변수로 설정하는 것을 권장합니다.
  - MC_GATEWAY_TOKEN: 게이트웨이 토큰
  - MC_GATEWAY_URL:   게이트웨이 주소`,
}

// configSetCmd는 설정 값을 저장하는 명령어입니다.
var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "설정 값을 저장합니다",
	Long: `설정 파일에 값을 저장합니다.

키는 점(.)으로 구분된 경로를 사용합니다.
예시:
  mctl config set gateway.url wss://gateway.example.com
  mctl config set gateway.scopes operator.read,operator.write
  mctl config set logging.level debug
  mctl config set metrics.addr 127.0.0.1:9464

지원하는 설정 키:
  gateway.url                      - 게이트웨이 WebSocket URL
  gateway.token                    - 게이트웨이 토큰 (환경변수 권장)
  gateway.session_key              - 기본 세션 키
  gateway.client_id                - 핸드셰이크에 보내는 클라이언트 ID
  gateway.role                     - 요청 역할
  gateway.scopes                   - 요청 스코프 (쉼표로 구분)
  gateway.locale                   - 로케일
  gateway.request_timeout_seconds  - 요청 응답 대기 시간(초)
  gateway.challenge_grace_ms       - connect.challenge 대기 시간(밀리초)
  auth.credentials_file            - 자격 증명 파일 경로
  auth.pair_poll_interval_ms       - 페어링 승인 확인 간격(밀리초)
  device.enabled                   - 디바이스 서명 사용 여부
  device.key_file                  - 디바이스 키 파일 경로
  reconnection.max_attempts        - 최대 재연결 시도 횟수 (0 = 무제한)
  reconnection.initial_delay_ms    - 초기 재연결 지연(밀리초)
  reconnection.max_delay_ms        - 최대 재연결 지연(밀리초)
  reconnection.backoff_multiplier  - 지수 백오프 배수
  heartbeat.timeout_seconds        - 무활동 끊김 판정 시간(초)
  heartbeat.network_check_seconds  - 네트워크 변경 감지 간격(초, 0 = 끔)
  queue.limit                      - 오프라인 큐 최대 크기
  logging.level                    - 로그 레벨 (debug, info, warn, error)
  logging.format                   - 로그 포맷 (json, text)
  logging.file                     - 로그 파일 경로 (비어있으면 stderr)
  metrics.addr                     - /metrics 노출 주소`,
	Args: cobra.ExactArgs(2),
	RunE: runConfigSet,
}

// configGetCmd는 설정 값을 조회하는 명령어입니다.
var configGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "설정 값을 조회합니다",
	Long: `설정 파일에서 특정 키의 값을 조회합니다.

예시:
  mctl config get gateway.url
  mctl config get logging.level`,
	Args: cobra.ExactArgs(1),
	RunE: runConfigGet,
}

// configListCmd는 전체 설정을 출력하는 명령어입니다.
var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "전체 설정을 출력합니다",
	Long: `현재 적용된 모든 설정을 YAML 포맷으로 출력합니다.

게이트웨이 토큰은 마스킹 처리되어 표시됩니다.`,
	RunE: runConfigList,
}

// configPathCmd는 설정 파일 경로를 출력하는 명령어입니다.
var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "설정 파일 경로를 출력합니다",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Println(config.DefaultConfigPath())
		return nil
	},
}

// configInitCmd는 기본 설정 파일을 생성하는 명령어입니다.
var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "기본 설정 파일을 생성합니다",
	Long: `기본 설정 파일을 ~/.config/missioncontrol/config.yaml에 생성합니다.

이미 파일이 존재하면 덮어쓰지 않습니다.
강제로 덮어쓰려면 --force 플래그를 사용하세요.`,
	RunE: runConfigInit,
}

var forceInit bool

func init() {
	rootCmd.AddCommand(configCmd)

	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configGetCmd)
	configCmd.AddCommand(configListCmd)
	configCmd.AddCommand(configPathCmd)
	configCmd.AddCommand(configInitCmd)

	configInitCmd.Flags().BoolVar(&forceInit, "force", false, "기존 파일을 덮어씁니다")
}

// runConfigSet은 설정 값을 저장합니다.
func runConfigSet(cmd *cobra.Command, args []string) error {
	key := args[0]
	value := args[1]

	if !isValidConfigKey(key) {
		return fmt.Errorf("알 수 없는 설정 키: %s", key)
	}

	var parsedValue interface{}
	if key == "gateway.scopes" {
		parsedValue = splitList(value)
	} else {
		parsedValue = parseConfigValue(value)
	}

	viper.Set(key, parsedValue)

	// 저장 전에 검증하여 잘못된 값이 파일에 남지 않도록 함
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("잘못된 값: %w", err)
	}

	if err := config.EnsureConfigDir(); err != nil {
		return err
	}

	configPath := viper.ConfigFileUsed()
	if configPath == "" {
		configPath = config.DefaultConfigPath()
	}
	if err := viper.WriteConfigAs(configPath); err != nil {
		return fmt.Errorf("설정 파일 저장 실패: %w", err)
	}

	display := parsedValue
	if isSensitiveKey(key) {
		display = maskSensitiveValue(value)
	}
	fmt.Printf("%s = %v\n", key, display)
	fmt.Printf("설정이 저장되었습니다: %s\n", configPath)
	return nil
}

// runConfigGet은 설정 값을 조회합니다.
func runConfigGet(cmd *cobra.Command, args []string) error {
	key := args[0]

	value := viper.Get(key)
	if value == nil {
		return fmt.Errorf("설정 키를 찾을 수 없습니다: %s", key)
	}

	if isSensitiveKey(key) {
		if strVal, ok := value.(string); ok && strVal != "" {
			value = maskSensitiveValue(strVal)
		}
	}

	fmt.Printf("%s = %v\n", key, value)
	return nil
}

// runConfigList는 전체 설정을 출력합니다.
func runConfigList(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("설정 로드 실패: %w", err)
	}

	configFile := viper.ConfigFileUsed()
	if configFile != "" {
		fmt.Printf("# 설정 파일: %s\n", configFile)
	} else {
		fmt.Printf("# 설정 파일: (기본값 사용 중)\n")
	}
	fmt.Println()

	if cfg.Gateway.Token != "" {
		cfg.Gateway.Token = maskSensitiveValue(cfg.Gateway.Token)
	}

	yamlData, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("YAML 직렬화 실패: %w", err)
	}
	fmt.Println(string(yamlData))

	fmt.Println("# 환경변수 상태:")
	printEnvStatus("MC_GATEWAY_URL")
	printEnvStatus("MC_GATEWAY_TOKEN")
	return nil
}

// runConfigInit은 기본 설정 파일을 생성합니다.
func runConfigInit(cmd *cobra.Command, args []string) error {
	configPath := config.DefaultConfigPath()

	if !forceInit {
		if _, err := os.Stat(configPath); err == nil {
			return fmt.Errorf("설정 파일이 이미 존재합니다: %s\n--force 플래그로 덮어쓸 수 있습니다", configPath)
		}
	}

	if err := config.EnsureConfigDir(); err != nil {
		return err
	}

	if err := os.WriteFile(configPath, []byte(defaultConfigYAML), 0600); err != nil {
		return fmt.Errorf("설정 파일 생성 실패: %w", err)
	}

	fmt.Printf("설정 파일이 생성되었습니다: %s\n", configPath)
	fmt.Println("\n다음 단계:")
	fmt.Println("  mctl pair     # 이 디바이스를 게이트웨이에 페어링")
	fmt.Println("  mctl chat     # 대화 시작")
	return nil
}

// defaultConfigYAML은 config init이 쓰는 기본 설정 파일입니다.
const defaultConfigYAML = `# mctl 설정 파일
# 생성됨: mctl config init

gateway:
  url: "ws://127.0.0.1:18789"
  # 토큰은 'mctl pair'로 받거나 MC_GATEWAY_TOKEN 환경변수로 설정하세요
  session_key: "main"
  client_id: "mctl"
  role: "operator"
  scopes:
    - operator.read
    - operator.write
  request_timeout_seconds: 120
  challenge_grace_ms: 750

auth:
  credentials_file: "~/.config/missioncontrol/credentials.json"
  pair_poll_interval_ms: 2000

device:
  enabled: true
  key_file: "~/.config/missioncontrol/device.pem"

reconnection:
  max_attempts: 10        # 0 = 무제한
  initial_delay_ms: 1000
  max_delay_ms: 30000
  backoff_multiplier: 2.0

heartbeat:
  timeout_seconds: 45
  network_check_seconds: 5   # 0 = 끔

queue:
  limit: 50

logging:
  level: "info"    # debug, info, warn, error
  format: "text"   # json, text
  file: ""         # 비어있으면 stderr

metrics:
  addr: ""         # 예: 127.0.0.1:9464
`

// validConfigKeys는 config set/get이 허용하는 키입니다.
var validConfigKeys = map[string]bool{
	"gateway.url":                     true,
	"gateway.token":                   true,
	"gateway.session_key":             true,
	"gateway.client_id":               true,
	"gateway.role":                    true,
	"gateway.scopes":                  true,
	"gateway.locale":                  true,
	"gateway.request_timeout_seconds": true,
	"gateway.challenge_grace_ms":      true,
	"auth.credentials_file":           true,
	"auth.pair_poll_interval_ms":      true,
	"device.enabled":                  true,
	"device.key_file":                 true,
	"reconnection.max_attempts":       true,
	"reconnection.initial_delay_ms":   true,
	"reconnection.max_delay_ms":       true,
	"reconnection.backoff_multiplier": true,
	"heartbeat.timeout_seconds":       true,
	"heartbeat.network_check_seconds": true,
	"queue.limit":                     true,
	"logging.level":                   true,
	"logging.format":                  true,
	"logging.file":                    true,
	"metrics.addr":                    true,
}

// isValidConfigKey는 유효한 설정 키인지 확인합니다.
func isValidConfigKey(key string) bool {
	return validConfigKeys[key]
}

// isSensitiveKey는 출력 시 가려야 하는 키인지 확인합니다.
func isSensitiveKey(key string) bool {
	return strings.HasSuffix(key, "token")
}

// parseConfigValue는 문자열 값을 적절한 타입으로 변환합니다.
// 문자열 전체가 숫자일 때만 숫자로 바꿉니다. "127.0.0.1:9464" 같은 값은 문자열로 남습니다.
func parseConfigValue(value string) interface{} {
	switch value {
	case "true":
		return true
	case "false":
		return false
	}

	if intVal, err := strconv.Atoi(value); err == nil {
		return intVal
	}
	if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
		return floatVal
	}
	return value
}

// splitList는 쉼표로 구분된 값을 목록으로 바꿉니다. 빈 항목은 버립니다.
func splitList(value string) []string {
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// maskSensitiveValue는 민감한 값을 마스킹합니다.
func maskSensitiveValue(value string) string {
	if len(value) <= 8 {
		return "***"
	}
	return value[:4] + "***" + value[len(value)-4:]
}

// printEnvStatus는 환경변수 설정 상태를 출력합니다.
func printEnvStatus(envVar string) {
	value := os.Getenv(envVar)
	if value == "" {
		fmt.Printf("  %s: 설정되지 않음\n", envVar)
		return
	}
	if isSensitiveKey(strings.ToLower(envVar)) {
		value = maskSensitiveValue(value)
	}
	fmt.Printf("  %s: 설정됨 (%s)\n", envVar, value)
}
