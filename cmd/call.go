package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/tidwall/gjson"
)

var (
	callToken   string
	callTimeout int
	callPath    string
)

// callCmd는 임의의 게이트웨이 메서드를 호출하는 명령어입니다.
var callCmd = &cobra.Command{
	Use:   "call <method> [params-json]",
	Short: "게이트웨이 메서드를 호출하고 응답을 출력합니다",
	Long: `게이트웨이에 연결하여 요청 하나를 보내고 응답 페이로드를 JSON으로 출력합니다.

예:
  mctl call chat.history '{"sessionKey":"main","limit":5}'
  mctl call chat.history '{"sessionKey":"main"}' --path 'messages.#.role'`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runCall,
}

func init() {
	rootCmd.AddCommand(callCmd)

	callCmd.Flags().StringVar(&callToken, "token", "",
		"게이트웨이 토큰 (또는 MC_GATEWAY_TOKEN 환경변수)")
	callCmd.Flags().IntVar(&callTimeout, "timeout", 30,
		"연결과 응답 대기 시간 (초)")
	callCmd.Flags().StringVar(&callPath, "path", "",
		"응답에서 추출할 gjson 경로")
}

func runCall(cmd *cobra.Command, args []string) error {
	method := args[0]

	var params interface{}
	if len(args) > 1 {
		if !gjson.Valid(args[1]) {
			return fmt.Errorf("params가 올바른 JSON이 아닙니다: %s", args[1])
		}
		params = json.RawMessage(args[1])
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	// 일회성 호출은 재연결 대기 없이 실패를 바로 보고
	cfg.Reconnection.MaxAttempts = 1
	cfg.Heartbeat.NetworkCheckSeconds = 0

	s, err := newSession(cfg)
	if err != nil {
		return err
	}
	defer s.client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(callTimeout)*time.Second)
	defer cancel()

	s.client.Connect(cfg.Gateway.URL, s.resolveToken(callToken))
	if err := waitConnected(ctx, s.client); err != nil {
		return err
	}

	payload, err := s.client.Request(ctx, method, params)
	if err != nil {
		return err
	}

	if callPath != "" {
		result := gjson.GetBytes(payload, callPath)
		if !result.Exists() {
			return fmt.Errorf("응답에 경로가 없습니다: %s", callPath)
		}
		payload = json.RawMessage(result.Raw)
	}

	fmt.Fprintln(cmd.OutOrStdout(), prettyJSON(payload))
	return nil
}

// prettyJSON은 JSON을 들여쓰기하여 반환합니다. 비어 있으면 null입니다.
func prettyJSON(raw json.RawMessage) string {
	if len(raw) == 0 {
		return "null"
	}
	if !gjson.ValidBytes(raw) {
		return string(raw)
	}
	return strings.TrimRight(gjson.GetBytes(raw, "@pretty").Raw, "\n")
}
