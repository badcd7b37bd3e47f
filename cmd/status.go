// status.go는 설정, 자격 증명, 연결 상태 확인 명령을 구현합니다.
package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/lstailors/LST-MissionControl-sub000/internal/auth"
	"github.com/lstailors/LST-MissionControl-sub000/internal/config"
	"github.com/lstailors/LST-MissionControl-sub000/internal/gateway"
	"github.com/lstailors/LST-MissionControl-sub000/internal/metrics"
)

// StatusInfo는 상태 정보를 담는 구조체입니다.
type StatusInfo struct {
	Gateway    string `json:"gateway"`
	SessionKey string `json:"session_key"`

	// Paired는 저장된 게이트웨이 토큰이 있는지 여부입니다.
	Paired          bool       `json:"paired"`
	Token           string     `json:"token,omitempty"`
	DeviceID        string     `json:"device_id,omitempty"`
	PairedAt        *time.Time `json:"paired_at,omitempty"`
	CredentialsFile string     `json:"credentials_file"`

	// Probe는 --probe로 실제 접속을 시도한 결과입니다.
	Probe *ProbeInfo `json:"probe,omitempty"`
}

// ProbeInfo는 접속 시도 결과입니다.
type ProbeInfo struct {
	Connected bool                     `json:"connected"`
	Error     string                   `json:"error,omitempty"`
	Handshake string                   `json:"handshake,omitempty"`
	Metrics   *metrics.MetricsSnapshot `json:"metrics,omitempty"`
}

// statusCmd는 현재 상태를 확인하는 명령어입니다.
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "게이트웨이 설정과 페어링 상태를 확인합니다",
	Long: `게이트웨이 주소, 저장된 자격 증명, 디바이스 정보를 표시합니다.

--probe를 주면 게이트웨이에 한 번 접속하여 핸드셰이크 결과와
소요 시간을 함께 표시합니다.`,
	RunE: runStatus,
}

var (
	statusJSON  bool
	statusProbe bool
)

func init() {
	rootCmd.AddCommand(statusCmd)

	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "JSON 형식으로 출력")
	statusCmd.Flags().BoolVar(&statusProbe, "probe", false, "게이트웨이에 접속하여 확인")
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	info, err := collectStatus(cfg)
	if err != nil {
		return fmt.Errorf("상태 수집 실패: %w", err)
	}

	if statusProbe {
		info.Probe = probeGateway(cfg)
	}

	if statusJSON {
		if err := printStatusJSON(cmd.OutOrStdout(), info); err != nil {
			return err
		}
	} else {
		printStatusFull(cmd.OutOrStdout(), info)
	}

	// 스크립트에서 접속 실패를 알 수 있도록 종료 코드로 보고
	if info.Probe != nil && !info.Probe.Connected {
		return errProbeFailed
	}
	return nil
}

var errProbeFailed = errors.New("게이트웨이 접속 확인 실패")

// collectStatus는 설정과 자격 증명 파일에서 상태를 모읍니다.
func collectStatus(cfg *config.Config) (*StatusInfo, error) {
	info := &StatusInfo{
		Gateway:         cfg.Gateway.URL,
		SessionKey:      cfg.Gateway.SessionKey,
		CredentialsFile: cfg.Auth.CredentialsFile,
	}

	creds, err := auth.NewCredentialStore(cfg.Auth.CredentialsFile).Load()
	if err != nil {
		return nil, err
	}
	if creds.IsValid() {
		info.Paired = true
		info.Token = auth.MaskToken(creds.Token)
		info.DeviceID = creds.DeviceID
		if !creds.PairedAt.IsZero() {
			pairedAt := creds.PairedAt
			info.PairedAt = &pairedAt
		}
	}
	return info, nil
}

// probeGateway는 게이트웨이에 한 번 접속해 보고 결과를 반환합니다.
func probeGateway(cfg *config.Config) *ProbeInfo {
	cfg.Reconnection.MaxAttempts = 1

	s, err := newSession(cfg)
	if err != nil {
		return &ProbeInfo{Error: err.Error()}
	}
	defer s.client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Gateway.RequestTimeout())
	defer cancel()

	start := time.Now()
	s.client.Connect(cfg.Gateway.URL, s.resolveToken(""))
	if err := waitConnected(ctx, s.client); err != nil {
		return &ProbeInfo{Error: err.Error()}
	}

	snap := s.client.Metrics().Snapshot()
	return &ProbeInfo{
		Connected: true,
		Handshake: time.Since(start).Truncate(time.Millisecond).String(),
		Metrics:   &snap,
	}
}

func printStatusJSON(w io.Writer, info *StatusInfo) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(info)
}

func printStatusFull(w io.Writer, info *StatusInfo) {
	fmt.Fprintln(w, renderField("gateway", info.Gateway))
	fmt.Fprintln(w, renderField("session", info.SessionKey))

	if info.Paired {
		fmt.Fprintln(w, renderField("paired", statusConnected.Render("yes")))
		fmt.Fprintln(w, renderField("token", info.Token))
		if info.DeviceID != "" {
			fmt.Fprintln(w, renderField("device", info.DeviceID))
		}
		if info.PairedAt != nil {
			fmt.Fprintln(w, renderField("paired at", info.PairedAt.Local().Format(time.RFC3339)))
		}
	} else {
		fmt.Fprintln(w, renderField("paired", statusDisconnected.Render("no")))
		fmt.Fprintln(w, dimStyle.Render("  `mctl pair`로 이 디바이스를 페어링하세요."))
	}
	fmt.Fprintln(w, renderField("credentials", info.CredentialsFile))

	if info.Probe == nil {
		return
	}
	fmt.Fprintln(w)
	if !info.Probe.Connected {
		fmt.Fprintln(w, renderField("probe", renderPhase(gateway.PhaseIdle)))
		fmt.Fprintln(w, renderField("error", errorStyle.Render(info.Probe.Error)))
		return
	}
	fmt.Fprintln(w, renderField("probe", renderPhase(gateway.PhaseConnected)))
	fmt.Fprintln(w, renderField("handshake", info.Probe.Handshake))
	if m := info.Probe.Metrics; m != nil {
		fmt.Fprintln(w, renderField("frames", fmt.Sprintf("%d sent / %d received", m.FramesSent, m.FramesReceived)))
	}
}
