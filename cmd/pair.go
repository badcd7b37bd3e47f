// pair.go는 디바이스 페어링과 자격 증명 삭제 명령을 구현합니다.
package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/lstailors/LST-MissionControl-sub000/internal/auth"
	"github.com/lstailors/LST-MissionControl-sub000/internal/gateway"
	"github.com/lstailors/LST-MissionControl-sub000/internal/logger"
	"github.com/lstailors/LST-MissionControl-sub000/internal/protocol"
)

const (
	// 페어링 승인 대기 타임아웃 (10분)
	pairTimeout = 10 * time.Minute
	// 페어링 후 새 토큰으로 접속을 확인하는 시간
	pairVerifyTimeout = 15 * time.Second
)

var logoutResetDevice bool

// pairCmd는 이 디바이스를 게이트웨이에 페어링합니다.
var pairCmd = &cobra.Command{
	Use:   "pair",
	Short: "이 디바이스를 게이트웨이에 페어링합니다",
	Long: `게이트웨이에서 페어링 코드를 발급받아 표시하고, 운영자가 승인할 때까지 기다립니다.

승인되면 게이트웨이 토큰이 ~/.config/missioncontrol/credentials.json에 저장되고
새 토큰으로 다시 연결하여 접속을 확인합니다.
이후 'mctl chat' 명령 시 저장된 토큰이 자동으로 사용됩니다.`,
	RunE: runPair,
}

// logoutCmd는 저장된 자격 증명을 삭제합니다.
var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "저장된 게이트웨이 토큰을 삭제합니다",
	Long: `로컬에 저장된 게이트웨이 토큰을 삭제합니다.
--reset-device를 주면 디바이스 키도 삭제하여 다음 페어링 때 새 디바이스로 등록됩니다.`,
	RunE: runLogout,
}

func init() {
	rootCmd.AddCommand(pairCmd)
	rootCmd.AddCommand(logoutCmd)

	logoutCmd.Flags().BoolVar(&logoutResetDevice, "reset-device", false,
		"디바이스 키도 삭제")
}

func runPair(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	cfg.Heartbeat.NetworkCheckSeconds = 0

	s, err := newSession(cfg)
	if err != nil {
		return err
	}
	defer s.client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), pairTimeout)
	defer cancel()

	fmt.Println("디바이스 페어링을 시작합니다...")
	if s.identity != nil {
		fmt.Println(renderField("device", s.identity.DeviceID()))
	}
	fmt.Println()

	stopSpinner := make(chan struct{})
	spinnerDone := make(chan struct{})
	spinning := false
	onCode := func(code *protocol.PairCode) {
		fmt.Printf("  페어링 코드: %s\n\n", codeStyle.Render(code.Code))
		fmt.Println("  게이트웨이 운영 화면에서 위 코드를 승인하세요.")
		fmt.Println()

		expiresAt := time.Now().Add(time.Duration(code.ExpiresIn) * time.Second)
		spinning = true
		go func() {
			defer close(spinnerDone)
			ticker := time.NewTicker(1 * time.Second)
			defer ticker.Stop()
			for {
				select {
				case <-stopSpinner:
					return
				case <-ticker.C:
					if code.ExpiresIn <= 0 {
						fmt.Printf("\r  승인 대기 중...  ")
						continue
					}
					remaining := time.Until(expiresAt).Truncate(time.Second)
					if remaining < 0 {
						remaining = 0
					}
					minutes := int(remaining.Minutes())
					seconds := int(remaining.Seconds()) % 60
					fmt.Printf("\r  승인 대기 중... (남은 시간: %d분 %02d초)  ", minutes, seconds)
				}
			}
		}()
	}

	paired, err := s.client.Pair(ctx, cfg.Gateway.URL, onCode)
	close(stopSpinner)
	// onCode는 Pair 안에서 동기적으로 호출되므로 반환 후 spinning 읽기는 안전
	if spinning {
		<-spinnerDone
	}
	// 진행 표시 줄 정리
	fmt.Printf("\r%s\r", strings.Repeat(" ", 50))

	if err != nil {
		return fmt.Errorf("페어링 실패: %w", err)
	}

	fmt.Println(statusConnected.Render("  페어링 승인!"))
	if paired.DeviceID != "" {
		fmt.Println(renderField("  device", paired.DeviceID))
	}
	fmt.Println(renderField("  saved to", s.store.Path()))
	fmt.Println()

	fmt.Println("새 토큰으로 게이트웨이에 연결합니다...")
	verifyCtx, verifyCancel := context.WithTimeout(context.Background(), pairVerifyTimeout)
	defer verifyCancel()
	if err := waitConnected(verifyCtx, s.client); err != nil {
		logger.Warn().Err(err).Msg("페어링 후 연결 확인 실패")
		fmt.Println(errorStyle.Render("  연결 확인 실패: " + err.Error()))
		return nil
	}
	fmt.Println("  " + renderPhase(gateway.PhaseConnected))
	return nil
}

func runLogout(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	store := auth.NewCredentialStore(cfg.Auth.CredentialsFile)
	if !store.Exists() && !logoutResetDevice {
		fmt.Println("저장된 인증 정보가 없습니다.")
		return nil
	}

	if err := store.Clear(); err != nil {
		return fmt.Errorf("인증 정보 삭제 실패: %w", err)
	}

	if logoutResetDevice {
		if err := os.Remove(cfg.Device.KeyFile); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("디바이스 키 삭제 실패: %w", err)
		}
		fmt.Println("디바이스 키가 삭제되었습니다. 다음 페어링 때 새 키가 만들어집니다.")
	}

	fmt.Println("로그아웃 완료. 인증 정보가 삭제되었습니다.")
	return nil
}
