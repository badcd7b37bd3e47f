package cmd

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/lstailors/LST-MissionControl-sub000/internal/gateway"
	"github.com/lstailors/LST-MissionControl-sub000/internal/logger"
	"github.com/lstailors/LST-MissionControl-sub000/internal/metrics"
	"github.com/lstailors/LST-MissionControl-sub000/internal/protocol"
)

var (
	chatToken       string
	chatSession     string
	chatMetricsAddr string
)

// chatCmd는 게이트웨이와 대화형 채팅을 하는 명령어입니다.
var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "게이트웨이와 대화형 채팅을 시작합니다",
	Long: `게이트웨이에 연결하여 한 줄씩 메시지를 보내고 응답을 스트리밍으로 출력합니다.

연결이 끊긴 동안 보낸 메시지는 오프라인 큐에 보관되었다가 재연결 후 순서대로 전송됩니다.

명령:
  /abort          현재 실행 중단
  /history [n]    최근 대화 기록 출력
  /status         연결 상태 출력
  /quit           종료

SIGINT(Ctrl+C) 또는 SIGTERM을 받으면 연결을 정상 종료합니다.`,
	RunE: runChat,
}

func init() {
	rootCmd.AddCommand(chatCmd)

	chatCmd.Flags().StringVar(&chatToken, "token", "",
		"게이트웨이 토큰 (또는 MC_GATEWAY_TOKEN 환경변수, 기본값: 저장된 자격 증명)")
	chatCmd.Flags().StringVar(&chatSession, "session", "",
		"세션 키 (기본값: 설정의 gateway.session_key)")
	chatCmd.Flags().StringVar(&chatMetricsAddr, "metrics-addr", "",
		"Prometheus /metrics 노출 주소 (예: 127.0.0.1:9464)")
}

func runChat(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if chatSession != "" {
		cfg.Gateway.SessionKey = chatSession
	}

	s, err := newSession(cfg)
	if err != nil {
		return err
	}
	defer s.client.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	addr := chatMetricsAddr
	if addr == "" {
		addr = cfg.Metrics.Addr
	}
	if addr != "" {
		if err := serveMetrics(ctx, s.client.Metrics(), addr); err != nil {
			return err
		}
	}

	out := newStreamPrinter(os.Stdout)
	s.client.OnStreamChunk(out.chunk)
	s.client.OnStreamEnd(out.end)
	s.client.OnStreamEnd(func(e gateway.StreamEnd) {
		l := logger.WithRun(e.RunID, e.SessionKey)
		l.Debug().
			Str("state", e.State).
			Int("text_len", len(e.Text)).
			Int("media", len(e.Media)).
			Msg("스트림 종료")
	})
	s.client.OnStatusChange(func(u gateway.StatusUpdate) {
		out.line(renderStatusLine(u))
	})
	s.client.OnScopeError(func(e gateway.ScopeError) {
		out.line(errorStyle.Render("접속이 거부되었습니다: " + e.Message))
		out.line(dimStyle.Render("`mctl pair`로 이 디바이스를 다시 페어링하세요."))
	})
	s.client.OnEvent(func(e gateway.Event) {
		logger.Debug().Str("event", e.Name).Int("size", len(e.Payload)).Msg("게이트웨이 이벤트")
	})

	logger.Info().
		Str("gateway", cfg.Gateway.URL).
		Str("session", cfg.Gateway.SessionKey).
		Msg("게이트웨이 연결 시작")
	s.client.Connect(cfg.Gateway.URL, s.resolveToken(chatToken))

	if interval := cfg.Heartbeat.NetworkCheckInterval(); interval > 0 {
		gateway.NewNetworkMonitor(s.client, interval).Start(ctx)
	}

	lines := readLines(ctx, os.Stdin)
	for {
		select {
		case sig := <-sigCh:
			logger.Info().Str("signal", sig.String()).Msg("종료 시그널 수신")
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			quit, err := handleChatLine(ctx, s.client, out, line)
			if err != nil {
				out.line(errorStyle.Render(err.Error()))
			}
			if quit {
				return nil
			}
		}
	}
}

// readLines는 r을 줄 단위로 읽어 채널로 넘깁니다. EOF에서 채널을 닫습니다.
func readLines(ctx context.Context, r io.Reader) <-chan string {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 64*1024), 1024*1024)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()
	return lines
}

// chatClient는 REPL이 사용하는 클라이언트 동작입니다.
type chatClient interface {
	SendMessage(ctx context.Context, text string, attachments []protocol.Attachment, sessionKey string) (gateway.SendResult, error)
	Abort(ctx context.Context, runID string) error
	History(ctx context.Context, sessionKey string, limit int) (json.RawMessage, error)
	Status() gateway.Status
}

// handleChatLine은 입력 한 줄을 처리합니다. 종료해야 하면 true를 반환합니다.
func handleChatLine(ctx context.Context, c chatClient, out *streamPrinter, line string) (bool, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return false, nil
	}

	if !strings.HasPrefix(line, "/") {
		res, err := c.SendMessage(ctx, line, nil, "")
		if err != nil {
			return false, fmt.Errorf("전송 실패: %w", err)
		}
		if res.Queued {
			out.line(dimStyle.Render(fmt.Sprintf("오프라인: 큐에 보관됨 (%d개 대기)", c.Status().QueueSize)))
		}
		return false, nil
	}

	fields := strings.Fields(line)
	switch fields[0] {
	case "/quit", "/exit":
		return true, nil

	case "/abort":
		reqCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		if err := c.Abort(reqCtx, ""); err != nil {
			return false, fmt.Errorf("중단 요청 실패: %w", err)
		}
		return false, nil

	case "/status":
		st := c.Status()
		out.line(renderField("phase", renderPhase(st.Phase)))
		out.line(renderField("gateway", st.URL))
		out.line(renderField("session", st.SessionKey))
		out.line(renderField("queue", strconv.Itoa(st.QueueSize)))
		if st.Attempt > 0 {
			out.line(renderField("attempt", fmt.Sprintf("%d/%d", st.Attempt, st.MaxAttempts)))
		}
		return false, nil

	case "/history":
		limit := 20
		if len(fields) > 1 {
			n, err := strconv.Atoi(fields[1])
			if err != nil || n <= 0 {
				return false, fmt.Errorf("잘못된 개수: %s", fields[1])
			}
			limit = n
		}
		reqCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		payload, err := c.History(reqCtx, "", limit)
		if err != nil {
			return false, fmt.Errorf("기록 조회 실패: %w", err)
		}
		out.line(prettyJSON(payload))
		return false, nil

	default:
		return false, fmt.Errorf("알 수 없는 명령: %s", fields[0])
	}
}

// serveMetrics는 addr에서 /metrics를 제공합니다. ctx가 끝나면 서버를 닫습니다.
func serveMetrics(ctx context.Context, m *metrics.Metrics, addr string) error {
	handler, err := m.Handler()
	if err != nil {
		return fmt.Errorf("메트릭 등록 실패: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", handler)
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Str("addr", addr).Msg("메트릭 서버 종료")
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info().Str("addr", addr).Msg("메트릭 노출 시작")
	return nil
}
