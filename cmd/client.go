package cmd

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"

	"github.com/lstailors/LST-MissionControl-sub000/internal/auth"
	"github.com/lstailors/LST-MissionControl-sub000/internal/config"
	"github.com/lstailors/LST-MissionControl-sub000/internal/gateway"
	"github.com/lstailors/LST-MissionControl-sub000/internal/logger"
)

// session은 명령 하나가 사용하는 게이트웨이 클라이언트와 부속 객체입니다.
type session struct {
	cfg      *config.Config
	client   *gateway.Client
	store    *auth.CredentialStore
	identity *auth.DeviceIdentity
}

// newSession은 설정으로부터 게이트웨이 클라이언트를 구성합니다.
// 디바이스 키가 활성화되어 있으면 키 파일을 읽거나 새로 만듭니다.
func newSession(cfg *config.Config) (*session, error) {
	s := &session{
		cfg:   cfg,
		store: auth.NewCredentialStore(cfg.Auth.CredentialsFile),
	}

	var options []gateway.ClientOption
	if cfg.Device.Enabled {
		identity, err := auth.LoadOrCreateIdentity(cfg.Device.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("디바이스 키 로드 실패: %w", err)
		}
		s.identity = identity
		options = append(options, gateway.WithSigner(identity))
		s.store.SetContext(cfg.Gateway.URL, identity.DeviceID())
	} else {
		s.store.SetContext(cfg.Gateway.URL, "")
	}

	options = append(options,
		gateway.WithLogger(logger.Component("gateway")),
		gateway.WithTokenStore(s.store),
		gateway.WithPairer(auth.NewPairingClient(cfg.Auth.PairPollInterval())),
		gateway.WithReconnectStrategy(gateway.NewReconnectStrategy(
			cfg.Reconnection.InitialDelay(),
			cfg.Reconnection.MaxDelay(),
			cfg.Reconnection.BackoffMultiplier,
			cfg.Reconnection.MaxAttempts,
		)),
	)

	s.client = gateway.NewClient(clientOptions(cfg), options...)
	return s, nil
}

// clientOptions는 설정을 클라이언트 식별 정보로 변환합니다.
func clientOptions(cfg *config.Config) gateway.Options {
	opts := gateway.DefaultOptions()
	opts.ClientID = cfg.Gateway.ClientID
	opts.ClientVersion = appVersion
	if opts.ClientVersion == "" {
		opts.ClientVersion = "dev"
	}
	opts.Platform = runtime.GOOS
	opts.Role = cfg.Gateway.Role
	if len(cfg.Gateway.Scopes) > 0 {
		opts.Scopes = cfg.Gateway.Scopes
	}
	opts.Locale = cfg.Gateway.Locale
	opts.UserAgent = fmt.Sprintf("mctl/%s (%s; %s)", opts.ClientVersion, runtime.GOOS, runtime.GOARCH)
	opts.SessionKey = cfg.Gateway.SessionKey
	opts.RequestTimeout = cfg.Gateway.RequestTimeout()
	opts.ChallengeGrace = cfg.Gateway.ChallengeGrace()
	opts.HeartbeatTimeout = cfg.Heartbeat.Timeout()
	opts.QueueLimit = cfg.Queue.Limit
	return opts
}

// resolveToken은 플래그 > 설정/환경변수 > 저장된 자격 증명 순서로 토큰을 고릅니다.
// 토큰이 없어도 오류가 아닙니다. 디바이스 서명만으로 접속을 허용하는 게이트웨이도 있습니다.
func (s *session) resolveToken(flagToken string) string {
	if flagToken != "" {
		return flagToken
	}
	if s.cfg.Gateway.Token != "" {
		return s.cfg.Gateway.Token
	}
	creds, err := s.store.Load()
	if err != nil {
		logger.Warn().Err(err).Msg("저장된 자격 증명을 읽지 못했습니다")
		return ""
	}
	if creds.IsValid() {
		return creds.Token
	}
	return ""
}

// errScopeRejected는 게이트웨이가 권한 부족으로 핸드셰이크를 거부했음을 나타냅니다.
var errScopeRejected = errors.New("게이트웨이가 접속을 거부했습니다. `mctl pair`로 다시 페어링하세요")

// waitConnected는 핸드셰이크가 끝날 때까지 기다립니다.
// 재연결 시도를 모두 쓰거나 권한 오류가 나면 즉시 실패합니다.
func waitConnected(ctx context.Context, c *gateway.Client) error {
	if c.Status().Phase == gateway.PhaseConnected {
		return nil
	}

	result := make(chan error, 1)
	report := func(err error) {
		select {
		case result <- err:
		default:
		}
	}

	var (
		mu      sync.Mutex
		lastErr string
	)
	unsubStatus := c.OnStatusChange(func(u gateway.StatusUpdate) {
		if u.Connected {
			report(nil)
			return
		}
		if u.Exhausted {
			report(fmt.Errorf("연결 실패: %s", u.Error))
			return
		}
		if u.Error != "" {
			mu.Lock()
			lastErr = u.Error
			mu.Unlock()
		}
	})
	defer unsubStatus()
	unsubScope := c.OnScopeError(func(e gateway.ScopeError) {
		report(fmt.Errorf("%w (%s)", errScopeRejected, e.Message))
	})
	defer unsubScope()

	// 구독 전에 이미 연결되었을 수 있음
	if c.Status().Phase == gateway.PhaseConnected {
		return nil
	}

	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		mu.Lock()
		defer mu.Unlock()
		if lastErr != "" {
			return fmt.Errorf("연결 대기 시간 초과: %s", lastErr)
		}
		return fmt.Errorf("연결 대기 시간 초과: %w", ctx.Err())
	}
}
