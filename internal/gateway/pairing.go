package gateway

import (
	"context"
	"fmt"

	"github.com/lstailors/LST-MissionControl-sub000/internal/protocol"
)

// TokenStore는 페어링으로 받은 토큰을 보관합니다.
type TokenStore interface {
	SaveToken(token string) error
}

// Pairer는 게이트웨이의 HTTP 페어링 API 클라이언트입니다.
// baseURL은 WebSocket URL에서 만든 http(s) 주소입니다 (HTTPBaseURL 참고).
type Pairer interface {
	RequestCode(ctx context.Context, baseURL string, req protocol.PairRequest) (*protocol.PairCode, error)
	WaitForApproval(ctx context.Context, baseURL, deviceID string) (*protocol.PairStatus, error)
}

// deviceIdentity는 페어링 요청에 디바이스 키를 싣기 위해 서명자가 선택적으로 구현합니다.
type deviceIdentity interface {
	DeviceID() string
	PublicKeyBase64() string
}

// Pair는 재페어링 흐름을 실행합니다.
// 페어링 코드를 받아 onCode로 넘기고, 승인될 때까지 기다린 뒤 새 토큰을 저장하고 그 토큰으로 다시 연결합니다.
// url이 비어 있으면 마지막으로 연결한 URL을 사용합니다.
func (c *Client) Pair(ctx context.Context, url string, onCode func(*protocol.PairCode)) (*PairingComplete, error) {
	if c.pairer == nil {
		return nil, ErrNoPairer
	}
	if url == "" {
		url = c.Status().URL
	}
	if err := validateURL(url); err != nil {
		return nil, err
	}

	log := c.log.With().Str("component", "pairing").Logger()
	baseURL := HTTPBaseURL(url)

	req := protocol.PairRequest{
		ClientID: c.opts.ClientID,
		Platform: c.opts.Platform,
	}
	if id, ok := c.signer.(deviceIdentity); ok {
		req.DeviceID = id.DeviceID()
		req.PublicKey = id.PublicKeyBase64()
	}

	code, err := c.pairer.RequestCode(ctx, baseURL, req)
	if err != nil {
		return nil, fmt.Errorf("페어링 코드 요청 실패: %w", err)
	}
	log.Info().Str("device_id", code.DeviceID).Int("expires_in", code.ExpiresIn).Msg("페어링 코드 발급, 승인 대기")
	if onCode != nil {
		onCode(code)
	}

	status, err := c.pairer.WaitForApproval(ctx, baseURL, code.DeviceID)
	if err != nil {
		return nil, fmt.Errorf("페어링 승인 대기 실패: %w", err)
	}
	if status.Status != protocol.PairStatusApproved || status.Token == "" {
		return nil, fmt.Errorf("%w: %s", ErrPairingRejected, status.Status)
	}

	if c.tokens != nil {
		if err := c.tokens.SaveToken(status.Token); err != nil {
			return nil, fmt.Errorf("토큰 저장 실패: %w", err)
		}
	}

	done := PairingComplete{DeviceID: code.DeviceID}
	log.Info().Str("device_id", code.DeviceID).Msg("페어링 완료, 새 토큰으로 재연결")
	emit(c.events, &c.onPaired, done)

	if !c.post(connectCmd{url: url, token: status.Token, force: true}) {
		return &done, ErrClientClosed
	}
	return &done, nil
}
