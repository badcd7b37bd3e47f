package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/lstailors/LST-MissionControl-sub000/internal/protocol"
)

const (
	// pairHTTPTimeout은 개별 HTTP 요청의 타임아웃입니다.
	pairHTTPTimeout = 10 * time.Second
	// DefaultPollInterval은 승인 상태 폴링 기본 간격입니다.
	DefaultPollInterval = 2 * time.Second
)

// ErrPairingNotFound는 게이트웨이가 페어링 요청을 모를 때(만료 후 정리 등) 반환됩니다.
var ErrPairingNotFound = errors.New("pairing request not found")

// PairingClient는 게이트웨이의 HTTP 페어링 API 클라이언트입니다.
//
//	POST /v1/pair                       -> {code, deviceId}
//	GET  /v1/pair/{deviceId}/status     -> {status, token?}
type PairingClient struct {
	http     *http.Client
	interval time.Duration
	log      zerolog.Logger
}

// NewPairingClient는 pollInterval 간격으로 승인 상태를 확인하는 클라이언트를 생성합니다.
func NewPairingClient(pollInterval time.Duration) *PairingClient {
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}
	return &PairingClient{
		http:     &http.Client{Timeout: pairHTTPTimeout},
		interval: pollInterval,
		log:      log.With().Str("component", "pairing").Logger(),
	}
}

// RequestCode는 페어링 코드를 요청합니다.
func (p *PairingClient) RequestCode(ctx context.Context, baseURL string, req protocol.PairRequest) (*protocol.PairCode, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("요청 생성 실패: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(baseURL, "/")+"/v1/pair", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("페어링 코드 요청 실패: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, fmt.Errorf("페어링 코드 요청 실패 (HTTP %d)", resp.StatusCode)
	}

	var code protocol.PairCode
	if err := json.NewDecoder(resp.Body).Decode(&code); err != nil {
		return nil, fmt.Errorf("페어링 코드 응답 파싱 실패: %w", err)
	}
	if code.Code == "" || code.DeviceID == "" {
		return nil, fmt.Errorf("서버가 유효한 페어링 코드를 반환하지 않았습니다")
	}
	return &code, nil
}

// WaitForApproval은 승인, 거부, 만료 중 하나가 될 때까지 상태를 폴링합니다.
// 네트워크 오류와 파싱 오류는 다음 폴링으로 넘깁니다. ctx가 취소되면 중단합니다.
func (p *PairingClient) WaitForApproval(ctx context.Context, baseURL, deviceID string) (*protocol.PairStatus, error) {
	statusURL := strings.TrimRight(baseURL, "/") + "/v1/pair/" + url.PathEscape(deviceID) + "/status"

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}

		status, err := p.fetchStatus(ctx, statusURL)
		if err != nil {
			if errors.Is(err, ErrPairingNotFound) {
				return nil, err
			}
			p.log.Debug().Err(err).Msg("페어링 상태 조회 실패, 계속 폴링")
			continue
		}

		switch status.Status {
		case protocol.PairStatusApproved:
			if status.Token == "" {
				// 승인 직후 토큰 발급이 늦을 수 있음
				continue
			}
			return status, nil
		case protocol.PairStatusRejected, protocol.PairStatusExpired:
			return status, nil
		default:
			// pending
		}
	}
}

func (p *PairingClient) fetchStatus(ctx context.Context, statusURL string) (*protocol.PairStatus, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, statusURL, nil)
	if err != nil {
		return nil, err
	}

	resp, err := p.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, ErrPairingNotFound
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("HTTP %d", resp.StatusCode)
	}

	var status protocol.PairStatus
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return nil, err
	}
	return &status, nil
}
