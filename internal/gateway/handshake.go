package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"

	"github.com/tidwall/gjson"

	"github.com/lstailors/LST-MissionControl-sub000/internal/protocol"
)

// DeviceSigner는 핸드셰이크에 첨부할 디바이스 서명을 만듭니다.
// 구현체는 키 보관을 책임지며, 서명할 수 없으면 오류를 반환합니다.
type DeviceSigner interface {
	Sign(req protocol.SignRequest) (*protocol.DeviceInfo, error)
}

// scopeErrorPattern은 재페어링이 필요한 핸드셰이크 거부 사유와 매칭됩니다.
var scopeErrorPattern = regexp.MustCompile(
	`(?i)(unauthori[sz]ed|forbidden|missing scope|insufficient scope|scope not granted|` +
		`not paired|pairing required|device not (approved|registered|paired)|` +
		`invalid token|token (expired|revoked)|authentication failed|auth(entication)? required)`,
)

// isScopeError는 오류가 인증/권한 부족으로 인한 것인지 판단합니다.
func isScopeError(err error) bool {
	if err == nil {
		return false
	}
	var reqErr *RequestError
	if errors.As(err, &reqErr) {
		switch reqErr.Code {
		case "UNAUTHORIZED", "FORBIDDEN", "NOT_PAIRED", "PAIRING_REQUIRED":
			return true
		}
	}
	return scopeErrorPattern.MatchString(err.Error())
}

// IsHelloOK는 connect 응답 페이로드가 핸드셰이크 성공인지 판단합니다.
// type은 페이로드 최상위 또는 중첩 payload 안에 올 수 있고, ok가 명시적으로 false면 실패입니다.
func IsHelloOK(payload json.RawMessage) bool {
	if len(payload) == 0 || !gjson.ValidBytes(payload) {
		return false
	}

	root := gjson.ParseBytes(payload)
	if ok := root.Get("ok"); ok.Exists() && ok.Type == gjson.False {
		return false
	}
	if root.Get("type").String() == "hello-ok" {
		return true
	}
	return root.Get("payload.type").String() == "hello-ok"
}

// rejectionReason은 hello-ok가 아닌 응답에서 사람이 읽을 사유를 뽑습니다.
func rejectionReason(payload json.RawMessage) string {
	root := gjson.ParseBytes(payload)
	for _, path := range []string{"error.message", "message", "reason", "type"} {
		if v := root.Get(path); v.Type == gjson.String && v.String() != "" {
			return v.String()
		}
	}
	return "unexpected connect response"
}

// connectParams는 connect 요청 params를 만듭니다.
// 서명자가 있으면 nonce를 포함한 디바이스 증명을 첨부합니다.
func (c *Client) connectParams(token, nonce string) (*protocol.ConnectParams, error) {
	o := c.opts
	params := &protocol.ConnectParams{
		MinProtocol: protocol.ProtocolVersion,
		MaxProtocol: protocol.ProtocolVersion,
		Client: protocol.ClientInfo{
			ID:       o.ClientID,
			Version:  o.ClientVersion,
			Platform: o.Platform,
			Mode:     o.ClientMode,
		},
		Role:      o.Role,
		Scopes:    nonNil(o.Scopes),
		Caps:      nonNil(o.Caps),
		Locale:    o.Locale,
		UserAgent: o.UserAgent,
	}
	if token != "" {
		params.Auth = &protocol.AuthInfo{Token: token}
	}

	if c.signer != nil {
		device, err := c.signer.Sign(protocol.SignRequest{
			ClientID:   o.ClientID,
			ClientMode: o.ClientMode,
			Role:       o.Role,
			Scopes:     o.Scopes,
			Token:      token,
			Nonce:      nonce,
			SignedAtMs: c.clock.Now().UnixMilli(),
		})
		if err != nil {
			return nil, fmt.Errorf("디바이스 서명 실패: %w", err)
		}
		params.Device = device
	}

	return params, nil
}

// handshake는 connect 요청을 보내고 hello-ok를 확인합니다.
// 이벤트 루프 밖의 고루틴에서 실행되며 결과는 루프에 다시 전달됩니다.
func (c *Client) handshake(ctx context.Context, conn *wsConn, token, nonce string) error {
	params, err := c.connectParams(token, nonce)
	if err != nil {
		return err
	}

	payload, err := c.requestOn(ctx, conn, protocol.MethodConnect, params)
	if err != nil {
		return err
	}
	if !IsHelloOK(payload) {
		return fmt.Errorf("%w: %s", ErrHandshakeRejected, rejectionReason(payload))
	}
	return nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
