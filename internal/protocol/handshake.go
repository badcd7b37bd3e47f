package protocol

import (
	"strconv"
	"strings"
)

// ChallengePayload는 connect.challenge 이벤트 페이로드입니다.
type ChallengePayload struct {
	Nonce string `json:"nonce"`
	TS    int64  `json:"ts,omitempty"`
}

// ConnectParams는 "connect" 요청의 params입니다.
type ConnectParams struct {
	MinProtocol int         `json:"minProtocol"`
	MaxProtocol int         `json:"maxProtocol"`
	Client      ClientInfo  `json:"client"`
	Role        string      `json:"role"`
	Scopes      []string    `json:"scopes"`
	Caps        []string    `json:"caps"`
	Auth        *AuthInfo   `json:"auth,omitempty"`
	Device      *DeviceInfo `json:"device,omitempty"`
	Locale      string      `json:"locale,omitempty"`
	UserAgent   string      `json:"userAgent,omitempty"`
}

// ClientInfo는 클라이언트 식별 정보입니다.
type ClientInfo struct {
	ID       string `json:"id"`
	Version  string `json:"version"`
	Platform string `json:"platform"`
	Mode     string `json:"mode"`
}

// AuthInfo는 토큰 인증 정보입니다.
type AuthInfo struct {
	Token string `json:"token,omitempty"`
}

// DeviceInfo는 디바이스 서명 증명입니다.
// PublicKey와 Signature는 base64url(패딩 없음) 인코딩입니다.
type DeviceInfo struct {
	ID        string `json:"id"`
	PublicKey string `json:"publicKey"`
	Signature string `json:"signature"`
	SignedAt  int64  `json:"signedAt"`
	Nonce     string `json:"nonce,omitempty"`
}

// SignRequest는 디바이스 서명에 필요한 입력값입니다.
type SignRequest struct {
	ClientID   string
	ClientMode string
	Role       string
	Scopes     []string
	Token      string
	Nonce      string
	// SignedAtMs는 서명 시각(Unix 밀리초)입니다.
	SignedAtMs int64
}

// DeviceAuthPayload는 디바이스 키로 서명할 정규화 문자열을 만듭니다.
// nonce가 있으면 v2, 없으면 v1 형식입니다.
//
//	v2|deviceId|clientId|clientMode|role|scopes|signedAtMs|token|nonce
//	v1|deviceId|clientId|clientMode|role|scopes|signedAtMs|token
func DeviceAuthPayload(deviceID string, req SignRequest) string {
	version := "v1"
	if req.Nonce != "" {
		version = "v2"
	}

	parts := []string{
		version,
		deviceID,
		req.ClientID,
		req.ClientMode,
		req.Role,
		strings.Join(req.Scopes, ","),
		strconv.FormatInt(req.SignedAtMs, 10),
		req.Token,
	}
	if version == "v2" {
		parts = append(parts, req.Nonce)
	}
	return strings.Join(parts, "|")
}
