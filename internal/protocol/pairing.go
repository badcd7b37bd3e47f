package protocol

// 페어링 상태
const (
	PairStatusPending  = "pending"
	PairStatusApproved = "approved"
	PairStatusRejected = "rejected"
	PairStatusExpired  = "expired"
)

// PairRequest는 POST /v1/pair 요청 본문입니다.
type PairRequest struct {
	DeviceID    string `json:"deviceId,omitempty"`
	PublicKey   string `json:"publicKey,omitempty"`
	ClientID    string `json:"clientId"`
	Platform    string `json:"platform"`
	DisplayName string `json:"displayName,omitempty"`
}

// PairCode는 POST /v1/pair 응답입니다.
// Code는 사용자가 게이트웨이 운영자 화면에서 승인할 짧은 코드입니다.
type PairCode struct {
	Code      string `json:"code"`
	DeviceID  string `json:"deviceId"`
	ExpiresIn int    `json:"expiresIn,omitempty"`
}

// PairStatus는 GET /v1/pair/{deviceId}/status 응답입니다.
type PairStatus struct {
	Status string `json:"status"`
	Token  string `json:"token,omitempty"`
}
