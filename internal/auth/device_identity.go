package auth

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/hex"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/lstailors/LST-MissionControl-sub000/internal/protocol"
)

// DefaultIdentityFile은 ConfigDir 아래 디바이스 개인키 파일 이름입니다.
const DefaultIdentityFile = "device.pem"

var b64 = base64.RawURLEncoding

// DeviceIdentity는 이 기기의 Ed25519 키 쌍입니다.
// 디바이스 ID는 공개키의 SHA-256 hex입니다.
type DeviceIdentity struct {
	id   string
	pub  ed25519.PublicKey
	priv ed25519.PrivateKey
}

// NewDeviceIdentity는 개인키로 DeviceIdentity를 만듭니다.
func NewDeviceIdentity(priv ed25519.PrivateKey) *DeviceIdentity {
	pub := priv.Public().(ed25519.PublicKey)
	sum := sha256.Sum256(pub)
	return &DeviceIdentity{id: hex.EncodeToString(sum[:]), pub: pub, priv: priv}
}

// LoadOrCreateIdentity는 path의 PEM(PKCS#8) 개인키를 읽습니다.
// 파일이 없으면 새 키를 만들어 0600 권한으로 저장합니다.
func LoadOrCreateIdentity(path string) (*DeviceIdentity, error) {
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		return parseIdentity(data)
	case !os.IsNotExist(err):
		return nil, fmt.Errorf("read device key: %w", err)
	}

	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate device key: %w", err)
	}

	der, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		return nil, fmt.Errorf("marshal device key: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("create config directory: %w", err)
	}
	block := pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der})
	if err := os.WriteFile(path, block, 0600); err != nil {
		return nil, fmt.Errorf("write device key: %w", err)
	}

	return NewDeviceIdentity(priv), nil
}

func parseIdentity(data []byte) (*DeviceIdentity, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, errors.New("device key: no PEM block")
	}
	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("device key: %w", err)
	}
	priv, ok := key.(ed25519.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("device key: expected ed25519, got %T", key)
	}
	return NewDeviceIdentity(priv), nil
}

// DeviceID는 디바이스 ID를 반환합니다.
func (d *DeviceIdentity) DeviceID() string {
	return d.id
}

// PublicKeyBase64는 raw 공개키의 base64url(패딩 없음) 인코딩입니다.
func (d *DeviceIdentity) PublicKeyBase64() string {
	return b64.EncodeToString(d.pub)
}

// Sign은 핸드셰이크용 디바이스 증명을 만듭니다.
func (d *DeviceIdentity) Sign(req protocol.SignRequest) (*protocol.DeviceInfo, error) {
	payload := protocol.DeviceAuthPayload(d.id, req)
	sig := ed25519.Sign(d.priv, []byte(payload))

	return &protocol.DeviceInfo{
		ID:        d.id,
		PublicKey: d.PublicKeyBase64(),
		Signature: b64.EncodeToString(sig),
		SignedAt:  req.SignedAtMs,
		Nonce:     req.Nonce,
	}, nil
}

// Verify는 DeviceInfo의 서명이 req에 대해 유효한지 확인합니다.
func Verify(info *protocol.DeviceInfo, req protocol.SignRequest) bool {
	pub, err := b64.DecodeString(info.PublicKey)
	if err != nil || len(pub) != ed25519.PublicKeySize {
		return false
	}
	sig, err := b64.DecodeString(info.Signature)
	if err != nil {
		return false
	}
	return ed25519.Verify(pub, []byte(protocol.DeviceAuthPayload(info.ID, req)), sig)
}
