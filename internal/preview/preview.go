// Package preview implements signed, expiring preview links for unpublished
// posts. A token is minted by an authenticated admin and lets anyone holding
// the link read a single draft post until the token expires.
package preview

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kalmarr/matrixcbs/internal/model"
)

var (
	ErrTokenInvalid = errors.New("preview: invalid token")
	ErrTokenExpired = errors.New("preview: token expired")
)

// tokenPayload is the signed part of a preview token.
type tokenPayload struct {
	PostID model.PostID `json:"post_id"`
	Exp    int64        `json:"exp"`
}

type Signer struct {
	key ed25519.PrivateKey
}

func NewSigner(privateKeyPEM []byte) (*Signer, error) {
	block, _ := pem.Decode(privateKeyPEM)
	if block == nil {
		return nil, errors.New("failed to parse PEM block containing the private key")
	}

	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}

	priv, ok := key.(ed25519.PrivateKey)
	if !ok {
		return nil, errors.New("key is not an Ed25519 private key")
	}

	return &Signer{key: priv}, nil
}

// Mint creates a token for the given post that expires after ttl.
func (s *Signer) Mint(postID model.PostID, ttl time.Duration) (string, error) {
	payload, err := json.Marshal(tokenPayload{
		PostID: postID,
		Exp:    time.Now().Add(ttl).Unix(),
	})
	if err != nil {
		return "", err
	}

	sig := ed25519.Sign(s.key, payload)

	return base64.RawURLEncoding.EncodeToString(payload) + "." +
		base64.RawURLEncoding.EncodeToString(sig), nil
}

type Verifier struct {
	key ed25519.PublicKey
}

func NewVerifier(publicKeyPEM []byte) (*Verifier, error) {
	block, _ := pem.Decode(publicKeyPEM)
	if block == nil {
		return nil, errors.New("failed to parse PEM block containing the public key")
	}

	pub, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse public key: %w", err)
	}

	publicKey, ok := pub.(ed25519.PublicKey)
	if !ok {
		return nil, errors.New("key is not an Ed25519 public key")
	}

	return &Verifier{key: publicKey}, nil
}

// Verify checks the token's signature and expiry and returns the post it
// grants access to.
func (v *Verifier) Verify(token string, now time.Time) (model.PostID, error) {
	payloadPart, sigPart, ok := strings.Cut(token, ".")
	if !ok {
		return 0, ErrTokenInvalid
	}

	payload, err := base64.RawURLEncoding.DecodeString(payloadPart)
	if err != nil {
		return 0, ErrTokenInvalid
	}
	sig, err := base64.RawURLEncoding.DecodeString(sigPart)
	if err != nil {
		return 0, ErrTokenInvalid
	}

	if !ed25519.Verify(v.key, payload, sig) {
		return 0, ErrTokenInvalid
	}

	var p tokenPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return 0, ErrTokenInvalid
	}

	if now.Unix() > p.Exp {
		return 0, ErrTokenExpired
	}

	return p.PostID, nil
}

// GenerateKeyPair produces a fresh PEM-encoded Ed25519 key pair for the
// token signer tooling.
func GenerateKeyPair() (publicKeyPEM, privateKeyPEM []byte, err error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, nil, err
	}

	pubBytes, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return nil, nil, err
	}
	privBytes, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		return nil, nil, err
	}

	publicKeyPEM = pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubBytes})
	privateKeyPEM = pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: privBytes})
	return publicKeyPEM, privateKeyPEM, nil
}
