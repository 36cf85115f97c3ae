// Package auth provides bearer-token verification for the admin surface.
package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"os"
	"strings"
)

// Verifier validates bearer tokens and extracts the caller's role.
// Modes: dev (token is the role, no verification) and hmac (HS256 JWT).
type Verifier struct {
	Mode       string
	HMACSecret []byte
	RoleClaim  string
}

type Principal struct {
	Role string
}

func (p Principal) IsAdmin() bool { return p.Role == "admin" }

func NewVerifierFromEnv() *Verifier {
	mode := strings.ToLower(strings.TrimSpace(os.Getenv("AUTH_MODE")))
	if mode == "" {
		mode = "dev"
	}
	role := os.Getenv("AUTH_ROLE_CLAIM")
	if role == "" {
		role = "role"
	}
	return &Verifier{
		Mode:       mode,
		HMACSecret: []byte(os.Getenv("AUTH_HMAC_SECRET")),
		RoleClaim:  role,
	}
}

func (v *Verifier) Verify(token string) (Principal, error) {
	if v.Mode == "dev" {
		if token == "" {
			return Principal{}, errors.New("empty dev token")
		}
		return Principal{Role: strings.ToLower(token)}, nil
	}
	if v.Mode != "hmac" {
		return Principal{}, errors.New("unsupported auth mode")
	}
	segs := strings.Split(token, ".")
	if len(segs) != 3 {
		return Principal{}, errors.New("invalid JWT")
	}
	headerJSON, err := b64urlDecode(segs[0])
	if err != nil {
		return Principal{}, err
	}
	payloadJSON, err := b64urlDecode(segs[1])
	if err != nil {
		return Principal{}, err
	}
	sig, err := b64urlDecode(segs[2])
	if err != nil {
		return Principal{}, err
	}
	var hdr map[string]any
	if err := json.Unmarshal(headerJSON, &hdr); err != nil {
		return Principal{}, err
	}
	if alg, _ := hdr["alg"].(string); alg != "HS256" {
		return Principal{}, errors.New("unsupported alg for hmac")
	}
	mac := hmac.New(sha256.New, v.HMACSecret)
	mac.Write([]byte(segs[0] + "." + segs[1]))
	if !hmac.Equal(mac.Sum(nil), sig) {
		return Principal{}, errors.New("bad signature")
	}
	var claims map[string]any
	if err := json.Unmarshal(payloadJSON, &claims); err != nil {
		return Principal{}, err
	}
	role, _ := claims[v.RoleClaim].(string)
	if role == "" {
		role = "user"
	}
	return Principal{Role: strings.ToLower(role)}, nil
}

func b64urlDecode(s string) ([]byte, error) { return base64.RawURLEncoding.DecodeString(s) }
