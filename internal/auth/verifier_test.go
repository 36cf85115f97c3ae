package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"testing"
)

func signHS256(secret []byte, header, payload string) string {
	enc := base64.RawURLEncoding
	h := enc.EncodeToString([]byte(header))
	p := enc.EncodeToString([]byte(payload))
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(h + "." + p))
	return h + "." + p + "." + enc.EncodeToString(mac.Sum(nil))
}

func TestVerifyDevMode(t *testing.T) {
	v := &Verifier{Mode: "dev"}
	p, err := v.Verify("Admin")
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if !p.IsAdmin() {
		t.Fatalf("expected admin, got %+v", p)
	}
	if _, err := v.Verify(""); err == nil {
		t.Fatal("expected error for empty token")
	}
}

func TestVerifyHMAC(t *testing.T) {
	secret := []byte("s3cret")
	v := &Verifier{Mode: "hmac", HMACSecret: secret, RoleClaim: "role"}

	tok := signHS256(secret, `{"alg":"HS256","typ":"JWT"}`, `{"role":"admin"}`)
	p, err := v.Verify(tok)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if p.Role != "admin" {
		t.Fatalf("role: %q", p.Role)
	}

	bad := signHS256([]byte("other"), `{"alg":"HS256"}`, `{"role":"admin"}`)
	if _, err := v.Verify(bad); err == nil {
		t.Fatal("expected bad signature error")
	}
	if _, err := v.Verify("not.a.jwt.extra"); err == nil {
		t.Fatal("expected invalid JWT error")
	}
}
