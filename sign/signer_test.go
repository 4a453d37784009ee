package sign

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha1"
	"encoding/base64"
	"encoding/pem"
	"path/filepath"
	"strings"
	"testing"
)

func newTestSigner(t *testing.T) *Signer {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 1024)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	return NewSigner(key)
}

func TestSignVerifies(t *testing.T) {
	s := newTestSigner(t)
	payload := []byte("eyJ0aW1lc3RhbXAiOjB9")

	sig, err := s.Sign(payload)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	raw, err := base64.StdEncoding.DecodeString(sig)
	if err != nil {
		t.Fatalf("signature is not base64: %v", err)
	}

	digest := sha1.Sum(payload)
	if err := rsa.VerifyPKCS1v15(s.PublicKey(), crypto.SHA1, digest[:], raw); err != nil {
		t.Fatalf("verify: %v", err)
	}

	// A different payload must not verify against the same signature.
	other := sha1.Sum([]byte("tampered"))
	if err := rsa.VerifyPKCS1v15(s.PublicKey(), crypto.SHA1, other[:], raw); err == nil {
		t.Fatal("signature verified a tampered payload")
	}
}

func TestPublicKeyPEM(t *testing.T) {
	s := newTestSigner(t)

	pemText, err := s.PublicKeyPEM()
	if err != nil {
		t.Fatalf("public key: %v", err)
	}
	if !strings.HasPrefix(pemText, "-----BEGIN PUBLIC KEY-----") {
		t.Fatalf("unexpected PEM header: %q", pemText[:40])
	}
	block, _ := pem.Decode([]byte(pemText))
	if block == nil || block.Type != "PUBLIC KEY" {
		t.Fatal("PEM did not decode as a public key block")
	}
}

func TestLoadOrGenerateRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "signature.pem")

	first, err := LoadOrGenerate(path)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	second, err := LoadOrGenerate(path)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}

	// The persisted key is the one loaded back.
	a, err := first.PublicKeyPEM()
	if err != nil {
		t.Fatalf("first public key: %v", err)
	}
	b, err := second.PublicKeyPEM()
	if err != nil {
		t.Fatalf("second public key: %v", err)
	}
	if a != b {
		t.Fatal("reload produced a different key pair")
	}
}
