// Package sign provides the RSA signature service used for signed
// profile exports. The upstream protocol fixes the algorithm at
// SHA1withRSA; launchers validate exports against the server's
// published public key.
package sign

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha1"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
)

const defaultKeyBits = 4096

// Signer signs payloads with the process-wide RSA key pair. The key is
// loaded once at startup and never mutated.
type Signer struct {
	key *rsa.PrivateKey
}

// NewSigner wraps an already-loaded private key.
func NewSigner(key *rsa.PrivateKey) *Signer {
	return &Signer{key: key}
}

// LoadOrGenerate reads a PEM private key from path, generating and
// persisting a fresh key pair when the file does not exist.
func LoadOrGenerate(path string) (*Signer, error) {
	data, err := os.ReadFile(path)
	if err == nil {
		key, err := parsePrivateKey(data)
		if err != nil {
			return nil, fmt.Errorf("sign: parse %s: %w", path, err)
		}
		return &Signer{key: key}, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	key, err := rsa.GenerateKey(rand.Reader, defaultKeyBits)
	if err != nil {
		return nil, err
	}

	encoded := pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(key),
	})
	if err := os.WriteFile(path, encoded, 0o600); err != nil {
		return nil, err
	}

	return &Signer{key: key}, nil
}

func parsePrivateKey(data []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, errors.New("no PEM block found")
	}

	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}

	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, err
	}
	key, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, errors.New("not an RSA private key")
	}
	return key, nil
}

// Sign returns the base64 SHA1withRSA signature over the raw payload
// bytes.
func (s *Signer) Sign(payload []byte) (string, error) {
	digest := sha1.Sum(payload)
	sig, err := rsa.SignPKCS1v15(rand.Reader, s.key, crypto.SHA1, digest[:])
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(sig), nil
}

// PublicKeyPEM returns the PKIX-encoded public key, the form published
// in the server metadata document for launchers to pin.
func (s *Signer) PublicKeyPEM() (string, error) {
	der, err := x509.MarshalPKIXPublicKey(&s.key.PublicKey)
	if err != nil {
		return "", err
	}
	encoded := pem.EncodeToMemory(&pem.Block{
		Type:  "PUBLIC KEY",
		Bytes: der,
	})
	return string(encoded), nil
}

// PublicKey exposes the verification half of the key pair.
func (s *Signer) PublicKey() *rsa.PublicKey {
	return &s.key.PublicKey
}
