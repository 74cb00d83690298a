// Package oauth implements the PKCE authorization-code flow against the
// identity provider's token endpoint, plus the refresh-token grant reusing
// the same endpoint.
package oauth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"

	"github.com/relayguard/relayguard/internal/models"
)

// GeneratePKCE creates a fresh verifier/challenge pair. The verifier stays
// with the caller; only the S256 challenge is sent to the authorization
// server.
func GeneratePKCE() (models.PKCEChallenge, error) {
	verifier, err := randomToken(32)
	if err != nil {
		return models.PKCEChallenge{}, fmt.Errorf("failed to generate PKCE verifier: %w", err)
	}

	digest := sha256.Sum256([]byte(verifier))
	return models.PKCEChallenge{
		Verifier:  verifier,
		Challenge: base64.RawURLEncoding.EncodeToString(digest[:]),
	}, nil
}

// randomToken returns a URL-safe token from n random bytes.
func randomToken(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
