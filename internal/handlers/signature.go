package handlers

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// verifyWebhookSignature checks an HMAC-SHA256 hex digest of the raw request
// body against the partner's shared secret using a constant-time comparison.
// A missing secret fails every input: an unconfigured receiver is disabled,
// never permissive.
func verifyWebhookSignature(body []byte, signature, secret string) error {
	if secret == "" {
		return ErrSecretNotConfigured
	}
	if signature == "" {
		return ErrSignatureInvalid
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return ErrSignatureInvalid
	}
	return nil
}
