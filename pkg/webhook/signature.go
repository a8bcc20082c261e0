// Package webhook receives GitHub workflow_run deliveries, verifies their
// signatures, normalizes them, and hands them to the governor pipeline.
package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
)

// signaturePrefix is the scheme GitHub prepends to the signature header.
const signaturePrefix = "sha256="

// VerifySignature checks the X-Hub-Signature-256 header value against the
// HMAC-SHA256 of payload under secret.
func VerifySignature(payload, secret []byte, provided string) error {
	if provided == "" {
		return errors.New("webhook: missing signature")
	}
	provided = strings.TrimPrefix(provided, signaturePrefix)
	hasher := hmac.New(sha256.New, secret)
	hasher.Write(payload)
	expected := hex.EncodeToString(hasher.Sum(nil))
	if !hmac.Equal([]byte(provided), []byte(expected)) {
		return errors.New("webhook: invalid signature")
	}
	return nil
}
