// Copyright 2026 The Orgu Authors
// SPDX-License-Identifier: Apache-2.0

// Package webhook verifies GitHub webhook HMAC-SHA256 signatures.
package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"strings"
)

// Sentinel errors for signature verification failures. Callers map
// these to HTTP 401 via errors.Is; the error text never includes the
// expected signature or the secret.
var (
	// ErrSignatureMissing means the X-Hub-Signature-256 header was
	// absent or empty.
	ErrSignatureMissing = errors.New("webhook: signature header missing")

	// ErrSignatureMalformed means the header was present but not a
	// well-formed "sha256=<hex>" value.
	ErrSignatureMalformed = errors.New("webhook: signature header malformed")

	// ErrSignatureMismatch means the signature was well-formed but did
	// not match the HMAC computed from the configured secret.
	ErrSignatureMismatch = errors.New("webhook: signature mismatch")
)

// Verify checks the X-Hub-Signature-256 header against an HMAC-SHA256
// digest of body computed with secret. It operates on the raw body
// bytes exactly as received — callers must not re-serialize a parsed
// payload before calling Verify.
//
// Verification is constant-time with respect to the signature value:
// a single-byte difference anywhere in a well-formed signature takes
// the same code path as any other mismatch.
func Verify(secret, body []byte, signatureHeader string) error {
	if signatureHeader == "" {
		return ErrSignatureMissing
	}

	hexSignature, ok := strings.CutPrefix(signatureHeader, "sha256=")
	if !ok {
		return ErrSignatureMalformed
	}

	signatureBytes, err := hex.DecodeString(hexSignature)
	if err != nil {
		return ErrSignatureMalformed
	}

	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	expected := mac.Sum(nil)

	if subtle.ConstantTimeCompare(expected, signatureBytes) != 1 {
		return ErrSignatureMismatch
	}
	return nil
}
