package clova

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
)

// API status codes carried in a 429 response body.
const (
	codeQPMExceeded = "42900"
	codeTPMExceeded = "42901"
)

// Scope tells which quota a 429 response hit.
type Scope string

const (
	ScopeQPM     Scope = "qpm"
	ScopeTPM     Scope = "tpm"
	ScopeUnknown Scope = "unknown"
)

// RateLimitError is a 429 rejection classified by its API subcode.
// ResetHint carries the raw x-ratelimit-reset-tokens header value, e.g.
// "12.5s"; it is only meaningful for the TPM scope.
type RateLimitError struct {
	Scope     Scope
	Code      string
	ResetHint string
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("clova: rate limited (scope %s, code %q)", e.Scope, e.Code)
}

// ResetSeconds parses the reset hint into seconds. The second return is
// false when no parseable hint was provided.
func (e *RateLimitError) ResetSeconds() (float64, bool) {
	s := strings.TrimSuffix(strings.TrimSpace(e.ResetHint), "s")
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// AsRateLimit unwraps err into a RateLimitError if it is one.
func AsRateLimit(err error) (*RateLimitError, bool) {
	var rle *RateLimitError
	if errors.As(err, &rle) {
		return rle, true
	}
	return nil, false
}

func rateLimitError(body []byte, h http.Header) error {
	code := statusCode(body)
	scope := ScopeUnknown
	switch code {
	case codeQPMExceeded:
		scope = ScopeQPM
	case codeTPMExceeded:
		scope = ScopeTPM
	}
	return &RateLimitError{
		Scope:     scope,
		Code:      code,
		ResetHint: h.Get("x-ratelimit-reset-tokens"),
	}
}

func statusCode(body []byte) string {
	var env chatEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return ""
	}
	return env.Status.Code
}
