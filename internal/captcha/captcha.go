// Package captcha verifies human-verification challenge tokens.
//
// Login attempts on accounts with recorded failures must present a token,
// which slows credential-stuffing runs between lockout windows.
package captcha

import "context"

// Verifier checks a challenge token issued to the client.
type Verifier interface {
	// Verify returns nil when the token is valid for the given client IP.
	Verify(ctx context.Context, token, remoteIP string) error
}

// noop accepts everything. Used in development and tests.
type noop struct{}

// NewNoop returns a Verifier that accepts every token.
func NewNoop() Verifier {
	return noop{}
}

func (noop) Verify(ctx context.Context, token, remoteIP string) error {
	return nil
}
