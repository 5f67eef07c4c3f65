// Package auth stands in for the credentialed entitlement check that
// gates startup. The real check is an external collaborator outside this
// module's scope; Checker is the seam it plugs into.
package auth

import (
	"context"
	"errors"
)

// ErrNotEntitled is returned by Check when the caller is not authorized
// to start a recording session.
var ErrNotEntitled = errors.New("auth: not entitled to start a recording session")

// Checker gates session startup. Check returning a non-nil error is a
// fatal, exit-code-1 condition for the CLI.
type Checker interface {
	Check(ctx context.Context) error
}

// NoopChecker always succeeds, wired in when --no-auth is set.
type NoopChecker struct{}

func (NoopChecker) Check(ctx context.Context) error { return nil }

// StaticTokenChecker compares a configured token against an expected
// value. It exists to exercise the Checker seam end-to-end in tests and
// local use without a real entitlement service; it is not a credential
// store.
type StaticTokenChecker struct {
	Expected string
	Token    string
}

func (c StaticTokenChecker) Check(ctx context.Context) error {
	if c.Expected == "" {
		return nil
	}
	if c.Token != c.Expected {
		return ErrNotEntitled
	}
	return nil
}
