package handlers

import (
	"errors"
	"fmt"
)

var (
	// ErrSecretNotConfigured means a partner webhook arrived while its secret is
	// unset. Verification fails closed: the receiver is disabled, not permissive.
	ErrSecretNotConfigured = errors.New("webhook secret not configured")

	// ErrSignatureInvalid means the signature header is missing or does not match
	ErrSignatureInvalid = errors.New("invalid webhook signature")
)

// SchemaViolationError rejects a payload before any side effect occurs
type SchemaViolationError struct {
	Source string
	Field  string
	Reason string
}

func (e *SchemaViolationError) Error() string {
	return fmt.Sprintf("%s payload rejected: field %q %s", e.Source, e.Field, e.Reason)
}

func schemaViolation(source, field, reason string) error {
	return &SchemaViolationError{Source: source, Field: field, Reason: reason}
}

// MediaPolicyError rejects an event whose media references violate policy.
// The first offending URL aborts the batch.
type MediaPolicyError struct {
	URL    string
	Reason string
}

func (e *MediaPolicyError) Error() string {
	return fmt.Sprintf("media policy violation for %s: %s", e.URL, e.Reason)
}
