package sni

import (
	"errors"
	"fmt"
)

// Common sentinel errors for identity routing.
var (
	// ErrIdentityNotFound indicates that no identity is registered for a
	// requested hostname. A lookup miss is a routing outcome, not a failure
	// of the routing engine itself.
	ErrIdentityNotFound = errors.New("no identity found for server name")

	// ErrNoDefaultIdentity indicates that no identity in the published set is
	// marked as the default.
	ErrNoDefaultIdentity = errors.New("no default identity configured")

	// ErrConfigInvalid indicates that an identity or manager configuration is invalid.
	ErrConfigInvalid = errors.New("invalid identity configuration")
)

// CertificateError represents a certificate bundle error: an unreadable or
// unparseable certificate or key, a missing Common Name, or a CN/SAN mismatch
// between certificates destined for the same identity.
type CertificateError struct {
	Path    string
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *CertificateError) Error() string {
	if e.Path != "" {
		if e.Cause != nil {
			return fmt.Sprintf("certificate error at %s: %s: %v", e.Path, e.Message, e.Cause)
		}
		return fmt.Sprintf("certificate error at %s: %s", e.Path, e.Message)
	}
	if e.Cause != nil {
		return fmt.Sprintf("certificate error: %s: %v", e.Message, e.Cause)
	}
	return fmt.Sprintf("certificate error: %s", e.Message)
}

// Unwrap returns the underlying error.
func (e *CertificateError) Unwrap() error {
	return e.Cause
}

// Is checks if the error matches the target.
func (e *CertificateError) Is(target error) bool {
	_, ok := target.(*CertificateError)
	return ok || errors.Is(e.Cause, target)
}

// NewCertificateError creates a new CertificateError.
func NewCertificateError(path, message string) *CertificateError {
	return &CertificateError{Path: path, Message: message}
}

// NewCertificateErrorWithCause creates a new CertificateError with a cause.
func NewCertificateErrorWithCause(path, message string, cause error) *CertificateError {
	return &CertificateError{Path: path, Message: message, Cause: cause}
}

// ConfigurationError represents an invalid identity specification: an unknown
// cipher name, a duplicate default identity, or an unsupported protocol
// feature.
type ConfigurationError struct {
	Field   string
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *ConfigurationError) Error() string {
	if e.Field != "" {
		if e.Cause != nil {
			return fmt.Sprintf("identity config error at %s: %s: %v", e.Field, e.Message, e.Cause)
		}
		return fmt.Sprintf("identity config error at %s: %s", e.Field, e.Message)
	}
	if e.Cause != nil {
		return fmt.Sprintf("identity config error: %s: %v", e.Message, e.Cause)
	}
	return fmt.Sprintf("identity config error: %s", e.Message)
}

// Unwrap returns the underlying error.
func (e *ConfigurationError) Unwrap() error {
	return e.Cause
}

// Is checks if the error matches the target.
func (e *ConfigurationError) Is(target error) bool {
	if errors.Is(target, ErrConfigInvalid) {
		return true
	}
	_, ok := target.(*ConfigurationError)
	return ok || errors.Is(e.Cause, target)
}

// NewConfigurationError creates a new ConfigurationError.
func NewConfigurationError(field, message string) *ConfigurationError {
	return &ConfigurationError{Field: field, Message: message}
}

// NewConfigurationErrorWithCause creates a new ConfigurationError with a cause.
func NewConfigurationErrorWithCause(field, message string, cause error) *ConfigurationError {
	return &ConfigurationError{Field: field, Message: message, Cause: cause}
}

// ValidationError represents a malformed domain name offered for index
// registration: an embedded wildcard, a bare dot, or a wildcard not followed
// by a dot.
type ValidationError struct {
	Name   string
	Reason string
	Cause  error
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Name != "" {
		if e.Cause != nil {
			return fmt.Sprintf("invalid domain name %q: %s: %v", e.Name, e.Reason, e.Cause)
		}
		return fmt.Sprintf("invalid domain name %q: %s", e.Name, e.Reason)
	}
	if e.Cause != nil {
		return fmt.Sprintf("invalid domain name: %s: %v", e.Reason, e.Cause)
	}
	return fmt.Sprintf("invalid domain name: %s", e.Reason)
}

// Unwrap returns the underlying error.
func (e *ValidationError) Unwrap() error {
	return e.Cause
}

// Is checks if the error matches the target.
func (e *ValidationError) Is(target error) bool {
	_, ok := target.(*ValidationError)
	return ok || errors.Is(e.Cause, target)
}

// NewValidationError creates a new ValidationError.
func NewValidationError(name, reason string) *ValidationError {
	return &ValidationError{Name: name, Reason: reason}
}

// WrapError wraps an error with additional context.
func WrapError(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}
