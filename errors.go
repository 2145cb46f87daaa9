package pennant

import (
	"github.com/OrlandoBitencourt/pennant/internal/domain"
)

// Errors that may be returned by Pennant operations.
var (
	// ErrClientClosed is returned once Close has been called
	ErrClientClosed = domain.ErrClientClosed

	// ErrSessionSuperseded is reported to the callback of an Initialize
	// overtaken by a newer Initialize or a Destroy
	ErrSessionSuperseded = domain.ErrSessionSuperseded

	// ErrCircuitOpen is returned while the remote circuit breaker is open
	ErrCircuitOpen = domain.ErrCircuitOpen
)

type (
	// ConfigError indicates invalid configuration.
	ConfigError = domain.ConfigError

	// AuthError indicates the backend rejected the API key or target.
	AuthError = domain.AuthError

	// NotFoundError indicates an evaluation does not exist.
	NotFoundError = domain.NotFoundError

	// TransportError indicates a failed backend request.
	TransportError = domain.TransportError
)

// IsConfigError reports whether err is a ConfigError.
func IsConfigError(err error) bool { return domain.IsConfigError(err) }

// IsAuthError reports whether err is an AuthError.
func IsAuthError(err error) bool { return domain.IsAuthError(err) }

// IsNotFound reports whether err is a NotFoundError.
func IsNotFound(err error) bool { return domain.IsNotFound(err) }
