package explorer

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/samber/oops"

	"github.com/pendergraft/chainscout/internal/chains"
)

// Error codes attached to upstream failures
const (
	CodeUpstreamFailure = "explorer.upstream.failure"
	CodeInvalidResponse = "explorer.response.invalid"
	CodeUpstreamLimited = "explorer.upstream.rate_limited"
)

// ConfigurationError reports a provider that cannot be used as configured.
// It is never retried.
type ConfigurationError struct {
	Network  chains.Network
	Explorer string
	Reason   string
}

func (e *ConfigurationError) Error() string {
	if e.Explorer == "" {
		return fmt.Sprintf("%s: configuration error: %s", e.Network, e.Reason)
	}
	return fmt.Sprintf("%s/%s: configuration error: %s", e.Network, e.Explorer, e.Reason)
}

// ProviderUnavailableError is a transient upstream failure: network error,
// timeout, non-2xx status, upstream rate limit or a malformed response.
type ProviderUnavailableError struct {
	Network    chains.Network
	Explorer   string
	StatusCode int
	// Permanent marks 4xx responses other than 429
	Permanent bool
	Err       error
}

func (e *ProviderUnavailableError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s/%s unavailable (HTTP %d): %v", e.Network, e.Explorer, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s/%s unavailable: %v", e.Network, e.Explorer, e.Err)
}

func (e *ProviderUnavailableError) Unwrap() error { return e.Err }

// BusinessNotFoundError means the explorer answered authoritatively that the
// contract is unknown or unverified. It counts as a successful call.
type BusinessNotFoundError struct {
	Network  chains.Network
	Explorer string
	Address  string
	Reason   string
}

func (e *BusinessNotFoundError) Error() string {
	return fmt.Sprintf("%s/%s: %s: %s", e.Network, e.Explorer, e.Address, e.Reason)
}

// RateLimitExceededError is a local limiter rejection. Callers wait RetryAfter and retry.
type RateLimitExceededError struct {
	Explorer   string
	RetryAfter time.Duration
}

func (e *RateLimitExceededError) Error() string {
	return fmt.Sprintf("rate limit exceeded for %s, retry after %s", e.Explorer, e.RetryAfter)
}

// Attempt is one failed try inside an AllProvidersUnavailableError
type Attempt struct {
	Explorer string `json:"explorer"`
	Err      error  `json:"-"`
}

// AllProvidersUnavailableError is returned once every attempt for a network has failed,
// or when every provider's circuit is open.
type AllProvidersUnavailableError struct {
	Network  chains.Network
	Attempts []Attempt
}

func (e *AllProvidersUnavailableError) Error() string {
	if len(e.Attempts) == 0 {
		return fmt.Sprintf("%s: all explorers unavailable", e.Network)
	}
	parts := make([]string, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		parts = append(parts, fmt.Sprintf("%s: %v", a.Explorer, a.Err))
	}
	return fmt.Sprintf("%s: all explorers unavailable after %d attempts [%s]",
		e.Network, len(e.Attempts), strings.Join(parts, "; "))
}

func (e *AllProvidersUnavailableError) Unwrap() []error {
	errs := make([]error, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		errs = append(errs, a.Err)
	}
	return errs
}

// IsNotFound reports whether err is a BusinessNotFoundError
func IsNotFound(err error) bool {
	var nf *BusinessNotFoundError
	return errors.As(err, &nf)
}

// IsConfiguration reports whether err is a ConfigurationError
func IsConfiguration(err error) bool {
	var ce *ConfigurationError
	return errors.As(err, &ce)
}

// ErrorFields returns the structured context attached to an upstream failure, if any.
func ErrorFields(err error) map[string]any {
	if err == nil {
		return nil
	}
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return nil
	}
	fields := oopsErr.Context()
	if code := oopsErr.Code(); code != nil {
		if fields == nil {
			fields = map[string]any{}
		}
		fields["code"] = fmt.Sprintf("%v", code)
	}
	return fields
}

// ErrorCode returns the oops code attached to err, or "".
func ErrorCode(err error) string {
	oopsErr, ok := oops.AsOops(err)
	if !ok || oopsErr.Code() == nil {
		return ""
	}
	return fmt.Sprintf("%v", oopsErr.Code())
}
