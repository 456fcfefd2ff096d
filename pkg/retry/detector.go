package retry

import (
	"errors"
	"io"
	"net"
	"syscall"

	"github.com/jzx17/goretry/pkg/types"
)

// TransientDetector classifies a failure as transient (worth retrying) or
// fatal. Implementations must be safe for concurrent use.
type TransientDetector interface {
	IsTransient(err error) bool
}

// DetectorFunc adapts a plain function to TransientDetector
type DetectorFunc func(err error) bool

// IsTransient calls f(err)
func (f DetectorFunc) IsTransient(err error) bool {
	return f(err)
}

var (
	// AlwaysTransient retries every failure
	AlwaysTransient TransientDetector = DetectorFunc(func(err error) bool { return err != nil })

	// NeverTransient retries nothing
	NeverTransient TransientDetector = DetectorFunc(func(error) bool { return false })
)

// DefaultDetector recognizes errors explicitly marked with
// types.MarkTransient or types.MarkPermanent, and otherwise treats
// network-level failures that commonly clear up on their own as transient.
type DefaultDetector struct{}

// NewDefaultDetector creates the default detector
func NewDefaultDetector() *DefaultDetector {
	return &DefaultDetector{}
}

// IsTransient determines if an error is temporary and retryable.
func (d *DefaultDetector) IsTransient(err error) bool {
	if err == nil {
		return false
	}

	if transient, marked := types.IsMarkedTransient(err); marked {
		return transient
	}

	return IsNetworkTransient(err)
}

// IsNetworkTransient reports whether err is a network failure that a later
// attempt may not hit: timeouts, refused or reset connections, broken
// pipes and truncated streams.
func IsNetworkTransient(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	switch {
	case errors.Is(err, syscall.ECONNREFUSED),
		errors.Is(err, syscall.ECONNRESET),
		errors.Is(err, syscall.ECONNABORTED),
		errors.Is(err, syscall.EPIPE),
		errors.Is(err, syscall.ENETUNREACH),
		errors.Is(err, syscall.EHOSTUNREACH):
		return true
	case errors.Is(err, io.ErrUnexpectedEOF):
		return true
	}

	return false
}
