package retry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"syscall"
	"testing"

	"github.com/jzx17/goretry/pkg/types"
)

func TestDefaultDetector(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"plain error", errors.New("boom"), false},
		{"marked transient", types.MarkTransient(errors.New("busy")), true},
		{"marked permanent timeout", types.MarkPermanent(os.ErrDeadlineExceeded), false},
		{"wrapped marker", fmt.Errorf("op: %w", types.MarkTransient(errors.New("busy"))), true},
		{"connection refused", &net.OpError{Op: "dial", Net: "tcp", Err: syscall.ECONNREFUSED}, true},
		{"connection reset", fmt.Errorf("read: %w", syscall.ECONNRESET), true},
		{"broken pipe", syscall.EPIPE, true},
		{"host unreachable", syscall.EHOSTUNREACH, true},
		{"unexpected eof", fmt.Errorf("decode: %w", io.ErrUnexpectedEOF), true},
		{"clean eof", io.EOF, false},
		{"io deadline", os.ErrDeadlineExceeded, true},
		{"context deadline", context.DeadlineExceeded, true},
		{"permission denied", syscall.EACCES, false},
	}

	d := NewDefaultDetector()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := d.IsTransient(tt.err); got != tt.want {
				t.Errorf("IsTransient(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestFixedDetectors(t *testing.T) {
	err := errors.New("anything")

	if !AlwaysTransient.IsTransient(err) {
		t.Errorf("AlwaysTransient rejected %v", err)
	}
	if AlwaysTransient.IsTransient(nil) {
		t.Errorf("AlwaysTransient accepted nil")
	}
	if NeverTransient.IsTransient(err) {
		t.Errorf("NeverTransient accepted %v", err)
	}
}

func TestDetectorFunc(t *testing.T) {
	target := errors.New("target")
	d := DetectorFunc(func(err error) bool {
		return errors.Is(err, target)
	})

	if !d.IsTransient(fmt.Errorf("wrapped: %w", target)) {
		t.Errorf("DetectorFunc did not match wrapped target")
	}
	if d.IsTransient(errors.New("other")) {
		t.Errorf("DetectorFunc matched unrelated error")
	}
}
