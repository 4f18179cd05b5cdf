// Package klog is the kernel's structured logging facade, built on
// logiface with a stumpy JSON writer and a catrate-limited guard for the
// two hot paths (eviction scans, page-fault resolution) that would
// otherwise flood output under sustained load.
package klog

import (
	"io"
	"time"

	"github.com/joeycumines/go-catrate"
	"github.com/joeycumines/logiface"
	"github.com/joeycumines/stumpy"
)

// Logger wraps a logiface logger backed by stumpy's JSON event encoder.
type Logger struct {
	base  *logiface.Logger[*stumpy.Event]
	rates *catrate.Limiter
}

// rate categories gated through the shared limiter.
const (
	categoryEviction  = "eviction"
	categoryPageFault = "pagefault"
)

// New builds a Logger writing newline-delimited JSON to w at the given
// level and above.
func New(w io.Writer, level logiface.Level) *Logger {
	base := stumpy.L.New(
		stumpy.L.WithStumpy(stumpy.WithWriter(w)),
		stumpy.L.WithLevel(level),
	)
	return &Logger{
		base: base,
		rates: catrate.NewLimiter(map[time.Duration]int{
			time.Second: 5,
		}),
	}
}

// Builder re-exports the concrete builder type so call sites can chain
// field setters without importing logiface/stumpy directly.
type Builder = logiface.Builder[*stumpy.Event]

// Emerg starts an emergency-level record. Used exclusively by the single
// kernel panic choke point (kernel/kerrors.Panic).
func (l *Logger) Emerg() *Builder { return l.base.Emerg() }

// Err starts an error-level record.
func (l *Logger) Err() *Builder { return l.base.Err() }

// Warning starts a warning-level record.
func (l *Logger) Warning() *Builder { return l.base.Warning() }

// Info starts an informational-level record, used for the one-line exit
// status report required by the system-call ABI.
func (l *Logger) Info() *Builder { return l.base.Info() }

// Debug starts a debug-level record.
func (l *Logger) Debug() *Builder { return l.base.Debug() }

// EvictionWarning returns a Warning builder, or nil if the eviction
// category's rate limit has been exceeded this window. Callers must check
// for nil before chaining.
func (l *Logger) EvictionWarning() *Builder {
	if _, ok := l.rates.Allow(categoryEviction); !ok {
		return nil
	}
	return l.Warning()
}

// PageFaultDebug returns a Debug builder, or nil if the page-fault category
// rate limit has been exceeded this window.
func (l *Logger) PageFaultDebug() *Builder {
	if _, ok := l.rates.Allow(categoryPageFault); !ok {
		return nil
	}
	return l.Debug()
}
