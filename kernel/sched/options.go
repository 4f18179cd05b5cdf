package sched

import (
	"io"

	"github.com/joeycumines/logiface"
	"github.com/kernelkit/pintos-go/internal/klog"
	"github.com/kernelkit/pintos-go/kernel/thread"
)

// Mode selects the scheduling discipline, chosen once at boot per §4.1;
// switching at runtime is unsupported.
type Mode int

const (
	// ModePriority is strict priority scheduling with donation.
	ModePriority Mode = iota
	// ModeMLFQ is the multi-level feedback queue scheduler; donation is
	// disabled in this mode.
	ModeMLFQ
)

const (
	// TimeSlice is the maximum uninterrupted run length, in ticks, under
	// round-robin/priority mode.
	TimeSlice uint64 = 4
	// MLFQRecomputeInterval is how often (in ticks) a thread's MLFQ
	// priority is recomputed.
	MLFQRecomputeInterval uint64 = 4
	// TimerFreq is the number of ticks per second, used to pace load_avg
	// and recent_cpu recomputation.
	TimerFreq uint64 = 100
)

type config struct {
	mode       Mode
	timeSlice  uint64
	logger     *klog.Logger
	maxThreads int
}

func defaultConfig() config {
	return config{
		mode:       ModePriority,
		timeSlice:  TimeSlice,
		logger:     klog.New(io.Discard, logiface.LevelInformational),
		maxThreads: thread.DefaultMaxThreads,
	}
}

// Option configures a Scheduler at construction time, following the
// reference reactor's functional-options pattern (LoopOption).
type Option interface {
	apply(*config)
}

type optionFunc func(*config)

func (f optionFunc) apply(c *config) { f(c) }

// WithMode selects priority or MLFQ scheduling.
func WithMode(m Mode) Option {
	return optionFunc(func(c *config) { c.mode = m })
}

// WithTimeSlice overrides TimeSlice, primarily for tests that want to
// observe preemption within a handful of ticks.
func WithTimeSlice(n uint64) Option {
	return optionFunc(func(c *config) { c.timeSlice = n })
}

// WithLogger installs a structured logger; the default discards output.
func WithLogger(l *klog.Logger) Option {
	return optionFunc(func(c *config) { c.logger = l })
}

// WithLogWriter is a convenience over WithLogger for the common case of
// just wanting kernel diagnostics written somewhere.
func WithLogWriter(w io.Writer, level logiface.Level) Option {
	return optionFunc(func(c *config) { c.logger = klog.New(w, level) })
}

// WithMaxThreads overrides the live-thread cap (thread.DefaultMaxThreads),
// primarily for tests exercising ErrOutOfThreads.
func WithMaxThreads(n int) Option {
	return optionFunc(func(c *config) { c.maxThreads = n })
}

func resolveOptions(opts []Option) config {
	c := defaultConfig()
	for _, o := range opts {
		o.apply(&c)
	}
	return c
}

// ParseMLFQFlag implements the kernel command-line convention of §6: the
// option token "-o mlfqs" (case-sensitive) selects MLFQ; its absence
// selects priority.
func ParseMLFQFlag(args []string) Mode {
	for i, a := range args {
		if a == "-o" && i+1 < len(args) && args[i+1] == "mlfqs" {
			return ModeMLFQ
		}
	}
	return ModePriority
}
