package executor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Defaults applied by New when the corresponding Config field is zero.
const (
	DefaultMaxRetries = 3
	DefaultBackoff    = 2 * time.Second
	DefaultTimeout    = 5 * time.Second
)

// NoRetries disables retries so the operation runs exactly once. A zero
// MaxRetries means "use the default", so single-attempt execution needs
// an explicit sentinel.
const NoRetries = -1

// ErrAttemptTimeout marks an attempt that did not settle within the
// per-attempt timeout. The operation's eventual outcome is discarded.
var ErrAttemptTimeout = errors.New("attempt timed out")

// Operation is a unit of work wrapped by the executor. The context passed
// to it carries the per-attempt deadline; operations that respect it
// release their resources when an attempt times out.
type Operation func(ctx context.Context, payload json.RawMessage) (json.RawMessage, error)

// DeadLetterHook is invoked exactly once when all attempts are exhausted,
// with the original payload and the last attempt's error.
type DeadLetterHook func(ctx context.Context, payload json.RawMessage, err error)

// Config defines executor behavior for one named operation.
type Config struct {
	// Name identifies the operation in logs.
	Name string

	// MaxRetries is the number of retries after the first attempt,
	// so the operation runs at most MaxRetries+1 times. Zero means
	// DefaultMaxRetries; NoRetries runs the operation exactly once.
	MaxRetries int

	// Backoff is the base delay between attempts. The delay after
	// failed attempt i (1-indexed) is Backoff * i.
	Backoff time.Duration

	// Timeout bounds each individual attempt.
	Timeout time.Duration

	// OnDeadLetter, if set, is called when retries are exhausted.
	OnDeadLetter DeadLetterHook

	// Classifier decides whether an error is worth retrying.
	// Nil means every error is transient.
	Classifier Classifier
}

// Executor runs an operation with per-attempt timeouts, linear backoff
// and a dead-letter hook on exhaustion. One attempt executes at a time;
// the only state is local to a single Execute call, so an Executor is
// safe for concurrent use.
type Executor struct {
	cfg   Config
	op    Operation
	log   *slog.Logger
	sleep func(ctx context.Context, d time.Duration) error
}

// New creates an executor for op, filling zero Config fields with defaults.
func New(cfg Config, op Operation) *Executor {
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = DefaultMaxRetries
	} else if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = DefaultBackoff
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Classifier == nil {
		cfg.Classifier = func(error) Category { return CategoryTransient }
	}
	return &Executor{
		cfg:   cfg,
		op:    op,
		log:   slog.Default().With("job", cfg.Name),
		sleep: sleepCtx,
	}
}

type attemptResult struct {
	out json.RawMessage
	err error
}

// Execute runs the operation until it succeeds, retries are exhausted, an
// error is classified permanent, or ctx is cancelled. On exhaustion the
// dead-letter hook fires once and the last error is returned.
func (e *Executor) Execute(ctx context.Context, payload json.RawMessage) (json.RawMessage, error) {
	maxAttempts := e.cfg.MaxRetries + 1
	e.log.Info("job started", "max_attempts", maxAttempts, "payload_bytes", len(payload))

	var lastErr error
	var attempts int
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		attempts = attempt
		out, err := e.runAttempt(ctx, attempt, payload)
		if err == nil {
			e.log.Info("job succeeded", "attempt", attempt)
			return out, nil
		}
		if ctx.Err() != nil {
			// Caller gave up; not a dead letter.
			return nil, ctx.Err()
		}

		lastErr = err
		e.log.Warn("job attempt failed",
			"attempt", attempt, "error", err, "payload_bytes", len(payload))

		if IsPermanent(err) || e.cfg.Classifier(err) == CategoryPermanent {
			break
		}
		if attempt == maxAttempts {
			break
		}

		delay := e.cfg.Backoff * time.Duration(attempt)
		e.log.Info("job retrying", "attempt", attempt+1, "delay", delay)
		if err := e.sleep(ctx, delay); err != nil {
			return nil, err
		}
	}

	e.log.Error("job dead-lettered",
		"error", lastErr, "payload_bytes", len(payload))
	if e.cfg.OnDeadLetter != nil {
		e.cfg.OnDeadLetter(ctx, payload, lastErr)
	}
	return nil, fmt.Errorf("job %s exhausted after %d attempts: %w",
		e.cfg.Name, attempts, lastErr)
}

// runAttempt races the operation against the per-attempt timeout. The
// attempt context carries the deadline so cooperative operations can
// abort; a non-cooperative operation loses the race and its eventual
// result is dropped.
func (e *Executor) runAttempt(
	ctx context.Context,
	attempt int,
	payload json.RawMessage,
) (json.RawMessage, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()

	done := make(chan attemptResult, 1)
	go func() {
		out, err := e.op(attemptCtx, payload)
		done <- attemptResult{out: out, err: err}
	}()

	select {
	case res := <-done:
		// A cooperative operation aborted by the attempt deadline reports
		// context.DeadlineExceeded; normalize it to the timeout error.
		if res.err != nil && errors.Is(attemptCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, fmt.Errorf("job %s attempt %d: %w", e.cfg.Name, attempt, ErrAttemptTimeout)
		}
		return res.out, res.err
	case <-attemptCtx.Done():
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("job %s attempt %d: %w", e.cfg.Name, attempt, ErrAttemptTimeout)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
