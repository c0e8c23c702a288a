package resilience

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
)

var (
	// ErrCircuitOpen is returned without invoking the call while the breaker rejects traffic.
	ErrCircuitOpen = errors.New("circuit breaker is open")
	// ErrCallTimeout is returned when a guarded call exceeds Settings.Timeout.
	ErrCallTimeout = errors.New("circuit breaker call timed out")
)

// State of a circuit breaker
type State string

const (
	StateClosed   State = "CLOSED"
	StateOpen     State = "OPEN"
	StateHalfOpen State = "HALF_OPEN"
	StateUnknown  State = "UNKNOWN"
)

// StateListener observes breaker transitions. It is called outside the breaker lock.
type StateListener func(name string, from, to State)

// Settings configures a CircuitBreaker
type Settings struct {
	// Timeout bounds every guarded call.
	Timeout time.Duration
	// ErrorThresholdPercentage trips the breaker once the window failure rate reaches it.
	ErrorThresholdPercentage int
	// ResetTimeout is how long the breaker stays open before admitting a trial call.
	ResetTimeout time.Duration
	// RollingWindow is split into Buckets for the failure rate.
	RollingWindow time.Duration
	Buckets       int
	// VolumeThreshold is the minimum number of calls in the window before tripping.
	VolumeThreshold int
	// IsIgnored marks errors that should not count as failures (business rejections).
	IsIgnored func(err error) bool
	Now       func() time.Time
}

// DefaultSettings mirrors the payment service breaker configuration.
// The volume threshold leaves room for a retry budget to absorb a single failure.
func DefaultSettings() Settings {
	return Settings{
		Timeout:                  5 * time.Second,
		ErrorThresholdPercentage: 50,
		ResetTimeout:             10 * time.Second,
		RollingWindow:            10 * time.Second,
		Buckets:                  10,
		VolumeThreshold:          5,
	}
}

func (s Settings) withDefaults() Settings {
	def := DefaultSettings()
	if s.Timeout <= 0 {
		s.Timeout = def.Timeout
	}
	if s.ErrorThresholdPercentage <= 0 {
		s.ErrorThresholdPercentage = def.ErrorThresholdPercentage
	}
	if s.ResetTimeout <= 0 {
		s.ResetTimeout = def.ResetTimeout
	}
	if s.RollingWindow <= 0 {
		s.RollingWindow = def.RollingWindow
	}
	if s.Buckets <= 0 {
		s.Buckets = def.Buckets
	}
	if s.Now == nil {
		s.Now = time.Now
	}
	return s
}

// Stats is a point-in-time view of a breaker
type Stats struct {
	Name            string  `json:"name"`
	State           State   `json:"state"`
	Fires           uint64  `json:"fires"`
	Successes       uint64  `json:"successes"`
	Failures        uint64  `json:"failures"`
	Timeouts        uint64  `json:"timeouts"`
	Rejects         uint64  `json:"rejects"`
	WindowCalls     int     `json:"windowCalls"`
	WindowFailures  int     `json:"windowFailures"`
	ErrorPercentage float64 `json:"errorPercentage"`
}

type bucket struct {
	start     time.Time
	successes int
	failures  int
}

// CircuitBreaker guards calls to one downstream dependency.
type CircuitBreaker struct {
	name      string
	settings  Settings
	bucketLen time.Duration

	mu             sync.Mutex
	state          State
	openedAt       time.Time
	halfOpenFlight bool
	buckets        []bucket
	counters       Stats
	listeners      []StateListener
}

type transition struct {
	from, to State
}

// NewCircuitBreaker creates a closed breaker
func NewCircuitBreaker(name string, settings Settings, listeners ...StateListener) *CircuitBreaker {
	settings = settings.withDefaults()
	return &CircuitBreaker{
		name:      name,
		settings:  settings,
		bucketLen: settings.RollingWindow / time.Duration(settings.Buckets),
		state:     StateClosed,
		listeners: listeners,
	}
}

func (cb *CircuitBreaker) Name() string {
	return cb.name
}

// OnStateChange registers a transition listener
func (cb *CircuitBreaker) OnStateChange(l StateListener) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.listeners = append(cb.listeners, l)
}

// Execute runs fn if the breaker admits it. fn receives a context bounded by Settings.Timeout.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	var pending []transition

	now := cb.settings.Now()

	cb.mu.Lock()
	cb.counters.Fires++
	switch cb.state {
	case StateOpen:
		if now.Sub(cb.openedAt) < cb.settings.ResetTimeout {
			cb.counters.Rejects++
			cb.mu.Unlock()
			return ErrCircuitOpen
		}
		pending = append(pending, cb.setState(StateHalfOpen, now))
	case StateHalfOpen:
		if cb.halfOpenFlight {
			cb.counters.Rejects++
			cb.mu.Unlock()
			return ErrCircuitOpen
		}
	}
	if cb.state == StateHalfOpen {
		cb.halfOpenFlight = true
	}
	listeners := cb.listeners
	cb.mu.Unlock()

	cb.notify(listeners, pending)

	err := cb.call(ctx, fn)
	cb.after(ctx, err)
	return err
}

func (cb *CircuitBreaker) call(ctx context.Context, fn func(ctx context.Context) error) error {
	callCtx, cancel := context.WithTimeout(ctx, cb.settings.Timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- fn(callCtx)
	}()

	select {
	case err := <-done:
		if err != nil && ctx.Err() == nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			return errors.Wrap(ErrCallTimeout, err.Error())
		}
		return err
	case <-callCtx.Done():
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return ErrCallTimeout
	}
}

func (cb *CircuitBreaker) after(ctx context.Context, err error) {
	var pending []transition

	now := cb.settings.Now()

	cb.mu.Lock()
	wasHalfOpen := cb.state == StateHalfOpen
	if wasHalfOpen {
		cb.halfOpenFlight = false
	}

	switch {
	case err != nil && ctx.Err() != nil:
		// caller went away, the dependency is not at fault
	case err == nil || (cb.settings.IsIgnored != nil && cb.settings.IsIgnored(err)):
		cb.counters.Successes++
		if wasHalfOpen {
			cb.buckets = nil
			pending = append(pending, cb.setState(StateClosed, now))
		}
		cb.record(now, true)
	default:
		cb.counters.Failures++
		if errors.Is(err, ErrCallTimeout) {
			cb.counters.Timeouts++
		}
		cb.record(now, false)
		if wasHalfOpen || (cb.state == StateClosed && cb.shouldTrip(now)) {
			pending = append(pending, cb.setState(StateOpen, now))
		}
	}
	listeners := cb.listeners
	cb.mu.Unlock()

	cb.notify(listeners, pending)
}

// setState must be called with the lock held.
func (cb *CircuitBreaker) setState(to State, now time.Time) transition {
	from := cb.state
	cb.state = to
	if to == StateOpen {
		cb.openedAt = now
	}
	return transition{from: from, to: to}
}

func (cb *CircuitBreaker) notify(listeners []StateListener, pending []transition) {
	for _, t := range pending {
		if t.from == t.to {
			continue
		}
		for _, l := range listeners {
			l(cb.name, t.from, t.to)
		}
	}
}

func (cb *CircuitBreaker) record(now time.Time, success bool) {
	cb.prune(now)
	start := now.Truncate(cb.bucketLen)
	if n := len(cb.buckets); n == 0 || !cb.buckets[n-1].start.Equal(start) {
		cb.buckets = append(cb.buckets, bucket{start: start})
	}
	b := &cb.buckets[len(cb.buckets)-1]
	if success {
		b.successes++
	} else {
		b.failures++
	}
}

func (cb *CircuitBreaker) prune(now time.Time) {
	cutoff := now.Add(-cb.settings.RollingWindow)
	i := 0
	for i < len(cb.buckets) && !cb.buckets[i].start.Add(cb.bucketLen).After(cutoff) {
		i++
	}
	cb.buckets = cb.buckets[i:]
}

func (cb *CircuitBreaker) window(now time.Time) (calls, failures int) {
	cb.prune(now)
	for _, b := range cb.buckets {
		calls += b.successes + b.failures
		failures += b.failures
	}
	return calls, failures
}

func (cb *CircuitBreaker) shouldTrip(now time.Time) bool {
	calls, failures := cb.window(now)
	if calls == 0 || calls < cb.settings.VolumeThreshold {
		return false
	}
	return failures*100 >= cb.settings.ErrorThresholdPercentage*calls
}

// State reports the current state. An open breaker past its reset timeout reports half-open.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.currentState(cb.settings.Now())
}

func (cb *CircuitBreaker) currentState(now time.Time) State {
	if cb.state == StateOpen && now.Sub(cb.openedAt) >= cb.settings.ResetTimeout {
		return StateHalfOpen
	}
	return cb.state
}

// Stats returns cumulative counters plus the rolling window figures.
func (cb *CircuitBreaker) Stats() Stats {
	now := cb.settings.Now()

	cb.mu.Lock()
	defer cb.mu.Unlock()

	stats := cb.counters
	stats.Name = cb.name
	stats.State = cb.currentState(now)
	stats.WindowCalls, stats.WindowFailures = cb.window(now)
	if stats.WindowCalls > 0 {
		stats.ErrorPercentage = float64(stats.WindowFailures) * 100 / float64(stats.WindowCalls)
	}
	return stats
}
