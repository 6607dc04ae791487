// Package refresher drives proactive renewal of connection credentials: a
// poll loop selects connections nearing expiry, a governor bounds the
// resulting work, and each refresh runs as an independent task whose
// outcome is persisted and emitted. One tenant's or provider's failure
// never blocks the others.
package refresher

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/staylink/connections/connection"
	"github.com/staylink/connections/connector"
	"github.com/staylink/connections/secret"
)

var (
	// ErrRefreshInFlight is returned by RefreshNow when a refresh for the
	// connection is already running.
	ErrRefreshInFlight = errors.New("refresh already in flight")
	// ErrThrottled is returned by RefreshNow when no rate-limiter permit is
	// available right now.
	ErrThrottled = errors.New("refresh throttled")
	// ErrConnectionNotActive is returned by RefreshNow for disabled or
	// disconnected connections.
	ErrConnectionNotActive = errors.New("connection not active")
)

// Options configures a Scheduler. Zero values select the defaults.
type Options struct {
	PollInterval  time.Duration // default 30s
	RefreshWindow time.Duration // default 10m
	CallTimeout   time.Duration // default 30s, bounds one provider call
	Backoff       Backoff
	Emitter       Emitter
	Logger        *slog.Logger
}

// Scheduler owns the refresh loop. At most one refresh per connection ID is
// in flight at any time, under arbitrary overlapping ticks and RefreshNow
// calls.
type Scheduler struct {
	repo     connection.Repository
	secrets  secret.Gateway
	registry *connector.Registry
	governor *Governor

	pollInterval  time.Duration
	refreshWindow time.Duration
	callTimeout   time.Duration
	backoff       Backoff
	emitter       Emitter
	logger        *slog.Logger
	now           func() time.Time

	mu       sync.Mutex
	inflight map[string]struct{}
	wg       sync.WaitGroup
}

// NewScheduler wires the refresh engine together. The governor instance is
// passed in explicitly; the scheduler holds no ambient global state.
func NewScheduler(repo connection.Repository, secrets secret.Gateway, registry *connector.Registry, governor *Governor, opts Options) *Scheduler {
	if opts.PollInterval <= 0 {
		opts.PollInterval = 30 * time.Second
	}
	if opts.RefreshWindow <= 0 {
		opts.RefreshWindow = 10 * time.Minute
	}
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = 30 * time.Second
	}
	if opts.Backoff == (Backoff{}) {
		opts.Backoff = DefaultBackoff
	}
	if opts.Emitter == nil {
		opts.Emitter = &LogEmitter{Logger: opts.Logger}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Scheduler{
		repo:          repo,
		secrets:       secrets,
		registry:      registry,
		governor:      governor,
		pollInterval:  opts.PollInterval,
		refreshWindow: opts.RefreshWindow,
		callTimeout:   opts.CallTimeout,
		backoff:       opts.Backoff,
		emitter:       opts.Emitter,
		logger:        opts.Logger,
		now:           func() time.Time { return time.Now().UTC() },
		inflight:      map[string]struct{}{},
	}
}

// Start runs the poll loop until ctx is cancelled, then waits for in-flight
// refreshes to drain.
func (s *Scheduler) Start(ctx context.Context) error {
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		if err := s.Tick(ctx); err != nil {
			s.logger.Error("poll tick aborted", "err", err)
		}
		select {
		case <-ctx.Done():
			s.wg.Wait()
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Tick runs one poll cycle: select due connections and dispatch each one
// that can take a permit. The call returns as soon as dispatch is done; the
// refreshes themselves run concurrently. A repository failure here is
// systemic: the whole tick aborts with no per-connection state change.
func (s *Scheduler) Tick(ctx context.Context) error {
	now := s.now()
	due, err := s.repo.FindDueForRefresh(ctx, s.refreshWindow, now)
	if err != nil {
		ticksTotal.WithLabelValues("aborted").Inc()
		return err
	}
	for _, conn := range due {
		s.dispatch(ctx, conn)
	}
	ticksTotal.WithLabelValues("ok").Inc()
	return nil
}

// dispatch starts one refresh task if the connection is not already in
// flight and a permit is available. Otherwise the connection stays idle;
// the next tick re-evaluates it.
func (s *Scheduler) dispatch(ctx context.Context, conn *connection.Connection) {
	if !s.begin(conn.ID) {
		return
	}
	release, ok, err := s.governor.Acquire(ctx, conn.ProviderKey)
	if err != nil {
		s.end(conn.ID)
		s.logger.Warn("rate limiter unavailable", "provider", conn.ProviderKey, "err", err)
		return
	}
	if !ok {
		s.end(conn.ID)
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer release()
		defer s.end(conn.ID)
		s.runCycle(ctx, conn)
	}()
}

// RefreshNow refreshes one connection on demand, outside the poll cycle.
// It runs synchronously and reports the cycle outcome.
func (s *Scheduler) RefreshNow(ctx context.Context, connectionID string) (Outcome, error) {
	conn, err := s.repo.Get(ctx, connectionID)
	if err != nil {
		return "", err
	}
	if conn.Status != connection.StatusActive {
		return "", ErrConnectionNotActive
	}
	if !s.begin(conn.ID) {
		return "", ErrRefreshInFlight
	}
	defer s.end(conn.ID)

	release, ok, err := s.governor.Acquire(ctx, conn.ProviderKey)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", ErrThrottled
	}
	defer release()

	return s.runCycle(ctx, conn), nil
}

// begin marks the connection in flight; false when it already is.
func (s *Scheduler) begin(connectionID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.inflight[connectionID]; exists {
		return false
	}
	s.inflight[connectionID] = struct{}{}
	return true
}

func (s *Scheduler) end(connectionID string) {
	s.mu.Lock()
	delete(s.inflight, connectionID)
	s.mu.Unlock()
}

// runCycle executes one refresh and emits the outcome.
func (s *Scheduler) runCycle(ctx context.Context, conn *connection.Connection) Outcome {
	start := s.now()
	refreshesInflight.Inc()
	outcome, attempt := s.refreshOne(ctx, conn)
	refreshesInflight.Dec()

	latency := s.now().Sub(start)
	refreshesTotal.WithLabelValues(conn.ProviderKey, string(outcome)).Inc()
	refreshDuration.WithLabelValues(conn.ProviderKey).Observe(latency.Seconds())
	s.emitter.Emit(ctx, Event{
		ConnectionID: conn.ID,
		ProviderKey:  conn.ProviderKey,
		Outcome:      outcome,
		LatencyMs:    latency.Milliseconds(),
		Attempt:      attempt,
	})
	return outcome
}

// refreshOne runs the full cycle for one connection: resolve the connector,
// read the credential, exchange the refresh token and persist the result.
// Every error is recovered locally into a per-connection outcome; nothing
// escapes to the process.
func (s *Scheduler) refreshOne(ctx context.Context, conn *connection.Connection) (Outcome, int) {
	attempt := conn.RefreshAttemptCount + 1

	c, err := s.registry.Resolve(conn.ProviderKey)
	if err != nil {
		// Registry miss is a configuration defect; retrying cannot fix it.
		s.disable(ctx, conn, err)
		return OutcomeFailedTerminal, attempt
	}

	cred, version, err := s.secrets.Read(ctx, conn.ID)
	if err != nil {
		if errors.Is(err, secret.ErrNotFound) {
			s.disable(ctx, conn, err)
			return OutcomeFailedTerminal, attempt
		}
		if errors.Is(err, secret.ErrUnavailable) {
			// The store itself is down. The connection did nothing wrong;
			// leave its attempt counter and backoff gate alone.
			s.logger.Error("secret store unavailable", "connection_id", conn.ID, "err", err)
			return OutcomeSkippedUnavailable, attempt
		}
		s.recordRetryable(ctx, conn, attempt, err)
		return OutcomeFailedRetryable, attempt
	}

	callCtx, cancel := context.WithTimeout(ctx, s.callTimeout)
	ts, err := c.Refresh(callCtx, connector.RefreshRequest{
		ClientID:     cred.ClientID,
		ClientSecret: cred.ClientSecret,
		RefreshToken: cred.RefreshToken,
		Metadata:     cred.Metadata,
	})
	cancel()
	if err != nil {
		if connector.IsTerminalAuth(err) {
			s.disable(ctx, conn, err)
			return OutcomeFailedTerminal, attempt
		}
		// Timeouts, network failures, 5xx, 429 and malformed responses all
		// land here. Prior credentials stay untouched, so the connection
		// remains usable until its original expiry.
		s.recordRetryable(ctx, conn, attempt, err)
		return OutcomeFailedRetryable, attempt
	}

	now := s.now()
	cred.Apply(*ts, now)

	if err := s.secrets.Write(ctx, conn.ID, cred, version); err != nil {
		if errors.Is(err, secret.ErrVersionConflict) {
			// A concurrent writer (manual refresh) won. Abandon this
			// cycle's result; the next tick re-reads.
			s.logger.Info("credential write skipped on version conflict", "connection_id", conn.ID)
			return OutcomeSkippedConflict, attempt
		}
		if errors.Is(err, secret.ErrUnavailable) {
			s.logger.Error("secret store unavailable", "connection_id", conn.ID, "err", err)
			return OutcomeSkippedUnavailable, attempt
		}
		s.recordRetryable(ctx, conn, attempt, err)
		return OutcomeFailedRetryable, attempt
	}

	if err := s.repo.RecordRefreshSuccess(ctx, conn.ID, cred.ExpiresAt, now, conn.Version); err != nil {
		if errors.Is(err, connection.ErrVersionConflict) {
			s.logger.Info("bookkeeping skipped on version conflict", "connection_id", conn.ID)
			return OutcomeSkippedConflict, attempt
		}
		// The credential itself is persisted; a squashed bookkeeping write
		// is caught up by the next successful cycle.
		s.logger.Error("record refresh success", "connection_id", conn.ID, "err", err)
	}
	return OutcomeSucceeded, attempt
}

func (s *Scheduler) recordRetryable(ctx context.Context, conn *connection.Connection, attempt int, cause error) {
	now := s.now()
	next := now.Add(s.backoff.Delay(attempt))
	if err := s.repo.RecordRefreshFailure(ctx, conn.ID, cause.Error(), next, now); err != nil {
		s.logger.Error("record refresh failure", "connection_id", conn.ID, "err", err)
	}
	s.logger.Warn("refresh failed, will retry",
		"connection_id", conn.ID,
		"provider", conn.ProviderKey,
		"attempt", attempt,
		"next_eligible", next,
		"err", cause,
	)
}

func (s *Scheduler) disable(ctx context.Context, conn *connection.Connection, cause error) {
	if err := s.repo.Disable(ctx, conn.ID, cause.Error()); err != nil {
		s.logger.Error("disable connection", "connection_id", conn.ID, "err", err)
	}
	s.logger.Error("refresh failed terminally, connection disabled",
		"connection_id", conn.ID,
		"provider", conn.ProviderKey,
		"err", cause,
	)
}
