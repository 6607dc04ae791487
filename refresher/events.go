package refresher

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	rdb "github.com/redis/go-redis/v9"
)

// Outcome is the terminal state of one refresh cycle for one connection.
type Outcome string

const (
	OutcomeSucceeded       Outcome = "succeeded"
	OutcomeFailedRetryable Outcome = "failed_retryable"
	OutcomeFailedTerminal  Outcome = "failed_terminal"
	OutcomeSkippedConflict Outcome = "skipped_conflict"
	// OutcomeSkippedUnavailable means the secret store itself was
	// unreachable. The fault is systemic, so the connection's bookkeeping
	// is left untouched and the next tick retries.
	OutcomeSkippedUnavailable Outcome = "skipped_unavailable"
)

// Event is emitted once per completed refresh cycle.
type Event struct {
	ConnectionID string  `json:"connection_id"`
	ProviderKey  string  `json:"provider_key"`
	Outcome      Outcome `json:"outcome"`
	LatencyMs    int64   `json:"latency_ms"`
	Attempt      int     `json:"attempt"`
}

// Emitter receives refresh cycle events.
type Emitter interface {
	Emit(ctx context.Context, ev Event)
}

// LogEmitter writes events to structured logging.
type LogEmitter struct {
	Logger *slog.Logger
}

// Emit logs the event.
func (l *LogEmitter) Emit(ctx context.Context, ev Event) {
	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("refresh completed",
		"connection_id", ev.ConnectionID,
		"provider", ev.ProviderKey,
		"outcome", string(ev.Outcome),
		"latency_ms", ev.LatencyMs,
		"attempt", ev.Attempt,
	)
}

// RedisEmitter publishes events as JSON on a redis channel so the API layer
// can fan them out to tenants.
type RedisEmitter struct {
	Client  rdb.Cmdable
	Channel string
}

// Emit publishes the event; failures are logged, never propagated.
func (r *RedisEmitter) Emit(ctx context.Context, ev Event) {
	if r.Client == nil {
		return
	}
	channel := r.Channel
	if channel == "" {
		channel = "connection.refresh"
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return
	}
	pubCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := r.Client.Publish(pubCtx, channel, string(data)).Err(); err != nil {
		slog.Warn("publish refresh event", "err", err, "channel", channel)
	}
}
