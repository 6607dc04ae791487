// Package connections manages OAuth 2.0 credentials for many tenants across
// many third-party providers, and keeps them fresh: the refresh engine
// polls for connections nearing expiry, runs the right provider connector
// and persists renewed credentials with retry, rate limiting and
// per-connection failure isolation.
package connections

import (
	"context"
	"fmt"
	"maps"
	"time"

	rdb "github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"golang.org/x/oauth2"

	"github.com/staylink/connections/config"
	"github.com/staylink/connections/connection"
	"github.com/staylink/connections/connector"
	"github.com/staylink/connections/refresher"
	"github.com/staylink/connections/secret"
)

// Engine ties the registry, repository, secret store and scheduler together.
type Engine struct {
	repo      connection.Repository
	secrets   secret.Gateway
	registry  *connector.Registry
	scheduler *refresher.Scheduler
}

// New wires an engine from explicit parts.
func New(repo connection.Repository, secrets secret.Gateway, registry *connector.Registry, governor *refresher.Governor, opts refresher.Options) *Engine {
	return &Engine{
		repo:      repo,
		secrets:   secrets,
		registry:  registry,
		scheduler: refresher.NewScheduler(repo, secrets, registry, governor, opts),
	}
}

// FromConfig wires an engine from configuration: mongo-backed repository
// and secret store, bucket rate limits per provider, and — when a redis
// client is supplied — distributed event publishing. rds may be nil.
func FromConfig(cfg *config.Config, db *mongo.Database, master secret.MasterKey, rds rdb.Cmdable, registry *connector.Registry) *Engine {
	perProvider := make(map[string]refresher.BucketConfig, len(cfg.Limits.PerProvider))
	for key, lim := range cfg.Limits.PerProvider {
		perProvider[key] = refresher.BucketConfig{RequestsPerSecond: lim.RequestsPerSecond, Burst: lim.Burst}
	}
	var limiter refresher.ProviderLimiter = refresher.NewBucketLimiter(perProvider, refresher.BucketConfig{
		RequestsPerSecond: cfg.Limits.DefaultProvider.RequestsPerSecond,
		Burst:             cfg.Limits.DefaultProvider.Burst,
	})
	if rds != nil && cfg.Limits.Distributed.MaxPerWindow > 0 {
		limiter = refresher.NewRedisWindowLimiter(rds, cfg.Redis.Prefix, cfg.Limits.Distributed.MaxPerWindow, cfg.DistributedWindow())
	}
	governor := refresher.NewGovernor(cfg.Limits.GlobalInflight, limiter)

	opts := refresher.Options{
		PollInterval:  cfg.PollInterval(),
		RefreshWindow: cfg.RefreshWindow(),
		CallTimeout:   cfg.CallTimeout(),
		Backoff: refresher.Backoff{
			Base:   cfg.BackoffBase(),
			Factor: cfg.Backoff.Factor,
			Max:    cfg.BackoffMax(),
		},
	}
	if rds != nil {
		opts.Emitter = &refresher.RedisEmitter{Client: rds, Channel: cfg.Redis.EventChannel}
	}

	return New(
		connection.NewMongoRepository(db),
		secret.NewMongoGateway(db, master),
		registry,
		governor,
		opts,
	)
}

// ConnectRequest carries everything needed to turn a completed consent flow
// (an authorization code) into a stored connection.
type ConnectRequest struct {
	TenantID    string
	ProviderKey string
	Environment string

	ClientID     string
	ClientSecret string
	Code         string
	RedirectURI  string
	Metadata     map[string]string
}

// Connect performs the authorization-code exchange via the provider's
// connector and persists the new connection with its encrypted credential.
// The browser consent flow that produced the code is the caller's concern.
func (e *Engine) Connect(ctx context.Context, req ConnectRequest) (*connection.Connection, error) {
	c, err := e.registry.Resolve(req.ProviderKey)
	if err != nil {
		return nil, err
	}
	ts, err := c.Init(ctx, connector.InitRequest{
		ClientID:     req.ClientID,
		ClientSecret: req.ClientSecret,
		Code:         req.Code,
		RedirectURI:  req.RedirectURI,
		Metadata:     req.Metadata,
	})
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	cred := &connection.Credential{
		ClientID:     req.ClientID,
		ClientSecret: req.ClientSecret,
		// Copied so the provider-metadata merge below never writes into the
		// caller's request.
		Metadata: maps.Clone(req.Metadata),
	}
	cred.Apply(*ts, now)
	if cred.RefreshToken == "" {
		return nil, fmt.Errorf("%s: init returned no refresh token", req.ProviderKey)
	}

	conn := connection.New(req.TenantID, req.ProviderKey, req.Environment)
	conn.ExpiresAt = cred.ExpiresAt
	conn.LastRefreshedAt = now

	if err := e.secrets.Write(ctx, conn.ID, cred, 0); err != nil {
		return nil, err
	}
	if err := e.repo.Create(ctx, conn); err != nil {
		_ = e.secrets.Delete(ctx, conn.ID)
		return nil, err
	}
	return conn, nil
}

// Connections lists a tenant's connections, optionally narrowed to one
// environment.
func (e *Engine) Connections(ctx context.Context, tenantID, environment string) ([]*connection.Connection, error) {
	return e.repo.ListByTenant(ctx, tenantID, environment)
}

// Disconnect logically deletes the connection and removes its credential.
// The record itself is kept and never polled again.
func (e *Engine) Disconnect(ctx context.Context, connectionID string) error {
	if err := e.repo.Disconnect(ctx, connectionID); err != nil {
		return err
	}
	return e.secrets.Delete(ctx, connectionID)
}

// RefreshNow refreshes one connection on demand, outside the poll cycle.
func (e *Engine) RefreshNow(ctx context.Context, connectionID string) (refresher.Outcome, error) {
	return e.scheduler.RefreshNow(ctx, connectionID)
}

// TokenSource exposes the connection's credential as an oauth2.TokenSource
// with refresh-ahead.
func (e *Engine) TokenSource(ctx context.Context, connectionID string) oauth2.TokenSource {
	return e.scheduler.TokenSource(ctx, connectionID)
}

// Start runs the refresh poll loop until ctx is cancelled.
func (e *Engine) Start(ctx context.Context) error {
	return e.scheduler.Start(ctx)
}
