package connection

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

var _ Repository = &MongoRepository{}

// MongoRepository is a MongoDB-backed implementation of Repository.
type MongoRepository struct {
	coll *mongo.Collection
}

// NewMongoRepository creates a repository backed by the given DB.
func NewMongoRepository(db *mongo.Database) *MongoRepository {
	return &MongoRepository{
		coll: db.Collection("connections"),
	}
}

// connectionDoc is the persisted shape of a Connection.
type connectionDoc struct {
	ConnectionID          string    `bson:"connection_id"`
	TenantID              string    `bson:"tenant_id"`
	ProviderKey           string    `bson:"provider_key"`
	Environment           string    `bson:"environment"`
	Status                string    `bson:"status"`
	Version               int64     `bson:"version"`
	ExpiresAt             time.Time `bson:"expires_at"`
	LastRefreshedAt       time.Time `bson:"last_refreshed_at"`
	RefreshAttemptCount   int       `bson:"refresh_attempt_count"`
	LastRefreshError      string    `bson:"last_refresh_error"`
	NextEligibleRefreshAt time.Time `bson:"next_eligible_refresh_at"`
	CreatedAt             time.Time `bson:"created_at"`
	UpdatedAt             time.Time `bson:"updated_at"`
}

func (d connectionDoc) toConnection() *Connection {
	return &Connection{
		ID:                    d.ConnectionID,
		TenantID:              d.TenantID,
		ProviderKey:           d.ProviderKey,
		Environment:           d.Environment,
		Status:                Status(d.Status),
		Version:               d.Version,
		ExpiresAt:             d.ExpiresAt,
		LastRefreshedAt:       d.LastRefreshedAt,
		RefreshAttemptCount:   d.RefreshAttemptCount,
		LastRefreshError:      d.LastRefreshError,
		NextEligibleRefreshAt: d.NextEligibleRefreshAt,
		CreatedAt:             d.CreatedAt,
		UpdatedAt:             d.UpdatedAt,
	}
}

// Create inserts a new connection record.
func (r *MongoRepository) Create(ctx context.Context, conn *Connection) error {
	doc := bson.M{
		"connection_id":            conn.ID,
		"tenant_id":                conn.TenantID,
		"provider_key":             conn.ProviderKey,
		"environment":              conn.Environment,
		"status":                   string(conn.Status),
		"version":                  conn.Version,
		"expires_at":               conn.ExpiresAt,
		"last_refreshed_at":        conn.LastRefreshedAt,
		"refresh_attempt_count":    conn.RefreshAttemptCount,
		"last_refresh_error":       conn.LastRefreshError,
		"next_eligible_refresh_at": conn.NextEligibleRefreshAt,
		"created_at":               conn.CreatedAt,
		"updated_at":               conn.UpdatedAt,
	}
	_, err := r.coll.InsertOne(ctx, doc)
	return err
}

// Get fetches one connection by ID.
func (r *MongoRepository) Get(ctx context.Context, connectionID string) (*Connection, error) {
	var doc connectionDoc
	err := r.coll.FindOne(ctx, bson.M{"connection_id": connectionID}).Decode(&doc)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return doc.toConnection(), nil
}

// ListByTenant returns a tenant's connections, optionally narrowed to one
// environment.
func (r *MongoRepository) ListByTenant(ctx context.Context, tenantID, environment string) ([]*Connection, error) {
	filter := bson.M{"tenant_id": tenantID}
	if environment != "" {
		filter["environment"] = environment
	}
	return r.find(ctx, filter)
}

// FindDueForRefresh returns active connections expiring within the window
// whose backoff gate has passed. Disconnected and disabled connections are
// excluded by the status filter.
func (r *MongoRepository) FindDueForRefresh(ctx context.Context, window time.Duration, now time.Time) ([]*Connection, error) {
	return r.find(ctx, bson.M{
		"status":                   string(StatusActive),
		"expires_at":               bson.M{"$lt": now.Add(window)},
		"next_eligible_refresh_at": bson.M{"$lte": now},
	})
}

func (r *MongoRepository) find(ctx context.Context, filter bson.M) ([]*Connection, error) {
	cursor, err := r.coll.Find(ctx, filter)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = cursor.Close(ctx)
	}()

	var out []*Connection
	for cursor.Next(ctx) {
		var doc connectionDoc
		if err := cursor.Decode(&doc); err != nil {
			return nil, err
		}
		out = append(out, doc.toConnection())
	}
	return out, cursor.Err()
}

// RecordRefreshSuccess is a compare-and-swap update keyed on the version the
// caller read before refreshing. A concurrent writer bumps the version and
// the filter stops matching, which surfaces as ErrVersionConflict.
func (r *MongoRepository) RecordRefreshSuccess(ctx context.Context, connectionID string, expiresAt, now time.Time, expectedVersion int64) error {
	filter := bson.M{"connection_id": connectionID, "version": expectedVersion}
	update := bson.M{
		"$set": bson.M{
			"expires_at":            expiresAt,
			"last_refreshed_at":     now,
			"refresh_attempt_count": 0,
			"last_refresh_error":    "",
			"updated_at":            now,
		},
		"$inc": bson.M{"version": int64(1)},
	}
	res, err := r.coll.UpdateOne(ctx, filter, update)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		// Distinguish a missing record from a stale version.
		if _, err := r.Get(ctx, connectionID); err != nil {
			return err
		}
		return ErrVersionConflict
	}
	return nil
}

// RecordRefreshFailure increments the attempt counter and arms the backoff
// gate. No version bump: credentials did not change.
func (r *MongoRepository) RecordRefreshFailure(ctx context.Context, connectionID, cause string, nextEligible, now time.Time) error {
	filter := bson.M{"connection_id": connectionID}
	update := bson.M{
		"$set": bson.M{
			"last_refresh_error":       cause,
			"next_eligible_refresh_at": nextEligible,
			"updated_at":               now,
		},
		"$inc": bson.M{"refresh_attempt_count": 1},
	}
	res, err := r.coll.UpdateOne(ctx, filter, update)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// Disable marks the connection terminally failed.
func (r *MongoRepository) Disable(ctx context.Context, connectionID, cause string) error {
	return r.setStatus(ctx, connectionID, StatusDisabled, cause)
}

// Disconnect logically deletes the connection. The record is kept; the due
// query never matches it again.
func (r *MongoRepository) Disconnect(ctx context.Context, connectionID string) error {
	return r.setStatus(ctx, connectionID, StatusDisconnected, "")
}

func (r *MongoRepository) setStatus(ctx context.Context, connectionID string, status Status, cause string) error {
	set := bson.M{
		"status":     string(status),
		"updated_at": time.Now().UTC(),
	}
	if cause != "" {
		set["last_refresh_error"] = cause
	}
	res, err := r.coll.UpdateOne(ctx, bson.M{"connection_id": connectionID}, bson.M{"$set": set})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}
