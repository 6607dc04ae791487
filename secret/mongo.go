package secret

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/staylink/connections/connection"
)

var _ Gateway = &MongoGateway{}

// MongoGateway stores sealed credentials in a MongoDB collection, one
// document per connection, versioned for compare-and-swap writes.
type MongoGateway struct {
	master MasterKey
	coll   *mongo.Collection
}

// NewMongoGateway creates a gateway backed by the given DB. The collection
// should carry a unique index on connection_id.
func NewMongoGateway(db *mongo.Database, master MasterKey) *MongoGateway {
	return &MongoGateway{
		master: master,
		coll:   db.Collection("connection_secrets"),
	}
}

type secretDoc struct {
	ConnectionID string    `bson:"connection_id"`
	Version      int64     `bson:"version"`
	WrappedKey   []byte    `bson:"wrapped_key"`
	Ciphertext   []byte    `bson:"ciphertext"`
	UpdatedAt    time.Time `bson:"updated_at"`
}

// Read decrypts and returns the stored credential and its version. A
// transport failure comes back wrapped in ErrUnavailable; a credential
// that exists but fails to open does not.
func (g *MongoGateway) Read(ctx context.Context, connectionID string) (*connection.Credential, int64, error) {
	var doc secretDoc
	err := g.coll.FindOne(ctx, bson.M{"connection_id": connectionID}).Decode(&doc)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, 0, ErrNotFound
		}
		return nil, 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	cred, err := open(g.master, &envelope{WrappedKey: doc.WrappedKey, Ciphertext: doc.Ciphertext})
	if err != nil {
		return nil, 0, err
	}
	return cred, doc.Version, nil
}

// Write seals the credential and persists it when the stored version still
// matches. expectedVersion 0 creates the initial record.
func (g *MongoGateway) Write(ctx context.Context, connectionID string, cred *connection.Credential, expectedVersion int64) error {
	env, err := seal(g.master, cred)
	if err != nil {
		return err
	}
	now := time.Now().UTC()

	if expectedVersion == 0 {
		doc := bson.M{
			"connection_id": connectionID,
			"version":       int64(1),
			"wrapped_key":   env.WrappedKey,
			"ciphertext":    env.Ciphertext,
			"updated_at":    now,
		}
		if _, err := g.coll.InsertOne(ctx, doc); err != nil {
			if mongo.IsDuplicateKeyError(err) {
				return ErrVersionConflict
			}
			return fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		return nil
	}

	filter := bson.M{"connection_id": connectionID, "version": expectedVersion}
	update := bson.M{
		"$set": bson.M{
			"wrapped_key": env.WrappedKey,
			"ciphertext":  env.Ciphertext,
			"updated_at":  now,
		},
		"$inc": bson.M{"version": int64(1)},
	}
	res, err := g.coll.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if res.MatchedCount == 0 {
		return ErrVersionConflict
	}
	return nil
}

// Delete removes the stored credential.
func (g *MongoGateway) Delete(ctx context.Context, connectionID string) error {
	if _, err := g.coll.DeleteOne(ctx, bson.M{"connection_id": connectionID}); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}
