// Package mongostore persists parameter {path, value} pairs to MongoDB,
// one document per path, in the "parameters" collection.
//
// Grounded on database/mongodb.go's MongodbHandler: the same
// mongo.Connect/options.Client().SetServerAPIOptions/readpref.Primary()
// connection-pool and health-ping pattern, re-targeted from a generic
// robot collection to a parameters collection keyed by the joined path.
package mongostore

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"roverd/diag"
	"roverd/param"
)

const (
	minPoolSize = 2
	maxPoolSize = 10
)

// document is the on-disk shape of one parameter row.
type document struct {
	Key   string `bson:"_id"`
	Path  []string `bson:"path"`
	Value any    `bson:"value"`
}

// Store is a param.Store backed by a MongoDB collection.
type Store struct {
	client     *mongo.Client
	collection *mongo.Collection
	ctx        context.Context
	cancel     context.CancelFunc
}

// Connect establishes a pooled connection to uri/database's "parameters"
// collection, pinging to confirm connectivity before returning.
func Connect(ctx context.Context, uri, database string) (*Store, error) {
	if uri == "" {
		return nil, fmt.Errorf("mongostore: connection uri is required")
	}
	if database == "" {
		return nil, fmt.Errorf("mongostore: database name is required")
	}

	diag.Printf("mongostore: connecting to %s", uri)

	storeCtx, cancel := context.WithCancel(ctx)

	serverAPI := options.ServerAPI(options.ServerAPIVersion1)
	opts := options.Client().
		ApplyURI(uri).
		SetServerAPIOptions(serverAPI).
		SetMaxPoolSize(maxPoolSize).
		SetMinPoolSize(minPoolSize).
		SetMaxConnIdleTime(0).
		SetRetryWrites(true).
		SetRetryReads(true)

	client, err := mongo.Connect(storeCtx, opts)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("mongostore: connect failed: %w", err)
	}

	if err := client.Ping(storeCtx, readpref.Primary()); err != nil {
		client.Disconnect(storeCtx)
		cancel()
		return nil, fmt.Errorf("mongostore: ping failed: %w", err)
	}

	diag.Printf("mongostore: connected to database %s", database)

	return &Store{
		client:     client,
		collection: client.Database(database).Collection("parameters"),
		ctx:        storeCtx,
		cancel:     cancel,
	}, nil
}

// Close disconnects the underlying client.
func (s *Store) Close(ctx context.Context) error {
	s.cancel()
	if err := s.client.Disconnect(ctx); err != nil {
		return fmt.Errorf("mongostore: disconnect failed: %w", err)
	}
	return nil
}

// IsHealthy pings the server with a short timeout.
func (s *Store) IsHealthy() bool {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Ping(ctx, readpref.Primary()) == nil
}

// Save upserts the {path, value} document keyed by the joined path.
func (s *Store) Save(path []string, value any) error {
	key := param.Join(path)
	_, err := s.collection.UpdateOne(
		s.ctx,
		bson.M{"_id": key},
		bson.M{"$set": document{Key: key, Path: path, Value: value}},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("mongostore: save %s: %w", key, err)
	}
	return nil
}

// Load returns every persisted parameter document.
func (s *Store) Load() ([]param.StoredValue, error) {
	cursor, err := s.collection.Find(s.ctx, bson.M{})
	if err != nil {
		return nil, fmt.Errorf("mongostore: load: %w", err)
	}
	defer cursor.Close(s.ctx)

	var out []param.StoredValue
	for cursor.Next(s.ctx) {
		var doc document
		if err := cursor.Decode(&doc); err != nil {
			diag.Printf("mongostore: skipping undecodable document: %v", err)
			continue
		}
		out = append(out, param.StoredValue{Path: doc.Path, Value: doc.Value})
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("mongostore: cursor error: %w", err)
	}
	return out, nil
}
