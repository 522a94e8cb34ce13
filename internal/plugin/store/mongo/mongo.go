// Package mongo provides the primary DocumentStore backed by MongoDB.
// Relation set mutations map onto $addToSet / $pull, the store's native
// atomic set-union and set-difference operators, so no read-modify-write
// retry loop is needed on this backend.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/stagedesk/booking-service/internal/config"
	"github.com/stagedesk/booking-service/internal/model"
	registrymigrate "github.com/stagedesk/booking-service/internal/registry/migrate"
	registrystore "github.com/stagedesk/booking-service/internal/registry/store"
	"github.com/stagedesk/booking-service/internal/schema"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

const dbName = "booking_service"

func init() {
	registrystore.Register(registrystore.Plugin{
		Name: "mongo",
		Loader: func(ctx context.Context) (registrystore.DocumentStore, error) {
			cfg := config.FromContext(ctx)
			opts := options.Client().ApplyURI(cfg.DBURL)
			if cfg.DBMaxOpenConns > 0 {
				opts.SetMaxPoolSize(uint64(cfg.DBMaxOpenConns))
			}
			if cfg.DBMaxIdleConns > 0 {
				opts.SetMinPoolSize(uint64(cfg.DBMaxIdleConns))
			}
			client, err := mongo.Connect(opts)
			if err != nil {
				return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
			}
			if err := client.Ping(ctx, nil); err != nil {
				return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
			}
			return &MongoStore{client: client, db: client.Database(dbName)}, nil
		},
	})

	registrymigrate.Register(registrymigrate.Plugin{Order: 100, Migrator: &mongoMigrator{}})
}

// MongoStore implements DocumentStore over one collection per entity type.
type MongoStore struct {
	client *mongo.Client
	db     *mongo.Database
}

func collectionName(typ string) string {
	return strings.ToLower(typ) + "s"
}

func (s *MongoStore) col(typ string) *mongo.Collection {
	return s.db.Collection(collectionName(typ))
}

func scopedFilter(id, tenantID string) bson.M {
	return bson.M{"_id": id, "tenant_id": tenantID}
}

func (s *MongoStore) Get(ctx context.Context, typ, id, tenantID string) (*model.Entity, error) {
	var e model.Entity
	err := s.col(typ).FindOne(ctx, scopedFilter(id, tenantID)).Decode(&e)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, &registrystore.NotFoundError{Type: typ, ID: id}
	}
	if err != nil {
		return nil, &registrystore.StoreUnavailableError{Op: "get", Err: err}
	}
	return &e, nil
}

func (s *MongoStore) List(ctx context.Context, typ string, q registrystore.Query, tenantID string) ([]model.Entity, *string, error) {
	filter := bson.M{"tenant_id": tenantID}
	for k, v := range q.Filter {
		filter["fields."+k] = v
	}
	if q.RelatedTo != nil {
		// Equality against an array field matches documents whose array
		// contains the value.
		filter["relations."+q.RelatedTo.Field] = q.RelatedTo.ID
	}
	if q.AfterCursor != nil {
		filter["_id"] = bson.M{"$gt": *q.AfterCursor}
	}

	opts := options.Find().SetSort(bson.D{{Key: "_id", Value: 1}})
	if q.Limit > 0 {
		opts.SetLimit(int64(q.Limit))
	}
	cursor, err := s.col(typ).Find(ctx, filter, opts)
	if err != nil {
		return nil, nil, &registrystore.StoreUnavailableError{Op: "list", Err: err}
	}
	var out []model.Entity
	if err := cursor.All(ctx, &out); err != nil {
		return nil, nil, &registrystore.StoreUnavailableError{Op: "list", Err: err}
	}
	var next *string
	if q.Limit > 0 && len(out) == q.Limit {
		last := out[len(out)-1].ID
		next = &last
	}
	return out, next, nil
}

func (s *MongoStore) BatchWrite(ctx context.Context, ops []model.WriteOp, tenantID string) error {
	for _, op := range ops {
		switch op.Kind {
		case model.OpPut:
			if err := s.put(ctx, op.Entity, tenantID); err != nil {
				return err
			}
		case model.OpDelete:
			res, err := s.col(op.Type).DeleteOne(ctx, scopedFilter(op.ID, tenantID))
			if err != nil {
				return &registrystore.StoreUnavailableError{Op: "delete", Err: err}
			}
			if res.DeletedCount == 0 {
				return &registrystore.NotFoundError{Type: op.Type, ID: op.ID}
			}
		}
	}
	return nil
}

// put inserts when Version is zero and otherwise replaces conditionally on
// the stored version, which is the optimistic concurrency token.
func (s *MongoStore) put(ctx context.Context, e *model.Entity, tenantID string) error {
	doc := e.Clone()
	doc.TenantID = tenantID

	if doc.Version == 0 {
		doc.Version = 1
		now := time.Now().UTC()
		doc.CreatedAt = now
		doc.UpdatedAt = now
		if _, err := s.col(doc.Type).InsertOne(ctx, doc); err != nil {
			if mongo.IsDuplicateKeyError(err) {
				return &registrystore.ConflictError{Type: doc.Type, ID: doc.ID, Attempts: 1}
			}
			return &registrystore.StoreUnavailableError{Op: "insert", Err: err}
		}
		return nil
	}

	filter := scopedFilter(doc.ID, tenantID)
	filter["version"] = doc.Version
	doc.Version++
	doc.UpdatedAt = time.Now().UTC()
	res, err := s.col(doc.Type).ReplaceOne(ctx, filter, doc)
	if err != nil {
		return &registrystore.StoreUnavailableError{Op: "replace", Err: err}
	}
	if res.MatchedCount == 0 {
		// Distinguish a stale version from a missing/foreign document.
		count, err := s.col(doc.Type).CountDocuments(ctx, scopedFilter(doc.ID, tenantID))
		if err != nil {
			return &registrystore.StoreUnavailableError{Op: "replace", Err: err}
		}
		if count > 0 {
			return &registrystore.ConflictError{Type: doc.Type, ID: doc.ID, Attempts: 1}
		}
		return &registrystore.NotFoundError{Type: doc.Type, ID: doc.ID}
	}
	return nil
}

func (s *MongoStore) AddToRelation(ctx context.Context, typ, id, tenantID, field string, ids []string) error {
	update := bson.M{
		"$addToSet":    bson.M{"relations." + field: bson.M{"$each": ids}},
		"$inc":         bson.M{"version": 1},
		"$currentDate": bson.M{"updated_at": true},
	}
	res, err := s.col(typ).UpdateOne(ctx, scopedFilter(id, tenantID), update)
	if err != nil {
		return &registrystore.StoreUnavailableError{Op: "add_to_relation", Err: err}
	}
	if res.MatchedCount == 0 {
		return &registrystore.NotFoundError{Type: typ, ID: id}
	}
	return nil
}

func (s *MongoStore) RemoveFromRelation(ctx context.Context, typ, id, tenantID, field string, ids []string) error {
	update := bson.M{
		"$pull":        bson.M{"relations." + field: bson.M{"$in": ids}},
		"$inc":         bson.M{"version": 1},
		"$currentDate": bson.M{"updated_at": true},
	}
	res, err := s.col(typ).UpdateOne(ctx, scopedFilter(id, tenantID), update)
	if err != nil {
		return &registrystore.StoreUnavailableError{Op: "remove_from_relation", Err: err}
	}
	if res.MatchedCount == 0 {
		return &registrystore.NotFoundError{Type: typ, ID: id}
	}
	return nil
}

func (s *MongoStore) ScanAll(ctx context.Context, typ string, afterCursor *string, limit int) ([]model.Entity, *string, error) {
	filter := bson.M{}
	if afterCursor != nil {
		filter["_id"] = bson.M{"$gt": *afterCursor}
	}
	opts := options.Find().SetSort(bson.D{{Key: "_id", Value: 1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	cursor, err := s.col(typ).Find(ctx, filter, opts)
	if err != nil {
		return nil, nil, &registrystore.StoreUnavailableError{Op: "scan", Err: err}
	}
	var out []model.Entity
	if err := cursor.All(ctx, &out); err != nil {
		return nil, nil, &registrystore.StoreUnavailableError{Op: "scan", Err: err}
	}
	var next *string
	if limit > 0 && len(out) == limit {
		last := out[len(out)-1].ID
		next = &last
	}
	return out, next, nil
}

func (s *MongoStore) TagTenant(ctx context.Context, typ, id, tenantID string) (bool, error) {
	filter := bson.M{
		"_id": id,
		"$or": []bson.M{
			{"tenant_id": ""},
			{"tenant_id": nil},
			{"tenant_id": bson.M{"$exists": false}},
		},
	}
	update := bson.M{
		"$set":         bson.M{"tenant_id": tenantID},
		"$inc":         bson.M{"version": 1},
		"$currentDate": bson.M{"updated_at": true},
	}
	res, err := s.col(typ).UpdateOne(ctx, filter, update)
	if err != nil {
		return false, &registrystore.StoreUnavailableError{Op: "tag_tenant", Err: err}
	}
	if res.ModifiedCount > 0 {
		return true, nil
	}
	count, err := s.col(typ).CountDocuments(ctx, bson.M{"_id": id})
	if err != nil {
		return false, &registrystore.StoreUnavailableError{Op: "tag_tenant", Err: err}
	}
	if count == 0 {
		return false, &registrystore.NotFoundError{Type: typ, ID: id}
	}
	return false, nil
}

func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// mongoMigrator creates one collection per catalog type with tenant and
// relation indexes.
type mongoMigrator struct{}

func (m *mongoMigrator) Name() string { return "mongo-schema" }

func (m *mongoMigrator) Migrate(ctx context.Context) error {
	cfg := config.FromContext(ctx)
	if cfg == nil || !cfg.DatastoreMigrateAtStart {
		return nil
	}
	if cfg.DatastoreType != "mongo" {
		return nil // skip if not using mongo
	}

	log.Info("Running migration", "name", m.Name())
	client, err := mongo.Connect(options.Client().ApplyURI(cfg.DBURL))
	if err != nil {
		return fmt.Errorf("mongo migration: failed to connect: %w", err)
	}
	defer client.Disconnect(ctx)

	db := client.Database(dbName)
	types := []string{
		schema.TypeVenue,
		schema.TypeContact,
		schema.TypeArtist,
		schema.TypeBooking,
		schema.TypeOrganization,
	}
	for _, typ := range types {
		name := collectionName(typ)
		db.CreateCollection(ctx, name) // idempotent: fails silently if exists
		indexes := []mongo.IndexModel{
			{Keys: bson.D{{Key: "tenant_id", Value: 1}}},
			{Keys: bson.D{{Key: "tenant_id", Value: 1}, {Key: "_id", Value: 1}}},
		}
		if _, err := db.Collection(name).Indexes().CreateMany(ctx, indexes); err != nil {
			return fmt.Errorf("mongo migration: indexes for %s: %w", name, err)
		}
	}
	return nil
}
