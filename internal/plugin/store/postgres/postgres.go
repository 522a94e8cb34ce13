// Package postgres provides a DocumentStore over a single JSONB documents
// table. Postgres has no atomic set-union primitive for JSONB arrays, so the
// relation mutations run an optimistic read-modify-write loop keyed on the
// version column.
package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/stagedesk/booking-service/internal/config"
	"github.com/stagedesk/booking-service/internal/model"
	registrymigrate "github.com/stagedesk/booking-service/internal/registry/migrate"
	registrystore "github.com/stagedesk/booking-service/internal/registry/store"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func init() {
	registrystore.Register(registrystore.Plugin{
		Name: "postgres",
		Loader: func(ctx context.Context) (registrystore.DocumentStore, error) {
			cfg := config.FromContext(ctx)
			db, err := gorm.Open(postgres.Open(cfg.DBURL), &gorm.Config{})
			if err != nil {
				return nil, fmt.Errorf("failed to connect to postgres: %w", err)
			}
			sqlDB, err := db.DB()
			if err != nil {
				return nil, fmt.Errorf("failed to get underlying db: %w", err)
			}
			sqlDB.SetMaxOpenConns(cfg.DBMaxOpenConns)
			sqlDB.SetMaxIdleConns(cfg.DBMaxIdleConns)
			retries := cfg.ConflictRetries
			if retries <= 0 {
				retries = 5
			}
			return &PostgresStore{db: db, retries: retries}, nil
		},
	})

	registrymigrate.Register(registrymigrate.Plugin{Order: 100, Migrator: &postgresMigrator{}})
}

type postgresMigrator struct{}

func (m *postgresMigrator) Name() string { return "postgres-schema" }
func (m *postgresMigrator) Migrate(ctx context.Context) error {
	cfg := config.FromContext(ctx)
	if cfg == nil || !cfg.DatastoreMigrateAtStart {
		return nil
	}
	if cfg.DatastoreType != "postgres" {
		return nil // skip if not using postgres
	}
	log.Info("Running migration", "name", m.Name())
	db, err := gorm.Open(postgres.Open(cfg.DBURL), &gorm.Config{})
	if err != nil {
		return fmt.Errorf("migration: failed to connect: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	if _, err := sqlDB.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("migration: failed to execute schema: %w", err)
	}
	log.Info("Postgres schema migration complete")
	return nil
}

// PostgresStore implements DocumentStore using GORM + PostgreSQL.
type PostgresStore struct {
	db      *gorm.DB
	retries int
}

// document is the GORM row shape for the documents table.
type document struct {
	ID        string              `gorm:"column:id;primaryKey"`
	Type      string              `gorm:"column:type"`
	TenantID  string              `gorm:"column:tenant_id"`
	Fields    map[string]any      `gorm:"column:fields;serializer:json"`
	Relations map[string][]string `gorm:"column:relations;serializer:json"`
	Version   int64               `gorm:"column:version"`
	CreatedAt time.Time           `gorm:"column:created_at"`
	UpdatedAt time.Time           `gorm:"column:updated_at"`
}

func (document) TableName() string { return "documents" }

func toEntity(d *document) *model.Entity {
	return &model.Entity{
		ID:        d.ID,
		Type:      d.Type,
		TenantID:  d.TenantID,
		Fields:    d.Fields,
		Relations: d.Relations,
		Version:   d.Version,
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
}

func toDocument(e *model.Entity) *document {
	return &document{
		ID:        e.ID,
		Type:      e.Type,
		TenantID:  e.TenantID,
		Fields:    e.Fields,
		Relations: e.Relations,
		Version:   e.Version,
		CreatedAt: e.CreatedAt,
		UpdatedAt: e.UpdatedAt,
	}
}

func (s *PostgresStore) Get(ctx context.Context, typ, id, tenantID string) (*model.Entity, error) {
	var d document
	result := s.db.WithContext(ctx).
		Where("id = ? AND type = ? AND tenant_id = ?", id, typ, tenantID).
		Limit(1).
		Find(&d)
	if result.Error != nil {
		return nil, &registrystore.StoreUnavailableError{Op: "get", Err: result.Error}
	}
	if result.RowsAffected == 0 {
		return nil, &registrystore.NotFoundError{Type: typ, ID: id}
	}
	return toEntity(&d), nil
}

func (s *PostgresStore) List(ctx context.Context, typ string, q registrystore.Query, tenantID string) ([]model.Entity, *string, error) {
	tx := s.db.WithContext(ctx).
		Where("type = ? AND tenant_id = ?", typ, tenantID).
		Order("id ASC")
	for k, v := range q.Filter {
		tx = tx.Where("fields ->> ? = ?", k, fmt.Sprint(v))
	}
	if q.RelatedTo != nil {
		// JSONB containment: relations.<field> array contains the id.
		tx = tx.Where("relations -> ? @> to_jsonb(?::text)", q.RelatedTo.Field, q.RelatedTo.ID)
	}
	if q.AfterCursor != nil {
		tx = tx.Where("id > ?", *q.AfterCursor)
	}
	if q.Limit > 0 {
		tx = tx.Limit(q.Limit + 1)
	}

	var docs []document
	if err := tx.Find(&docs).Error; err != nil {
		return nil, nil, &registrystore.StoreUnavailableError{Op: "list", Err: err}
	}
	return pageDocs(docs, q.Limit)
}

func pageDocs(docs []document, limit int) ([]model.Entity, *string, error) {
	hasMore := limit > 0 && len(docs) > limit
	if hasMore {
		docs = docs[:limit]
	}
	out := make([]model.Entity, len(docs))
	for i := range docs {
		out[i] = *toEntity(&docs[i])
	}
	var cursor *string
	if hasMore && len(out) > 0 {
		c := out[len(out)-1].ID
		cursor = &c
	}
	return out, cursor, nil
}

func (s *PostgresStore) BatchWrite(ctx context.Context, ops []model.WriteOp, tenantID string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, op := range ops {
			switch op.Kind {
			case model.OpPut:
				if err := putDoc(tx, op.Entity, tenantID); err != nil {
					return err
				}
			case model.OpDelete:
				result := tx.Where("id = ? AND type = ? AND tenant_id = ?", op.ID, op.Type, tenantID).
					Delete(&document{})
				if result.Error != nil {
					return &registrystore.StoreUnavailableError{Op: "delete", Err: result.Error}
				}
				if result.RowsAffected == 0 {
					return &registrystore.NotFoundError{Type: op.Type, ID: op.ID}
				}
			}
		}
		return nil
	})
}

func putDoc(tx *gorm.DB, e *model.Entity, tenantID string) error {
	d := toDocument(e)
	d.TenantID = tenantID
	now := time.Now().UTC()

	if d.Version == 0 {
		d.Version = 1
		d.CreatedAt = now
		d.UpdatedAt = now
		if err := tx.Create(d).Error; err != nil {
			if strings.Contains(err.Error(), "duplicate key") {
				return &registrystore.ConflictError{Type: d.Type, ID: d.ID, Attempts: 1}
			}
			return &registrystore.StoreUnavailableError{Op: "insert", Err: err}
		}
		return nil
	}

	expected := d.Version
	d.Version++
	d.UpdatedAt = now
	result := tx.Model(&document{}).
		Where("id = ? AND tenant_id = ? AND version = ?", d.ID, tenantID, expected).
		Updates(map[string]any{
			"fields":     d.Fields,
			"relations":  d.Relations,
			"version":    d.Version,
			"updated_at": d.UpdatedAt,
		})
	if result.Error != nil {
		return &registrystore.StoreUnavailableError{Op: "update", Err: result.Error}
	}
	if result.RowsAffected == 0 {
		var count int64
		if err := tx.Model(&document{}).
			Where("id = ? AND tenant_id = ?", d.ID, tenantID).
			Count(&count).Error; err != nil {
			return &registrystore.StoreUnavailableError{Op: "update", Err: err}
		}
		if count > 0 {
			return &registrystore.ConflictError{Type: d.Type, ID: d.ID, Attempts: 1}
		}
		return &registrystore.NotFoundError{Type: d.Type, ID: d.ID}
	}
	return nil
}

// AddToRelation unions ids into the relation field under an optimistic retry
// loop: read the document, compute the union in Go, write back conditional on
// the version seen.
func (s *PostgresStore) AddToRelation(ctx context.Context, typ, id, tenantID, field string, ids []string) error {
	return s.mutateRelation(ctx, "add_to_relation", typ, id, tenantID, func(current []string) []string {
		have := make(map[string]bool, len(current))
		for _, v := range current {
			have[v] = true
		}
		out := current
		for _, v := range ids {
			if !have[v] {
				out = append(out, v)
				have[v] = true
			}
		}
		return out
	}, field)
}

// RemoveFromRelation subtracts ids from the relation field.
func (s *PostgresStore) RemoveFromRelation(ctx context.Context, typ, id, tenantID, field string, ids []string) error {
	return s.mutateRelation(ctx, "remove_from_relation", typ, id, tenantID, func(current []string) []string {
		drop := make(map[string]bool, len(ids))
		for _, v := range ids {
			drop[v] = true
		}
		kept := make([]string, 0, len(current))
		for _, v := range current {
			if !drop[v] {
				kept = append(kept, v)
			}
		}
		return kept
	}, field)
}

func (s *PostgresStore) mutateRelation(ctx context.Context, op, typ, id, tenantID string, mutate func([]string) []string, field string) error {
	var lastErr error
	for attempt := 1; attempt <= s.retries; attempt++ {
		var d document
		result := s.db.WithContext(ctx).
			Where("id = ? AND type = ? AND tenant_id = ?", id, typ, tenantID).
			Limit(1).
			Find(&d)
		if result.Error != nil {
			return &registrystore.StoreUnavailableError{Op: op, Err: result.Error}
		}
		if result.RowsAffected == 0 {
			return &registrystore.NotFoundError{Type: typ, ID: id}
		}

		next := mutate(d.Relations[field])
		if sameIDs(d.Relations[field], next) {
			return nil
		}
		relations := d.Relations
		if relations == nil {
			relations = map[string][]string{}
		}
		relations[field] = next

		update := s.db.WithContext(ctx).Model(&document{}).
			Where("id = ? AND version = ?", id, d.Version).
			Updates(map[string]any{
				"relations":  relations,
				"version":    d.Version + 1,
				"updated_at": time.Now().UTC(),
			})
		if update.Error != nil {
			return &registrystore.StoreUnavailableError{Op: op, Err: update.Error}
		}
		if update.RowsAffected > 0 {
			return nil
		}
		lastErr = &registrystore.ConflictError{Type: typ, ID: id, Attempts: attempt}
	}
	return lastErr
}

func sameIDs(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func (s *PostgresStore) ScanAll(ctx context.Context, typ string, afterCursor *string, limit int) ([]model.Entity, *string, error) {
	tx := s.db.WithContext(ctx).Where("type = ?", typ).Order("id ASC")
	if afterCursor != nil {
		tx = tx.Where("id > ?", *afterCursor)
	}
	if limit > 0 {
		tx = tx.Limit(limit + 1)
	}
	var docs []document
	if err := tx.Find(&docs).Error; err != nil {
		return nil, nil, &registrystore.StoreUnavailableError{Op: "scan", Err: err}
	}
	return pageDocs(docs, limit)
}

func (s *PostgresStore) TagTenant(ctx context.Context, typ, id, tenantID string) (bool, error) {
	result := s.db.WithContext(ctx).Model(&document{}).
		Where("id = ? AND type = ? AND tenant_id = ''", id, typ).
		Updates(map[string]any{
			"tenant_id":  tenantID,
			"version":    gorm.Expr("version + 1"),
			"updated_at": time.Now().UTC(),
		})
	if result.Error != nil {
		return false, &registrystore.StoreUnavailableError{Op: "tag_tenant", Err: result.Error}
	}
	if result.RowsAffected > 0 {
		return true, nil
	}
	var count int64
	if err := s.db.WithContext(ctx).Model(&document{}).
		Where("id = ? AND type = ?", id, typ).
		Count(&count).Error; err != nil {
		return false, &registrystore.StoreUnavailableError{Op: "tag_tenant", Err: err}
	}
	if count == 0 {
		return false, &registrystore.NotFoundError{Type: typ, ID: id}
	}
	return false, nil
}

func (s *PostgresStore) Close(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
