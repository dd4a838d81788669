package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// documentRow is the persisted shape of a document.
type documentRow struct {
	Collection string            `gorm:"primaryKey;size:64"`
	ID         string            `gorm:"primaryKey;size:191"`
	Data       datatypes.JSONMap `gorm:"not null"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (documentRow) TableName() string {
	return "documents"
}

// GormDocumentStore implements DocumentStore on a single JSON document table.
type GormDocumentStore struct {
	db *gorm.DB
}

// NewGormDocumentStore migrates the documents table and returns the store.
func NewGormDocumentStore(db *gorm.DB) (*GormDocumentStore, error) {
	if err := db.AutoMigrate(&documentRow{}); err != nil {
		return nil, fmt.Errorf("failed to migrate documents table: %w", err)
	}
	return &GormDocumentStore{db: db}, nil
}

// GetDoc loads one document by id.
func (s *GormDocumentStore) GetDoc(ctx context.Context, collection, id string) (Fields, error) {
	var row documentRow
	err := s.db.WithContext(ctx).
		Where("collection = ? AND id = ?", collection, id).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, readErr("get", collection+"/"+id, err)
	}
	return Fields(row.Data), nil
}

// ListDocs loads a whole collection ordered by id.
func (s *GormDocumentStore) ListDocs(ctx context.Context, collection string) ([]Doc, error) {
	var rows []documentRow
	err := s.db.WithContext(ctx).
		Where("collection = ?", collection).
		Order("id").
		Find(&rows).Error
	if err != nil {
		return nil, readErr("list", collection, err)
	}
	return toDocs(rows), nil
}

// QueryByField filters a collection on a top-level JSON field.
func (s *GormDocumentStore) QueryByField(ctx context.Context, collection, field string, value any) ([]Doc, error) {
	var rows []documentRow
	err := s.db.WithContext(ctx).
		Where("collection = ?", collection).
		Where(datatypes.JSONQuery("data").Equals(value, field)).
		Order("id").
		Find(&rows).Error
	if err != nil {
		return nil, readErr("query", collection+"."+field, err)
	}
	return toDocs(rows), nil
}

// SetDoc upserts a document, merging into the stored fields when merge is set.
func (s *GormDocumentStore) SetDoc(ctx context.Context, collection, id string, fields Fields, merge bool) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		data := fields.Clone()
		if merge {
			var existing documentRow
			err := tx.Where("collection = ? AND id = ?", collection, id).Take(&existing).Error
			switch {
			case errors.Is(err, gorm.ErrRecordNotFound):
			case err != nil:
				return err
			default:
				merged := Fields(existing.Data).Clone()
				for k, v := range fields {
					merged[k] = v
				}
				data = merged
			}
		}

		row := documentRow{Collection: collection, ID: id, Data: datatypes.JSONMap(data)}
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "collection"}, {Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"data", "updated_at"}),
		}).Create(&row).Error
	})
	if err != nil {
		return writeErr("set", collection+"/"+id, err)
	}
	return nil
}

// UpdateDoc merges fields into an existing document.
func (s *GormDocumentStore) UpdateDoc(ctx context.Context, collection, id string, fields Fields) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing documentRow
		if err := tx.Where("collection = ? AND id = ?", collection, id).Take(&existing).Error; err != nil {
			return err
		}
		merged := Fields(existing.Data).Clone()
		for k, v := range fields {
			merged[k] = v
		}
		return tx.Model(&documentRow{}).
			Where("collection = ? AND id = ?", collection, id).
			Update("data", datatypes.JSONMap(merged)).Error
	})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return writeErr("update", collection+"/"+id, err)
	}
	return nil
}

func toDocs(rows []documentRow) []Doc {
	docs := make([]Doc, 0, len(rows))
	for _, row := range rows {
		docs = append(docs, Doc{ID: row.ID, Fields: Fields(row.Data)})
	}
	return docs
}
