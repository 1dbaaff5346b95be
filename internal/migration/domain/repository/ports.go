package repository

import (
	"context"

	"refguard/internal/migration/domain/model"
)

// RawDocument is one stored document as the migrator sees it, including its
// storage id under "_id".
type RawDocument map[string]interface{}

// DocumentDiff is the minimal write needed to make one document conform to
// the new identity shape. An empty diff means the document is already
// conformant and produces zero writes.
type DocumentDiff struct {
	Set   map[string]interface{}
	Unset []string
}

// IsZero reports whether applying the diff would be a no-op.
func (d DocumentDiff) IsZero() bool {
	return len(d.Set) == 0 && len(d.Unset) == 0
}

// CollectionAdmin is raw collection access for the migrator: counting,
// sampling, server-side copy, paginated scan, and single-document updates.
// CopyCollection must fail when dest already exists; an existing backup is
// never overwritten.
type CollectionAdmin interface {
	CountDocuments(ctx context.Context, collection string) (int64, error)
	CountFieldPresent(ctx context.Context, collection, field string) (int64, error)
	SampleFields(ctx context.Context, collection string) ([]string, error)
	CopyCollection(ctx context.Context, source, dest string) error
	ScanPage(ctx context.Context, collection string, skip, limit int64) ([]RawDocument, error)
	ApplyDiff(ctx context.Context, collection string, docID interface{}, diff DocumentDiff) error
}

// IndexInfo describes one existing index on a collection.
type IndexInfo struct {
	Name   string
	Fields []string
	Unique bool
}

// IndexManager is idempotent create/drop of named indexes with declared
// uniqueness.
type IndexManager interface {
	EnsureIndex(ctx context.Context, collection string, keys []model.IndexKey, unique bool, name string) error
	DropIndex(ctx context.Context, collection, name string) error
	ListIndexes(ctx context.Context, collection string) ([]IndexInfo, error)
}

// RecordStore persists migration records for audit and rollback bookkeeping.
type RecordStore interface {
	Save(ctx context.Context, record *model.MigrationRecord) error
	Latest(ctx context.Context, collection string) (*model.MigrationRecord, error)
}
