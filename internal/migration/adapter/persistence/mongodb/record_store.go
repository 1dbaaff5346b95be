package mongodb

import (
	"context"
	"fmt"

	"refguard/internal/migration/domain/model"
	"refguard/internal/migration/domain/repository"
	sharederrors "refguard/internal/shared/errors"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// RecordCollectionName holds migration records for audit and rollback.
const RecordCollectionName = "migration_records"

// RecordStore persists MigrationRecords in MongoDB.
type RecordStore struct {
	col *mongo.Collection
}

var _ repository.RecordStore = (*RecordStore)(nil)

// NewRecordStore creates a record store over the given database.
func NewRecordStore(db *mongo.Database) *RecordStore {
	return &RecordStore{col: db.Collection(RecordCollectionName)}
}

// Save upserts the record by id. The migrator calls this once per run after
// CompletedAt is set, so the stored document is effectively immutable.
func (s *RecordStore) Save(ctx context.Context, record *model.MigrationRecord) error {
	opts := options.Replace().SetUpsert(true)
	if _, err := s.col.ReplaceOne(ctx, bson.M{"_id": record.ID}, record, opts); err != nil {
		return fmt.Errorf("failed to save migration record %s: %w", record.ID, err)
	}
	return nil
}

// Latest returns the most recently started record for a collection.
func (s *RecordStore) Latest(ctx context.Context, collection string) (*model.MigrationRecord, error) {
	opts := options.FindOne().SetSort(bson.D{{Key: "started_at", Value: -1}})

	var record model.MigrationRecord
	err := s.col.FindOne(ctx, bson.M{"source_collection": collection}, opts).Decode(&record)
	if err == mongo.ErrNoDocuments {
		return nil, sharederrors.NewNotFoundError("migration record")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load migration record for %s: %w", collection, err)
	}
	return &record, nil
}
