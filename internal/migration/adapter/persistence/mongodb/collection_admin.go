package mongodb

import (
	"context"
	"fmt"

	"refguard/internal/migration/domain/repository"
	"refguard/internal/shared/logger"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// CollectionAdmin implements raw collection access for the migrator over a
// MongoDB database.
type CollectionAdmin struct {
	db     *mongo.Database
	logger logger.Logger
}

var _ repository.CollectionAdmin = (*CollectionAdmin)(nil)

// NewCollectionAdmin creates a collection admin over the given database.
func NewCollectionAdmin(db *mongo.Database, log logger.Logger) *CollectionAdmin {
	return &CollectionAdmin{
		db:     db,
		logger: log.WithComponent("collection-admin"),
	}
}

// CountDocuments counts every document in the collection.
func (a *CollectionAdmin) CountDocuments(ctx context.Context, collection string) (int64, error) {
	return a.db.Collection(collection).CountDocuments(ctx, bson.M{})
}

// CountFieldPresent counts documents carrying the given field.
func (a *CollectionAdmin) CountFieldPresent(ctx context.Context, collection, field string) (int64, error) {
	return a.db.Collection(collection).CountDocuments(ctx, bson.M{field: bson.M{"$exists": true}})
}

// SampleFields fetches one document and reports which fields it carries.
// Diagnostic only; an empty collection yields no fields and no error.
func (a *CollectionAdmin) SampleFields(ctx context.Context, collection string) ([]string, error) {
	var doc bson.M
	err := a.db.Collection(collection).FindOne(ctx, bson.M{}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to sample document: %w", err)
	}

	fields := make([]string, 0, len(doc))
	for k := range doc {
		fields = append(fields, k)
	}
	return fields, nil
}

// CopyCollection copies the source collection verbatim into dest using a
// server-side $out aggregation, so the copy never round-trips documents
// through this process. $out replaces an existing destination, so an
// already-present dest is refused outright: a backup is never overwritten.
func (a *CollectionAdmin) CopyCollection(ctx context.Context, source, dest string) error {
	existing, err := a.db.ListCollectionNames(ctx, bson.M{"name": dest})
	if err != nil {
		return fmt.Errorf("could not check for existing collection %s: %w", dest, err)
	}
	if len(existing) > 0 {
		return fmt.Errorf("destination collection %s already exists", dest)
	}

	pipeline := mongo.Pipeline{
		bson.D{{Key: "$match", Value: bson.D{}}},
		bson.D{{Key: "$out", Value: dest}},
	}

	cursor, err := a.db.Collection(source).Aggregate(ctx, pipeline)
	if err != nil {
		return fmt.Errorf("server-side copy %s -> %s failed: %w", source, dest, err)
	}
	defer cursor.Close(ctx)

	// $out emits no documents; draining surfaces any deferred server error.
	for cursor.Next(ctx) {
	}
	if err := cursor.Err(); err != nil {
		return fmt.Errorf("server-side copy %s -> %s failed: %w", source, dest, err)
	}

	a.logger.Info("Collection copied", "source", source, "dest", dest)
	return nil
}

// ScanPage returns one fixed-size page of documents in stable _id order.
func (a *CollectionAdmin) ScanPage(ctx context.Context, collection string, skip, limit int64) ([]repository.RawDocument, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "_id", Value: 1}}).
		SetSkip(skip).
		SetLimit(limit)

	cursor, err := a.db.Collection(collection).Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("paged scan failed at skip %d: %w", skip, err)
	}
	defer cursor.Close(ctx)

	var page []repository.RawDocument
	for cursor.Next(ctx) {
		var doc bson.M
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("failed to decode document: %w", err)
		}
		page = append(page, repository.RawDocument(doc))
	}
	return page, cursor.Err()
}

// ApplyDiff applies one document's minimal diff as a self-contained update
// scoped to that document's storage id.
func (a *CollectionAdmin) ApplyDiff(ctx context.Context, collection string, docID interface{}, diff repository.DocumentDiff) error {
	if diff.IsZero() {
		return nil
	}

	update := bson.M{}
	if len(diff.Set) > 0 {
		update["$set"] = diff.Set
	}
	if len(diff.Unset) > 0 {
		unset := bson.M{}
		for _, field := range diff.Unset {
			unset[field] = ""
		}
		update["$unset"] = unset
	}

	result, err := a.db.Collection(collection).UpdateOne(ctx, bson.M{"_id": docID}, update)
	if err != nil {
		return fmt.Errorf("failed to update document %v: %w", docID, err)
	}
	if result.MatchedCount == 0 {
		return fmt.Errorf("document %v not found", docID)
	}
	return nil
}
