package mongodb

import (
	"context"

	"go.mongodb.org/mongo-driver/mongo"
)

// databaseCounter adapts *mongo.Database to the ReferenceCounter interface.
type databaseCounter struct {
	db *mongo.Database
}

// NewDatabaseCounter wraps a mongo database for use by the prober.
func NewDatabaseCounter(db *mongo.Database) ReferenceCounter {
	return &databaseCounter{db: db}
}

func (d *databaseCounter) CountReferences(ctx context.Context, collection string, filter interface{}) (int64, error) {
	return d.db.Collection(collection).CountDocuments(ctx, filter)
}
