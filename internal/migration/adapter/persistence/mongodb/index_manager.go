package mongodb

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"

	"refguard/internal/migration/domain/model"
	"refguard/internal/migration/domain/repository"
	sharederrors "refguard/internal/shared/errors"
	"refguard/internal/shared/logger"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// IndexView is the slice of mongo.IndexView behavior the manager needs,
// kept as an interface for testability.
type IndexView interface {
	CreateOne(ctx context.Context, model mongo.IndexModel, opts ...*options.CreateIndexesOptions) (string, error)
	DropOne(ctx context.Context, name string, opts ...*options.DropIndexesOptions) (bson.Raw, error)
	ListSpecifications(ctx context.Context, opts ...*options.ListIndexesOptions) ([]*mongo.IndexSpecification, error)
}

// IndexViewProvider resolves the index view for a collection.
type IndexViewProvider interface {
	IndexView(collection string) IndexView
}

// databaseIndexViews adapts *mongo.Database to IndexViewProvider.
type databaseIndexViews struct {
	db *mongo.Database
}

// NewDatabaseIndexViews wraps a mongo database for use by the index manager.
func NewDatabaseIndexViews(db *mongo.Database) IndexViewProvider {
	return &databaseIndexViews{db: db}
}

func (d *databaseIndexViews) IndexView(collection string) IndexView {
	view := d.db.Collection(collection).Indexes()
	return &view
}

// IndexManager is idempotent create/drop of named indexes with declared
// uniqueness.
type IndexManager struct {
	views  IndexViewProvider
	logger logger.Logger
}

var _ repository.IndexManager = (*IndexManager)(nil)

// NewIndexManager creates an index manager over the given provider.
func NewIndexManager(views IndexViewProvider, log logger.Logger) *IndexManager {
	return &IndexManager{
		views:  views,
		logger: log.WithComponent("index-manager"),
	}
}

// EnsureIndex creates the named index if absent. Re-creating an index that
// already exists with the same uniqueness is a no-op; a name collision with
// conflicting uniqueness fails with a descriptive error rather than silently
// altering semantics. Index builds do not take the collection offline.
func (m *IndexManager) EnsureIndex(ctx context.Context, collection string, keys []model.IndexKey, unique bool, name string) error {
	view := m.views.IndexView(collection)

	specs, err := view.ListSpecifications(ctx)
	if err != nil {
		return fmt.Errorf("failed to list indexes on %s: %w", collection, err)
	}
	for _, spec := range specs {
		if spec.Name != name {
			continue
		}
		existingUnique := spec.Unique != nil && *spec.Unique
		if existingUnique != unique {
			return sharederrors.NewIndexConflictError(
				fmt.Sprintf("index %q on %s exists with unique=%t, requested unique=%t",
					name, collection, existingUnique, unique)).
				WithCause(sharederrors.ErrIndexUniquenessClash)
		}
		if !keysMatch(spec.KeysDocument, keys) {
			return sharederrors.NewIndexConflictError(
				fmt.Sprintf("index %q on %s exists with a different key spec", name, collection))
		}
		m.logger.Debug("Index already exists", "collection", collection, "index", name)
		return nil
	}

	keyDoc := bson.D{}
	for _, k := range keys {
		keyDoc = append(keyDoc, bson.E{Key: k.Field, Value: k.Direction})
	}

	indexModel := mongo.IndexModel{
		Keys:    keyDoc,
		Options: options.Index().SetName(name).SetUnique(unique),
	}

	if _, err := view.CreateOne(ctx, indexModel); err != nil {
		if isDuplicateKeyError(err) {
			return sharederrors.NewIndexConflictError(
				fmt.Sprintf("cannot create unique index %q on %s: existing documents hold colliding values", name, collection)).
				WithCause(err)
		}
		return fmt.Errorf("failed to create index %q on %s: %w", name, collection, err)
	}

	m.logger.Info("Index created", "collection", collection, "index", name, "unique", unique)
	return nil
}

// DropIndex drops the named index; a missing index is a no-op.
func (m *IndexManager) DropIndex(ctx context.Context, collection, name string) error {
	if _, err := m.views.IndexView(collection).DropOne(ctx, name); err != nil {
		if isIndexNotFoundError(err) {
			m.logger.Debug("Index already absent", "collection", collection, "index", name)
			return nil
		}
		return fmt.Errorf("failed to drop index %q on %s: %w", name, collection, err)
	}

	m.logger.Info("Index dropped", "collection", collection, "index", name)
	return nil
}

// ListIndexes returns every index on the collection.
func (m *IndexManager) ListIndexes(ctx context.Context, collection string) ([]repository.IndexInfo, error) {
	specs, err := m.views.IndexView(collection).ListSpecifications(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list indexes on %s: %w", collection, err)
	}

	infos := make([]repository.IndexInfo, 0, len(specs))
	for _, spec := range specs {
		info := repository.IndexInfo{
			Name:   spec.Name,
			Unique: spec.Unique != nil && *spec.Unique,
		}
		elements, err := spec.KeysDocument.Elements()
		if err == nil {
			for _, el := range elements {
				info.Fields = append(info.Fields, el.Key())
			}
		}
		infos = append(infos, info)
	}
	return infos, nil
}

// keysMatch compares an existing index key document against the requested
// keys, field by field in order.
func keysMatch(doc bson.Raw, keys []model.IndexKey) bool {
	elements, err := doc.Elements()
	if err != nil || len(elements) != len(keys) {
		return false
	}
	for i, el := range elements {
		if el.Key() != keys[i].Field {
			return false
		}
		if dir, ok := el.Value().AsInt64OK(); ok && dir != int64(keys[i].Direction) {
			return false
		}
	}
	return true
}

func isDuplicateKeyError(err error) bool {
	if mongo.IsDuplicateKeyError(err) {
		return true
	}
	return err != nil && strings.Contains(err.Error(), "E11000")
}

func isIndexNotFoundError(err error) bool {
	var cmdErr mongo.CommandError
	if stderrors.As(err, &cmdErr) && cmdErr.Name == "IndexNotFound" {
		return true
	}
	return err != nil && strings.Contains(err.Error(), "index not found")
}
