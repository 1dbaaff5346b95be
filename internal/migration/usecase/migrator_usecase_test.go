package usecase

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"refguard/internal/migration/domain/model"
	"refguard/internal/migration/domain/repository"
	"refguard/internal/shared/errors"
	"refguard/internal/shared/eventbus"
	"refguard/internal/shared/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeCollections is an in-memory document store implementing CollectionAdmin.
type fakeCollections struct {
	mu           sync.Mutex
	data         map[string][]repository.RawDocument
	pagesScanned int
	diffsApplied int

	failCopy    error
	copyStarted chan struct{}
	copyBlock   chan struct{}
	failDiffFor map[interface{}]error
	skipDiffs   bool
}

func newFakeCollections() *fakeCollections {
	return &fakeCollections{data: map[string][]repository.RawDocument{}}
}

func (f *fakeCollections) seed(collection string, n int, withOldField bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := 0; i < n; i++ {
		doc := repository.RawDocument{"_id": fmt.Sprintf("%s-%d", collection, i), "payload": i}
		if withOldField {
			doc["step_key"] = fmt.Sprintf("key-%d", i)
		}
		f.data[collection] = append(f.data[collection], doc)
	}
}

func (f *fakeCollections) CountDocuments(ctx context.Context, collection string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return int64(len(f.data[collection])), nil
}

func (f *fakeCollections) CountFieldPresent(ctx context.Context, collection, field string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, doc := range f.data[collection] {
		if _, ok := doc[field]; ok {
			n++
		}
	}
	return n, nil
}

func (f *fakeCollections) SampleFields(ctx context.Context, collection string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	docs := f.data[collection]
	if len(docs) == 0 {
		return nil, nil
	}
	fields := make([]string, 0, len(docs[0]))
	for k := range docs[0] {
		fields = append(fields, k)
	}
	return fields, nil
}

func (f *fakeCollections) CopyCollection(ctx context.Context, source, dest string) error {
	if f.copyStarted != nil {
		close(f.copyStarted)
	}
	if f.copyBlock != nil {
		<-f.copyBlock
	}
	if f.failCopy != nil {
		return f.failCopy
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, exists := f.data[dest]; exists {
		return fmt.Errorf("destination collection %s already exists", dest)
	}
	for _, doc := range f.data[source] {
		clone := repository.RawDocument{}
		for k, v := range doc {
			clone[k] = v
		}
		f.data[dest] = append(f.data[dest], clone)
	}
	return nil
}

func (f *fakeCollections) ScanPage(ctx context.Context, collection string, skip, limit int64) ([]repository.RawDocument, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	docs := f.data[collection]
	if skip >= int64(len(docs)) {
		return nil, nil
	}
	f.pagesScanned++
	end := skip + limit
	if end > int64(len(docs)) {
		end = int64(len(docs))
	}
	page := make([]repository.RawDocument, 0, end-skip)
	for _, doc := range docs[skip:end] {
		clone := repository.RawDocument{}
		for k, v := range doc {
			clone[k] = v
		}
		page = append(page, clone)
	}
	return page, nil
}

func (f *fakeCollections) ApplyDiff(ctx context.Context, collection string, docID interface{}, diff repository.DocumentDiff) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failDiffFor[docID]; err != nil {
		return err
	}
	f.diffsApplied++
	if f.skipDiffs {
		return nil
	}
	for _, doc := range f.data[collection] {
		if doc["_id"] == docID {
			for k, v := range diff.Set {
				doc[k] = v
			}
			for _, k := range diff.Unset {
				delete(doc, k)
			}
			return nil
		}
	}
	return stderrors.New("document not found")
}

// fakeIndexes implements IndexManager in memory.
type fakeIndexes struct {
	mu       sync.Mutex
	existing map[string][]repository.IndexInfo
	conflict bool
	dropped  []string
}

func newFakeIndexes() *fakeIndexes {
	return &fakeIndexes{existing: map[string][]repository.IndexInfo{}}
}

func (f *fakeIndexes) EnsureIndex(ctx context.Context, collection string, keys []model.IndexKey, unique bool, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.conflict && unique {
		return errors.NewIndexConflictError("duplicate key on " + name)
	}
	fields := make([]string, len(keys))
	for i, k := range keys {
		fields[i] = k.Field
	}
	f.existing[collection] = append(f.existing[collection], repository.IndexInfo{Name: name, Fields: fields, Unique: unique})
	return nil
}

func (f *fakeIndexes) DropIndex(ctx context.Context, collection, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dropped = append(f.dropped, name)
	kept := f.existing[collection][:0]
	for _, idx := range f.existing[collection] {
		if idx.Name != name {
			kept = append(kept, idx)
		}
	}
	f.existing[collection] = kept
	return nil
}

func (f *fakeIndexes) ListIndexes(ctx context.Context, collection string) ([]repository.IndexInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]repository.IndexInfo{}, f.existing[collection]...), nil
}

// fakeRecords implements RecordStore in memory.
type fakeRecords struct {
	mu    sync.Mutex
	saved []*model.MigrationRecord
}

func (f *fakeRecords) Save(ctx context.Context, record *model.MigrationRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saved = append(f.saved, record)
	return nil
}

func (f *fakeRecords) Latest(ctx context.Context, collection string) (*model.MigrationRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.saved) - 1; i >= 0; i-- {
		if f.saved[i].SourceCollection == collection {
			return f.saved[i], nil
		}
	}
	return nil, errors.NewNotFoundError("migration record")
}

func stepsRequest() MigrationRequest {
	return MigrationRequest{
		Collection:        "steps",
		OldIdentityField:  "step_key",
		NewIdentityField:  "step_id",
		NewReferenceField: "linked_step_ids",
		BatchSize:         100,
	}
}

func newTestMigrator(cols *fakeCollections, idx *fakeIndexes, recs *fakeRecords) *Migrator {
	return NewMigrator(cols, idx, recs, eventbus.NewEventBus(nil), logger.NewLogger())
}

func TestRunMigrates250DocumentsInThreeBatches(t *testing.T) {
	cols := newFakeCollections()
	cols.seed("steps", 250, true)
	idx := newFakeIndexes()
	idx.existing["steps"] = []repository.IndexInfo{
		{Name: "_id_", Fields: []string{"_id"}},
		{Name: "uniq_step_key", Fields: []string{"step_key"}, Unique: true},
	}
	recs := &fakeRecords{}

	record, err := newTestMigrator(cols, idx, recs).Run(context.Background(), stepsRequest())
	require.NoError(t, err)

	assert.Equal(t, model.OutcomeSuccess, record.Outcome)
	assert.True(t, record.ValidationPassed)
	assert.Equal(t, int64(250), record.TotalDocuments)
	assert.Equal(t, int64(250), record.MigratedCount)
	assert.Equal(t, int64(0), record.ErrorCount)
	assert.Equal(t, 3, cols.pagesScanned)

	// Every document carries the new fields, none carries the old one.
	withNew, _ := cols.CountFieldPresent(context.Background(), "steps", "step_id")
	withRef, _ := cols.CountFieldPresent(context.Background(), "steps", "linked_step_ids")
	withOld, _ := cols.CountFieldPresent(context.Background(), "steps", "step_key")
	assert.Equal(t, int64(250), withNew)
	assert.Equal(t, int64(250), withRef)
	assert.Equal(t, int64(0), withOld)

	// Backup holds 250 untouched originals.
	backupCount, _ := cols.CountDocuments(context.Background(), record.BackupCollection)
	assert.Equal(t, int64(250), backupCount)
	backupWithOld, _ := cols.CountFieldPresent(context.Background(), record.BackupCollection, "step_key")
	assert.Equal(t, int64(250), backupWithOld)

	// Old unique index dropped, new index set created.
	assert.Contains(t, record.OldIndexNames, "uniq_step_key")
	require.Len(t, record.NewIndexSpecs, 2)
	assert.True(t, record.NewIndexSpecs[0].Unique)
	assert.False(t, record.NewIndexSpecs[1].Unique)
}

func TestRunIsIdempotent(t *testing.T) {
	cols := newFakeCollections()
	cols.seed("steps", 42, true)
	m := newTestMigrator(cols, newFakeIndexes(), &fakeRecords{})

	first, err := m.Run(context.Background(), stepsRequest())
	require.NoError(t, err)
	require.Equal(t, int64(42), first.MigratedCount)

	applied := cols.diffsApplied
	second, err := m.Run(context.Background(), stepsRequest())
	require.NoError(t, err)

	assert.Equal(t, int64(0), second.MigratedCount, "second run must perform zero writes")
	assert.Equal(t, applied, cols.diffsApplied)
	assert.Equal(t, model.OutcomeSuccess, second.Outcome)

	// Back-to-back runs land within the same second; each must still get
	// its own backup, with the first one intact.
	assert.NotEqual(t, first.BackupCollection, second.BackupCollection)
	firstBackup, _ := cols.CountDocuments(context.Background(), first.BackupCollection)
	assert.Equal(t, int64(42), firstBackup)
}

func TestRunAbortsWhenBackupFails(t *testing.T) {
	cols := newFakeCollections()
	cols.seed("steps", 10, true)
	cols.failCopy = stderrors.New("disk full")

	record, err := newTestMigrator(cols, newFakeIndexes(), &fakeRecords{}).Run(context.Background(), stepsRequest())
	require.Error(t, err)
	assert.True(t, errors.IsMigrationAbort(err))
	assert.Equal(t, model.OutcomeAborted, record.Outcome)

	// Source untouched: every document still carries the old field only.
	withOld, _ := cols.CountFieldPresent(context.Background(), "steps", "step_key")
	withNew, _ := cols.CountFieldPresent(context.Background(), "steps", "step_id")
	assert.Equal(t, int64(10), withOld)
	assert.Equal(t, int64(0), withNew)
	assert.Equal(t, 0, cols.diffsApplied)
}

func TestRunCountsPerDocumentFailuresWithoutAborting(t *testing.T) {
	cols := newFakeCollections()
	cols.seed("steps", 10, true)
	cols.failDiffFor = map[interface{}]error{
		"steps-3": stderrors.New("write conflict"),
		"steps-7": stderrors.New("write conflict"),
	}

	record, err := newTestMigrator(cols, newFakeIndexes(), &fakeRecords{}).Run(context.Background(), stepsRequest())
	require.Error(t, err)

	var appErr *errors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, errors.ErrorTypeMigrationValidationFailed, appErr.Type)

	assert.Equal(t, int64(8), record.MigratedCount)
	assert.Equal(t, int64(2), record.ErrorCount)
	assert.False(t, record.ValidationPassed)
}

func TestRunReportsIndexConflict(t *testing.T) {
	cols := newFakeCollections()
	cols.seed("steps", 5, true)
	idx := newFakeIndexes()
	idx.conflict = true

	record, err := newTestMigrator(cols, idx, &fakeRecords{}).Run(context.Background(), stepsRequest())
	require.Error(t, err)
	assert.True(t, errors.IsIndexConflict(err))
	assert.False(t, record.ValidationPassed)

	// Validation never ran, so the record must not claim a validation
	// verdict.
	assert.Equal(t, model.OutcomeAborted, record.Outcome)
}

func TestRunValidationFailureRetainsBackup(t *testing.T) {
	cols := newFakeCollections()
	cols.seed("steps", 5, true)
	cols.skipDiffs = true // writes report success but change nothing

	record, err := newTestMigrator(cols, newFakeIndexes(), &fakeRecords{}).Run(context.Background(), stepsRequest())
	require.Error(t, err)

	var appErr *errors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, errors.ErrorTypeMigrationValidationFailed, appErr.Type)
	assert.Equal(t, model.OutcomeValidationFailed, record.Outcome)

	backupCount, _ := cols.CountDocuments(context.Background(), record.BackupCollection)
	assert.Equal(t, int64(5), backupCount)
}

func TestRunRefusesConcurrentRunOnSameCollection(t *testing.T) {
	cols := newFakeCollections()
	cols.seed("steps", 5, true)
	cols.copyStarted = make(chan struct{})
	cols.copyBlock = make(chan struct{})

	m := newTestMigrator(cols, newFakeIndexes(), &fakeRecords{})

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = m.Run(context.Background(), stepsRequest())
	}()

	<-cols.copyStarted
	_, err := m.Run(context.Background(), stepsRequest())
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrMigrationInProgress)

	close(cols.copyBlock)
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("first run did not finish")
	}
}

func TestRunValidatesRequest(t *testing.T) {
	m := newTestMigrator(newFakeCollections(), newFakeIndexes(), &fakeRecords{})

	cases := []MigrationRequest{
		{},
		{Collection: "steps"},
		{Collection: "steps", OldIdentityField: "step_key"},
		{Collection: "steps", OldIdentityField: "step_key", NewIdentityField: "step_key", NewReferenceField: "r"},
		{Collection: "steps", OldIdentityField: "step_key", NewIdentityField: "step_id", NewReferenceField: "r", BatchSize: -1},
	}
	for i, req := range cases {
		_, err := m.Run(context.Background(), req)
		require.Error(t, err, "case %d", i)
		assert.True(t, errors.IsInvalidInput(err), "case %d", i)
	}
}

func TestLatestRecord(t *testing.T) {
	recs := &fakeRecords{}
	cols := newFakeCollections()
	cols.seed("steps", 1, true)
	m := newTestMigrator(cols, newFakeIndexes(), recs)

	record, err := m.Run(context.Background(), stepsRequest())
	require.NoError(t, err)

	latest, err := m.LatestRecord(context.Background(), "steps")
	require.NoError(t, err)
	assert.Equal(t, record.ID, latest.ID)

	_, err = m.LatestRecord(context.Background(), "other")
	assert.True(t, errors.IsNotFound(err))
}

func TestComputeDocumentDiff(t *testing.T) {
	t.Run("legacy document gets full diff", func(t *testing.T) {
		diff := ComputeDocumentDiff(repository.RawDocument{"_id": 1, "step_key": "k"}, "step_key", "step_id", "linked_step_ids")
		assert.Contains(t, diff.Set, "step_id")
		assert.Contains(t, diff.Set, "linked_step_ids")
		assert.Equal(t, []string{"step_key"}, diff.Unset)
	})

	t.Run("conformant document yields zero diff", func(t *testing.T) {
		diff := ComputeDocumentDiff(repository.RawDocument{
			"_id": 1, "step_id": "x", "linked_step_ids": []string{},
		}, "step_key", "step_id", "linked_step_ids")
		assert.True(t, diff.IsZero())
	})

	t.Run("partially migrated document gets partial diff", func(t *testing.T) {
		diff := ComputeDocumentDiff(repository.RawDocument{
			"_id": 1, "step_id": "x", "step_key": "k",
		}, "step_key", "step_id", "linked_step_ids")
		assert.NotContains(t, diff.Set, "step_id")
		assert.Contains(t, diff.Set, "linked_step_ids")
		assert.Equal(t, []string{"step_key"}, diff.Unset)
	})
}
