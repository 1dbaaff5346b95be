package usecase

import (
	"context"
	"fmt"
	"strings"
	"sync"

	integritymodel "refguard/internal/integrity/domain/model"
	"refguard/internal/migration/domain/model"
	"refguard/internal/migration/domain/repository"
	"refguard/internal/shared/errors"
	"refguard/internal/shared/eventbus"
	"refguard/internal/shared/logger"
)

const defaultBatchSize = 100

// MigrationRequest carries the operator parameters for one run.
type MigrationRequest struct {
	Collection        string `json:"collection"`
	OldIdentityField  string `json:"oldIdentityField"`
	NewIdentityField  string `json:"newIdentityField"`
	NewReferenceField string `json:"newReferenceField"`
	BatchSize         int64  `json:"batchSize"`
}

// Validate rejects structurally incomplete requests before any stage runs.
func (r *MigrationRequest) Validate() error {
	if r.Collection == "" {
		return errors.NewInvalidInputError("collection is required")
	}
	if r.OldIdentityField == "" {
		return errors.NewInvalidInputError("old identity field is required")
	}
	if r.NewIdentityField == "" {
		return errors.NewInvalidInputError("new identity field is required")
	}
	if r.NewIdentityField == r.OldIdentityField {
		return errors.NewInvalidInputError("new identity field must differ from old identity field")
	}
	if r.NewReferenceField == "" {
		return errors.NewInvalidInputError("new reference field is required")
	}
	if r.BatchSize < 0 {
		return errors.NewInvalidInputError("batch size must be positive")
	}
	return nil
}

// MigratorInterface is the operator boundary for composite-key migrations.
type MigratorInterface interface {
	Run(ctx context.Context, req MigrationRequest) (*model.MigrationRecord, error)
	LatestRecord(ctx context.Context, collection string) (*model.MigrationRecord, error)
}

// Migrator rewrites a collection's identity scheme through strictly
// sequential stages, each a barrier for the next:
// Analyze, Backup, Rewrite, ReindexDrop, ReindexCreate, Validate, Report.
type Migrator struct {
	collections repository.CollectionAdmin
	indexes     repository.IndexManager
	records     repository.RecordStore
	eventBus    eventbus.EventBusInterface
	logger      logger.Logger

	// runLocks guards per-collection exclusivity: only one run may be active
	// against a given collection at a time.
	mu       sync.Mutex
	runLocks map[string]struct{}
}

// NewMigrator creates a migrator over the given storage ports.
func NewMigrator(
	collections repository.CollectionAdmin,
	indexes repository.IndexManager,
	records repository.RecordStore,
	bus eventbus.EventBusInterface,
	log logger.Logger,
) *Migrator {
	return &Migrator{
		collections: collections,
		indexes:     indexes,
		records:     records,
		eventBus:    bus,
		logger:      log.WithComponent("composite-key-migrator"),
		runLocks:    make(map[string]struct{}),
	}
}

// Run executes one migration. The returned record is durable once
// CompletedAt is set; on abort no source data was touched and the run is
// safe to retry.
func (m *Migrator) Run(ctx context.Context, req MigrationRequest) (*model.MigrationRecord, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if req.BatchSize == 0 {
		req.BatchSize = defaultBatchSize
	}

	if !m.acquire(req.Collection) {
		return nil, errors.NewConflictError(
			fmt.Sprintf("migration already running for collection %q", req.Collection)).
			WithCause(errors.ErrMigrationInProgress)
	}
	defer m.release(req.Collection)

	record := model.NewMigrationRecord(req.Collection)
	log := m.logger.WithFields(map[string]interface{}{
		"migrationID": record.ID,
		"collection":  req.Collection,
	})
	m.publish(ctx, eventbus.EventTypeMigrationStarted, record)

	// Analyze
	total, err := m.analyze(ctx, req, record, log)
	if err != nil {
		record.Abort()
		m.report(ctx, record, log)
		return record, err
	}
	record.TotalDocuments = total

	// Backup: any failure aborts before the source collection is touched.
	if err := m.backup(ctx, req, record, log); err != nil {
		record.Abort()
		m.report(ctx, record, log)
		return record, errors.NewMigrationAbortError("backup stage failed, source untouched").
			WithCause(err).
			WithDetail("backupCollection", record.BackupCollection)
	}

	// Rewrite: per-document failures are counted, never fatal. A failed scan
	// stops the run before validation, so the outcome is an abort rather
	// than a validation verdict that never happened.
	if err := m.rewrite(ctx, req, record, log); err != nil {
		record.Abort()
		m.report(ctx, record, log)
		return record, err
	}

	// ReindexDrop and ReindexCreate: any failure here is fatal to the run.
	if err := m.reindex(ctx, req, record, log); err != nil {
		record.Abort()
		m.report(ctx, record, log)
		return record, err
	}

	// Validate
	passed, err := m.validate(ctx, req, record, log)
	if err != nil {
		record.Abort()
		m.report(ctx, record, log)
		return record, err
	}

	record.Complete(passed)
	m.report(ctx, record, log)

	switch record.Outcome {
	case model.OutcomeValidationFailed:
		return record, errors.NewMigrationValidationError("post-migration validation failed, backup retained").
			WithDetail("backupCollection", record.BackupCollection)
	case model.OutcomePartial:
		return record, errors.NewMigrationPartialError(
			fmt.Sprintf("%d documents failed to rewrite", record.ErrorCount))
	default:
		return record, nil
	}
}

// LatestRecord returns the most recent record for a collection.
func (m *Migrator) LatestRecord(ctx context.Context, collection string) (*model.MigrationRecord, error) {
	return m.records.Latest(ctx, collection)
}

func (m *Migrator) acquire(collection string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, held := m.runLocks[collection]; held {
		return false
	}
	m.runLocks[collection] = struct{}{}
	return true
}

func (m *Migrator) release(collection string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.runLocks, collection)
}

// analyze counts documents and samples one for a field-presence diagnostic.
// The sample does not gate progress.
func (m *Migrator) analyze(ctx context.Context, req MigrationRequest, record *model.MigrationRecord, log logger.Logger) (int64, error) {
	total, err := m.collections.CountDocuments(ctx, req.Collection)
	if err != nil {
		return 0, errors.NewInfrastructureError("failed to count source documents").WithCause(err)
	}

	fields, err := m.collections.SampleFields(ctx, req.Collection)
	if err != nil {
		log.Warn("Could not sample document for field diagnostics", "error", err)
	} else {
		log.Info("Analyze complete",
			"totalDocuments", total,
			"sampleFields", strings.Join(fields, ","),
			"hasOldField", contains(fields, req.OldIdentityField),
			"hasNewField", contains(fields, req.NewIdentityField))
	}
	return total, nil
}

// backup copies the entire collection verbatim into the timestamp-named
// backup collection and verifies the copy is complete.
func (m *Migrator) backup(ctx context.Context, req MigrationRequest, record *model.MigrationRecord, log logger.Logger) error {
	if err := m.collections.CopyCollection(ctx, req.Collection, record.BackupCollection); err != nil {
		log.Error("Backup copy failed", "backupCollection", record.BackupCollection, "error", err)
		return fmt.Errorf("%w: %v", errors.ErrBackupFailed, err)
	}

	backupCount, err := m.collections.CountDocuments(ctx, record.BackupCollection)
	if err != nil {
		return fmt.Errorf("%w: could not verify backup: %v", errors.ErrBackupFailed, err)
	}
	if backupCount != record.TotalDocuments {
		return fmt.Errorf("%w: backup holds %d of %d documents",
			errors.ErrBackupFailed, backupCount, record.TotalDocuments)
	}

	log.Info("Backup complete", "backupCollection", record.BackupCollection, "documents", backupCount)
	return nil
}

// rewrite processes documents in fixed-size pages. Each page is scanned and
// every nonconformant document receives its minimal diff as a self-contained
// single-document update.
func (m *Migrator) rewrite(ctx context.Context, req MigrationRequest, record *model.MigrationRecord, log logger.Logger) error {
	var skip int64
	page := 0

	for {
		docs, err := m.collections.ScanPage(ctx, req.Collection, skip, req.BatchSize)
		if err != nil {
			return errors.NewInfrastructureError("paged scan failed").WithCause(err).
				WithDetail("skip", skip)
		}
		if len(docs) == 0 {
			break
		}
		page++

		for _, doc := range docs {
			diff := ComputeDocumentDiff(doc, req.OldIdentityField, req.NewIdentityField, req.NewReferenceField)
			if diff.IsZero() {
				continue
			}
			if err := m.collections.ApplyDiff(ctx, req.Collection, doc["_id"], diff); err != nil {
				record.ErrorCount++
				log.Error("Document rewrite failed", "docID", doc["_id"], "error", err)
				continue
			}
			record.MigratedCount++
		}

		log.Info("Rewrite progress",
			"page", page,
			"migrated", record.MigratedCount,
			"errors", record.ErrorCount)

		if int64(len(docs)) < req.BatchSize {
			break
		}
		skip += req.BatchSize
	}

	return nil
}

// reindex drops indexes encoding the old identity scheme and creates the new
// index set. Index creation failures, including uniqueness collisions,
// surface loudly with no automatic conflict resolution.
func (m *Migrator) reindex(ctx context.Context, req MigrationRequest, record *model.MigrationRecord, log logger.Logger) error {
	existing, err := m.indexes.ListIndexes(ctx, req.Collection)
	if err != nil {
		return errors.NewInfrastructureError("failed to list indexes").WithCause(err)
	}

	for _, idx := range existing {
		if !encodesOldScheme(idx, req.OldIdentityField) {
			continue
		}
		if err := m.indexes.DropIndex(ctx, req.Collection, idx.Name); err != nil {
			return errors.NewInfrastructureError(
				fmt.Sprintf("failed to drop old index %q", idx.Name)).WithCause(err)
		}
		record.OldIndexNames = append(record.OldIndexNames, idx.Name)
		log.Info("Dropped old index", "index", idx.Name)
	}

	specs := []model.IndexSpec{
		{
			Name:   "uniq_" + req.NewIdentityField,
			Keys:   []model.IndexKey{{Field: req.NewIdentityField, Direction: 1}},
			Unique: true,
		},
		{
			Name:   "idx_" + req.NewReferenceField,
			Keys:   []model.IndexKey{{Field: req.NewReferenceField, Direction: 1}},
			Unique: false,
		},
	}

	for _, spec := range specs {
		if err := m.indexes.EnsureIndex(ctx, req.Collection, spec.Keys, spec.Unique, spec.Name); err != nil {
			if errors.IsIndexConflict(err) {
				return errors.NewIndexConflictError(
					fmt.Sprintf("cannot create unique index %q: colliding values need manual intervention", spec.Name)).
					WithCause(err)
			}
			return errors.NewInfrastructureError(
				fmt.Sprintf("failed to create index %q", spec.Name)).WithCause(err)
		}
		record.NewIndexSpecs = append(record.NewIndexSpecs, spec)
		log.Info("Created index", "index", spec.Name, "unique", spec.Unique)
	}

	return nil
}

// validate recomputes counts and field presence. The run succeeds only if
// the document count is unchanged, every document carries the new identity
// and reference fields, and none carries the old identity field.
func (m *Migrator) validate(ctx context.Context, req MigrationRequest, record *model.MigrationRecord, log logger.Logger) (bool, error) {
	count, err := m.collections.CountDocuments(ctx, req.Collection)
	if err != nil {
		return false, errors.NewInfrastructureError("failed to recount documents").WithCause(err)
	}
	withNew, err := m.collections.CountFieldPresent(ctx, req.Collection, req.NewIdentityField)
	if err != nil {
		return false, errors.NewInfrastructureError("failed to count new identity field").WithCause(err)
	}
	withRef, err := m.collections.CountFieldPresent(ctx, req.Collection, req.NewReferenceField)
	if err != nil {
		return false, errors.NewInfrastructureError("failed to count new reference field").WithCause(err)
	}
	withOld, err := m.collections.CountFieldPresent(ctx, req.Collection, req.OldIdentityField)
	if err != nil {
		return false, errors.NewInfrastructureError("failed to count old identity field").WithCause(err)
	}

	passed := count == record.TotalDocuments && withNew == count && withRef == count && withOld == 0
	if !passed {
		log.Error("Validation failed",
			"expectedCount", record.TotalDocuments,
			"actualCount", count,
			"withNewIdentity", withNew,
			"withNewReference", withRef,
			"withOldIdentity", withOld)
	} else {
		log.Info("Validation passed", "documents", count)
	}
	return passed, nil
}

// report persists the record and emits the terminal event. Persistence
// failure is logged, not fatal: the run's outcome already happened.
func (m *Migrator) report(ctx context.Context, record *model.MigrationRecord, log logger.Logger) {
	if err := m.records.Save(ctx, record); err != nil {
		log.Error("Failed to persist migration record", "error", err)
	}

	eventType := eventbus.EventTypeMigrationCompleted
	if record.Outcome == model.OutcomeAborted || record.Outcome == model.OutcomeValidationFailed {
		eventType = eventbus.EventTypeMigrationFailed
	}
	m.publish(ctx, eventType, record)

	log.Info("Migration run finished",
		"outcome", string(record.Outcome),
		"total", record.TotalDocuments,
		"migrated", record.MigratedCount,
		"errors", record.ErrorCount,
		"validationPassed", record.ValidationPassed,
		"backupCollection", record.BackupCollection)
}

func (m *Migrator) publish(ctx context.Context, eventType string, record *model.MigrationRecord) {
	if m.eventBus == nil {
		return
	}
	m.eventBus.PublishAndForget(context.WithoutCancel(ctx), eventbus.NewBasicEventWithSource(eventType, map[string]interface{}{
		"migrationId":      record.ID,
		"sourceCollection": record.SourceCollection,
		"backupCollection": record.BackupCollection,
		"outcome":          string(record.Outcome),
		"migratedCount":    record.MigratedCount,
		"errorCount":       record.ErrorCount,
	}, "composite-key-migrator"))
}

// ComputeDocumentDiff derives the minimal write that makes one document
// conform to the new identity shape: a fresh identity value when the new
// identity field is absent, an empty reference array when the reference
// field is absent, and removal of the old identity field when still present.
// Already-conformant documents yield a zero diff.
func ComputeDocumentDiff(doc repository.RawDocument, oldField, newField, refField string) repository.DocumentDiff {
	diff := repository.DocumentDiff{Set: map[string]interface{}{}}

	if _, ok := doc[newField]; !ok {
		diff.Set[newField] = integritymodel.NewEntityID().String()
	}
	if _, ok := doc[refField]; !ok {
		diff.Set[refField] = []string{}
	}
	if _, ok := doc[oldField]; ok {
		diff.Unset = append(diff.Unset, oldField)
	}

	if len(diff.Set) == 0 {
		diff.Set = nil
	}
	return diff
}

func encodesOldScheme(idx repository.IndexInfo, oldField string) bool {
	if idx.Name == "_id_" {
		return false
	}
	if strings.Contains(idx.Name, oldField) {
		return true
	}
	if !idx.Unique {
		return false
	}
	for _, f := range idx.Fields {
		if f == oldField {
			return true
		}
	}
	return false
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
