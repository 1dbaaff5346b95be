package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Outcome classifies a finished migration run.
type Outcome string

const (
	// OutcomeSuccess means every document migrated and validation passed.
	OutcomeSuccess Outcome = "success"
	// OutcomePartial means some documents failed to rewrite; validation may
	// still have passed for the rest.
	OutcomePartial Outcome = "partial"
	// OutcomeValidationFailed means the Validate stage ran and post-migration
	// invariants did not all hold; the backup is retained for remediation.
	OutcomeValidationFailed Outcome = "validation_failed"
	// OutcomeAborted means the run stopped before the Validate stage could
	// produce a verdict: either before touching source data (backup failure)
	// or mid-run on a fatal stage error. Any backup created is retained.
	OutcomeAborted Outcome = "aborted"
)

// IndexKey is one field of an index key spec with its sort direction.
type IndexKey struct {
	Field     string `bson:"field" json:"field"`
	Direction int    `bson:"direction" json:"direction"`
}

// IndexSpec describes one index the migration creates.
type IndexSpec struct {
	Name   string     `bson:"name" json:"name"`
	Keys   []IndexKey `bson:"keys" json:"keys"`
	Unique bool       `bson:"unique" json:"unique"`
}

// MigrationRecord describes one migration run. It is created at migration
// start, mutated only by the migrator during the run, and immutable once
// CompletedAt is set. The backup collection it names is the rollback
// mechanism and is never mutated after creation.
type MigrationRecord struct {
	ID               string      `bson:"_id" json:"id"`
	SourceCollection string      `bson:"source_collection" json:"sourceCollection"`
	BackupCollection string      `bson:"backup_collection" json:"backupCollection"`
	TotalDocuments   int64       `bson:"total_documents" json:"totalDocuments"`
	MigratedCount    int64       `bson:"migrated_count" json:"migratedCount"`
	ErrorCount       int64       `bson:"error_count" json:"errorCount"`
	OldIndexNames    []string    `bson:"old_index_names" json:"oldIndexNames"`
	NewIndexSpecs    []IndexSpec `bson:"new_index_specs" json:"newIndexSpecs"`
	StartedAt        time.Time   `bson:"started_at" json:"startedAt"`
	CompletedAt      time.Time   `bson:"completed_at,omitempty" json:"completedAt,omitempty"`
	ValidationPassed bool        `bson:"validation_passed" json:"validationPassed"`
	Outcome          Outcome     `bson:"outcome" json:"outcome"`
}

// NewMigrationRecord creates the record for a starting run.
func NewMigrationRecord(source string) *MigrationRecord {
	now := time.Now().UTC()
	id := uuid.NewString()
	return &MigrationRecord{
		ID:               id,
		SourceCollection: source,
		BackupCollection: BackupCollectionName(source, now, id),
		StartedAt:        now,
	}
}

// BackupCollectionName derives the backup collection name. The timestamp is
// for operators scanning collection lists; the run id suffix is what makes
// the name unique, so two runs started within the same second can never
// derive the same name and overwrite each other's backup.
func BackupCollectionName(source string, at time.Time, runID string) string {
	suffix := runID
	if len(suffix) > 8 {
		suffix = suffix[:8]
	}
	return fmt.Sprintf("%s_backup_%s_%s", source, at.UTC().Format("20060102150405"), suffix)
}

// Complete stamps the record and derives the outcome. After this the record
// is durable and read-only.
func (r *MigrationRecord) Complete(validationPassed bool) {
	r.CompletedAt = time.Now().UTC()
	r.ValidationPassed = validationPassed

	switch {
	case !validationPassed:
		r.Outcome = OutcomeValidationFailed
	case r.ErrorCount > 0:
		r.Outcome = OutcomePartial
	default:
		r.Outcome = OutcomeSuccess
	}
}

// Abort stamps the record for a run that stopped before the Validate stage
// produced a verdict.
func (r *MigrationRecord) Abort() {
	r.CompletedAt = time.Now().UTC()
	r.ValidationPassed = false
	r.Outcome = OutcomeAborted
}
