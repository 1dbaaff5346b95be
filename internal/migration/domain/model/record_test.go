package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMigrationRecord(t *testing.T) {
	r := NewMigrationRecord("steps")
	assert.NotEmpty(t, r.ID)
	assert.Equal(t, "steps", r.SourceCollection)
	assert.Contains(t, r.BackupCollection, "steps_backup_")
	assert.False(t, r.StartedAt.IsZero())
	assert.True(t, r.CompletedAt.IsZero())
}

func TestBackupCollectionName(t *testing.T) {
	at := time.Date(2026, 8, 28, 14, 30, 5, 0, time.UTC)
	assert.Equal(t, "steps_backup_20260828143005_a1b2c3d4",
		BackupCollectionName("steps", at, "a1b2c3d4-e5f6-7890-abcd-ef0123456789"))
	assert.Equal(t, "steps_backup_20260828143005_run7",
		BackupCollectionName("steps", at, "run7"))
}

func TestBackupCollectionNamesNeverCollide(t *testing.T) {
	// Two runs starting within the same second must not derive the same
	// backup name, or the second copy would replace the first backup.
	a := NewMigrationRecord("steps")
	b := NewMigrationRecord("steps")
	assert.NotEqual(t, a.BackupCollection, b.BackupCollection)
}

func TestCompleteDerivesOutcome(t *testing.T) {
	cases := []struct {
		name             string
		errorCount       int64
		validationPassed bool
		want             Outcome
	}{
		{"full success", 0, true, OutcomeSuccess},
		{"partial with validation ok", 3, true, OutcomePartial},
		{"validation failed", 0, false, OutcomeValidationFailed},
		{"validation failed wins over partial", 3, false, OutcomeValidationFailed},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := NewMigrationRecord("steps")
			r.ErrorCount = tc.errorCount
			r.Complete(tc.validationPassed)

			require.False(t, r.CompletedAt.IsZero())
			assert.Equal(t, tc.want, r.Outcome)
			assert.Equal(t, tc.validationPassed, r.ValidationPassed)
		})
	}
}

func TestAbort(t *testing.T) {
	r := NewMigrationRecord("steps")
	r.Abort()
	assert.Equal(t, OutcomeAborted, r.Outcome)
	assert.False(t, r.ValidationPassed)
	assert.False(t, r.CompletedAt.IsZero())
}
