package mongodb

import (
	"context"
	"errors"
	"testing"

	"refguard/internal/integrity/domain/model"
	sharederrors "refguard/internal/shared/errors"
	"refguard/internal/shared/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
)

// MockReferenceCounter implements ReferenceCounter for tests
type MockReferenceCounter struct {
	mock.Mock
}

func (m *MockReferenceCounter) CountReferences(ctx context.Context, collection string, filter interface{}) (int64, error) {
	args := m.Called(ctx, collection, filter)
	return args.Get(0).(int64), args.Error(1)
}

func singleRule() model.ReferenceRule {
	return model.ReferenceRule{
		ParentType:      "step",
		ChildCollection: "runs",
		ChildFieldPath:  "step_id",
		Cardinality:     model.CardinalitySingle,
	}
}

func TestProbeReportsReferences(t *testing.T) {
	counter := new(MockReferenceCounter)
	parentID := model.NewEntityID()
	counter.On("CountReferences", mock.Anything, "runs", bson.M{"step_id": parentID.String()}).
		Return(int64(3), nil)

	prober := NewReferenceProber(counter, logger.NewLogger())
	result, err := prober.Probe(context.Background(), singleRule(), parentID)

	require.NoError(t, err)
	assert.True(t, result.HasReferences)
	assert.Equal(t, int64(3), result.Count)
	counter.AssertExpectations(t)
}

func TestProbeReportsNoReferences(t *testing.T) {
	counter := new(MockReferenceCounter)
	counter.On("CountReferences", mock.Anything, "runs", mock.Anything).Return(int64(0), nil)

	prober := NewReferenceProber(counter, logger.NewLogger())
	result, err := prober.Probe(context.Background(), singleRule(), model.NewEntityID())

	require.NoError(t, err)
	assert.False(t, result.HasReferences)
	assert.Equal(t, int64(0), result.Count)
}

func TestProbeArrayCardinalityUsesMembershipFilter(t *testing.T) {
	rule := model.ReferenceRule{
		ParentType:      "step",
		ChildCollection: "pipelines",
		ChildFieldPath:  "step_ids",
		Cardinality:     model.CardinalityArray,
	}
	parentID := model.NewEntityID()

	counter := new(MockReferenceCounter)
	counter.On("CountReferences", mock.Anything, "pipelines", bson.M{"step_ids": parentID.String()}).
		Return(int64(1), nil)

	prober := NewReferenceProber(counter, logger.NewLogger())
	result, err := prober.Probe(context.Background(), rule, parentID)

	require.NoError(t, err)
	assert.True(t, result.HasReferences)
	counter.AssertExpectations(t)
}

func TestProbeStorageErrorIsNeverSilentlySafe(t *testing.T) {
	counter := new(MockReferenceCounter)
	counter.On("CountReferences", mock.Anything, "runs", mock.Anything).
		Return(int64(0), errors.New("server selection timeout"))

	prober := NewReferenceProber(counter, logger.NewLogger())
	_, err := prober.Probe(context.Background(), singleRule(), model.NewEntityID())

	require.Error(t, err)
	assert.ErrorIs(t, err, sharederrors.ErrProbeFailed)
}
