package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAllowVerdict(t *testing.T) {
	v := Allow()
	assert.True(t, v.Allowed)
	assert.Empty(t, v.BlockingReferences)
	assert.Equal(t, "no child collection references this entity", v.Explanation())
}

func TestDenyVerdictListsEveryBlockingCollection(t *testing.T) {
	v := Deny([]BlockingReference{
		{ChildCollection: "runs", Count: 2},
		{ChildCollection: "pipelines", Count: 1},
	})
	assert.False(t, v.Allowed)
	assert.Len(t, v.BlockingReferences, 2)

	msg := v.Explanation()
	assert.Contains(t, msg, "runs(2)")
	assert.Contains(t, msg, "pipelines(1)")
}
