package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "mktsummary/internal/errors"
	"mktsummary/pkg/contracts/domain"
)

func TestBatchStore_CRUD(t *testing.T) {
	s := NewBatchStore()
	require.NoError(t, s.Create(&domain.Batch{ID: "a", Status: domain.BatchQueued}))
	assert.ErrorIs(t, s.Create(&domain.Batch{ID: "a"}), ErrBatchExists)

	b, err := s.Get("a")
	require.NoError(t, err)
	assert.Equal(t, domain.BatchQueued, b.Status)
	assert.NotNil(t, b.Outcomes)

	// copies are detached from the store
	b.Status = domain.BatchFailed
	again, _ := s.Get("a")
	assert.Equal(t, domain.BatchQueued, again.Status)

	updated, err := s.Update("a", func(b *domain.Batch) {
		b.Outcomes = append(b.Outcomes, domain.Outcome{Status: domain.OutcomeSuccess})
	})
	require.NoError(t, err)
	assert.Len(t, updated.Outcomes, 1)

	_, err = s.Update("missing", func(*domain.Batch) {})
	assert.ErrorIs(t, err, ErrBatchNotFound)

	require.NoError(t, s.Delete("a"))
	_, err = s.Get("a")
	assert.ErrorIs(t, err, ErrBatchNotFound)
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeNotFound))
}

func TestBatchStore_ListAndCleanup(t *testing.T) {
	s := NewBatchStore()
	now := time.Now()
	require.NoError(t, s.Create(&domain.Batch{ID: "old", Status: domain.BatchCompleted, CreatedAt: now.Add(-48 * time.Hour)}))
	require.NoError(t, s.Create(&domain.Batch{ID: "mid", Status: domain.BatchRunning, CreatedAt: now.Add(-time.Hour)}))
	require.NoError(t, s.Create(&domain.Batch{ID: "new", Status: domain.BatchCompleted, CreatedAt: now}))

	all := s.List(BatchFilter{})
	require.Len(t, all, 3)
	assert.Equal(t, []string{"new", "mid", "old"}, []string{all[0].ID, all[1].ID, all[2].ID})

	done := s.List(BatchFilter{Status: domain.BatchCompleted, Limit: 1})
	require.Len(t, done, 1)
	assert.Equal(t, "new", done[0].ID)

	assert.Len(t, s.List(BatchFilter{Since: now.Add(-2 * time.Hour)}), 2)

	assert.Equal(t, 1, s.CleanupOld(24*time.Hour))
	assert.Equal(t, map[string]int{"total": 2, "running": 1, "completed": 1}, s.Stats())
}
