package ports

import (
	"context"
	"testing"
	"time"

	"github.com/hirokts/enikki/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunDiaryStoreContract runs a suite of tests to verify that a DiaryStore implementation
// adheres to the defined interface contract.
func RunDiaryStoreContract(t *testing.T, store DiaryStore) {
	ctx := context.Background()
	runID := "contract-test-run-" + time.Now().Format("20060102150405")
	created := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)

	completed := func(id string, at time.Time) domain.Document {
		url := "https://cdn.example.com/diaries/" + id + ".png"
		score := 0.85
		return domain.Document{
			ID:           id,
			Status:       domain.StatusCompleted,
			Date:         "2024-01-01",
			Keywords:     []string{"公園", "すべり台", "友だち", "夕焼け"},
			DiaryText:    "今日は公園で遊びました。",
			ImageURL:     &url,
			RetryCount:   1,
			QualityScore: &score,
			CreatedAt:    at,
			UpdatedAt:    at.Add(time.Minute),
		}
	}

	t.Run("Save and Load", func(t *testing.T) {
		// 1. Create a document
		doc := completed(runID, created)

		// 2. Save
		err := store.Save(ctx, runID, doc)
		require.NoError(t, err, "Save should not return error")

		// 3. Load
		loaded, err := store.Load(ctx, runID)
		require.NoError(t, err, "Load should not return error")
		assert.Equal(t, doc.Status, loaded.Status)
		assert.Equal(t, doc.Keywords, loaded.Keywords)
		assert.Equal(t, doc.DiaryText, loaded.DiaryText)
		require.NotNil(t, loaded.ImageURL)
		assert.Equal(t, *doc.ImageURL, *loaded.ImageURL)
		assert.Nil(t, loaded.Error)
		require.NotNil(t, loaded.QualityScore)
		assert.InDelta(t, 0.85, *loaded.QualityScore, 1e-9)
		assert.Equal(t, 1, loaded.RetryCount)
		assert.True(t, doc.CreatedAt.Equal(loaded.CreatedAt), "createdAt should survive a round trip")
		assert.True(t, doc.UpdatedAt.Equal(loaded.UpdatedAt), "updatedAt should survive a round trip")
	})

	t.Run("Save is idempotent", func(t *testing.T) {
		doc := completed(runID, created)
		require.NoError(t, store.Save(ctx, runID, doc))
		first, err := store.Load(ctx, runID)
		require.NoError(t, err)

		require.NoError(t, store.Save(ctx, runID, doc))
		second, err := store.Load(ctx, runID)
		require.NoError(t, err)

		assert.Equal(t, first.Status, second.Status)
		assert.Equal(t, first.Keywords, second.Keywords)
		assert.Equal(t, first.DiaryText, second.DiaryText)
		assert.True(t, first.UpdatedAt.Equal(second.UpdatedAt))
	})

	t.Run("Overwrite status", func(t *testing.T) {
		id := runID + "-status"
		defer func() { _ = store.Delete(ctx, id) }()

		pending := domain.NewPendingDocument(id, "2024-01-02", created)
		require.NoError(t, store.Save(ctx, id, pending))

		loaded, err := store.Load(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, domain.StatusPending, loaded.Status)
		assert.Nil(t, loaded.ImageURL)
		assert.Nil(t, loaded.QualityScore)

		failed := pending.WithStatus(domain.StatusProcessing, created).Failed("boom", created.Add(time.Second))
		require.NoError(t, store.Save(ctx, id, failed))

		loaded, err = store.Load(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, domain.StatusFailed, loaded.Status)
		require.NotNil(t, loaded.Error)
		assert.Equal(t, "boom", *loaded.Error)
	})

	t.Run("Load Non-Existent", func(t *testing.T) {
		_, err := store.Load(ctx, "non-existent-"+runID)
		assert.ErrorIs(t, err, domain.ErrRunNotFound)
	})

	t.Run("Delete", func(t *testing.T) {
		// Setup
		err := store.Save(ctx, runID, completed(runID, created))
		require.NoError(t, err)

		// Delete
		err = store.Delete(ctx, runID)
		require.NoError(t, err, "Delete should not return error")

		// Verify gone
		_, err = store.Load(ctx, runID)
		assert.ErrorIs(t, err, domain.ErrRunNotFound, "Load after Delete should return ErrRunNotFound")
	})

	t.Run("List", func(t *testing.T) {
		// Setup: Create 2 runs
		id1 := runID + "-1"
		id2 := runID + "-2"
		_ = store.Save(ctx, id1, completed(id1, created))
		_ = store.Save(ctx, id2, completed(id2, created.Add(time.Hour)))

		// Ensure cleanup
		defer func() {
			_ = store.Delete(ctx, id1)
			_ = store.Delete(ctx, id2)
		}()

		// List
		runs, err := store.List(ctx)
		require.NoError(t, err)
		assert.Contains(t, runs, id1)
		assert.Contains(t, runs, id2)
	})
}
