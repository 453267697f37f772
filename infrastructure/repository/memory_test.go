package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"portalpilot-go/domain/draft"
	"portalpilot-go/domain/script"
	"portalpilot-go/domain/step"
	"portalpilot-go/domain/target"
)

func TestMemoryTargetRepository(t *testing.T) {
	ctx := context.Background()
	seed := &target.Target{ID: "t1", InitialURL: "https://example.com"}
	repo := NewMemoryTargetRepository(seed)
	seed.InitialURL = "mutated"

	got, err := repo.FindByID(ctx, "t1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "https://example.com", got.InitialURL)

	missing, err := repo.FindByID(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)

	require.NoError(t, repo.Upsert(ctx, &target.Target{ID: "t2"}))
	all, err := repo.FindAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	steps := []step.Step{{Order: 1, ActionType: step.ActionClick, Parameters: step.Parameters{X: 1, Y: 2}}}
	require.NoError(t, repo.SaveScript(ctx, "t1", script.KindLogin, steps, "op"))

	sc, err := repo.FindScript(ctx, "t1", script.KindLogin)
	require.NoError(t, err)
	require.NotNil(t, sc)
	assert.Equal(t, steps, sc.Steps)

	sc.Steps[0].Order = 42
	again, _ := repo.FindScript(ctx, "t1", script.KindLogin)
	assert.Equal(t, 1, again.Steps[0].Order, "FindScript must return a copy")

	none, err := repo.FindScript(ctx, "t1", script.KindExtraction)
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestMemoryDraftStore(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryDraftStore()
	key := draft.Key{OperatorID: "op", TargetID: "t1"}

	d, err := store.Load(ctx, key)
	require.NoError(t, err)
	assert.Nil(t, d)

	steps := []step.Step{{Order: 1, ActionType: step.ActionKeyPress, Parameters: step.Parameters{Key: "Enter"}}}
	require.NoError(t, store.Save(ctx, key, steps))

	d, err = store.Load(ctx, key)
	require.NoError(t, err)
	require.NotNil(t, d)
	assert.Equal(t, steps, d.Steps)
	assert.False(t, d.UpdatedAt.IsZero())

	other, _ := store.Load(ctx, draft.Key{OperatorID: "op2", TargetID: "t1"})
	assert.Nil(t, other)

	require.NoError(t, store.Delete(ctx, key))
	require.NoError(t, store.Delete(ctx, key))
	d, _ = store.Load(ctx, key)
	assert.Nil(t, d)
}
