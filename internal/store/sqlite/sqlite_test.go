package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"datakit/internal/schema"
	"datakit/internal/store"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(context.Background(), filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func seedProfile(t *testing.T, st *Store, source, name, gender, ageGroup string) schema.Record {
	t.Helper()
	rec, err := st.Create(context.Background(), schema.Record{
		Kind: schema.KindProfile,
		Fields: map[string]any{
			"source":   source,
			"name":     name,
			"gender":   gender,
			"ageGroup": ageGroup,
		},
	})
	require.NoError(t, err)
	return rec
}

func TestMigrations_AppliedOnOpen(t *testing.T) {
	db := openTestDB(t)

	applied, err := AppliedMigrations(context.Background(), db.Handle())
	require.NoError(t, err)
	require.Len(t, applied, len(migrations))
	for i, m := range applied {
		assert.Equal(t, migrations[i].Version, m.Version)
		assert.Equal(t, migrations[i].Name, m.Name)
		assert.False(t, m.AppliedAt.IsZero())
	}
}

func TestMigrations_Idempotent(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	// A second run must apply nothing and leave the ledger unchanged.
	require.NoError(t, RunMigrations(ctx, db.Handle()))

	applied, err := AppliedMigrations(ctx, db.Handle())
	require.NoError(t, err)
	assert.Len(t, applied, len(migrations))
}

func TestMigrations_SurviveReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "test.db")

	db, err := Open(ctx, path)
	require.NoError(t, err)
	st := db.Store(schema.KindProfile)
	rec := seedProfile(t, st, "human", "Alice", "female", "30s")
	require.NoError(t, db.Close())

	db2, err := Open(ctx, path)
	require.NoError(t, err)
	defer db2.Close()

	got, err := db2.Store(schema.KindProfile).GetByID(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, "Alice", got.String("name"))
}

func TestReset(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	st := db.Store(schema.KindProfile)
	seedProfile(t, st, "human", "Alice", "female", "30s")

	require.NoError(t, Reset(ctx, db.Handle()))

	count, err := st.Count(ctx, nil)
	require.NoError(t, err)
	assert.Zero(t, count)

	applied, err := AppliedMigrations(ctx, db.Handle())
	require.NoError(t, err)
	assert.Len(t, applied, len(migrations))
}

func TestCRUD(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	st := db.Store(schema.KindProfile)

	created := seedProfile(t, st, "human", "Alice", "female", "30s")
	assert.NotEmpty(t, created.ID)

	got, err := st.GetByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "Alice", got.String("name"))
	assert.Equal(t, "human", got.Source())

	updated, err := st.Update(ctx, created.ID, store.Patch{Fields: map[string]any{"occupation": "engineer"}})
	require.NoError(t, err)
	assert.Equal(t, "engineer", updated.String("occupation"))

	found, err := st.Delete(ctx, created.ID)
	require.NoError(t, err)
	assert.True(t, found)

	_, err = st.GetByID(ctx, created.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)

	found, err = st.Delete(ctx, created.ID)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestCreate_DuplicateID(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	st := db.Store(schema.KindProfile)

	rec := seedProfile(t, st, "human", "Alice", "female", "30s")

	_, err := st.Create(ctx, schema.Record{ID: rec.ID, Kind: schema.KindProfile, Fields: map[string]any{"source": "human"}})
	assert.ErrorIs(t, err, store.ErrConstraint)
}

func TestSteps_RoundTrip(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	st := db.Store(schema.KindQA)

	steps := schema.StepsFromMap(map[string]string{
		"cot1": "identify goal",
		"cot2": "compare products",
		"cot3": "check liquidity",
		"cot5": "confirm rate",
	})
	rec, err := st.Create(ctx, schema.Record{
		Kind: schema.KindQA,
		Fields: map[string]any{
			"source":   "human",
			"question": "Which account fits short-term savings?",
			"answer":   "A time deposit.",
		},
		Steps: steps,
	})
	require.NoError(t, err)

	got, err := st.GetByID(ctx, rec.ID)
	require.NoError(t, err)
	require.NotNil(t, got.Steps)
	assert.Equal(t, []string{"cot1", "cot2", "cot3", "cot5"}, got.Steps.Keys())
}

func TestQuery_NativeAndFallbackFilters(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	st := db.Store(schema.KindProfile)

	seedProfile(t, st, "human", "Alice Tanaka", "female", "30s")
	seedProfile(t, st, "human", "Ben Okafor", "male", "40s")
	seedProfile(t, st, "synthetic", "Cara Lindt", "female", "30s")

	// Discriminant column filter.
	humans, err := st.Query(ctx, store.Filters{"source": "human"})
	require.NoError(t, err)
	assert.Len(t, humans, 2)

	// Enum field compiles to native SQL equality; "male" must not match
	// "female".
	males, err := st.Query(ctx, store.Filters{"gender": "male"})
	require.NoError(t, err)
	require.Len(t, males, 1)
	assert.Equal(t, "Ben Okafor", males[0].String("name"))

	// Text filter is substring.
	tanakas, err := st.Query(ctx, store.Filters{"name": "tanaka"})
	require.NoError(t, err)
	assert.Len(t, tanakas, 1)

	// Range filters run through the in-memory fallback path.
	thirties, err := st.Query(ctx, store.Filters{"ageGroup": store.Range{From: "30s", To: "30s"}})
	require.NoError(t, err)
	assert.Len(t, thirties, 2)

	n, err := st.Count(ctx, store.Filters{"gender": "female", "ageGroup": "30s"})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestGetPaginated_WithSearch(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	st := db.Store(schema.KindProfile)

	seedProfile(t, st, "human", "Alice Tanaka", "female", "30s")
	seedProfile(t, st, "human", "Ben Okafor", "male", "40s")
	seedProfile(t, st, "synthetic", "Aiko Tanabe", "female", "20s")

	page, err := st.GetPaginated(ctx, store.PageOptions{
		Page:     1,
		PageSize: 10,
		Search:   "tana",
		SortBy:   "name",
	})
	require.NoError(t, err)
	assert.Equal(t, 2, page.Total)
	require.Len(t, page.Items, 2)
	assert.Equal(t, "Aiko Tanabe", page.Items[0].String("name"))
}

func TestSearchText_FTS(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	st := db.Store(schema.KindProfile)

	seedProfile(t, st, "human", "Alice Tanaka", "female", "30s")
	seedProfile(t, st, "human", "Ben Okafor", "male", "40s")

	hits, err := st.SearchText(ctx, "okafor")
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "Ben Okafor", hits[0].String("name"))

	// Prefix matching on the last term.
	hits, err = st.SearchText(ctx, "tanak")
	require.NoError(t, err)
	assert.Len(t, hits, 1)

	// Updates keep the index in sync through the triggers.
	_, err = st.Update(ctx, hits[0].ID, store.Patch{Fields: map[string]any{"name": "Renamed Person"}})
	require.NoError(t, err)

	hits, err = st.SearchText(ctx, "tanak")
	require.NoError(t, err)
	assert.Empty(t, hits)

	hits, err = st.SearchText(ctx, "renamed")
	require.NoError(t, err)
	assert.Len(t, hits, 1)
}

func TestBatchInsert(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	st := db.Store(schema.KindProfile)

	var batch []schema.Record
	for i := 0; i < 5; i++ {
		batch = append(batch, schema.Record{
			Kind:   schema.KindProfile,
			Fields: map[string]any{"source": "human", "name": "N", "gender": "other", "ageGroup": "30s"},
		})
	}
	require.NoError(t, st.BatchInsert(ctx, batch, 2))

	count, err := st.Count(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 5, count)
}

func TestBatchInsert_FailedBatchRollsBackAlone(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	st := db.Store(schema.KindProfile)

	batch := []schema.Record{
		{Kind: schema.KindProfile, ID: "a", Fields: map[string]any{"source": "human"}},
		{Kind: schema.KindProfile, ID: "b", Fields: map[string]any{"source": "human"}},
		{Kind: schema.KindProfile, ID: "c", Fields: map[string]any{"source": "human"}},
		{Kind: schema.KindProfile, ID: "b", Fields: map[string]any{"source": "human"}}, // duplicate, second batch
	}

	err := st.BatchInsert(ctx, batch, 2)
	require.ErrorIs(t, err, store.ErrConstraint)

	// First batch committed, second rolled back whole.
	count, err := st.Count(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}
