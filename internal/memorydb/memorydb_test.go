package memorydb

import (
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), FileName))
	require.NoError(t, err, "Open")
	t.Cleanup(func() { db.Close() })
	return db
}

func TestOpenClose(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), FileName)

	db1, err := Open(dbPath)
	require.NoError(t, err)
	require.NoError(t, db1.UpsertSemantic("lang", "go", 0.9, false))
	db1.Close()

	// Reopen and verify the row survived
	db2, err := Open(dbPath)
	require.NoError(t, err)
	defer db2.Close()

	rows, err := db2.SemanticTop(10)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "lang", rows[0].Key)
	assert.Equal(t, "go", rows[0].Value)
}

func TestUpsertSemanticPreservesLock(t *testing.T) {
	db := newTestDB(t)

	require.NoError(t, db.UpsertSemantic("tz", "UTC", 0.8, true))
	// Second upsert tries to unlock; the lock must stick.
	require.NoError(t, db.UpsertSemantic("tz", "CET", 0.5, false))

	rows, err := db.SemanticTop(10)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "CET", rows[0].Value, "value still updates")
	assert.True(t, rows[0].Locked, "locked row must stay locked")
}

func TestSemanticTopOrder(t *testing.T) {
	db := newTestDB(t)

	require.NoError(t, db.UpsertSemantic("a", "1", 0.8, false))
	require.NoError(t, db.UpsertSemantic("b", "2", 0.8, true))
	require.NoError(t, db.UpsertSemantic("c", "3", 0.8, false))

	rows, err := db.SemanticTop(10)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "b", rows[0].Key, "locked rows come first")
}

func TestEpisodeSearchRanking(t *testing.T) {
	db := newTestDB(t)

	base := time.Now().Unix()
	require.NoError(t, db.AddEpisode("deploy failed", "prod deploy rolled back", "prod", 0.9, base-100))
	require.NoError(t, db.AddEpisode("deploy ok", "staging deploy fine", "staging", 0.3, base))
	require.NoError(t, db.AddEpisode("lunch", "unrelated", "", 0.5, base))

	got, err := db.SearchEpisodes("deploy", 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "deploy failed", got[0].Title, "importance outranks recency")
}

func TestRecentEpisodesOrder(t *testing.T) {
	db := newTestDB(t)

	base := time.Now().Unix()
	for i, title := range []string{"first", "second", "third"} {
		require.NoError(t, db.AddEpisode(title, "", "", 0.5, base+int64(i)))
	}

	got, err := db.RecentEpisodes(2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "third", got[0].Title)
	assert.Equal(t, "second", got[1].Title)
}

func TestAddEpisodeDefaultsTimestamp(t *testing.T) {
	db := newTestDB(t)

	before := time.Now().Unix()
	require.NoError(t, db.AddEpisode("event", "", "", 0.5, 0))

	got, err := db.RecentEpisodes(1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.GreaterOrEqual(t, got[0].TS, before, "ts defaults to now")
}

func TestSummaries(t *testing.T) {
	db := newTestDB(t)

	require.NoError(t, db.AddSummary(SummaryRow{
		SessionID: "s1", TSStart: 100, TSEnd: 200,
		Summary: "talked about caching", Tags: "cache,lru",
	}))
	require.NoError(t, db.AddSummary(SummaryRow{
		SessionID: "s1", TSStart: 300, TSEnd: 400,
		Summary: "talked about sync", Tags: "sync",
	}))
	require.NoError(t, db.AddSummary(SummaryRow{
		SessionID: "s2", TSStart: 150, TSEnd: 250,
		Summary: "other session",
	}))

	got, err := db.SummariesForSession("s1", 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "talked about sync", got[0].Summary, "newest span first")

	all, err := db.RecentSummaries(10)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestConcurrentAccess(t *testing.T) {
	db := newTestDB(t)

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			errs <- db.UpsertSemantic("key", "value", 0.8, false)
		}()
		go func() {
			defer wg.Done()
			errs <- db.AddEpisode("event", "detail", "", 0.5, 0)
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		assert.NoError(t, err, "concurrent write")
	}

	got, err := db.RecentEpisodes(100)
	require.NoError(t, err)
	assert.Len(t, got, 10)
}
