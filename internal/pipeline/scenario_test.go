package pipeline_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/leapstack-labs/dwhetl/internal/catalog"
	"github.com/leapstack-labs/dwhetl/internal/pipeline"
	"github.com/leapstack-labs/dwhetl/internal/testutil"
	"github.com/leapstack-labs/dwhetl/pkg/adapter"
	"github.com/leapstack-labs/dwhetl/pkg/adapters/duckdb"
	"github.com/leapstack-labs/dwhetl/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type warehouse struct {
	db *duckdb.Adapter
	fx testutil.Fixtures
}

func newWarehouse(t *testing.T) *warehouse {
	t.Helper()
	a := duckdb.New(testutil.NewTestLogger(t))
	require.NoError(t, a.Connect(context.Background(), adapter.Config{Type: "duckdb"}))
	t.Cleanup(func() { _ = a.Close() })
	return &warehouse{db: a, fx: testutil.WriteFixtures(t)}
}

func (w *warehouse) params() catalog.Params {
	return catalog.Params{EventsPath: w.fx.EventsGlob, SongsPath: w.fx.SongsGlob}
}

func (w *warehouse) pipeline(t *testing.T, store core.Store, opts pipeline.Options) *pipeline.Pipeline {
	t.Helper()
	p, err := pipeline.New(w.db, store, w.params(), opts, testutil.NewTestLogger(t))
	require.NoError(t, err)
	return p
}

func (w *warehouse) count(t *testing.T, query string) int64 {
	t.Helper()
	var n int64
	require.NoError(t, w.db.DB.QueryRowContext(context.Background(), query).Scan(&n))
	return n
}

func (w *warehouse) rows(t *testing.T, table string) int64 {
	t.Helper()
	n, err := w.db.CountRows(context.Background(), catalog.TableRef(table))
	require.NoError(t, err)
	return n
}

func (w *warehouse) tables(t *testing.T) []string {
	t.Helper()
	rows, err := w.db.DB.QueryContext(context.Background(),
		"SELECT table_name FROM information_schema.tables WHERE table_schema = 'main' ORDER BY table_name")
	require.NoError(t, err)
	defer func() { _ = rows.Close() }()

	var names []string
	for rows.Next() {
		var name string
		require.NoError(t, rows.Scan(&name))
		names = append(names, name)
	}
	require.NoError(t, rows.Err())
	return names
}

func TestScenario_ResetTwiceYieldsSameSchema(t *testing.T) {
	ctx := context.Background()
	w := newWarehouse(t)
	p := w.pipeline(t, nil, pipeline.Options{})

	require.NoError(t, p.ResetSchema(ctx))
	first := w.tables(t)

	require.NoError(t, p.ResetSchema(ctx))
	second := w.tables(t)

	assert.Equal(t, []string{"artists", "songplays", "songs", "staging_events", "staging_songs", "time", "users"}, first)
	assert.Equal(t, first, second)
	for _, table := range first {
		assert.Zero(t, w.rows(t, table), table)
	}
}

func TestScenario_LoadBuildsStarSchema(t *testing.T) {
	ctx := context.Background()
	w := newWarehouse(t)
	p := w.pipeline(t, nil, pipeline.Options{})

	require.NoError(t, p.ResetSchema(ctx))
	require.NoError(t, p.LoadStaging(ctx))
	require.NoError(t, p.RunTransforms(ctx))

	assert.Equal(t, int64(testutil.FixtureStagingEvents), w.rows(t, catalog.TableStagingEvents))
	assert.Equal(t, int64(testutil.FixtureStagingSongs), w.rows(t, catalog.TableStagingSongs))
	assert.Equal(t, int64(testutil.FixtureSongplays), w.rows(t, catalog.TableSongplays))
	assert.Equal(t, int64(testutil.FixtureUsers), w.rows(t, catalog.TableUsers))
	assert.Equal(t, int64(testutil.FixtureSongs), w.rows(t, catalog.TableSongs))
	assert.Equal(t, int64(testutil.FixtureArtists), w.rows(t, catalog.TableArtists))
	assert.Equal(t, int64(testutil.FixtureTimes), w.rows(t, catalog.TableTime))

	t.Run("one row per catalog song and artist", func(t *testing.T) {
		assert.Equal(t,
			w.count(t, "SELECT COUNT(DISTINCT song_id) FROM staging_songs"),
			w.rows(t, catalog.TableSongs))
		assert.Equal(t,
			w.count(t, "SELECT COUNT(DISTINCT artist_id) FROM staging_songs"),
			w.rows(t, catalog.TableArtists))
	})

	t.Run("users carry the level of their latest play", func(t *testing.T) {
		assert.Equal(t, int64(1), w.count(t, "SELECT COUNT(*) FROM users WHERE user_id = '7'"))

		var level string
		require.NoError(t, w.db.DB.QueryRowContext(ctx, "SELECT level FROM users WHERE user_id = '7'").Scan(&level))
		assert.Equal(t, "paid", level)
		assert.Zero(t, w.count(t, "SELECT COUNT(*) FROM users WHERE user_id = '8'"))
	})

	t.Run("unmatched play keeps null song and artist", func(t *testing.T) {
		var (
			start    time.Time
			songID   *string
			artistID *string
		)
		err := w.db.DB.QueryRowContext(ctx, `
SELECT start_time, song_id, artist_id
FROM songplays
WHERE user_id = '7' AND level = 'free'`).Scan(&start, &songID, &artistID)
		require.NoError(t, err)

		want := time.Date(2018, 11, 2, 1, 25, 34, 0, time.UTC)
		assert.True(t, want.Equal(start), "start_time = %s, want %s", start.UTC(), want)
		assert.Nil(t, songID)
		assert.Nil(t, artistID)
		assert.Equal(t, int64(testutil.FixtureMatchedPlays),
			w.count(t, "SELECT COUNT(*) FROM songplays WHERE song_id IS NOT NULL"))
	})

	t.Run("time fields derive from the truncated timestamp", func(t *testing.T) {
		var hour, day, week, month, year, weekday int
		err := w.db.DB.QueryRowContext(ctx, `
SELECT hour, day, week, month, year, weekday
FROM "time"
WHERE start_time = TIMESTAMP '2018-11-02 01:25:34'`).Scan(&hour, &day, &week, &month, &year, &weekday)
		require.NoError(t, err)
		assert.Equal(t, []int{1, 2, 44, 11, 2018, 5}, []int{hour, day, week, month, year, weekday})

		err = w.db.DB.QueryRowContext(ctx, `
SELECT weekday FROM "time" WHERE start_time = TIMESTAMP '2018-11-03 01:03:20'`).Scan(&weekday)
		require.NoError(t, err)
		assert.Equal(t, 6, weekday)

		assert.Zero(t, w.count(t, `SELECT COUNT(*) FROM "time" WHERE hour < 0 OR hour > 23 OR weekday < 0 OR weekday > 6`))
	})

	t.Run("deduplication is deterministic", func(t *testing.T) {
		assert.Equal(t, int64(2001), w.count(t, "SELECT year FROM songs WHERE song_id = 'SO1'"))

		var location string
		require.NoError(t, w.db.DB.QueryRowContext(ctx, "SELECT location FROM artists WHERE artist_id = 'AR1'").Scan(&location))
		assert.Equal(t, "Memphis, TN", location)
	})
}

// edgeEvents has an undated NextSong row for user 7 next to a dated paid play,
// and a NextSong row whose userId is the empty string.
const edgeEvents = `{"artist":"Artist A","song":"Song A","page":"NextSong","level":"paid","ts":1541122000000,"userId":"7","firstName":"Adelyn","sessionId":10}
{"artist":"Artist A","song":"Song B","page":"NextSong","level":"free","ts":null,"userId":"7","firstName":"Adelyn","sessionId":10}
{"artist":"Artist B","song":"Song C","page":"NextSong","level":"free","ts":1541207000999,"userId":"","firstName":null,"sessionId":12}
`

func TestScenario_EdgeEvents(t *testing.T) {
	ctx := context.Background()
	w := newWarehouse(t)

	// Sort NULLs first under DESC, as Redshift does.
	_, err := w.db.Exec(ctx, "SET default_null_order = 'nulls_last_on_asc_first_on_desc'")
	require.NoError(t, err)

	events := filepath.Join(t.TempDir(), "events.json")
	require.NoError(t, os.WriteFile(events, []byte(edgeEvents), 0o600))

	params := catalog.Params{EventsPath: events, SongsPath: w.fx.SongsGlob}
	p, err := pipeline.New(w.db, nil, params, pipeline.Options{}, testutil.NewTestLogger(t))
	require.NoError(t, err)
	require.NoError(t, p.ResetSchema(ctx))
	require.NoError(t, p.LoadStaging(ctx))
	require.NoError(t, p.RunTransforms(ctx))

	t.Run("undated event does not set the level", func(t *testing.T) {
		var level string
		require.NoError(t, w.db.DB.QueryRowContext(ctx, "SELECT level FROM users WHERE user_id = '7'").Scan(&level))
		assert.Equal(t, "paid", level)
	})

	t.Run("empty user id is staged as null", func(t *testing.T) {
		assert.Equal(t, int64(1), w.count(t, "SELECT COUNT(*) FROM staging_events WHERE userId IS NULL"))
		assert.Equal(t, int64(1), w.rows(t, catalog.TableSongplays))
		assert.Equal(t, int64(1), w.rows(t, catalog.TableUsers))
		assert.Zero(t, w.count(t, "SELECT COUNT(*) FROM users WHERE user_id = ''"))
	})
}

func TestScenario_TruncateReloadIsRepeatable(t *testing.T) {
	ctx := context.Background()
	w := newWarehouse(t)

	require.NoError(t, w.pipeline(t, nil, pipeline.Options{}).ResetSchema(ctx))

	p := w.pipeline(t, nil, pipeline.Options{Truncate: true})
	for range 2 {
		_, err := p.Execute(ctx, pipeline.CommandLoad)
		require.NoError(t, err)
	}

	assert.Equal(t, int64(testutil.FixtureStagingEvents), w.rows(t, catalog.TableStagingEvents))
	assert.Equal(t, int64(testutil.FixtureSongplays), w.rows(t, catalog.TableSongplays))
	assert.Equal(t, int64(testutil.FixtureUsers), w.rows(t, catalog.TableUsers))
	assert.Equal(t, int64(testutil.FixtureTimes), w.rows(t, catalog.TableTime))
}

func TestScenario_ReloadWithoutTruncateDuplicatesFacts(t *testing.T) {
	ctx := context.Background()
	w := newWarehouse(t)
	p := w.pipeline(t, nil, pipeline.Options{})

	require.NoError(t, p.ResetSchema(ctx))
	_, err := p.Execute(ctx, pipeline.CommandLoad)
	require.NoError(t, err)

	_, err = p.Execute(ctx, pipeline.CommandLoad)

	// The second load appends a second copy of staging, then inserts facts from
	// both copies on top of the first load's facts: 4 + 2*4 rows. DuckDB
	// enforces the users key, so the load stops there with those facts
	// already committed.
	var stmtErr *pipeline.StatementError
	require.ErrorAs(t, err, &stmtErr)
	assert.Equal(t, "insert", stmtErr.Sequence)
	assert.Equal(t, catalog.TableUsers, stmtErr.Statement)
	assert.Equal(t, int64(2*testutil.FixtureStagingEvents), w.rows(t, catalog.TableStagingEvents))
	assert.Equal(t, int64(3*testutil.FixtureSongplays), w.rows(t, catalog.TableSongplays))
}

func TestScenario_SequenceModeRollsBackFailedTransforms(t *testing.T) {
	ctx := context.Background()
	w := newWarehouse(t)
	p := w.pipeline(t, nil, pipeline.Options{CommitMode: pipeline.CommitSequence})

	require.NoError(t, p.ResetSchema(ctx))
	_, err := p.Execute(ctx, pipeline.CommandLoad)
	require.NoError(t, err)

	_, err = p.Execute(ctx, pipeline.CommandLoad)
	require.Error(t, err)

	// The copy sequence committed; the insert sequence was undone as a whole.
	assert.Equal(t, int64(2*testutil.FixtureStagingEvents), w.rows(t, catalog.TableStagingEvents))
	assert.Equal(t, int64(testutil.FixtureSongplays), w.rows(t, catalog.TableSongplays))
}
