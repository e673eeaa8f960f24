package report

import "github.com/leapstack-labs/dwhetl/internal/catalog"

type checkQuery struct {
	name     string
	table    string
	expected string
	actual   string
}

// Qualifying plays match the filters the insert sequence applies.
const (
	nextSongByUser = "page = 'NextSong' AND userId IS NOT NULL"
	playFilter     = nextSongByUser + " AND ts IS NOT NULL"
)

func (r *Reconciler) checks() []checkQuery {
	return []checkQuery{
		{
			name:     "every qualifying play has one fact row",
			table:    catalog.TableSongplays,
			expected: "SELECT COUNT(*) FROM staging_events WHERE " + playFilter,
			actual:   "SELECT COUNT(*) FROM songplays",
		},
		{
			name:     "one row per listening user",
			table:    catalog.TableUsers,
			expected: "SELECT COUNT(DISTINCT userId) FROM staging_events WHERE " + nextSongByUser,
			actual:   "SELECT COUNT(*) FROM users",
		},
		{
			name:     "one row per staged song",
			table:    catalog.TableSongs,
			expected: "SELECT COUNT(DISTINCT song_id) FROM staging_songs",
			actual:   "SELECT COUNT(*) FROM songs",
		},
		{
			name:     "one row per staged artist",
			table:    catalog.TableArtists,
			expected: "SELECT COUNT(DISTINCT artist_id) FROM staging_songs",
			actual:   "SELECT COUNT(*) FROM artists",
		},
		{
			name:     "one row per play timestamp",
			table:    catalog.TableTime,
			expected: "SELECT COUNT(DISTINCT " + r.dialect.Epoch("ts") + ") FROM staging_events WHERE " + playFilter,
			actual:   `SELECT COUNT(*) FROM "time"`,
		},
	}
}
