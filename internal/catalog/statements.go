package catalog

// Column types follow the event-log and song-catalog JSON: identifiers and
// free text are VARCHAR, epochs BIGINT, coordinates and durations DOUBLE.

func defaultStatements() []Statement {
	var out []Statement
	out = append(out, dropStatements()...)
	out = append(out, createStatements()...)
	out = append(out, truncateStatements()...)
	out = append(out, copyStatements()...)
	out = append(out, insertStatements()...)
	return out
}

// starTables is the order tables are dropped, truncated and created in.
var starTables = []string{
	TableStagingEvents, TableStagingSongs,
	TableSongplays, TableUsers, TableSongs, TableArtists, TableTime,
}

func dropStatements() []Statement {
	var out []Statement
	for _, t := range starTables {
		out = append(out, Statement{
			Name:     t,
			Kind:     KindDrop,
			Table:    t,
			Template: "DROP TABLE IF EXISTS " + TableRef(t),
		})
		if t == TableSongplays {
			out = append(out, Statement{
				Name:     SongplaySequence,
				Kind:     KindDrop,
				Dialects: []string{"duckdb"},
				Template: "DROP SEQUENCE IF EXISTS " + SongplaySequence,
			})
		}
	}
	return out
}

func truncateStatements() []Statement {
	var out []Statement
	for _, t := range starTables {
		out = append(out, Statement{
			Name:     t,
			Kind:     KindTruncate,
			Table:    t,
			Template: "TRUNCATE " + TableRef(t),
		})
	}
	return out
}

func createStatements() []Statement {
	return []Statement{
		{
			Name:  TableStagingEvents,
			Kind:  KindCreate,
			Table: TableStagingEvents,
			Template: `
CREATE TABLE staging_events (
    artist          VARCHAR(768),
    auth            VARCHAR(64),
    firstName       VARCHAR(256),
    gender          VARCHAR(8),
    itemInSession   INTEGER,
    lastName        VARCHAR(256),
    length          DOUBLE PRECISION,
    level           VARCHAR(16),
    location        VARCHAR(512),
    method          VARCHAR(16),
    page            VARCHAR(64),
    registration    DOUBLE PRECISION,
    sessionId       INTEGER,
    song            VARCHAR(768),
    status          INTEGER,
    ts              BIGINT,
    userAgent       VARCHAR(512),
    userId          VARCHAR(64)
)`,
		},
		{
			Name:  TableStagingSongs,
			Kind:  KindCreate,
			Table: TableStagingSongs,
			Template: `
CREATE TABLE staging_songs (
    num_songs           INTEGER,
    artist_id           VARCHAR(64),
    artist_latitude     DOUBLE PRECISION,
    artist_longitude    DOUBLE PRECISION,
    artist_location     VARCHAR(768),
    artist_name         VARCHAR(768),
    song_id             VARCHAR(64),
    title               VARCHAR(768),
    duration            DOUBLE PRECISION,
    year                INTEGER
)`,
		},
		{
			Name:     SongplaySequence,
			Kind:     KindCreate,
			Dialects: []string{"duckdb"},
			Template: "CREATE SEQUENCE " + SongplaySequence + " START 1",
		},
		{
			Name:  TableSongplays,
			Kind:  KindCreate,
			Table: TableSongplays,
			Template: `
CREATE TABLE songplays (
    songplay_id     {{ identity }},
    start_time      TIMESTAMP NOT NULL,
    user_id         VARCHAR(64) NOT NULL,
    level           VARCHAR(16),
    song_id         VARCHAR(64),
    artist_id       VARCHAR(64),
    session_id      INTEGER,
    location        VARCHAR(512),
    user_agent      VARCHAR(512),
    PRIMARY KEY (songplay_id)
)`,
		},
		{
			Name:  TableUsers,
			Kind:  KindCreate,
			Table: TableUsers,
			Template: `
CREATE TABLE users (
    user_id     VARCHAR(64),
    first_name  VARCHAR(256),
    last_name   VARCHAR(256),
    gender      VARCHAR(8),
    level       VARCHAR(16),
    PRIMARY KEY (user_id)
)`,
		},
		{
			Name:  TableSongs,
			Kind:  KindCreate,
			Table: TableSongs,
			Template: `
CREATE TABLE songs (
    song_id     VARCHAR(64),
    title       VARCHAR(768) NOT NULL,
    artist_id   VARCHAR(64) NOT NULL,
    year        INTEGER,
    duration    DOUBLE PRECISION NOT NULL,
    PRIMARY KEY (song_id)
)`,
		},
		{
			Name:  TableArtists,
			Kind:  KindCreate,
			Table: TableArtists,
			Template: `
CREATE TABLE artists (
    artist_id   VARCHAR(64),
    name        VARCHAR(768) NOT NULL,
    location    VARCHAR(768),
    latitude    DOUBLE PRECISION,
    longitude   DOUBLE PRECISION,
    PRIMARY KEY (artist_id)
)`,
		},
		{
			Name:  TableTime,
			Kind:  KindCreate,
			Table: TableTime,
			Template: `
CREATE TABLE "time" (
    start_time  TIMESTAMP,
    hour        INTEGER,
    day         INTEGER,
    week        INTEGER,
    month       INTEGER,
    year        INTEGER,
    weekday     INTEGER,
    PRIMARY KEY (start_time)
)`,
		},
	}
}

func copyStatements() []Statement {
	return []Statement{
		{
			Name:     TableStagingEvents,
			Kind:     KindCopy,
			Table:    TableStagingEvents,
			Reads:    []string{SourceEvents},
			Dialects: []string{"redshift"},
			Requires: []string{"EventsPath", "IAMRoleARN"},
			Template: `
COPY staging_events
FROM {{ quote .EventsPath }}
IAM_ROLE {{ quote .IAMRoleARN }}
{{- with .Region }}
REGION {{ quote . }}
{{- end }}
FORMAT AS JSON {{ if .EventsJSONPaths }}{{ quote .EventsJSONPaths }}{{ else }}'auto ignorecase'{{ end }}
DATEFORMAT 'auto'
TRUNCATECOLUMNS
BLANKSASNULL
EMPTYASNULL`,
		},
		{
			Name:     TableStagingSongs,
			Kind:     KindCopy,
			Table:    TableStagingSongs,
			Reads:    []string{SourceSongs},
			Dialects: []string{"redshift"},
			Requires: []string{"SongsPath", "IAMRoleARN"},
			Template: `
COPY staging_songs
FROM {{ quote .SongsPath }}
IAM_ROLE {{ quote .IAMRoleARN }}
{{- with .Region }}
REGION {{ quote . }}
{{- end }}
FORMAT AS JSON 'auto'
DATEFORMAT 'auto'
TRUNCATECOLUMNS
BLANKSASNULL
EMPTYASNULL`,
		},
		{
			Name:     TableStagingEvents,
			Kind:     KindCopy,
			Table:    TableStagingEvents,
			Reads:    []string{SourceEvents},
			Dialects: []string{"duckdb"},
			Requires: []string{"EventsPath"},
			Template: `
INSERT INTO staging_events BY NAME
SELECT * REPLACE (NULLIF(userId, '') AS userId)
FROM read_json_auto({{ quote .EventsPath }}, union_by_name = true)`,
		},
		{
			Name:     TableStagingSongs,
			Kind:     KindCopy,
			Table:    TableStagingSongs,
			Reads:    []string{SourceSongs},
			Dialects: []string{"duckdb"},
			Requires: []string{"SongsPath"},
			Template: `
INSERT INTO staging_songs BY NAME
SELECT * FROM read_json_auto({{ quote .SongsPath }}, union_by_name = true)`,
		},
	}
}

// Fact rows, users and time consider only song plays by identified users.
// Songs and artists take every catalog row with a key.
func insertStatements() []Statement {
	return []Statement{
		{
			Name:  TableSongplays,
			Kind:  KindInsert,
			Table: TableSongplays,
			Reads: []string{TableStagingEvents, TableStagingSongs},
			Template: `
INSERT INTO songplays (start_time, user_id, level, song_id, artist_id, session_id, location, user_agent)
SELECT {{ epoch "e.ts" }} AS start_time,
       e.userId,
       e.level,
       s.song_id,
       s.artist_id,
       e.sessionId,
       e.location,
       e.userAgent
FROM staging_events AS e
LEFT JOIN (
    SELECT song_id,
           artist_id,
           artist_name,
           title,
           ROW_NUMBER() OVER (PARTITION BY artist_name, title ORDER BY song_id) AS rn
    FROM staging_songs
) AS s
       ON e.artist = s.artist_name
      AND e.song = s.title
      AND s.rn = 1
WHERE e.page = 'NextSong'
  AND e.userId IS NOT NULL
  AND e.ts IS NOT NULL`,
		},
		{
			Name:  TableUsers,
			Kind:  KindInsert,
			Table: TableUsers,
			Reads: []string{TableStagingEvents},
			Template: `
INSERT INTO users (user_id, first_name, last_name, gender, level)
SELECT user_id, first_name, last_name, gender, level
FROM (
    SELECT userId    AS user_id,
           firstName AS first_name,
           lastName  AS last_name,
           gender,
           level,
           ROW_NUMBER() OVER (PARTITION BY userId ORDER BY ts DESC NULLS LAST, level DESC) AS rn
    FROM staging_events
    WHERE page = 'NextSong'
      AND userId IS NOT NULL
) AS latest
WHERE rn = 1`,
		},
		{
			Name:  TableSongs,
			Kind:  KindInsert,
			Table: TableSongs,
			Reads: []string{TableStagingSongs},
			Template: `
INSERT INTO songs (song_id, title, artist_id, year, duration)
SELECT song_id, title, artist_id, year, duration
FROM (
    SELECT song_id,
           title,
           artist_id,
           year,
           duration,
           ROW_NUMBER() OVER (PARTITION BY song_id ORDER BY year DESC NULLS LAST, title, duration) AS rn
    FROM staging_songs
    WHERE song_id IS NOT NULL
) AS ranked
WHERE rn = 1`,
		},
		{
			Name:  TableArtists,
			Kind:  KindInsert,
			Table: TableArtists,
			Reads: []string{TableStagingSongs},
			Template: `
INSERT INTO artists (artist_id, name, location, latitude, longitude)
SELECT artist_id, name, location, latitude, longitude
FROM (
    SELECT artist_id,
           artist_name      AS name,
           artist_location  AS location,
           artist_latitude  AS latitude,
           artist_longitude AS longitude,
           ROW_NUMBER() OVER (
               PARTITION BY artist_id
               ORDER BY CASE WHEN artist_location IS NULL OR artist_location = '' THEN 1 ELSE 0 END,
                        artist_name,
                        artist_location
           ) AS rn
    FROM staging_songs
    WHERE artist_id IS NOT NULL
) AS ranked
WHERE rn = 1`,
		},
		{
			Name:  TableTime,
			Kind:  KindInsert,
			Table: TableTime,
			Reads: []string{TableStagingEvents},
			Template: `
INSERT INTO "time" (start_time, hour, day, week, month, year, weekday)
SELECT start_time,
       EXTRACT(HOUR FROM start_time),
       EXTRACT(DAY FROM start_time),
       EXTRACT(WEEK FROM start_time),
       EXTRACT(MONTH FROM start_time),
       EXTRACT(YEAR FROM start_time),
       EXTRACT(DOW FROM start_time)
FROM (
    SELECT DISTINCT {{ epoch "ts" }} AS start_time
    FROM staging_events
    WHERE page = 'NextSong'
      AND userId IS NOT NULL
      AND ts IS NOT NULL
) AS plays`,
		},
	}
}
