package testutil

import (
	"os"
	"path/filepath"
	"testing"
)

// Fixtures locates a written set of event-log and song-catalog files.
type Fixtures struct {
	Dir        string
	EventsGlob string
	SongsGlob  string
}

// Expected row counts after loading the fixtures into a fresh schema.
const (
	FixtureStagingEvents = 7
	FixtureStagingSongs  = 4
	FixtureSongplays     = 4
	FixtureMatchedPlays  = 2
	FixtureUsers         = 2
	FixtureSongs         = 3
	FixtureArtists       = 2
	FixtureTimes         = 3
)

// Unmatched play by user 7: no catalog entry for "Nobody Known - No Match".
const FixtureUnmatchedTS int64 = 1541121934796

// eventsJSON holds one event per line. User 7 plays twice (free, then paid),
// user 9 plays twice (one unmatched, at the same instant as user 7's first
// play, and one on a Saturday with sub-second millis). User 8 only visits
// Home, and one NextSong event has no user.
const eventsJSON = `{"artist":"Nobody Known","auth":"Logged In","firstName":"Adelyn","gender":"F","itemInSession":0,"lastName":"Jordan","length":200.1,"level":"free","location":"Chicago-Naperville-Elgin, IL-IN-WI","method":"PUT","page":"NextSong","registration":1540130971796.0,"sessionId":10,"song":"No Match","status":200,"ts":1541121934796,"userAgent":"Mozilla/5.0 (Macintosh)","userId":"7"}
{"artist":"Artist A","auth":"Logged In","firstName":"Adelyn","gender":"F","itemInSession":1,"lastName":"Jordan","length":200.5,"level":"paid","location":"Chicago-Naperville-Elgin, IL-IN-WI","method":"PUT","page":"NextSong","registration":1540130971796.0,"sessionId":10,"song":"Song A","status":200,"ts":1541122000000,"userAgent":"Mozilla/5.0 (Macintosh)","userId":"7"}
{"artist":null,"auth":"Logged In","firstName":"Ryan","gender":"M","itemInSession":0,"lastName":"Smith","length":null,"level":"free","location":"San Jose-Sunnyvale-Santa Clara, CA","method":"GET","page":"Home","registration":1541016707796.0,"sessionId":11,"song":null,"status":200,"ts":1541122100000,"userAgent":"Mozilla/5.0 (X11; Linux x86_64)","userId":"8"}
{"artist":"Artist A","auth":"Logged Out","firstName":null,"gender":null,"itemInSession":2,"lastName":null,"length":150.0,"level":"free","location":null,"method":"PUT","page":"NextSong","registration":null,"sessionId":12,"song":"Song B","status":200,"ts":1541122200000,"userAgent":null,"userId":null}
{"artist":"Artist B","auth":"Logged In","firstName":"Lily","gender":"F","itemInSession":0,"lastName":"Koch","length":180.2,"level":"free","location":"Chicago-Naperville-Elgin, IL-IN-WI","method":"PUT","page":"NextSong","registration":1541048010796.0,"sessionId":13,"song":"Song C","status":200,"ts":1541207000999,"userAgent":"Mozilla/5.0 (Windows NT 6.1)","userId":"9"}
{"artist":"Nobody Known","auth":"Logged In","firstName":"Lily","gender":"F","itemInSession":1,"lastName":"Koch","length":200.1,"level":"free","location":"Chicago-Naperville-Elgin, IL-IN-WI","method":"PUT","page":"NextSong","registration":1541048010796.0,"sessionId":13,"song":"No Match","status":200,"ts":1541121934796,"userAgent":"Mozilla/5.0 (Windows NT 6.1)","userId":"9"}
{"artist":null,"auth":"Logged In","firstName":"Lily","gender":"F","itemInSession":2,"lastName":"Koch","length":null,"level":"free","location":"Chicago-Naperville-Elgin, IL-IN-WI","method":"GET","page":"Settings","registration":1541048010796.0,"sessionId":13,"song":null,"status":200,"ts":1541207100000,"userAgent":"Mozilla/5.0 (Windows NT 6.1)","userId":"9"}
`

// songsJSON repeats SO1 with an unknown year and gives AR1 one row without a
// location, so deduplication has ties to break.
const songsJSON = `{"num_songs":1,"artist_id":"AR1","artist_latitude":35.14968,"artist_longitude":-90.04892,"artist_location":"Memphis, TN","artist_name":"Artist A","song_id":"SO1","title":"Song A","duration":200.5,"year":2001}
{"num_songs":1,"artist_id":"AR1","artist_latitude":35.14968,"artist_longitude":-90.04892,"artist_location":"Memphis, TN","artist_name":"Artist A","song_id":"SO1","title":"Song A","duration":200.5,"year":null}
{"num_songs":1,"artist_id":"AR1","artist_latitude":null,"artist_longitude":null,"artist_location":"","artist_name":"Artist A","song_id":"SO2","title":"Song B","duration":150.0,"year":1999}
{"num_songs":1,"artist_id":"AR2","artist_latitude":null,"artist_longitude":null,"artist_location":"","artist_name":"Artist B","song_id":"SO3","title":"Song C","duration":180.2,"year":0}
`

// WriteFixtures writes the event-log and song-catalog fixtures under a
// temporary directory.
func WriteFixtures(t testing.TB) Fixtures {
	t.Helper()
	dir := t.TempDir()

	write := func(rel, content string) {
		path := filepath.Join(dir, rel)
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
			t.Fatalf("mkdir fixtures: %v", err)
		}
		if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
			t.Fatalf("write fixture %s: %v", rel, err)
		}
	}

	write(filepath.Join("log_data", "2018-11-02-events.json"), eventsJSON)
	write(filepath.Join("song_data", "A", "songs.json"), songsJSON)

	return Fixtures{
		Dir:        dir,
		EventsGlob: filepath.Join(dir, "log_data", "*.json"),
		SongsGlob:  filepath.Join(dir, "song_data", "*", "*.json"),
	}
}
