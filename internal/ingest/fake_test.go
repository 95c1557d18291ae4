package ingest

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"swcatalog/internal/character"
	"swcatalog/internal/film"
	"swcatalog/internal/starship"
	"swcatalog/internal/swapi"
	"swcatalog/pkg/database/dbtest"
)

const perPage = 10

// fakeSWAPI serves /api/{collection}/?page=N from in-memory records.
type fakeSWAPI struct {
	srv *httptest.Server

	mu      sync.Mutex
	records map[string][]map[string]any
	broken  map[string]int // collection -> page answering 500
	hits    map[string]int
}

func newFakeSWAPI(t *testing.T) *fakeSWAPI {
	t.Helper()
	f := &fakeSWAPI{
		records: make(map[string][]map[string]any),
		broken:  make(map[string]int),
		hits:    make(map[string]int),
	}
	f.srv = httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeSWAPI) serve(w http.ResponseWriter, r *http.Request) {
	collection := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/"), "/")
	n, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if n == 0 {
		n = 1
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.hits[collection]++
	if f.broken[collection] == n {
		http.Error(w, "upstream exploded", http.StatusInternalServerError)
		return
	}

	all := f.records[collection]
	start := (n - 1) * perPage
	results := []map[string]any{}
	for i := start; i < start+perPage && i < len(all); i++ {
		results = append(results, all[i])
	}
	var next any
	if start+perPage < len(all) {
		next = fmt.Sprintf("%s/api/%s/?page=%d", f.srv.URL, collection, n+1)
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"count": len(all), "next": next, "results": results})
}

func (f *fakeSWAPI) set(collection string, recs ...map[string]any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records[collection] = recs
}

func (f *fakeSWAPI) breakPage(collection string, page int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.broken[collection] = page
}

func (f *fakeSWAPI) hitCount(collection string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.hits[collection]
}

func (f *fakeSWAPI) url(collection string, id int) string {
	return fmt.Sprintf("%s/api/%s/%d/", f.srv.URL, collection, id)
}

func (f *fakeSWAPI) person(id int, name string) map[string]any {
	return map[string]any{
		"name":       name,
		"height":     "172",
		"mass":       "77",
		"hair_color": "blond",
		"skin_color": "fair",
		"eye_color":  "blue",
		"birth_year": "19BBY",
		"gender":     "male",
		"homeworld":  f.url("planets", 1),
		"films":      []string{},
		"species":    []string{},
		"vehicles":   []string{},
		"starships":  []string{},
		"created":    "2014-12-09T13:50:51.644000Z",
		"edited":     "2014-12-20T21:17:56.891000Z",
		"url":        f.url("people", id),
	}
}

func (f *fakeSWAPI) film(id int, title string, episode int, characters, starships []string) map[string]any {
	if characters == nil {
		characters = []string{}
	}
	if starships == nil {
		starships = []string{}
	}
	return map[string]any{
		"title":         title,
		"episode_id":    episode,
		"opening_crawl": "It is a period of civil war.",
		"director":      "George Lucas",
		"producer":      "Gary Kurtz, Rick McCallum",
		"release_date":  "1977-05-25",
		"characters":    characters,
		"planets":       []string{f.url("planets", 1)},
		"starships":     starships,
		"vehicles":      []string{},
		"species":       []string{},
		"created":       "2014-12-10T14:23:31.880000Z",
		"edited":        "2014-12-20T19:49:45.256000Z",
		"url":           f.url("films", id),
	}
}

func (f *fakeSWAPI) starship(id int, name string, pilots []string) map[string]any {
	if pilots == nil {
		pilots = []string{}
	}
	return map[string]any{
		"name":                   name,
		"model":                  "YT-1300 light freighter",
		"manufacturer":           "Corellian Engineering Corporation",
		"cost_in_credits":        "100000",
		"length":                 "34.37",
		"max_atmosphering_speed": "1050",
		"crew":                   "4",
		"passengers":             "6",
		"cargo_capacity":         "100000",
		"consumables":            "2 months",
		"hyperdrive_rating":      "0.5",
		"MGLT":                   "75",
		"starship_class":         "Light freighter",
		"pilots":                 pilots,
		"films":                  []string{},
		"created":                "2014-12-10T16:59:45.094000Z",
		"edited":                 "2014-12-20T21:23:49.880000Z",
		"url":                    f.url("starships", id),
	}
}

type stores struct {
	db         *sql.DB
	characters *character.Repo
	films      *film.Repo
	starships  *starship.Repo
}

func newIngestor(t *testing.T, f *fakeSWAPI) (*Ingestor, stores) {
	t.Helper()
	db := dbtest.Open(t)
	s := stores{
		db:         db,
		characters: character.NewRepo(db),
		films:      film.NewRepo(db),
		starships:  starship.NewRepo(db),
	}

	client := swapi.NewClient(f.srv.URL+"/api/", zerolog.Nop())
	client.Attempts = 1
	client.Delay = 0

	return &Ingestor{
		Source:     client,
		Characters: s.characters,
		Films:      s.films,
		Starships:  s.starships,
		Log:        zerolog.Nop(),
	}, s
}

func count(t *testing.T, db *sql.DB, table string) int {
	t.Helper()
	var n int
	if err := db.QueryRow(`SELECT COUNT(*) FROM ` + table).Scan(&n); err != nil {
		t.Fatalf("count %s: %v", table, err)
	}
	return n
}
