package ingest

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"swcatalog/internal/swapi"
	"swcatalog/pkg/models"
)

func TestLeiaEndToEnd(t *testing.T) {
	f := newFakeSWAPI(t)
	leia := f.person(5, "Leia Organa")
	leia["height"] = "150"
	leia["mass"] = "49"
	leia["hair_color"] = "brown"
	leia["gender"] = "female"
	leia["homeworld"] = f.url("planets", 2)
	leia["vehicles"] = []string{f.url("vehicles", 30)}
	leia["created"] = "2014-12-10T15:20:09.791000Z"

	f.set(swapi.People, f.person(1, "Luke Skywalker"), leia)
	f.set(swapi.Films, f.film(1, "A New Hope", 4,
		[]string{f.url("people", 1), f.url("people", 5)},
		[]string{f.url("starships", 10)}))
	f.set(swapi.Starships, f.starship(10, "Millennium Falcon", []string{f.url("people", 5)}))

	ing, s := newIngestor(t, f)
	ctx := context.Background()

	rep, err := ing.Run(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, rep.Characters.Inserted)
	assert.Equal(t, 1, rep.Films.Inserted)
	assert.Equal(t, 1, rep.Starships.Inserted)
	assert.NoError(t, rep.SkippedErr())

	got, err := s.characters.GetByName(ctx, "Leia Organa")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "150", got.Height)
	assert.Equal(t, "49", got.Mass)
	assert.Equal(t, "female", got.Gender)
	assert.Equal(t, f.url("planets", 2), got.Homeworld)
	assert.Equal(t, []string{f.url("vehicles", 30)}, got.Vehicles)
	assert.Equal(t, f.url("people", 5), got.URL)
	assert.True(t, got.Created.Equal(time.Date(2014, 12, 10, 15, 20, 9, 791000000, time.UTC)))

	hope, err := s.films.GetByTitle(ctx, "A New Hope")
	require.NoError(t, err)
	require.NotNil(t, hope)
	luke, err := s.characters.GetByName(ctx, "Luke Skywalker")
	require.NoError(t, err)
	assert.ElementsMatch(t, []int64{luke.ID, got.ID}, hope.Characters)
	// starships are ingested after films, so the first pass cannot link them
	assert.Empty(t, hope.Starships)

	falcon, err := s.starships.GetByName(ctx, "Millennium Falcon")
	require.NoError(t, err)
	require.NotNil(t, falcon)
	assert.Equal(t, []int64{got.ID}, falcon.Pilots)
	assert.Equal(t, []int64{falcon.ID}, got.Starships)

	_, err = ing.Run(ctx, 0)
	require.NoError(t, err)
	hope, err = s.films.GetByTitle(ctx, "A New Hope")
	require.NoError(t, err)
	assert.Equal(t, []int64{falcon.ID}, hope.Starships)
}

func TestRunIsIdempotent(t *testing.T) {
	f := newFakeSWAPI(t)
	var people []map[string]any
	for i := 1; i <= 12; i++ {
		people = append(people, f.person(i, fmt.Sprintf("person %d", i)))
	}
	f.set(swapi.People, people...)
	f.set(swapi.Films, f.film(1, "A New Hope", 4,
		[]string{f.url("people", 1), f.url("people", 2)},
		[]string{f.url("starships", 10)}))
	f.set(swapi.Starships, f.starship(10, "Millennium Falcon", []string{f.url("people", 3)}))

	ing, s := newIngestor(t, f)
	ctx := context.Background()

	_, err := ing.Run(ctx, 0)
	require.NoError(t, err)
	snapshot := func() [6]int {
		return [6]int{
			count(t, s.db, "characters"), count(t, s.db, "films"), count(t, s.db, "starships"),
			count(t, s.db, "film_characters"), count(t, s.db, "film_starships"), count(t, s.db, "starship_pilots"),
		}
	}
	first := snapshot()
	assert.Equal(t, [6]int{12, 1, 1, 2, 0, 1}, first)

	rep, err := ing.Run(ctx, 0)
	require.NoError(t, err)
	assert.Zero(t, rep.Characters.Inserted)
	assert.Equal(t, 12, rep.Characters.Updated)
	assert.Equal(t, 1, rep.Films.Updated)

	second := snapshot()
	first[4] = 1 // film -> starship link appears once the starship exists
	assert.Equal(t, first, second)

	_, err = ing.Run(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, second, snapshot())
}

func TestRelationshipsAreReplaced(t *testing.T) {
	f := newFakeSWAPI(t)
	f.set(swapi.People, f.person(1, "Luke"), f.person(2, "Leia"), f.person(3, "Han"))
	f.set(swapi.Films, f.film(1, "A New Hope", 4,
		[]string{f.url("people", 1), f.url("people", 2), f.url("people", 3)}, nil))
	f.set(swapi.Starships, f.starship(10, "Millennium Falcon",
		[]string{f.url("people", 1), f.url("people", 2), f.url("people", 3)}))

	ing, s := newIngestor(t, f)
	ctx := context.Background()
	_, err := ing.Run(ctx, 0)
	require.NoError(t, err)

	hope, err := s.films.GetByTitle(ctx, "A New Hope")
	require.NoError(t, err)
	require.Len(t, hope.Characters, 3)

	f.set(swapi.Films, f.film(1, "A New Hope", 4, []string{f.url("people", 3)}, nil))
	f.set(swapi.Starships, f.starship(10, "Millennium Falcon", []string{f.url("people", 3)}))
	_, err = ing.Run(ctx, 0)
	require.NoError(t, err)

	han, err := s.characters.GetByName(ctx, "Han")
	require.NoError(t, err)
	hope, err = s.films.GetByTitle(ctx, "A New Hope")
	require.NoError(t, err)
	assert.Equal(t, []int64{han.ID}, hope.Characters)

	falcon, err := s.starships.GetByName(ctx, "Millennium Falcon")
	require.NoError(t, err)
	assert.Equal(t, []int64{han.ID}, falcon.Pilots)
	assert.Equal(t, 3, count(t, s.db, "characters"))
}

func TestInvalidRecordIsIsolated(t *testing.T) {
	f := newFakeSWAPI(t)
	var people []map[string]any
	for i := 1; i <= 20; i++ {
		people = append(people, f.person(i, fmt.Sprintf("person %02d", i)))
	}
	delete(people[6], "name")
	f.set(swapi.People, people...)

	ing, s := newIngestor(t, f)
	rep, err := ing.Run(context.Background(), 0)
	require.NoError(t, err)

	assert.Equal(t, 20, rep.Characters.Fetched)
	assert.Equal(t, 19, rep.Characters.Inserted)
	assert.Equal(t, 1, rep.Characters.Skipped)
	assert.Equal(t, 19, count(t, s.db, "characters"))

	skipped := rep.SkippedErr()
	require.Error(t, skipped)
	assert.ErrorIs(t, skipped, swapi.ErrInvalidRecord)
}

func TestLimitStopsPagination(t *testing.T) {
	f := newFakeSWAPI(t)
	var people []map[string]any
	for i := 1; i <= 35; i++ {
		people = append(people, f.person(i, fmt.Sprintf("person %02d", i)))
	}
	f.set(swapi.People, people...)

	ing, s := newIngestor(t, f)
	rep, err := ing.Run(context.Background(), 13)
	require.NoError(t, err)

	assert.Equal(t, 13, rep.Characters.Fetched)
	assert.Equal(t, 13, count(t, s.db, "characters"))
	assert.Equal(t, 2, f.hitCount(swapi.People))
}

func TestUnresolvedReferencesAreDropped(t *testing.T) {
	f := newFakeSWAPI(t)
	f.set(swapi.People, f.person(1, "Luke"))
	f.set(swapi.Films, f.film(1, "A New Hope", 4,
		[]string{f.url("people", 1), f.url("people", 99), "not-a-url", f.url("people", 1)}, nil))

	ing, s := newIngestor(t, f)
	ctx := context.Background()
	rep, err := ing.Run(ctx, 0)
	require.NoError(t, err)
	assert.Zero(t, rep.Films.Skipped)
	assert.Equal(t, 1, rep.Films.Links)

	hope, err := s.films.GetByTitle(ctx, "A New Hope")
	require.NoError(t, err)
	require.Len(t, hope.Characters, 1)
}

func TestConstraintViolationSkipsRecord(t *testing.T) {
	f := newFakeSWAPI(t)
	f.set(swapi.Films,
		f.film(1, "A New Hope", 4, nil, nil),
		f.film(2, "A New Hope (Special Edition)", 4, nil, nil),
		f.film(3, "The Empire Strikes Back", 5, nil, nil),
	)

	ing, s := newIngestor(t, f)
	rep, err := ing.Run(context.Background(), 0)
	require.NoError(t, err)

	assert.Equal(t, 2, rep.Films.Inserted)
	assert.Equal(t, 1, rep.Films.Skipped)
	assert.Equal(t, 2, count(t, s.db, "films"))
	assert.Contains(t, rep.SkippedErr().Error(), "A New Hope (Special Edition)")
}

func TestFetchFailureKeepsEarlierPages(t *testing.T) {
	f := newFakeSWAPI(t)
	var people []map[string]any
	for i := 1; i <= 25; i++ {
		people = append(people, f.person(i, fmt.Sprintf("person %02d", i)))
	}
	f.set(swapi.People, people...)
	f.breakPage(swapi.People, 2)
	f.set(swapi.Films, f.film(1, "A New Hope", 4, []string{f.url("people", 3)}, nil))

	ing, s := newIngestor(t, f)
	rep, err := ing.Run(context.Background(), 0)
	require.NoError(t, err)

	assert.Equal(t, 10, rep.Characters.Fetched)
	assert.NotEmpty(t, rep.Characters.FetchError)
	assert.Equal(t, 10, count(t, s.db, "characters"))
	assert.Equal(t, 1, rep.Films.Inserted)
	assert.Equal(t, 1, count(t, s.db, "film_characters"))
}

func TestFirstPageFailureYieldsNothing(t *testing.T) {
	f := newFakeSWAPI(t)
	f.set(swapi.People, f.person(1, "Luke"))
	f.breakPage(swapi.People, 1)

	ing, s := newIngestor(t, f)
	rep, err := ing.Run(context.Background(), 0)
	require.NoError(t, err)
	assert.Zero(t, rep.Characters.Fetched)
	assert.Zero(t, count(t, s.db, "characters"))
}

func TestCancelledContextIsFatal(t *testing.T) {
	f := newFakeSWAPI(t)
	f.set(swapi.People, f.person(1, "Luke"))

	ing, _ := newIngestor(t, f)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rep, err := ing.Run(ctx, 0)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, rep)
	assert.False(t, rep.FinishedAt.IsZero())
}

// brokenCharacters fails every upsert after the first n with a non-record error.
type brokenCharacters struct {
	CharacterStore
	n     int
	calls int
	panic bool
}

func (b *brokenCharacters) Upsert(ctx context.Context, c *models.Character) (bool, error) {
	b.calls++
	if b.calls > b.n {
		if b.panic {
			panic("store went away")
		}
		return false, errors.New("disk I/O error")
	}
	return b.CharacterStore.Upsert(ctx, c)
}

func TestStoreFailureIsFatalAndKeepsWrites(t *testing.T) {
	f := newFakeSWAPI(t)
	f.set(swapi.People, f.person(1, "Luke"), f.person(2, "Leia"), f.person(3, "Han"))
	f.set(swapi.Films, f.film(1, "A New Hope", 4, nil, nil))

	ing, s := newIngestor(t, f)
	ing.Characters = &brokenCharacters{CharacterStore: s.characters, n: 2}

	rep, err := ing.Run(context.Background(), 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk I/O error")
	assert.Equal(t, 2, rep.Characters.Inserted)
	assert.Equal(t, 2, count(t, s.db, "characters"))
	assert.Zero(t, count(t, s.db, "films"))
}

func TestPanicIsFatal(t *testing.T) {
	f := newFakeSWAPI(t)
	f.set(swapi.People, f.person(1, "Luke"))

	ing, s := newIngestor(t, f)
	ing.Characters = &brokenCharacters{CharacterStore: s.characters, n: 0, panic: true}

	_, err := ing.Run(context.Background(), 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store went away")
}
