package starship

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"swcatalog/pkg/database/dbtest"
	"swcatalog/pkg/models"
)

func falcon() *models.Starship {
	cost := "100000"
	return &models.Starship{
		Name:                 "Millennium Falcon",
		Model:                "YT-1300 light freighter",
		Manufacturer:         "Corellian Engineering Corporation",
		CostInCredits:        &cost,
		Length:               "34.37",
		MaxAtmospheringSpeed: "1050",
		Crew:                 "4",
		Passengers:           "6",
		CargoCapacity:        "100000",
		Consumables:          "2 months",
		HyperdriveRating:     "0.5",
		MGLT:                 "75",
		StarshipClass:        "Light freighter",
		Created:              time.Date(2014, 12, 10, 16, 59, 45, 94000000, time.UTC),
		Edited:               time.Date(2014, 12, 20, 21, 23, 49, 880000000, time.UTC),
		URL:                  "https://swapi.dev/api/starships/10/",
	}
}

func seedCharacters(t *testing.T, db *sql.DB, names ...string) []int64 {
	t.Helper()
	var ids []int64
	for _, n := range names {
		res, err := db.Exec(`INSERT INTO characters (name, created, edited, url) VALUES (?, ?, ?, '')`,
			n, time.Now().UTC(), time.Now().UTC())
		require.NoError(t, err)
		id, err := res.LastInsertId()
		require.NoError(t, err)
		ids = append(ids, id)
	}
	return ids
}

func TestUpsertStarship(t *testing.T) {
	repo := NewRepo(dbtest.Open(t))
	ctx := context.Background()

	s := falcon()
	inserted, err := repo.Upsert(ctx, s)
	require.NoError(t, err)
	assert.True(t, inserted)

	again := falcon()
	again.CostInCredits = nil
	inserted, err = repo.Upsert(ctx, again)
	require.NoError(t, err)
	assert.False(t, inserted)
	assert.Equal(t, s.ID, again.ID)

	got, err := repo.GetByName(ctx, "Millennium Falcon")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Nil(t, got.CostInCredits)
	assert.Equal(t, "75", got.MGLT)
}

func TestSetPilotsAndCharacterSide(t *testing.T) {
	db := dbtest.Open(t)
	repo := NewRepo(db)
	ctx := context.Background()
	ids := seedCharacters(t, db, "Chewbacca", "Han Solo", "Lando")

	s := falcon()
	_, err := repo.Upsert(ctx, s)
	require.NoError(t, err)

	require.NoError(t, repo.SetPilots(ctx, s.ID, ids))
	require.NoError(t, repo.SetPilots(ctx, s.ID, ids[1:2]))

	got, err := repo.GetByID(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, ids[1:2], got.Pilots)

	var ships int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM starship_pilots WHERE character_id = ?`, ids[0]).Scan(&ships))
	assert.Zero(t, ships)
}

func TestFindStarshipByURLSuffix(t *testing.T) {
	repo := NewRepo(dbtest.Open(t))
	ctx := context.Background()

	_, err := repo.Upsert(ctx, falcon())
	require.NoError(t, err)

	got, err := repo.FindByURLSuffix(ctx, "/10/")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Millennium Falcon", got.Name)

	got, err = repo.FindByURLSuffix(ctx, "/0/")
	require.NoError(t, err)
	assert.Nil(t, got)
}
