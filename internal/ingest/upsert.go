package ingest

import (
	"context"
	"encoding/json"

	"swcatalog/internal/swapi"
	"swcatalog/pkg/models"
)

func characterID(c *models.Character) int64 { return c.ID }
func starshipID(s *models.Starship) int64   { return s.ID }

func (in *Ingestor) applyCharacter(ctx context.Context, raw json.RawMessage) (string, bool, int, error) {
	p, err := swapi.DecodePerson(raw)
	if err != nil {
		return "", false, 0, err
	}
	c, err := p.ToModel()
	if err != nil {
		return p.Key(), false, 0, err
	}
	inserted, err := in.Characters.Upsert(ctx, &c)
	return p.Key(), inserted, 0, err
}

// applyFilm upserts the film and then replaces its character and starship
// sets with whatever the references resolve to right now.
func (in *Ingestor) applyFilm(ctx context.Context, raw json.RawMessage) (string, bool, int, error) {
	f, err := swapi.DecodeFilm(raw)
	if err != nil {
		return "", false, 0, err
	}
	m, err := f.ToModel()
	if err != nil {
		return f.Key(), false, 0, err
	}
	inserted, err := in.Films.Upsert(ctx, &m)
	if err != nil {
		return f.Key(), false, 0, err
	}

	log := in.Log.With().Str("film", f.Key()).Logger()
	chars := Resolve[models.Character](ctx, log, f.Characters, in.Characters.FindByURLSuffix, characterID)
	ships := Resolve[models.Starship](ctx, log, f.Starships, in.Starships.FindByURLSuffix, starshipID)

	if err := in.Films.SetCharacters(ctx, m.ID, chars); err != nil {
		return f.Key(), inserted, 0, err
	}
	if err := in.Films.SetStarships(ctx, m.ID, ships); err != nil {
		return f.Key(), inserted, 0, err
	}
	return f.Key(), inserted, len(chars) + len(ships), nil
}

func (in *Ingestor) applyStarship(ctx context.Context, raw json.RawMessage) (string, bool, int, error) {
	s, err := swapi.DecodeStarship(raw)
	if err != nil {
		return "", false, 0, err
	}
	m, err := s.ToModel()
	if err != nil {
		return s.Key(), false, 0, err
	}
	inserted, err := in.Starships.Upsert(ctx, &m)
	if err != nil {
		return s.Key(), false, 0, err
	}

	log := in.Log.With().Str("starship", s.Key()).Logger()
	pilots := Resolve[models.Character](ctx, log, s.Pilots, in.Characters.FindByURLSuffix, characterID)
	if err := in.Starships.SetPilots(ctx, m.ID, pilots); err != nil {
		return s.Key(), inserted, 0, err
	}
	return s.Key(), inserted, len(pilots), nil
}
