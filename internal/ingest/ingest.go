// Package ingest mirrors SWAPI characters, films and starships into the
// local catalog.
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/rs/zerolog"

	"swcatalog/internal/swapi"
	"swcatalog/pkg/database"
	"swcatalog/pkg/models"
)

type Kind string

const (
	KindCharacter Kind = "character"
	KindFilm      Kind = "film"
	KindStarship  Kind = "starship"
)

// Fetcher yields the raw records of one upstream collection.
type Fetcher interface {
	Records(ctx context.Context, collection string, limit int) iter.Seq2[json.RawMessage, error]
}

type CharacterStore interface {
	Upsert(ctx context.Context, c *models.Character) (bool, error)
	FindByURLSuffix(ctx context.Context, suffix string) (*models.Character, error)
}

type FilmStore interface {
	Upsert(ctx context.Context, f *models.Film) (bool, error)
	SetCharacters(ctx context.Context, filmID int64, ids []int64) error
	SetStarships(ctx context.Context, filmID int64, ids []int64) error
}

type StarshipStore interface {
	Upsert(ctx context.Context, s *models.Starship) (bool, error)
	FindByURLSuffix(ctx context.Context, suffix string) (*models.Starship, error)
	SetPilots(ctx context.Context, starshipID int64, ids []int64) error
}

// Ingestor runs one full pass: characters, then films, then starships.
type Ingestor struct {
	Source     Fetcher
	Characters CharacterStore
	Films      FilmStore
	Starships  StarshipStore
	Log        zerolog.Logger
	Metrics    *Metrics
}

// KindReport counts what happened to one collection.
type KindReport struct {
	Kind       Kind   `json:"kind"`
	Fetched    int    `json:"fetched"`
	Inserted   int    `json:"inserted"`
	Updated    int    `json:"updated"`
	Skipped    int    `json:"skipped"`
	Links      int    `json:"links"`
	FetchError string `json:"fetch_error,omitempty"`
}

type Report struct {
	Characters KindReport `json:"characters"`
	Films      KindReport `json:"films"`
	Starships  KindReport `json:"starships"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt time.Time  `json:"finished_at"`

	skipped *multierror.Error
}

// SkippedErr aggregates the errors of every skipped record, or nil.
func (r *Report) SkippedErr() error {
	return r.skipped.ErrorOrNil()
}

func (r *Report) Skipped() int {
	return r.Characters.Skipped + r.Films.Skipped + r.Starships.Skipped
}

func (r *Report) Fetched() int {
	return r.Characters.Fetched + r.Films.Fetched + r.Starships.Fetched
}

// applyFunc stores one raw record and returns its natural key, whether it
// was new, and how many links were written.
type applyFunc func(ctx context.Context, raw json.RawMessage) (key string, inserted bool, links int, err error)

// Run ingests every collection, at most limit records each (limit <= 0
// means all). Skipped records and truncated collections do not fail the
// run; the returned error is set only when the run could not finish:
// cancellation, a store failure outside a single record, or a panic. The
// report is returned either way and reflects the writes made.
func (in *Ingestor) Run(ctx context.Context, limit int) (rep *Report, err error) {
	rep = &Report{
		Characters: KindReport{Kind: KindCharacter},
		Films:      KindReport{Kind: KindFilm},
		Starships:  KindReport{Kind: KindStarship},
		StartedAt:  time.Now().UTC(),
	}
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("ingest panic: %v", p)
		}
		rep.FinishedAt = time.Now().UTC()
	}()

	steps := []struct {
		collection string
		report     *KindReport
		apply      applyFunc
	}{
		{swapi.People, &rep.Characters, in.applyCharacter},
		{swapi.Films, &rep.Films, in.applyFilm},
		{swapi.Starships, &rep.Starships, in.applyStarship},
	}
	for _, s := range steps {
		if err := in.ingestKind(ctx, rep, s.report, s.collection, limit, s.apply); err != nil {
			return rep, err
		}
	}

	in.Log.Info().
		Int("fetched", rep.Fetched()).
		Int("skipped", rep.Skipped()).
		Dur("took", time.Since(rep.StartedAt)).
		Msg("ingestion finished")
	return rep, nil
}

func (in *Ingestor) ingestKind(ctx context.Context, rep *Report, kr *KindReport, collection string, limit int, apply applyFunc) error {
	log := in.Log.With().Str("kind", string(kr.Kind)).Logger()

	for raw, err := range in.Source.Records(ctx, collection, limit) {
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return fmt.Errorf("ingest %s: %w", kr.Kind, ctxErr)
			}
			kr.FetchError = err.Error()
			in.Metrics.RecordFetchError(kr.Kind)
			log.Error().Err(err).Int("fetched", kr.Fetched).Msg("pagination stopped early, keeping fetched records")
			break
		}
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("ingest %s: %w", kr.Kind, err)
		}
		kr.Fetched++

		key, inserted, links, err := apply(ctx, raw)
		switch {
		case err == nil:
			kr.Links += links
			if inserted {
				kr.Inserted++
				in.Metrics.RecordRecord(kr.Kind, RecordInserted)
			} else {
				kr.Updated++
				in.Metrics.RecordRecord(kr.Kind, RecordUpdated)
			}
		case skippable(err):
			kr.Skipped++
			in.Metrics.RecordRecord(kr.Kind, RecordSkipped)
			rep.skipped = multierror.Append(rep.skipped, fmt.Errorf("%s #%d %q: %w", kr.Kind, kr.Fetched, key, err))
			log.Warn().Err(err).Str("key", key).Int("index", kr.Fetched).Msg("skipping record")
		default:
			return fmt.Errorf("ingest %s %q: %w", kr.Kind, key, err)
		}
	}

	log.Info().
		Int("fetched", kr.Fetched).
		Int("inserted", kr.Inserted).
		Int("updated", kr.Updated).
		Int("skipped", kr.Skipped).
		Int("links", kr.Links).
		Msg("collection ingested")
	return nil
}

// skippable reports whether err is scoped to a single record.
func skippable(err error) bool {
	return errors.Is(err, swapi.ErrInvalidRecord) || database.IsConstraint(err)
}
