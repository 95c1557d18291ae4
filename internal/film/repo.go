package film

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"swcatalog/pkg/database"
	"swcatalog/pkg/models"
)

type Repo struct {
	DB *sql.DB
}

type ListQuery struct {
	Search string // case-insensitive substring of title
	Limit  int
	Offset int
}

func NewRepo(db *sql.DB) *Repo {
	return &Repo{DB: db}
}

const columns = `id, title, episode_id, opening_crawl, director, producer, release_date,
	planets, species, vehicles, created, edited, url`

func scan(row interface{ Scan(...any) error }) (*models.Film, error) {
	var (
		f                          models.Film
		planets, species, vehicles string
	)
	if err := row.Scan(
		&f.ID, &f.Title, &f.EpisodeID, &f.OpeningCrawl, &f.Director, &f.Producer, &f.ReleaseDate,
		&planets, &species, &vehicles, &f.Created, &f.Edited, &f.URL,
	); err != nil {
		return nil, err
	}
	f.Planets = database.DecodeList(planets)
	f.Species = database.DecodeList(species)
	f.Vehicles = database.DecodeList(vehicles)
	return &f, nil
}

func (r *Repo) getOne(ctx context.Context, where string, arg any) (*models.Film, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+columns+` FROM films WHERE `+where, arg)
	f, err := scan(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan film: %w", err)
	}
	if err := r.loadLinks(ctx, f); err != nil {
		return nil, err
	}
	return f, nil
}

func (r *Repo) GetByID(ctx context.Context, id int64) (*models.Film, error) {
	return r.getOne(ctx, `id = ?`, id)
}

// GetByTitle looks a film up by its natural key.
func (r *Repo) GetByTitle(ctx context.Context, title string) (*models.Film, error) {
	return r.getOne(ctx, `title = ?`, title)
}

func (r *Repo) FindByURLSuffix(ctx context.Context, suffix string) (*models.Film, error) {
	return r.getOne(ctx, `url LIKE ? ESCAPE '\' ORDER BY id LIMIT 1`, database.LikeSuffix(suffix))
}

// Upsert creates or updates the film keyed by title and sets f.ID. A
// different film already holding f.EpisodeID makes it fail with a
// constraint error. Links are not touched.
func (r *Repo) Upsert(ctx context.Context, f *models.Film) (bool, error) {
	inserted := false
	err := database.InTx(ctx, r.DB, func(tx *sql.Tx) error {
		var id int64
		err := tx.QueryRowContext(ctx, `SELECT id FROM films WHERE title = ?`, f.Title).Scan(&id)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			id, err = insert(ctx, tx, f)
			if err != nil {
				return err
			}
			inserted = true
		case err != nil:
			return fmt.Errorf("lookup film: %w", err)
		default:
			if err := update(ctx, tx, id, f); err != nil {
				return err
			}
		}
		f.ID = id
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("upsert film %q: %w", f.Title, err)
	}
	return inserted, nil
}

// SetCharacters replaces the film's character set with ids.
func (r *Repo) SetCharacters(ctx context.Context, filmID int64, ids []int64) error {
	return database.InTx(ctx, r.DB, func(tx *sql.Tx) error {
		return database.ReplaceLinks(ctx, tx, "film_characters", "film_id", "character_id", filmID, ids)
	})
}

// SetStarships replaces the film's starship set with ids.
func (r *Repo) SetStarships(ctx context.Context, filmID int64, ids []int64) error {
	return database.InTx(ctx, r.DB, func(tx *sql.Tx) error {
		return database.ReplaceLinks(ctx, tx, "film_starships", "film_id", "starship_id", filmID, ids)
	})
}

// Create inserts f together with its character and starship links.
func (r *Repo) Create(ctx context.Context, f *models.Film) error {
	err := database.InTx(ctx, r.DB, func(tx *sql.Tx) error {
		id, err := insert(ctx, tx, f)
		if err != nil {
			return err
		}
		f.ID = id
		return writeLinks(ctx, tx, f)
	})
	if err != nil {
		return err
	}
	return r.loadLinks(ctx, f)
}

// Update overwrites the row with f.ID including its links. It reports false
// when no such row exists.
func (r *Repo) Update(ctx context.Context, f *models.Film) (bool, error) {
	found := true
	err := database.InTx(ctx, r.DB, func(tx *sql.Tx) error {
		var exists int
		err := tx.QueryRowContext(ctx, `SELECT 1 FROM films WHERE id = ?`, f.ID).Scan(&exists)
		if errors.Is(err, sql.ErrNoRows) {
			found = false
			return nil
		}
		if err != nil {
			return fmt.Errorf("lookup film: %w", err)
		}
		if err := update(ctx, tx, f.ID, f); err != nil {
			return err
		}
		return writeLinks(ctx, tx, f)
	})
	if err != nil || !found {
		return found, err
	}
	return true, r.loadLinks(ctx, f)
}

func (r *Repo) Delete(ctx context.Context, id int64) (bool, error) {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM films WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete film: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (r *Repo) Count(ctx context.Context, q ListQuery) (int, error) {
	where, args := filter(q)
	var total int
	if err := r.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM films`+where, args...).Scan(&total); err != nil {
		return 0, fmt.Errorf("count films: %w", err)
	}
	return total, nil
}

func (r *Repo) List(ctx context.Context, q ListQuery) ([]models.Film, error) {
	where, args := filter(q)
	args = append(args, q.Limit, q.Offset)

	rows, err := r.DB.QueryContext(ctx,
		`SELECT `+columns+` FROM films`+where+` ORDER BY title ASC LIMIT ? OFFSET ?`, args...)
	if err != nil {
		return nil, fmt.Errorf("list films: %w", err)
	}
	defer rows.Close()

	out := make([]models.Film, 0, q.Limit)
	for rows.Next() {
		f, err := scan(rows)
		if err != nil {
			return nil, fmt.Errorf("scan film row: %w", err)
		}
		out = append(out, *f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows err: %w", err)
	}
	rows.Close()

	for i := range out {
		if err := r.loadLinks(ctx, &out[i]); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func filter(q ListQuery) (string, []any) {
	s := strings.TrimSpace(q.Search)
	if s == "" {
		return "", nil
	}
	return ` WHERE title LIKE ? ESCAPE '\'`, []any{database.LikeContains(s)}
}

func (r *Repo) loadLinks(ctx context.Context, f *models.Film) error {
	chars, err := database.LinkedIDs(ctx, r.DB, "film_characters", "film_id", "character_id", f.ID)
	if err != nil {
		return fmt.Errorf("load film characters: %w", err)
	}
	ships, err := database.LinkedIDs(ctx, r.DB, "film_starships", "film_id", "starship_id", f.ID)
	if err != nil {
		return fmt.Errorf("load film starships: %w", err)
	}
	f.Characters = chars
	f.Starships = ships
	return nil
}

func writeLinks(ctx context.Context, tx *sql.Tx, f *models.Film) error {
	if err := database.ReplaceLinks(ctx, tx, "film_characters", "film_id", "character_id", f.ID, f.Characters); err != nil {
		return err
	}
	return database.ReplaceLinks(ctx, tx, "film_starships", "film_id", "starship_id", f.ID, f.Starships)
}

func insert(ctx context.Context, q database.Querier, f *models.Film) (int64, error) {
	stampDefaults(&f.Created, &f.Edited)
	res, err := q.ExecContext(ctx, `
		INSERT INTO films (title, episode_id, opening_crawl, director, producer, release_date,
			planets, species, vehicles, created, edited, url)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, f.Title, f.EpisodeID, f.OpeningCrawl, f.Director, f.Producer, f.ReleaseDate,
		database.EncodeList(f.Planets), database.EncodeList(f.Species), database.EncodeList(f.Vehicles),
		f.Created, f.Edited, f.URL)
	if err != nil {
		return 0, fmt.Errorf("insert film: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("last insert id: %w", err)
	}
	return id, nil
}

func update(ctx context.Context, q database.Querier, id int64, f *models.Film) error {
	stampDefaults(&f.Created, &f.Edited)
	if _, err := q.ExecContext(ctx, `
		UPDATE films SET
			title = ?, episode_id = ?, opening_crawl = ?, director = ?, producer = ?,
			release_date = ?, planets = ?, species = ?, vehicles = ?,
			created = ?, edited = ?, url = ?
		WHERE id = ?
	`, f.Title, f.EpisodeID, f.OpeningCrawl, f.Director, f.Producer,
		f.ReleaseDate, database.EncodeList(f.Planets), database.EncodeList(f.Species), database.EncodeList(f.Vehicles),
		f.Created, f.Edited, f.URL, id); err != nil {
		return fmt.Errorf("update film %d: %w", id, err)
	}
	return nil
}

func stampDefaults(created, edited *time.Time) {
	now := time.Now().UTC()
	if created.IsZero() {
		*created = now
	}
	if edited.IsZero() {
		*edited = now
	}
}
