package starship

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
	Search string // case-insensitive substring of name
	Limit  int
	Offset int
}

func NewRepo(db *sql.DB) *Repo {
	return &Repo{DB: db}
}

const columns = `id, name, model, manufacturer, cost_in_credits, length, max_atmosphering_speed,
	crew, passengers, cargo_capacity, consumables, hyperdrive_rating, mglt, starship_class,
	created, edited, url`

func scan(row interface{ Scan(...any) error }) (*models.Starship, error) {
	var (
		s    models.Starship
		cost sql.NullString
	)
	if err := row.Scan(
		&s.ID, &s.Name, &s.Model, &s.Manufacturer, &cost, &s.Length, &s.MaxAtmospheringSpeed,
		&s.Crew, &s.Passengers, &s.CargoCapacity, &s.Consumables, &s.HyperdriveRating, &s.MGLT, &s.StarshipClass,
		&s.Created, &s.Edited, &s.URL,
	); err != nil {
		return nil, err
	}
	if cost.Valid {
		v := cost.String
		s.CostInCredits = &v
	}
	return &s, nil
}

func (r *Repo) getOne(ctx context.Context, where string, arg any) (*models.Starship, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+columns+` FROM starships WHERE `+where, arg)
	s, err := scan(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan starship: %w", err)
	}
	if err := r.loadPilots(ctx, s); err != nil {
		return nil, err
	}
	return s, nil
}

func (r *Repo) GetByID(ctx context.Context, id int64) (*models.Starship, error) {
	return r.getOne(ctx, `id = ?`, id)
}

func (r *Repo) GetByName(ctx context.Context, name string) (*models.Starship, error) {
	return r.getOne(ctx, `name = ?`, name)
}

func (r *Repo) FindByURLSuffix(ctx context.Context, suffix string) (*models.Starship, error) {
	return r.getOne(ctx, `url LIKE ? ESCAPE '\' ORDER BY id LIMIT 1`, database.LikeSuffix(suffix))
}

// Upsert creates or updates the starship keyed by name and sets s.ID.
// Pilot links are left alone.
func (r *Repo) Upsert(ctx context.Context, s *models.Starship) (bool, error) {
	inserted := false
	err := database.InTx(ctx, r.DB, func(tx *sql.Tx) error {
		var id int64
		err := tx.QueryRowContext(ctx, `SELECT id FROM starships WHERE name = ?`, s.Name).Scan(&id)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			id, err = insert(ctx, tx, s)
			if err != nil {
				return err
			}
			inserted = true
		case err != nil:
			return fmt.Errorf("lookup starship: %w", err)
		default:
			if err := update(ctx, tx, id, s); err != nil {
				return err
			}
		}
		s.ID = id
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("upsert starship %q: %w", s.Name, err)
	}
	return inserted, nil
}

// SetPilots replaces the starship's pilot set with ids.
func (r *Repo) SetPilots(ctx context.Context, starshipID int64, ids []int64) error {
	return database.InTx(ctx, r.DB, func(tx *sql.Tx) error {
		return database.ReplaceLinks(ctx, tx, "starship_pilots", "starship_id", "character_id", starshipID, ids)
	})
}

func (r *Repo) Create(ctx context.Context, s *models.Starship) error {
	err := database.InTx(ctx, r.DB, func(tx *sql.Tx) error {
		id, err := insert(ctx, tx, s)
		if err != nil {
			return err
		}
		s.ID = id
		return database.ReplaceLinks(ctx, tx, "starship_pilots", "starship_id", "character_id", id, s.Pilots)
	})
	if err != nil {
		return err
	}
	return r.loadPilots(ctx, s)
}

// Update overwrites the row with s.ID including its pilots. It reports
// false when no such row exists.
func (r *Repo) Update(ctx context.Context, s *models.Starship) (bool, error) {
	found := true
	err := database.InTx(ctx, r.DB, func(tx *sql.Tx) error {
		var exists int
		err := tx.QueryRowContext(ctx, `SELECT 1 FROM starships WHERE id = ?`, s.ID).Scan(&exists)
		if errors.Is(err, sql.ErrNoRows) {
			found = false
			return nil
		}
		if err != nil {
			return fmt.Errorf("lookup starship: %w", err)
		}
		if err := update(ctx, tx, s.ID, s); err != nil {
			return err
		}
		return database.ReplaceLinks(ctx, tx, "starship_pilots", "starship_id", "character_id", s.ID, s.Pilots)
	})
	if err != nil || !found {
		return found, err
	}
	return true, r.loadPilots(ctx, s)
}

func (r *Repo) Delete(ctx context.Context, id int64) (bool, error) {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM starships WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete starship: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (r *Repo) Count(ctx context.Context, q ListQuery) (int, error) {
	where, args := filter(q)
	var total int
	if err := r.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM starships`+where, args...).Scan(&total); err != nil {
		return 0, fmt.Errorf("count starships: %w", err)
	}
	return total, nil
}

func (r *Repo) List(ctx context.Context, q ListQuery) ([]models.Starship, error) {
	where, args := filter(q)
	args = append(args, q.Limit, q.Offset)

	rows, err := r.DB.QueryContext(ctx,
		`SELECT `+columns+` FROM starships`+where+` ORDER BY name ASC LIMIT ? OFFSET ?`, args...)
	if err != nil {
		return nil, fmt.Errorf("list starships: %w", err)
	}
	defer rows.Close()

	out := make([]models.Starship, 0, q.Limit)
	for rows.Next() {
		s, err := scan(rows)
		if err != nil {
			return nil, fmt.Errorf("scan starship row: %w", err)
		}
		out = append(out, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows err: %w", err)
	}
	rows.Close()

	for i := range out {
		if err := r.loadPilots(ctx, &out[i]); err != nil {
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
	return ` WHERE name LIKE ? ESCAPE '\'`, []any{database.LikeContains(s)}
}

func (r *Repo) loadPilots(ctx context.Context, s *models.Starship) error {
	ids, err := database.LinkedIDs(ctx, r.DB, "starship_pilots", "starship_id", "character_id", s.ID)
	if err != nil {
		return fmt.Errorf("load pilots: %w", err)
	}
	s.Pilots = ids
	return nil
}

func insert(ctx context.Context, q database.Querier, s *models.Starship) (int64, error) {
	stampDefaults(&s.Created, &s.Edited)
	res, err := q.ExecContext(ctx, `
		INSERT INTO starships (name, model, manufacturer, cost_in_credits, length, max_atmosphering_speed,
			crew, passengers, cargo_capacity, consumables, hyperdrive_rating, mglt, starship_class,
			created, edited, url)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, s.Name, s.Model, s.Manufacturer, s.CostInCredits, s.Length, s.MaxAtmospheringSpeed,
		s.Crew, s.Passengers, s.CargoCapacity, s.Consumables, s.HyperdriveRating, s.MGLT, s.StarshipClass,
		s.Created, s.Edited, s.URL)
	if err != nil {
		return 0, fmt.Errorf("insert starship: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("last insert id: %w", err)
	}
	return id, nil
}

func update(ctx context.Context, q database.Querier, id int64, s *models.Starship) error {
	stampDefaults(&s.Created, &s.Edited)
	if _, err := q.ExecContext(ctx, `
		UPDATE starships SET
			name = ?, model = ?, manufacturer = ?, cost_in_credits = ?, length = ?,
			max_atmosphering_speed = ?, crew = ?, passengers = ?, cargo_capacity = ?,
			consumables = ?, hyperdrive_rating = ?, mglt = ?, starship_class = ?,
			created = ?, edited = ?, url = ?
		WHERE id = ?
	`, s.Name, s.Model, s.Manufacturer, s.CostInCredits, s.Length,
		s.MaxAtmospheringSpeed, s.Crew, s.Passengers, s.CargoCapacity,
		s.Consumables, s.HyperdriveRating, s.MGLT, s.StarshipClass,
		s.Created, s.Edited, s.URL, id); err != nil {
		return fmt.Errorf("update starship %d: %w", id, err)
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
