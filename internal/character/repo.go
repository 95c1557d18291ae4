package character

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

const columns = `id, name, birth_year, eye_color, gender, hair_color, height, mass, skin_color,
	homeworld, species, vehicles, created, edited, url`

func scan(row interface{ Scan(...any) error }) (*models.Character, error) {
	var (
		c        models.Character
		species  string
		vehicles string
	)
	if err := row.Scan(
		&c.ID, &c.Name, &c.BirthYear, &c.EyeColor, &c.Gender, &c.HairColor, &c.Height, &c.Mass,
		&c.SkinColor, &c.Homeworld, &species, &vehicles, &c.Created, &c.Edited, &c.URL,
	); err != nil {
		return nil, err
	}
	c.Species = database.DecodeList(species)
	c.Vehicles = database.DecodeList(vehicles)
	return &c, nil
}

func (r *Repo) getOne(ctx context.Context, where string, arg any) (*models.Character, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+columns+` FROM characters WHERE `+where, arg)
	c, err := scan(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan character: %w", err)
	}
	if err := r.loadStarships(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

func (r *Repo) GetByID(ctx context.Context, id int64) (*models.Character, error) {
	return r.getOne(ctx, `id = ?`, id)
}

// GetByName looks a character up by its natural key.
func (r *Repo) GetByName(ctx context.Context, name string) (*models.Character, error) {
	return r.getOne(ctx, `name = ?`, name)
}

// FindByURLSuffix returns the first character (lowest id) whose stored url
// ends with suffix.
func (r *Repo) FindByURLSuffix(ctx context.Context, suffix string) (*models.Character, error) {
	return r.getOne(ctx, `url LIKE ? ESCAPE '\' ORDER BY id LIMIT 1`, database.LikeSuffix(suffix))
}

// Upsert creates or updates the character keyed by name and sets c.ID.
// It reports whether a new row was inserted.
func (r *Repo) Upsert(ctx context.Context, c *models.Character) (bool, error) {
	inserted := false
	err := database.InTx(ctx, r.DB, func(tx *sql.Tx) error {
		var id int64
		err := tx.QueryRowContext(ctx, `SELECT id FROM characters WHERE name = ?`, c.Name).Scan(&id)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			id, err = insert(ctx, tx, c)
			if err != nil {
				return err
			}
			inserted = true
		case err != nil:
			return fmt.Errorf("lookup character: %w", err)
		default:
			if err := update(ctx, tx, id, c); err != nil {
				return err
			}
		}
		c.ID = id
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("upsert character %q: %w", c.Name, err)
	}
	return inserted, nil
}

func (r *Repo) Create(ctx context.Context, c *models.Character) error {
	id, err := insert(ctx, r.DB, c)
	if err != nil {
		return err
	}
	c.ID = id
	return r.loadStarships(ctx, c)
}

// Update overwrites every attribute of the row with c.ID. It reports false
// when no such row exists.
func (r *Repo) Update(ctx context.Context, c *models.Character) (bool, error) {
	var exists int
	err := r.DB.QueryRowContext(ctx, `SELECT 1 FROM characters WHERE id = ?`, c.ID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("lookup character: %w", err)
	}
	if err := update(ctx, r.DB, c.ID, c); err != nil {
		return false, err
	}
	return true, r.loadStarships(ctx, c)
}

func (r *Repo) Delete(ctx context.Context, id int64) (bool, error) {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM characters WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete character: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (r *Repo) Count(ctx context.Context, q ListQuery) (int, error) {
	where, args := filter(q)
	var total int
	if err := r.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM characters`+where, args...).Scan(&total); err != nil {
		return 0, fmt.Errorf("count characters: %w", err)
	}
	return total, nil
}

func (r *Repo) List(ctx context.Context, q ListQuery) ([]models.Character, error) {
	where, args := filter(q)
	args = append(args, q.Limit, q.Offset)

	rows, err := r.DB.QueryContext(ctx,
		`SELECT `+columns+` FROM characters`+where+` ORDER BY name ASC LIMIT ? OFFSET ?`, args...)
	if err != nil {
		return nil, fmt.Errorf("list characters: %w", err)
	}
	defer rows.Close()

	out := make([]models.Character, 0, q.Limit)
	for rows.Next() {
		c, err := scan(rows)
		if err != nil {
			return nil, fmt.Errorf("scan character row: %w", err)
		}
		out = append(out, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows err: %w", err)
	}
	rows.Close()

	for i := range out {
		if err := r.loadStarships(ctx, &out[i]); err != nil {
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

func (r *Repo) loadStarships(ctx context.Context, c *models.Character) error {
	ids, err := database.LinkedIDs(ctx, r.DB, "starship_pilots", "character_id", "starship_id", c.ID)
	if err != nil {
		return fmt.Errorf("load piloted starships: %w", err)
	}
	c.Starships = ids
	return nil
}

func insert(ctx context.Context, q database.Querier, c *models.Character) (int64, error) {
	stampDefaults(&c.Created, &c.Edited)
	res, err := q.ExecContext(ctx, `
		INSERT INTO characters (name, birth_year, eye_color, gender, hair_color, height, mass,
			skin_color, homeworld, species, vehicles, created, edited, url)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, c.Name, c.BirthYear, c.EyeColor, c.Gender, c.HairColor, c.Height, c.Mass,
		c.SkinColor, c.Homeworld, database.EncodeList(c.Species), database.EncodeList(c.Vehicles),
		c.Created, c.Edited, c.URL)
	if err != nil {
		return 0, fmt.Errorf("insert character: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("last insert id: %w", err)
	}
	return id, nil
}

func update(ctx context.Context, q database.Querier, id int64, c *models.Character) error {
	stampDefaults(&c.Created, &c.Edited)
	if _, err := q.ExecContext(ctx, `
		UPDATE characters SET
			name = ?, birth_year = ?, eye_color = ?, gender = ?, hair_color = ?, height = ?,
			mass = ?, skin_color = ?, homeworld = ?, species = ?, vehicles = ?,
			created = ?, edited = ?, url = ?
		WHERE id = ?
	`, c.Name, c.BirthYear, c.EyeColor, c.Gender, c.HairColor, c.Height,
		c.Mass, c.SkinColor, c.Homeworld, database.EncodeList(c.Species), database.EncodeList(c.Vehicles),
		c.Created, c.Edited, c.URL, id); err != nil {
		return fmt.Errorf("update character %d: %w", id, err)
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
