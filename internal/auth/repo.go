package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"swcatalog/pkg/database"
)

var ErrOperatorNotFound = errors.New("operator not found")

// Operator is an account allowed to edit the catalog and trigger ingestion.
type Operator struct {
	ID           string
	Username     string
	Email        string
	PasswordHash string
	TokenVersion int
	CreatedAt    time.Time
}

type Repo struct {
	DB *sql.DB
}

func NewRepo(db *sql.DB) *Repo {
	return &Repo{DB: db}
}

const operatorColumns = `id, username, email, password_hash, token_version, created_at`

func scanOperator(row *sql.Row) (*Operator, error) {
	var o Operator
	if err := row.Scan(&o.ID, &o.Username, &o.Email, &o.PasswordHash, &o.TokenVersion, &o.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &o, nil
}

// Create inserts o. A taken username or email yields database.ErrConflict.
func (r *Repo) Create(ctx context.Context, o Operator) error {
	_, err := r.DB.ExecContext(ctx, `
		INSERT INTO operators (id, username, email, password_hash)
		VALUES (?, ?, ?, ?)
	`, o.ID, o.Username, o.Email, o.PasswordHash)
	if database.IsConstraint(err) {
		return fmt.Errorf("create operator %q: %w", o.Username, database.ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("create operator: %w", err)
	}
	return nil
}

func (r *Repo) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM operators`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count operators: %w", err)
	}
	return n, nil
}

func (r *Repo) GetByEmail(ctx context.Context, email string) (*Operator, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	o, err := scanOperator(r.DB.QueryRowContext(ctx,
		`SELECT `+operatorColumns+` FROM operators WHERE LOWER(email) = ?`, email))
	if err != nil {
		return nil, fmt.Errorf("get operator by email: %w", err)
	}
	return o, nil
}

func (r *Repo) GetByUsername(ctx context.Context, username string) (*Operator, error) {
	o, err := scanOperator(r.DB.QueryRowContext(ctx,
		`SELECT `+operatorColumns+` FROM operators WHERE username = ?`, strings.TrimSpace(username)))
	if err != nil {
		return nil, fmt.Errorf("get operator by username: %w", err)
	}
	return o, nil
}

func (r *Repo) GetByID(ctx context.Context, id string) (*Operator, error) {
	o, err := scanOperator(r.DB.QueryRowContext(ctx,
		`SELECT `+operatorColumns+` FROM operators WHERE id = ?`, id))
	if err != nil {
		return nil, fmt.Errorf("get operator by id: %w", err)
	}
	return o, nil
}

// TokenVersion returns the operator's current token version, or
// ErrOperatorNotFound.
func (r *Repo) TokenVersion(ctx context.Context, id string) (int, error) {
	var version int
	err := r.DB.QueryRowContext(ctx, `SELECT token_version FROM operators WHERE id = ?`, id).Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrOperatorNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("get token version: %w", err)
	}
	return version, nil
}

// SetPassword stores a new hash and revokes every token issued so far.
func (r *Repo) SetPassword(ctx context.Context, id, passwordHash string) error {
	return r.bump(ctx, id, `UPDATE operators SET password_hash = ?, token_version = token_version + 1 WHERE id = ?`,
		passwordHash, id)
}

// RevokeTokens invalidates every token issued so far.
func (r *Repo) RevokeTokens(ctx context.Context, id string) error {
	return r.bump(ctx, id, `UPDATE operators SET token_version = token_version + 1 WHERE id = ?`, id)
}

func (r *Repo) bump(ctx context.Context, id, query string, args ...any) error {
	res, err := r.DB.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update operator %s: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update operator rows: %w", err)
	}
	if affected == 0 {
		return ErrOperatorNotFound
	}
	return nil
}
