package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Querier is satisfied by *sql.DB and *sql.Tx.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// EncodeList stores a string list as JSON text, never "null".
func EncodeList(v []string) string {
	if v == nil {
		v = []string{}
	}
	b, _ := json.Marshal(v)
	return string(b)
}

// DecodeList is the inverse of EncodeList; bad JSON yields an empty list.
func DecodeList(s string) []string {
	out := []string{}
	_ = json.Unmarshal([]byte(s), &out)
	return out
}

// LikeSuffix builds a LIKE pattern matching values that end with suffix.
// Use with ESCAPE '\'.
func LikeSuffix(suffix string) string {
	return "%" + escapeLike(suffix)
}

// LikeContains builds a LIKE pattern matching values containing s.
// Use with ESCAPE '\'.
func LikeContains(s string) string {
	return "%" + escapeLike(s) + "%"
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// ReplaceLinks rewrites a join table so that owner is linked to exactly the
// given targets. Duplicates in targets are ignored.
func ReplaceLinks(ctx context.Context, q Querier, table, ownerCol, targetCol string, owner int64, targets []int64) error {
	if _, err := q.ExecContext(ctx,
		fmt.Sprintf(`DELETE FROM %s WHERE %s = ?`, table, ownerCol), owner); err != nil {
		return fmt.Errorf("clear %s: %w", table, err)
	}
	insert := fmt.Sprintf(`INSERT OR IGNORE INTO %s (%s, %s) VALUES (?, ?)`, table, ownerCol, targetCol)
	for _, t := range targets {
		if _, err := q.ExecContext(ctx, insert, owner, t); err != nil {
			return fmt.Errorf("link %s %d -> %d: %w", table, owner, t, err)
		}
	}
	return nil
}

// LinkedIDs returns targetCol values linked to owner, ascending.
func LinkedIDs(ctx context.Context, q Querier, table, ownerCol, targetCol string, owner int64) ([]int64, error) {
	rows, err := q.QueryContext(ctx,
		fmt.Sprintf(`SELECT %s FROM %s WHERE %s = ? ORDER BY %s`, targetCol, table, ownerCol, targetCol), owner)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", table, err)
	}
	defer rows.Close()

	ids := []int64{}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan %s: %w", table, err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows %s: %w", table, err)
	}
	return ids, nil
}

// InTx runs fn inside a transaction, committing on success.
func InTx(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// MissingIDs returns the ids that have no row in table, in input order.
func MissingIDs(ctx context.Context, q Querier, table string, ids []int64) ([]int64, error) {
	var missing []int64
	query := fmt.Sprintf(`SELECT 1 FROM %s WHERE id = ?`, table)
	for _, id := range ids {
		var one int
		err := q.QueryRowContext(ctx, query, id).Scan(&one)
		if errors.Is(err, sql.ErrNoRows) {
			missing = append(missing, id)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("check %s %d: %w", table, id, err)
		}
	}
	return missing, nil
}
