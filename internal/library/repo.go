package library

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"ranobepub/pkg/models"
)

// Repo stores finished conversions in the conversions table.
type Repo struct {
	DB *sql.DB
}

func NewRepo(db *sql.DB) *Repo {
	return &Repo{DB: db}
}

// Record inserts c and returns it with ID and CreatedAt filled in.
func (r *Repo) Record(ctx context.Context, c models.Conversion) (models.Conversion, error) {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}

	_, err := r.DB.ExecContext(ctx, `
		INSERT INTO conversions (id, work_name, title, chapters, failed, path, bytes, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, c.ID, c.WorkName, c.Title, c.Chapters, c.Failed, c.Path, c.Bytes, c.CreatedAt)
	if err != nil {
		return c, fmt.Errorf("record conversion: %w", err)
	}
	return c, nil
}

// List returns conversions newest first. An empty work lists every work.
func (r *Repo) List(ctx context.Context, work string, limit, offset int) ([]models.Conversion, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	query := `
		SELECT id, work_name, title, chapters, failed, path, bytes, created_at
		FROM conversions`
	args := []any{}
	if work = strings.TrimSpace(work); work != "" {
		query += ` WHERE work_name = ?`
		args = append(args, work)
	}
	query += ` ORDER BY created_at DESC, id LIMIT ? OFFSET ?`
	args = append(args, limit, offset)

	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list conversions: %w", err)
	}
	defer rows.Close()

	out := make([]models.Conversion, 0, limit)
	for rows.Next() {
		var c models.Conversion
		if err := rows.Scan(&c.ID, &c.WorkName, &c.Title, &c.Chapters, &c.Failed, &c.Path, &c.Bytes, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan conversion row: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows err: %w", err)
	}
	return out, nil
}

func (r *Repo) Count(ctx context.Context, work string) (int, error) {
	var total int
	var err error
	if work = strings.TrimSpace(work); work == "" {
		err = r.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM conversions`).Scan(&total)
	} else {
		err = r.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM conversions WHERE work_name = ?`, work).Scan(&total)
	}
	if err != nil {
		return 0, fmt.Errorf("count conversions: %w", err)
	}
	return total, nil
}
