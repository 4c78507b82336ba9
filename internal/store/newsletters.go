package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/starford/eihwaz/internal/apperr"
	"github.com/starford/eihwaz/internal/models"
)

// AppendNewsletter stores one archive entry stamped with the current UTC
// time. The archive is an append-only collaborator log; the namespace engine
// never touches it.
func (db *DB) AppendNewsletter(ctx context.Context, name, content string) (models.Newsletter, error) {
	ts := time.Now().UTC().Truncate(time.Second)
	res, err := db.conn.ExecContext(ctx,
		`INSERT INTO kb_newsletters (name, content, timestamp) VALUES (?, ?, ?)`,
		name, content, ts.Format(time.RFC3339))
	if err != nil {
		return models.Newsletter{}, fmt.Errorf("store: append newsletter: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return models.Newsletter{}, fmt.Errorf("store: append newsletter: %w", err)
	}
	return models.Newsletter{ID: id, Name: name, Content: content, Timestamp: ts}, nil
}

// Newsletters lists the archive newest first, content omitted.
func (db *DB) Newsletters(ctx context.Context) ([]models.Newsletter, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT id, name, timestamp FROM kb_newsletters ORDER BY id DESC`)
	if err != nil {
		return nil, fmt.Errorf("store: list newsletters: %w", err)
	}
	defer rows.Close()

	var out []models.Newsletter
	for rows.Next() {
		var n models.Newsletter
		var ts string
		if err := rows.Scan(&n.ID, &n.Name, &ts); err != nil {
			return nil, err
		}
		n.Timestamp, _ = time.Parse(time.RFC3339, ts)
		out = append(out, n)
	}
	return out, rows.Err()
}

// Newsletter fetches one archive entry including its content.
func (db *DB) Newsletter(ctx context.Context, id int64) (models.Newsletter, error) {
	var n models.Newsletter
	var ts string
	err := db.conn.QueryRowContext(ctx,
		`SELECT id, name, content, timestamp FROM kb_newsletters WHERE id = ?`, id).
		Scan(&n.ID, &n.Name, &n.Content, &ts)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Newsletter{}, fmt.Errorf("store: newsletter %d: %w", id, apperr.ErrNotFound)
	}
	if err != nil {
		return models.Newsletter{}, fmt.Errorf("store: newsletter %d: %w", id, err)
	}
	n.Timestamp, _ = time.Parse(time.RFC3339, ts)
	return n, nil
}
