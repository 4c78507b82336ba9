package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/starford/eihwaz/internal/models"
)

// Capabilities returns the stored flags for a principal. A principal without
// a record has no capabilities; that is not an error.
func (db *DB) Capabilities(ctx context.Context, principal string) (models.Capabilities, error) {
	var caps models.Capabilities
	err := db.conn.QueryRowContext(ctx,
		`SELECT can_edit, can_receive_feedback FROM permissions WHERE principal = ?`,
		principal).Scan(&caps.CanEdit, &caps.CanReceiveFeedback)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Capabilities{}, nil
	}
	if err != nil {
		return models.Capabilities{}, fmt.Errorf("store: capabilities of %q: %w", principal, err)
	}
	return caps, nil
}

// SetCapabilities stores or replaces a principal's capability record.
func (db *DB) SetCapabilities(ctx context.Context, principal string, caps models.Capabilities) error {
	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO permissions (principal, can_edit, can_receive_feedback)
		VALUES (?, ?, ?)
		ON CONFLICT(principal) DO UPDATE SET
			can_edit             = excluded.can_edit,
			can_receive_feedback = excluded.can_receive_feedback
	`, principal, caps.CanEdit, caps.CanReceiveFeedback)
	if err != nil {
		return fmt.Errorf("store: set capabilities of %q: %w", principal, err)
	}
	return nil
}
