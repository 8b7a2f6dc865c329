package rbac

import (
	"context"
	"database/sql"
	"fmt"
)

// GrantLookup answers whether a role holds a permission
type GrantLookup interface {
	HasGrant(ctx context.Context, roleID, permission string) (bool, error)
}

// Store handles database operations for role grants
type Store struct {
	db func() *sql.DB
}

// NewStore creates a new RBAC store
func NewStore(db *sql.DB) *Store {
	return NewStoreFunc(func() *sql.DB { return db })
}

// NewStoreFunc creates a store that picks a pool per query
func NewStoreFunc(pick func() *sql.DB) *Store {
	return &Store{db: pick}
}

// HasGrant reports whether roleID is granted permission. Names match exactly.
func (s *Store) HasGrant(ctx context.Context, roleID, permission string) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1
			FROM role_permissions rp
			JOIN permissions p ON p.id = rp.permission_id
			WHERE rp.role_id = $1 AND p.name = $2
		)
	`

	var granted bool
	if err := s.db().QueryRowContext(ctx, query, roleID, permission).Scan(&granted); err != nil {
		return false, fmt.Errorf("failed to check grant: %w", err)
	}

	return granted, nil
}

// ListPermissions returns the names of all permissions granted to roleID
func (s *Store) ListPermissions(ctx context.Context, roleID string) ([]string, error) {
	query := `
		SELECT p.name
		FROM role_permissions rp
		JOIN permissions p ON p.id = rp.permission_id
		WHERE rp.role_id = $1
		ORDER BY p.name
	`

	rows, err := s.db().QueryContext(ctx, query, roleID)
	if err != nil {
		return nil, fmt.Errorf("failed to list permissions: %w", err)
	}
	defer rows.Close()

	permissions := make([]string, 0)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan permission: %w", err)
		}
		permissions = append(permissions, name)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate permissions: %w", err)
	}

	return permissions, nil
}
