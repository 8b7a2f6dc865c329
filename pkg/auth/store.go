package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// ErrNotFound is returned when no active user matches the subject
var ErrNotFound = errors.New("user not found")

// UserLookup loads the active user and role behind a verified subject
type UserLookup interface {
	FindActiveUserWithRole(ctx context.Context, subjectID string) (*Principal, error)
}

// Store reads users and their roles from the relational store
type Store struct {
	db func() *sql.DB
}

// NewStore creates a new user store over a single pool
func NewStore(db *sql.DB) *Store {
	return NewStoreFunc(func() *sql.DB { return db })
}

// NewStoreFunc creates a user store that asks pick for a pool on every
// query, e.g. ConnectionManager.Replica
func NewStoreFunc(pick func() *sql.DB) *Store {
	return &Store{db: pick}
}

// FindActiveUserWithRole returns the principal for subjectID.
// Inactive and missing users both yield ErrNotFound.
func (s *Store) FindActiveUserWithRole(ctx context.Context, subjectID string) (*Principal, error) {
	query := `
		SELECT u.id, u.email, u.tenant_id, u.first_name, u.last_name,
		       r.id, r.name, r.scope
		FROM users u
		JOIN roles r ON r.id = u.role_id
		WHERE u.id = $1 AND u.status = 'active'
	`

	p, err := scanPrincipal(s.db().QueryRowContext(ctx, query, subjectID))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}

	return p, nil
}

func scanPrincipal(scanner interface {
	Scan(dest ...interface{}) error
}) (*Principal, error) {
	var p Principal
	var tenantID, firstName, lastName sql.NullString
	var scope string

	err := scanner.Scan(
		&p.ID, &p.Email, &tenantID, &firstName, &lastName,
		&p.RoleID, &p.RoleName, &scope,
	)
	if err != nil {
		return nil, err
	}

	p.TenantID = tenantID.String
	p.FirstName = firstName.String
	p.LastName = lastName.String
	p.RoleScope = RoleScope(scope)
	if !p.RoleScope.Valid() {
		return nil, fmt.Errorf("role %s has unknown scope %q", p.RoleID, scope)
	}

	return &p, nil
}
