package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/platinummonkey/tenantgate/pkg/authz"
)

// DBStore is the SQL backed Sink and Querier over the audit_logs table
type DBStore struct {
	db  func() *sql.DB
	cfg Config
	now func() time.Time
}

// NewDBStore creates a store with cfg as read path defaults
func NewDBStore(db *sql.DB, cfg Config) *DBStore {
	return NewDBStoreFunc(func() *sql.DB { return db }, cfg)
}

// NewDBStoreFunc creates a store that asks pick for a pool on every
// statement. Used for the read path over rotating replicas.
func NewDBStoreFunc(pick func() *sql.DB, cfg Config) *DBStore {
	return &DBStore{db: pick, cfg: cfg, now: time.Now}
}

// likeEscaper makes LIKE metacharacters match literally
var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// Append inserts rec and sets rec.ID
func (s *DBStore) Append(ctx context.Context, rec *Record) error {
	details, err := json.Marshal(rec.Details)
	if err != nil {
		return fmt.Errorf("failed to encode audit details: %w", err)
	}

	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = s.now()
	}

	query := `
		INSERT INTO audit_logs (
			tenant_id, actor_user_id, action, resource, resource_id, details,
			ip_address, user_agent, request_id, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id
	`
	err = s.db().QueryRowContext(ctx, query,
		nullString(rec.TenantID),
		rec.ActorUserID,
		rec.Action,
		rec.Resource,
		nullString(rec.ResourceID),
		string(details),
		nullString(rec.IPAddress),
		nullString(rec.UserAgent),
		nullString(rec.RequestID),
		createdAt.UTC(),
	).Scan(&rec.ID)
	if err != nil {
		return fmt.Errorf("failed to insert audit record: %w", err)
	}
	return nil
}

// where builds the shared WHERE clause. Placeholders are numbered in order
// of appearance.
func (s *DBStore) where(f Filter) (Filter, string, []interface{}) {
	f, since, until := s.cfg.resolve(f, s.now().UTC())

	args := []interface{}{since}
	conds := []string{"a.created_at >= $1"}
	add := func(cond string, arg interface{}) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if !f.Until.IsZero() {
		add("a.created_at <= $%d", until)
	}
	if f.TenantID != "" {
		add("a.tenant_id = $%d", f.TenantID)
	}
	if f.Action != "" {
		add("a.action = $%d", f.Action)
	}
	if f.Resource != "" {
		add("a.resource = $%d", f.Resource)
	}
	if f.UserID != "" {
		add("a.actor_user_id = $%d", f.UserID)
	}
	if f.UserEmail != "" {
		add(`LOWER(u.email) LIKE LOWER($%d) ESCAPE '\'`, "%"+likeEscaper.Replace(f.UserEmail)+"%")
	}

	return f, " WHERE " + strings.Join(conds, " AND "), args
}

// Query returns matching records newest first
func (s *DBStore) Query(ctx context.Context, f Filter) ([]*Record, error) {
	f, where, args := s.where(f)

	query := `
		SELECT a.id, a.tenant_id, a.actor_user_id, COALESCE(u.email, ''),
			a.action, a.resource, a.resource_id, a.details,
			a.ip_address, a.user_agent, a.request_id, a.created_at
		FROM audit_logs a
		LEFT JOIN users u ON u.id = a.actor_user_id` + where +
		fmt.Sprintf(" ORDER BY a.created_at DESC, a.id DESC LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
	args = append(args, f.Limit, f.Offset)

	rows, err := s.db().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, authz.AuditQueryFailed(err)
	}
	defer rows.Close()

	records := []*Record{}
	for rows.Next() {
		var (
			rec                                   Record
			tenantID, resourceID, ip, ua, request sql.NullString
			details                               []byte
		)
		if err := rows.Scan(
			&rec.ID, &tenantID, &rec.ActorUserID, &rec.ActorEmail,
			&rec.Action, &rec.Resource, &resourceID, &details,
			&ip, &ua, &request, &rec.CreatedAt,
		); err != nil {
			return nil, authz.AuditQueryFailed(err)
		}
		rec.TenantID = tenantID.String
		rec.ResourceID = resourceID.String
		rec.IPAddress = ip.String
		rec.UserAgent = ua.String
		rec.RequestID = request.String
		rec.CreatedAt = rec.CreatedAt.UTC()

		rec.Details = map[string]interface{}{}
		if len(details) > 0 {
			if err := json.Unmarshal(details, &rec.Details); err != nil {
				return nil, authz.AuditQueryFailed(fmt.Errorf("record %d: %w", rec.ID, err))
			}
		}
		records = append(records, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, authz.AuditQueryFailed(err)
	}
	return records, nil
}

// Summary counts matching records per action and resource, most frequent first
func (s *DBStore) Summary(ctx context.Context, f Filter) ([]ActionCount, error) {
	_, where, args := s.where(f)

	query := `
		SELECT a.action, a.resource, COUNT(*) AS total
		FROM audit_logs a
		LEFT JOIN users u ON u.id = a.actor_user_id` + where + `
		GROUP BY a.action, a.resource
		ORDER BY total DESC, a.action, a.resource`

	rows, err := s.db().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, authz.AuditQueryFailed(err)
	}
	defer rows.Close()

	counts := []ActionCount{}
	for rows.Next() {
		var c ActionCount
		if err := rows.Scan(&c.Action, &c.Resource, &c.Count); err != nil {
			return nil, authz.AuditQueryFailed(err)
		}
		counts = append(counts, c)
	}
	if err := rows.Err(); err != nil {
		return nil, authz.AuditQueryFailed(err)
	}
	return counts, nil
}
