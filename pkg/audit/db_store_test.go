package audit

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/tenantgate/pkg/authz"
)

var storeNow = time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	// :memory: databases are per connection
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(`
		CREATE TABLE users (
			id TEXT PRIMARY KEY,
			email TEXT NOT NULL
		);

		CREATE TABLE audit_logs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			tenant_id TEXT,
			actor_user_id TEXT NOT NULL,
			action TEXT NOT NULL,
			resource TEXT NOT NULL,
			resource_id TEXT,
			details TEXT NOT NULL DEFAULT '{}',
			ip_address TEXT,
			user_agent TEXT,
			request_id TEXT,
			created_at TIMESTAMP NOT NULL
		);

		INSERT INTO users (id, email) VALUES
			('u1', 'ana@t1.example'),
			('u2', 'bo@t2.example');
	`)
	require.NoError(t, err)
	return db
}

func newTestStore(t *testing.T) *DBStore {
	t.Helper()
	store := NewDBStore(setupTestDB(t), DefaultConfig())
	store.now = func() time.Time { return storeNow }

	seed := []*Record{
		{TenantID: "T1", ActorUserID: "u1", Action: "CREATE", Resource: "CUSTOMER", ResourceID: "c-1",
			Details: map[string]interface{}{"step": 1}, IPAddress: "203.0.113.7", RequestID: "req-1",
			CreatedAt: storeNow.Add(-1 * time.Hour)},
		{TenantID: "T1", ActorUserID: "u1", Action: "UPDATE", Resource: "CUSTOMER",
			Details: map[string]interface{}{}, CreatedAt: storeNow.Add(-2 * time.Hour)},
		{TenantID: "T2", ActorUserID: "u2", Action: "UPDATE", Resource: "INVOICE", ResourceID: "i-9",
			Details: map[string]interface{}{}, CreatedAt: storeNow.Add(-3 * time.Hour)},
		{TenantID: "T1", ActorUserID: "u1", Action: "DELETE", Resource: "CUSTOMER", ResourceID: "c-0",
			Details: map[string]interface{}{}, CreatedAt: storeNow.AddDate(0, 0, -40)},
	}
	for _, rec := range seed {
		require.NoError(t, store.Append(context.Background(), rec))
		require.NotZero(t, rec.ID)
	}
	return store
}

func actions(records []*Record) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.Action + " " + r.Resource
	}
	return out
}

func TestDBStore_Query(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	t.Run("default window newest first", func(t *testing.T) {
		records, err := store.Query(ctx, Filter{})
		require.NoError(t, err)
		assert.Equal(t, []string{"CREATE CUSTOMER", "UPDATE CUSTOMER", "UPDATE INVOICE"}, actions(records))

		first := records[0]
		assert.Equal(t, "ana@t1.example", first.ActorEmail)
		assert.Equal(t, "T1", first.TenantID)
		assert.Equal(t, "c-1", first.ResourceID)
		assert.Equal(t, "203.0.113.7", first.IPAddress)
		assert.Equal(t, "req-1", first.RequestID)
		assert.Equal(t, float64(1), first.Details["step"])
		assert.True(t, first.CreatedAt.Equal(storeNow.Add(-1*time.Hour)))

		assert.Empty(t, records[1].ResourceID)
	})

	tests := []struct {
		name   string
		filter Filter
		want   []string
	}{
		{"action is case-insensitive", Filter{Action: "update"}, []string{"UPDATE CUSTOMER", "UPDATE INVOICE"}},
		{"resource", Filter{Resource: " invoice "}, []string{"UPDATE INVOICE"}},
		{"tenant", Filter{TenantID: "T2"}, []string{"UPDATE INVOICE"}},
		{"user id", Filter{UserID: "u1"}, []string{"CREATE CUSTOMER", "UPDATE CUSTOMER"}},
		{"email substring", Filter{UserEmail: "T2.EX"}, []string{"UPDATE INVOICE"}},
		{"percent matches literally", Filter{UserEmail: "%"}, []string{}},
		{"underscore matches literally", Filter{UserEmail: "@t_.example"}, []string{}},
		{"backslash matches literally", Filter{UserEmail: `\`}, []string{}},
		{"wider window", Filter{SinceDays: 60, TenantID: "T1"}, []string{"CREATE CUSTOMER", "UPDATE CUSTOMER", "DELETE CUSTOMER"}},
		{"until", Filter{Until: storeNow.Add(-90 * time.Minute)}, []string{"UPDATE CUSTOMER", "UPDATE INVOICE"}},
		{"explicit since", Filter{Since: storeNow.Add(-150 * time.Minute)}, []string{"CREATE CUSTOMER", "UPDATE CUSTOMER"}},
		{"limit", Filter{Limit: 2}, []string{"CREATE CUSTOMER", "UPDATE CUSTOMER"}},
		{"offset", Filter{Limit: 2, Offset: 2}, []string{"UPDATE INVOICE"}},
		{"no match", Filter{Action: "EXPORT"}, []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			records, err := store.Query(ctx, tt.filter)
			require.NoError(t, err)
			assert.Equal(t, tt.want, actions(records))
		})
	}
}

func TestDBStore_Summary(t *testing.T) {
	store := newTestStore(t)

	counts, err := store.Summary(context.Background(), Filter{})
	require.NoError(t, err)
	assert.Equal(t, []ActionCount{
		{Action: "CREATE", Resource: "CUSTOMER", Count: 1},
		{Action: "UPDATE", Resource: "CUSTOMER", Count: 1},
		{Action: "UPDATE", Resource: "INVOICE", Count: 1},
	}, counts)

	counts, err = store.Summary(context.Background(), Filter{SinceDays: 60, Resource: "customer", TenantID: "T1"})
	require.NoError(t, err)
	assert.Len(t, counts, 3)
}

func TestConfig_Resolve(t *testing.T) {
	cfg := DefaultConfig()

	f, since, until := cfg.resolve(Filter{Action: " login "}, storeNow)
	assert.Equal(t, 30, f.SinceDays)
	assert.Equal(t, 1000, f.Limit)
	assert.Equal(t, "LOGIN", f.Action)
	assert.Equal(t, storeNow, until)
	assert.Equal(t, storeNow.AddDate(0, 0, -30), since)

	f, _, _ = cfg.resolve(Filter{Limit: 50000, Offset: -3}, storeNow)
	assert.Equal(t, 10000, f.Limit)
	assert.Zero(t, f.Offset)
}

func TestDBStore_QueryErrors(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	store := NewDBStore(db, DefaultConfig())

	mock.ExpectQuery("SELECT a.id").WillReturnError(errors.New("connection refused"))
	_, err = store.Query(context.Background(), Filter{})
	require.Error(t, err)
	assert.Equal(t, authz.CodeAuditQueryFailed, authz.CodeOf(err))

	mock.ExpectQuery("SELECT a.action, a.resource, COUNT").WillReturnError(errors.New("timeout"))
	_, err = store.Summary(context.Background(), Filter{})
	assert.Equal(t, authz.CodeAuditQueryFailed, authz.CodeOf(err))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDBStore_AppendError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	store := NewDBStore(db, DefaultConfig())

	mock.ExpectQuery("INSERT INTO audit_logs").
		WithArgs(sql.NullString{}, "u1", "UPDATE", "CUSTOMER", sql.NullString{}, `{}`,
			sql.NullString{}, sql.NullString{}, sql.NullString{}, storeNow).
		WillReturnError(errors.New("disk full"))

	err = store.Append(context.Background(), &Record{
		ActorUserID: "u1", Action: "UPDATE", Resource: "CUSTOMER",
		Details: map[string]interface{}{}, CreatedAt: storeNow,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to insert audit record")
	assert.NoError(t, mock.ExpectationsWereMet())
}
