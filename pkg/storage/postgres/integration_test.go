//go:build integration

package postgres_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/platinummonkey/tenantgate/pkg/audit"
	"github.com/platinummonkey/tenantgate/pkg/auth"
	"github.com/platinummonkey/tenantgate/pkg/rbac"
	"github.com/platinummonkey/tenantgate/pkg/storage/postgres"
	"github.com/platinummonkey/tenantgate/pkg/tenancy"
)

func setupPostgres(t *testing.T) *postgres.ConnectionManager {
	t.Helper()
	ctx := context.Background()

	provider, err := testcontainers.ProviderDocker.GetProvider()
	if err != nil {
		t.Skip("Docker/Podman not available, skipping integration tests")
	}
	provider.Close()

	container, err := tcpostgres.Run(ctx, "postgres:15-alpine",
		tcpostgres.WithDatabase("tenantgate_test"),
		tcpostgres.WithUsername("tenantgate"),
		tcpostgres.WithPassword("tenantgate_test_password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	if err != nil {
		t.Skipf("Failed to start PostgreSQL container: %v", err)
	}
	t.Cleanup(func() {
		cleanupCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := container.Terminate(cleanupCtx); err != nil {
			t.Errorf("Failed to terminate container: %v", err)
		}
	})

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	cm, err := postgres.NewConnectionManager(postgres.ConnectionConfig{
		PrimaryURL: connStr,
		// The primary doubles as a replica to exercise the read path
		ReplicaURLs: []string{connStr},
		Timeout:     10 * time.Second,
	}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { cm.Close() })

	require.NoError(t, postgres.Migrate(ctx, cm.Primary(), nil))
	// Second run is a no-op
	require.NoError(t, postgres.Migrate(ctx, cm.Primary(), nil))

	seed(t, cm.Primary())
	return cm
}

func seed(t *testing.T, db *sql.DB) {
	t.Helper()
	_, err := db.Exec(`
		INSERT INTO tenants (id, name) VALUES ('T1', 'Acme'), ('T2', 'Globex');
		INSERT INTO roles (id, name, scope) VALUES
			('R-admin', 'tenant_admin', 'tenant'),
			('R-ops', 'platform_ops', 'platform');
		INSERT INTO permissions (name) VALUES ('view_customer'), ('manage_customer');
		INSERT INTO role_permissions (role_id, permission_id)
			SELECT 'R-admin', id FROM permissions WHERE name = 'view_customer';
		INSERT INTO users (id, email, first_name, last_name, tenant_id, role_id, status) VALUES
			('u1', 'ana@acme.example', 'Ana', 'Lopez', 'T1', 'R-admin', 'active'),
			('u2', 'bo@globex.example', 'Bo', NULL, 'T2', 'R-admin', 'inactive'),
			('ops', 'ops@example.com', NULL, NULL, NULL, 'R-ops', 'active');
		INSERT INTO tenant_features (tenant_id, module_name, enabled) VALUES ('T1', 'reports', TRUE);
	`)
	require.NoError(t, err)
}

func TestPostgres_Stores(t *testing.T) {
	cm := setupPostgres(t)
	ctx := context.Background()

	t.Run("users", func(t *testing.T) {
		users := auth.NewStore(cm.Replica())

		p, err := users.FindActiveUserWithRole(ctx, "u1")
		require.NoError(t, err)
		assert.Equal(t, "T1", p.TenantID)
		assert.Equal(t, auth.ScopeTenant, p.RoleScope)

		_, err = users.FindActiveUserWithRole(ctx, "u2")
		assert.ErrorIs(t, err, auth.ErrNotFound)

		ops, err := users.FindActiveUserWithRole(ctx, "ops")
		require.NoError(t, err)
		assert.True(t, ops.IsPlatform())
	})

	t.Run("grants", func(t *testing.T) {
		grants := rbac.NewStore(cm.Replica())

		ok, err := grants.HasGrant(ctx, "R-admin", "view_customer")
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = grants.HasGrant(ctx, "R-admin", "manage_customer")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("feature flags", func(t *testing.T) {
		flags := tenancy.NewStore(cm.Primary())

		enabled, err := flags.IsEnabled(ctx, "T2", "reports")
		require.NoError(t, err)
		assert.False(t, enabled)

		require.NoError(t, flags.SetEnabled(ctx, "T2", "reports", true))
		enabled, err = flags.IsEnabled(ctx, "T2", "reports")
		require.NoError(t, err)
		assert.True(t, enabled)
	})

	t.Run("audit log", func(t *testing.T) {
		store := audit.NewDBStore(cm.Primary(), audit.DefaultConfig())

		for i, action := range []string{"CREATE", "UPDATE", "UPDATE"} {
			rec := &audit.Record{
				TenantID:    "T1",
				ActorUserID: "u1",
				Action:      action,
				Resource:    "CUSTOMER",
				ResourceID:  "c-42",
				Details:     map[string]interface{}{"step": i},
				IPAddress:   "203.0.113.7",
				CreatedAt:   time.Now().UTC().Add(time.Duration(i) * time.Second),
			}
			require.NoError(t, store.Append(ctx, rec))
			assert.NotZero(t, rec.ID)
		}
		require.NoError(t, store.Append(ctx, &audit.Record{
			TenantID: "T2", ActorUserID: "u2", Action: "DELETE", Resource: "CUSTOMER",
			Details: map[string]interface{}{}, CreatedAt: time.Now().UTC(),
		}))

		records, err := store.Query(ctx, audit.Filter{TenantID: "T1", UserEmail: "ACME", Action: "update"})
		require.NoError(t, err)
		require.Len(t, records, 2)
		assert.Equal(t, "ana@acme.example", records[0].ActorEmail)
		assert.True(t, records[0].CreatedAt.After(records[1].CreatedAt))
		assert.Equal(t, float64(2), records[0].Details["step"])

		counts, err := store.Summary(ctx, audit.Filter{TenantID: "T1"})
		require.NoError(t, err)
		assert.Equal(t, []audit.ActionCount{
			{Action: "UPDATE", Resource: "CUSTOMER", Count: 2},
			{Action: "CREATE", Resource: "CUSTOMER", Count: 1},
		}, counts)
	})

	t.Run("health", func(t *testing.T) {
		assert.NoError(t, cm.HealthCheck(ctx))
		assert.Len(t, cm.AllReplicas(), 1)
	})
}
