//go:build integration && postgres

package httpapi

import (
	"database/sql"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/require"

	app "github.com/axomx/reward-ledger/internal/app"
	"github.com/axomx/reward-ledger/internal/app/storage/postgres"
	"github.com/axomx/reward-ledger/internal/middleware"
	"github.com/axomx/reward-ledger/internal/platform/migrations"
	"github.com/axomx/reward-ledger/pkg/logger"
	"github.com/axomx/reward-ledger/pkg/testutil"
)

// Integration test against Postgres to ensure migrations and the core flows
// work with persistence.
func TestIntegrationPostgres(t *testing.T) {
	_ = godotenv.Load() // allow .env for local runs
	dsn := os.Getenv("TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("TEST_POSTGRES_DSN not set; skipping Postgres integration")
	}

	db, err := sql.Open("postgres", dsn)
	require.NoError(t, err)
	defer db.Close()
	require.NoError(t, migrations.Up(db))
	t.Cleanup(func() { _ = migrations.Down(db) })

	clock := testutil.NewManualClock(time.Now().UTC())
	application, err := app.New(app.Stores{Ledger: postgres.New(db)}, app.Options{Clock: clock.Now}, logger.Discard())
	require.NoError(t, err)

	f := &fixture{
		t:       t,
		app:     application,
		clock:   clock,
		gateway: &testutil.StubGateway{},
		handler: NewHandler(application, Config{
			Admin: middleware.NewAdminAuth(adminSecret, "", logger.Discard()),
		}, logger.Discard()),
	}

	wallet := testutil.Wallet(1001)
	f.auth(wallet, "")

	rec := f.do(http.MethodPost, "/v1/wallets/"+wallet+"/vault/deposits",
		map[string]any{"plan_type": "30_DAYS", "amount": "1000", "tx_hash": "0xfeed01"}, "")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = f.do(http.MethodPost, "/v1/wallets/"+wallet+"/vault/deposits",
		map[string]any{"plan_type": "30_DAYS", "amount": "1000", "tx_hash": "0xFEED01"}, "")
	require.Equal(t, http.StatusConflict, rec.Code)

	rec = f.do(http.MethodPost, "/v1/admin/pool/fund", map[string]any{"revenue": "100"}, f.adminToken())
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}
