// Package e2e runs against live backends started with docker compose.
// Set E2E_ENABLED=1 to run it; it is skipped otherwise.
package e2e

import (
	"context"
	"fmt"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"license-verification/internal/common/camunda"
	"license-verification/internal/common/config"
	"license-verification/internal/common/database"
	apphttp "license-verification/internal/common/http"
	"license-verification/internal/common/logger"
	"license-verification/internal/common/notify"
	"license-verification/internal/models"
	"license-verification/internal/recordstore"
	"license-verification/internal/validationapi"
	"license-verification/internal/workers/verification/stage"
	thirdpartyvalidation "license-verification/internal/workers/verification/third-party-validation"
)

func requireE2E(t *testing.T) *config.Config {
	t.Helper()
	if os.Getenv("E2E_ENABLED") == "" {
		t.Skip("set E2E_ENABLED=1 to run against live services")
	}

	cfg := &config.Config{}
	cfg.Camunda.BrokerAddress = envOr("ZEEBE_ADDRESS", "localhost:26500")
	cfg.Camunda.RequestTimeout = 10000
	cfg.Database.Postgres = config.PostgresConfig{
		Host:           envOr("POSTGRES_HOST", "localhost"),
		Port:           5432,
		Database:       envOr("POSTGRES_DB", "license_verification"),
		User:           envOr("DB_USER", "postgres"),
		Password:       envOr("DB_PASSWORD", "postgres"),
		MaxConnections: 5,
		MaxIdle:        1,
		SSLMode:        "disable",
	}
	cfg.Database.Redis.Address = envOr("REDIS_ADDRESS", "localhost:6379")
	cfg.Database.Elasticsearch.URL = envOr("ELASTICSEARCH_URL", "http://localhost:9200")
	return cfg
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// ==========================
// 1. Service Connectivity
// ==========================

func TestServiceConnectivity(t *testing.T) {
	cfg := requireE2E(t)
	ctx := context.Background()

	pg, err := database.NewPostgres(cfg.Database.Postgres)
	require.NoError(t, err)
	defer pg.Close()

	rdb := database.NewRedis(cfg.Database.Redis)
	defer rdb.Close()

	es, err := database.NewElasticsearch(cfg.Database.Elasticsearch)
	require.NoError(t, err)

	zeebe, err := camunda.NewClientWithConfig(ctx, camunda.ConfigFrom(cfg.Camunda))
	require.NoError(t, err, "zeebe gateway unreachable")
	defer zeebe.Close()

	assert.NoError(t, database.PingAll(ctx, 10*time.Second, pg, rdb, es, zeebe))
}

// ==========================
// 2. Record Stores
// ==========================

func exerciseStore(t *testing.T, store recordstore.Store) {
	t.Helper()
	ctx := context.Background()
	id := "e2e-" + uuid.NewString()

	claim := models.ClaimFields{
		models.FieldDocumentNumber: "D1234567",
		models.FieldFirstName:      "JANE",
		models.FieldLastName:       "DOE",
	}
	require.NoError(t, store.UpsertClaim(ctx, id, claim))
	require.NoError(t, store.SetVerdict(ctx, id, models.FieldFaceMatch, true))
	require.NoError(t, store.SetVerdict(ctx, id, models.FieldDetailsMatch, false))

	// a second claim write leaves the verdicts alone
	require.NoError(t, store.UpsertClaim(ctx, id, claim))

	rec, err := store.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "D1234567", rec.Claim[models.FieldDocumentNumber])
	require.NotNil(t, rec.FaceMatch)
	assert.True(t, *rec.FaceMatch)
	require.NotNil(t, rec.DetailsMatch)
	assert.False(t, *rec.DetailsMatch)
	assert.Nil(t, rec.ThirdPartyValidation)
	assert.True(t, rec.Halted())

	require.NoError(t, store.MarkAborted(ctx, id, "compare-faces", "FACE_COMPARISON_FAILED: throttled"))
	require.NoError(t, store.ClearAbort(ctx, id, "compare-details"))
	rec, err = store.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "compare-faces", rec.AbortedStage)

	require.NoError(t, store.ClearAbort(ctx, id, "compare-faces"))
	rec, err = store.Get(ctx, id)
	require.NoError(t, err)
	assert.Empty(t, rec.AbortedStage)

	_, err = store.Get(ctx, "e2e-missing-"+uuid.NewString())
	assert.Error(t, err)
}

func TestPostgresRecordStore(t *testing.T) {
	cfg := requireE2E(t)

	pg, err := database.NewPostgres(cfg.Database.Postgres)
	require.NoError(t, err)
	defer pg.Close()

	store := recordstore.NewPostgresStore(pg.DB)
	require.NoError(t, store.EnsureSchema(context.Background()))

	exerciseStore(t, store)
}

func TestRedisRecordStore(t *testing.T) {
	cfg := requireE2E(t)

	rdb := database.NewRedis(cfg.Database.Redis)
	defer rdb.Close()

	exerciseStore(t, recordstore.NewRedisStore(rdb.Client, "e2e:"))
}

// ==========================
// 3. Third-Party Validation
// ==========================

func TestThirdPartyValidation_AgainstValidationAPI(t *testing.T) {
	cfg := requireE2E(t)
	ctx := context.Background()

	rdb := database.NewRedis(cfg.Database.Redis)
	defer rdb.Close()
	store := recordstore.NewRedisStore(rdb.Client, "e2e:")

	srv := httptest.NewServer(validationapi.NewHandler([]string{"D0000000"}, logger.NewTestLogger(t)).Router())
	defer srv.Close()

	notifier := &notify.MemoryNotifier{}
	h := thirdpartyvalidation.NewHandler(
		&thirdpartyvalidation.Config{URL: srv.URL + "/validate", RequestTimeout: 5 * time.Second},
		apphttp.NewClient(5*time.Second),
		stage.Deps{Store: store, Notifier: notifier},
		logger.NewTestLogger(t),
	)

	for _, tc := range []struct {
		document string
		want     bool
	}{
		{document: "D1234567", want: true},
		{document: "D0000000", want: false},
	} {
		t.Run(tc.document, func(t *testing.T) {
			id := fmt.Sprintf("e2e-%s-%s", tc.document, uuid.NewString())
			require.NoError(t, store.UpsertClaim(ctx, id, models.ClaimFields{models.FieldDocumentNumber: tc.document}))

			out, err := h.Run(ctx, &thirdpartyvalidation.Input{Application: models.ApplicationRef{AppUUID: id}})
			require.NoError(t, err)
			assert.Equal(t, tc.want, out.ThirdPartyValidation)

			rec, err := store.Get(ctx, id)
			require.NoError(t, err)
			require.NotNil(t, rec.ThirdPartyValidation)
			assert.Equal(t, tc.want, *rec.ThirdPartyValidation)
		})
	}

	assert.Len(t, notifier.Notices(), 1)
}
