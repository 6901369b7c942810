package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"visitor-webhook/internal/config"
	"visitor-webhook/internal/fulfillment"
	"visitor-webhook/internal/handlers"
)

func newFakeSheets(t *testing.T, rows [][]interface{}) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"range":          "carteirinhas_ok!A2:D10",
			"majorDimension": "ROWS",
			"values":         rows,
		})
	}))
	t.Cleanup(server.Close)
	return server, &calls
}

func testConfig(endpoint string) *config.Config {
	return &config.Config{
		Port:                "0",
		LogLevel:            "info",
		LogFormat:           "console",
		SpreadsheetID:       "sheet-123",
		SheetRange:          "carteirinhas_ok!A2:D",
		SheetsEndpoint:      endpoint + "/",
		SheetsTimeout:       time.Second,
		SheetsRetryAttempts: 1,
		CacheTTL:            time.Minute,
		KeyPolicy:           "numeric",
		RedisDB:             0,
		RedisPoolSize:       5,
		RateLimitEnabled:    true,
		RateLimitRPS:        1,
		RateLimitBurst:      2,
		KeepaliveSchedule:   "*/10 * * * *",
	}
}

func newTestRouter(t *testing.T, cfg *config.Config) (*App, *mux.Router) {
	t.Helper()
	app, err := New(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(app.Cleanup)

	opts := handlers.Options{Breaker: app.Sheets}
	if app.RedisClient != nil {
		opts.Redis = app.RedisClient
	}
	router := mux.NewRouter()
	SetupRoutes(router, handlers.New(app.Service, app.Cache, opts), app.Metrics, app.InitializeRateLimiter())
	return app, router
}

func postWebhook(router http.Handler, body string) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/webhook", strings.NewReader(body))
	req.RemoteAddr = "10.0.0.1:1234"
	router.ServeHTTP(rr, req)
	return rr
}

func fulfillmentText(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	var resp fulfillment.WebhookResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	return resp.FulfillmentText
}

func TestApp_WebhookEndToEnd(t *testing.T) {
	sheetsAPI, calls := newFakeSheets(t, [][]interface{}{
		{"7", "Maria Silva", "Regular"},
		{"8", "João", "Irregular", "Documento\nvencido"},
		{"007", "Ana", "Regular", ""},
	})
	cfg := testConfig(sheetsAPI.URL)
	cfg.RateLimitEnabled = false
	_, router := newTestRouter(t, cfg)

	rr := postWebhook(router, `{"queryResult":{"parameters":{"matricula":"007"}}}`)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "Registros encontrados:\n1. 👤 Visitante: Maria Silva | 📌 Situação: Regular\n2. 👤 Visitante: Ana | 📌 Situação: Regular",
		fulfillmentText(t, rr))
	assert.NotEmpty(t, rr.Header().Get("X-Request-ID"))

	rr = postWebhook(router, `{"queryResult":{"parameters":{"matricula":8}}}`)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, fulfillmentText(t, rr), "📄 Motivo: Documento vencido")

	rr = postWebhook(router, `{"queryResult":{"parameters":{"matricula":"42"}}}`)
	assert.Equal(t, "❌ Nenhuma informação encontrada para a matrícula 42.", fulfillmentText(t, rr))

	rr = postWebhook(router, `{"queryResult":{"parameters":{"matricula":"  "}}}`)
	assert.Equal(t, fulfillment.TextInvalidIdentifier, fulfillmentText(t, rr))

	rr = postWebhook(router, `not json`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	assert.Equal(t, int32(1), calls.Load(), "lookups inside the TTL share one fetch")

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `visitor_webhook_lookups_total{outcome="found"} 2`)
	assert.Contains(t, rr.Body.String(), `visitor_webhook_http_requests_total{code="200",method="POST",route="/webhook"}`)
}

func TestApp_CacheEndpoints(t *testing.T) {
	sheetsAPI, calls := newFakeSheets(t, [][]interface{}{{"1", "Maria", "Regular"}})
	_, router := newTestRouter(t, testConfig(sheetsAPI.URL))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest("POST", "/api/cache/refresh", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"state":"fresh"`)

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest("POST", "/api/cache/invalidate", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"state":"empty"`)

	postWebhook(router, `{"queryResult":{"parameters":{"matricula":"1"}}}`)
	assert.Equal(t, int32(2), calls.Load())

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest("GET", "/health", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	var health map[string]interface{}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &health))
	assert.Equal(t, "healthy", health["status"])
	assert.Equal(t, "disabled", health["redis"])
}

func TestApp_RateLimitedWebhook(t *testing.T) {
	sheetsAPI, _ := newFakeSheets(t, [][]interface{}{{"1", "Maria", "Regular"}})
	_, router := newTestRouter(t, testConfig(sheetsAPI.URL))

	body := `{"queryResult":{"parameters":{"matricula":"1"}}}`
	assert.Equal(t, http.StatusOK, postWebhook(router, body).Code)
	assert.Equal(t, http.StatusOK, postWebhook(router, body).Code)

	rr := postWebhook(router, body)
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.Equal(t, fulfillment.TextTryAgainLater, fulfillmentText(t, rr))
	assert.Equal(t, "1", rr.Header().Get("Retry-After"))

	// other endpoints are not limited
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest("GET", "/", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestApp_WithRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	sheetsAPI, _ := newFakeSheets(t, [][]interface{}{{"1", "Maria", "Regular"}})
	cfg := testConfig(sheetsAPI.URL)
	cfg.RedisAddress = mr.Addr()

	app, router := newTestRouter(t, cfg)
	require.NotNil(t, app.RedisClient)

	body := `{"queryResult":{"parameters":{"matricula":"1"}}}`
	assert.Equal(t, http.StatusOK, postWebhook(router, body).Code)
	assert.Equal(t, http.StatusOK, postWebhook(router, body).Code)
	assert.Equal(t, http.StatusTooManyRequests, postWebhook(router, body).Code)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest("GET", "/health", nil))
	assert.Contains(t, rr.Body.String(), `"redis":"healthy"`)
}

func TestApp_RedisUnavailableIsNotFatal(t *testing.T) {
	sheetsAPI, _ := newFakeSheets(t, [][]interface{}{})
	cfg := testConfig(sheetsAPI.URL)
	cfg.RedisAddress = "127.0.0.1:1"

	app, err := New(context.Background(), cfg)
	require.NoError(t, err)
	assert.Nil(t, app.RedisClient)
}

func TestApp_InvalidKeyPolicy(t *testing.T) {
	sheetsAPI, _ := newFakeSheets(t, [][]interface{}{})
	cfg := testConfig(sheetsAPI.URL)
	cfg.KeyPolicy = "fuzzy"

	_, err := New(context.Background(), cfg)
	assert.Error(t, err)
}
