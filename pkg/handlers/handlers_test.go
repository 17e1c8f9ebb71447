package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	config "bms-chat-api/configs"
	"bms-chat-api/pkg/mockdb"
	"bms-chat-api/pkg/models"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"golang.org/x/crypto/bcrypt"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func testConfig(routerURL string) *config.Config {
	return &config.Config{
		Port:                "8080",
		Environment:         "test",
		LogLevel:            "error",
		AdminUsername:       "admin",
		AdminPassword:       "secret",
		DefaultProvider:     "mock",
		GroqModel:           "llama-3.3-70b-versatile",
		GroqBaseURL:         "http://127.0.0.1:0/",
		HuggingFaceModel:    "test/model",
		HuggingFaceBaseURLs: []string{routerURL},
		UpstreamTimeout:     5 * time.Second,
		DataSeed:            42,
	}
}

func newTestRouter(t *testing.T, cfg *config.Config) *gin.Engine {
	t.Helper()
	r, err := NewRouter(cfg, nil)
	require.NoError(t, err)
	return r
}

func doJSON(r http.Handler, method, path string, body any, headers ...string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

// upstream は推論ルーターのフェイクです。呼び出し回数を数えます。
func upstream(t *testing.T, status int, body string) (*httptest.Server, *atomic.Int32) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func TestProxyMethodHandling(t *testing.T) {
	srv, calls := upstream(t, http.StatusOK, `{"choices":[{"message":{"content":"ok"}}]}`)
	r := newTestRouter(t, testConfig(srv.URL))

	w := doJSON(r, http.MethodOptions, "/api/chat", nil, "Origin", "http://example.com", "Access-Control-Request-Method", "POST")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))

	w = doJSON(r, http.MethodGet, "/api/chat", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)

	w = doJSON(r, http.MethodPost, "/api/chat", ProxyRequest{Messages: nil})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "Missing Hugging Face token")

	assert.Zero(t, calls.Load())
}

func TestProxyNormalizesGenerationShape(t *testing.T) {
	srv, _ := upstream(t, http.StatusOK, `[{"generated_text":"Stock is 42 units"}]`)
	r := newTestRouter(t, testConfig(srv.URL))

	w := doJSON(r, http.MethodPost, "/api/chat", map[string]any{
		"messages": []map[string]string{{"role": "user", "content": "stock?"}},
		"token":    "hf_test",
	})
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Choices, 1)
	assert.Equal(t, "Stock is 42 units", resp.Choices[0].Message.Content)
}

func TestProxyErrorStatuses(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		wantStatus int
	}{
		{name: "invalid token", status: http.StatusUnauthorized, wantStatus: http.StatusUnauthorized},
		{name: "upstream failure", status: http.StatusBadGateway, wantStatus: http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := upstream(t, tt.status, `{"error":"nope"}`)
			r := newTestRouter(t, testConfig(srv.URL))

			w := doJSON(r, http.MethodPost, "/api/chat", map[string]any{
				"messages": []map[string]string{{"role": "user", "content": "hi"}},
				"token":    "hf_test",
			})
			assert.Equal(t, tt.wantStatus, w.Code)

			var body map[string]string
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.NotEmpty(t, body["error"])
		})
	}
}

type chatResponse struct {
	Success   bool               `json:"success"`
	SessionID string             `json:"session_id"`
	Message   models.ChatMessage `json:"message"`
}

func TestChatFlowWithReportDownload(t *testing.T) {
	srv, calls := upstream(t, http.StatusOK, `{}`)
	r := newTestRouter(t, testConfig(srv.URL))

	w := doJSON(r, http.MethodPost, "/api/v1/chat", map[string]string{"query": "Check stock for BMS0001", "provider": "mock"})
	require.Equal(t, http.StatusOK, w.Code)

	var resp chatResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	require.NotEmpty(t, resp.SessionID)
	assert.Equal(t, models.MessageRoleAssistant, resp.Message.Role)
	assert.Contains(t, resp.Message.Content, "| Location | Quantity |")
	assert.Zero(t, calls.Load())

	w = doJSON(r, http.MethodGet, "/api/v1/chat/"+resp.SessionID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var transcript struct {
		Messages []models.ChatMessage `json:"messages"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &transcript))
	require.Len(t, transcript.Messages, 2)
	assert.Equal(t, models.MessageRoleUser, transcript.Messages[0].Role)

	reportPath := "/api/v1/chat/" + resp.SessionID + "/report/" + resp.Message.ID
	w = doJSON(r, http.MethodGet, reportPath, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var report models.ReportData
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &report))
	assert.Equal(t, []string{"Location", "Quantity"}, report.Headers)
	assert.NotEmpty(t, report.Rows)

	w = doJSON(r, http.MethodGet, reportPath+"/xlsx", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, xlsxContentType, w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "BMS_AI_Report.xlsx")

	f, err := excelize.OpenReader(bytes.NewReader(w.Body.Bytes()))
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows(f.GetSheetName(0))
	require.NoError(t, err)
	assert.Contains(t, rows[0][0], report.Title)

	w = doJSON(r, http.MethodGet, "/api/v1/chat/"+resp.SessionID+"/report/missing", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = doJSON(r, http.MethodDelete, "/api/v1/chat/"+resp.SessionID, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestChatRequiresQuery(t *testing.T) {
	r := newTestRouter(t, testConfig("http://127.0.0.1:0"))

	w := doJSON(r, http.MethodPost, "/api/v1/chat", map[string]string{"provider": "mock"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(r, http.MethodGet, "/api/v1/chat/unknown-session", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestChatMissingCredentialReturnsConfigMessage(t *testing.T) {
	srv, calls := upstream(t, http.StatusOK, `{}`)
	r := newTestRouter(t, testConfig(srv.URL))

	w := doJSON(r, http.MethodPost, "/api/v1/chat", map[string]string{"query": "hello", "provider": "huggingface"})
	require.Equal(t, http.StatusOK, w.Code)

	var resp chatResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Contains(t, resp.Message.Content, "Configuration Error")
	assert.False(t, resp.Message.IsOffline)
	assert.Zero(t, calls.Load())
}

func TestCatalogRedactsForCustomers(t *testing.T) {
	r := newTestRouter(t, testConfig("http://127.0.0.1:0"))

	w := doJSON(r, http.MethodGet, "/api/v1/catalog?role=customer", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.NotContains(t, body, "competitors")
	assert.NotContains(t, body, "Cummins")
	assert.Contains(t, body, "availability")

	w = doJSON(r, http.MethodGet, "/api/v1/catalog", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Cummins")
}

func TestDataEndpoints(t *testing.T) {
	r := newTestRouter(t, testConfig("http://127.0.0.1:0"))

	tests := []struct {
		path string
		want int
	}{
		{path: "/api/v1/inventory/BMS0001", want: http.StatusOK},
		{path: "/api/v1/inventory/bms0001", want: http.StatusOK},
		{path: "/api/v1/inventory/BMS9999", want: http.StatusNotFound},
		{path: "/api/v1/orders?limit=3", want: http.StatusOK},
		{path: "/api/v1/orders/ORD-99-9999", want: http.StatusNotFound},
		{path: "/api/v1/forecast/BMS0002", want: http.StatusOK},
		{path: "/api/v1/market/BMS0003", want: http.StatusOK},
		{path: "/api/v1/market/NOPE", want: http.StatusNotFound},
		{path: "/api/v1/sales/BMS0004", want: http.StatusOK},
		{path: "/api/v1/knowledge", want: http.StatusOK},
		{path: "/api/v1/context?role=customer", want: http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			w := doJSON(r, http.MethodGet, tt.path, nil)
			assert.Equal(t, tt.want, w.Code, w.Body.String())
		})
	}

	w := doJSON(r, http.MethodGet, "/api/v1/orders?limit=3", nil)
	var orders struct {
		Orders []models.Order `json:"orders"`
		Count  int            `json:"count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &orders))
	assert.Equal(t, 3, orders.Count)
	require.Len(t, orders.Orders, 3)

	w = doJSON(r, http.MethodGet, "/api/v1/orders/"+strings.ToLower(orders.Orders[0].OrderID), nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestReportDownloads(t *testing.T) {
	r := newTestRouter(t, testConfig("http://127.0.0.1:0"))

	for _, path := range []string{"/api/v1/reports/inventory.xlsx", "/api/v1/reports/sales.xlsx"} {
		w := doJSON(r, http.MethodGet, path, nil)
		require.Equal(t, http.StatusOK, w.Code, path)
		assert.Equal(t, xlsxContentType, w.Header().Get("Content-Type"))

		f, err := excelize.OpenReader(bytes.NewReader(w.Body.Bytes()))
		require.NoError(t, err)
		rows, err := f.GetRows(f.GetSheetName(0))
		require.NoError(t, err)
		assert.Greater(t, len(rows), 4)
		f.Close()
	}
}

func TestAPIKeyMiddleware(t *testing.T) {
	cfg := testConfig("http://127.0.0.1:0")
	cfg.APIKey = "k3y"
	r := newTestRouter(t, cfg)

	w := doJSON(r, http.MethodGet, "/api/v1/knowledge", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = doJSON(r, http.MethodGet, "/api/v1/knowledge", nil, "X-API-KEY", "k3y")
	assert.Equal(t, http.StatusOK, w.Code)

	// /health と /api/chat はAPIキーの対象外
	w = doJSON(r, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestMaintenanceMode(t *testing.T) {
	r := newTestRouter(t, testConfig("http://127.0.0.1:0"))

	w := doJSON(r, http.MethodPost, "/api/v1/admin/maintenance/start", AdminCredentials{Username: "admin", Password: "wrong"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = doJSON(r, http.MethodPost, "/api/v1/admin/maintenance/start", AdminCredentials{Username: "admin", Password: "secret"})
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(r, http.MethodGet, "/api/v1/knowledge", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	w = doJSON(r, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	w = doJSON(r, http.MethodGet, "/api/v1/admin/health-status", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"isMaintenanceMode":true}`, w.Body.String())

	w = doJSON(r, http.MethodPost, "/api/v1/admin/maintenance/stop", AdminCredentials{Username: "admin", Password: "secret"})
	require.Equal(t, http.StatusOK, w.Code)
	w = doJSON(r, http.MethodGet, "/api/v1/knowledge", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestMonitoringLogs(t *testing.T) {
	r := newTestRouter(t, testConfig("http://127.0.0.1:0"))

	doJSON(r, http.MethodGet, "/api/v1/knowledge", nil)
	doJSON(r, http.MethodGet, "/api/v1/orders/ORD-99-9999", nil)

	w := doJSON(r, http.MethodGet, "/api/v1/monitoring/logs?period=1h", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "/api/v1/knowledge")
}

func TestAdminPasswordHash(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("hashed-secret"), bcrypt.MinCost)
	require.NoError(t, err)

	cfg := testConfig("http://127.0.0.1:0")
	cfg.AdminPasswordHash = string(hash)
	r := newTestRouter(t, cfg)

	// ハッシュが設定されている場合は平文のパスワードは使われない
	w := doJSON(r, http.MethodPost, "/api/v1/admin/maintenance/stop", AdminCredentials{Username: "admin", Password: "secret"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = doJSON(r, http.MethodPost, "/api/v1/admin/maintenance/stop", AdminCredentials{Username: "admin", Password: "hashed-secret"})
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAdminRejectsWhenPasswordUnset(t *testing.T) {
	cfg := testConfig("http://127.0.0.1:0")
	cfg.AdminPassword = ""
	r := newTestRouter(t, cfg)

	w := doJSON(r, http.MethodPost, "/api/v1/admin/maintenance/start", AdminCredentials{Username: "admin", Password: "anything"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestContextRoleIsCaseInsensitive(t *testing.T) {
	r := newTestRouter(t, testConfig("http://127.0.0.1:0"))

	for _, role := range []string{"customer", "Customer", "%20CUSTOMER%20"} {
		w := doJSON(r, http.MethodGet, "/api/v1/context?role="+role, nil)
		require.Equal(t, http.StatusOK, w.Code)
		var body struct {
			Role    models.Role `json:"role"`
			Context string      `json:"context"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, models.RoleCustomer, body.Role, role)
		for _, name := range mockdb.Competitors {
			assert.NotContains(t, body.Context, name, role)
		}
	}
}

func TestChatDoesNotSendServerKeyToRequestEndpoint(t *testing.T) {
	var auths atomic.Int32
	foreign := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "" {
			auths.Add(1)
		}
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(foreign.Close)

	cfg := testConfig("http://127.0.0.1:0")
	cfg.GroqAPIKey = "server-secret-key"
	r := newTestRouter(t, cfg)

	w := doJSON(r, http.MethodPost, "/api/v1/chat", map[string]string{
		"query":    "hello",
		"provider": "groq",
		"endpoint": foreign.URL + "/",
	})
	require.Equal(t, http.StatusOK, w.Code)

	var resp chatResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Contains(t, resp.Message.Content, "Missing Groq API Key")
	assert.Zero(t, auths.Load())
}
