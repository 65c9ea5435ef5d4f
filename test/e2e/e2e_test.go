// test/e2e/e2e_test.go
package e2e

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lendflow/internal/catalog"
	"lendflow/internal/common/config"
	"lendflow/internal/common/database"
	"lendflow/internal/common/logger"
	"lendflow/internal/gateway"
	"lendflow/internal/resume"
	"lendflow/internal/server"
)

// stubGateway is an in-process stand-in for the external submission
// gateway, speaking the same envelope protocol the production gateway
// does. Call counters let the test assert each boundary fires exactly
// once on the happy path.
type stubGateway struct {
	otpRequests int32
	otpVerifies int32
	profiles    int32
	employments int32
	uploads     int32
	submissions int32
}

func (g *stubGateway) handler() http.Handler {
	mux := http.NewServeMux()

	envelope := func(w http.ResponseWriter, data interface{}) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"success": true,
			"data":    data,
		})
	}

	mux.HandleFunc("POST /auth/otp/request", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&g.otpRequests, 1)
		envelope(w, nil)
	})
	mux.HandleFunc("POST /auth/otp/verify", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&g.otpVerifies, 1)
		var body struct {
			Code string `json:"code"`
		}
		json.NewDecoder(r.Body).Decode(&body)
		if body.Code != "123456" {
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(map[string]interface{}{
				"success": false,
				"message": "invalid verification code",
			})
			return
		}
		envelope(w, map[string]string{"token": "tok-e2e"})
	})
	mux.HandleFunc("POST /profile", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&g.profiles, 1)
		envelope(w, map[string]string{"userId": "user-e2e-1"})
	})
	mux.HandleFunc("POST /employment", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&g.employments, 1)
		envelope(w, nil)
	})
	mux.HandleFunc("POST /documents", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&g.uploads, 1)
		if err := r.ParseMultipartForm(10 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		confirmed := map[string]bool{}
		for kind := range r.MultipartForm.File {
			confirmed[kind] = true
		}
		envelope(w, confirmed)
	})
	mux.HandleFunc("POST /loans/apply", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&g.submissions, 1)
		envelope(w, map[string]string{"applicationId": "APP-E2E-001"})
	})

	return mux
}

// env wires the full stack the way cmd/wizard-server does, minus the
// workflow engine: real gateway client over the wire, real Redis
// protocol via miniredis, static catalog.
type env struct {
	api  *httptest.Server
	stub *stubGateway
	rdb  *miniredis.Miniredis
}

func newEnv(t *testing.T) *env {
	t.Helper()

	stub := &stubGateway{}
	gwServer := httptest.NewServer(stub.handler())
	t.Cleanup(gwServer.Close)

	rdb := miniredis.RunT(t)
	redisClient := &database.RedisClient{Client: goredis.NewClient(&goredis.Options{Addr: rdb.Addr()})}

	log := logger.NewTestLogger(t)
	resumeStore, err := resume.NewStore(redisClient, time.Hour, log)
	require.NoError(t, err)

	cfg := config.WizardConfig{
		MinimumIncome:     25000,
		IncomeMultiple:    40,
		RecommendedFactor: 0.8,
		DefaultFeeRate:    0.02,
		PersistPolicy:     "persist-if-dirty",
	}

	gwClient := gateway.NewClient(gwServer.URL, 5*time.Second, log)
	srv := server.New(cfg, gwClient, catalog.NewStaticStore(), resumeStore, nil, log)

	api := httptest.NewServer(srv.Handler())
	t.Cleanup(api.Close)

	return &env{api: api, stub: stub, rdb: rdb}
}

func (e *env) do(t *testing.T, method, path string, body interface{}) (int, map[string]interface{}) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, e.api.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp.StatusCode, out
}

func (e *env) advance(t *testing.T, sessionID string) map[string]interface{} {
	t.Helper()
	status, body := e.do(t, http.MethodPost, "/api/v1/sessions/"+sessionID+"/advance", nil)
	require.Equal(t, http.StatusOK, status, "advance failed: %v", body)
	return body
}

func TestFullWizardJourneyE2E(t *testing.T) {
	e := newEnv(t)

	t.Log("creating session...")
	status, body := e.do(t, http.MethodPost, "/api/v1/sessions", map[string]string{
		"channel":     "mobile",
		"destination": "+919876543210",
	})
	require.Equal(t, http.StatusCreated, status)
	sessionID := body["sessionId"].(string)
	require.NotEmpty(t, sessionID)
	base := "/api/v1/sessions/" + sessionID

	t.Log("verifying applicant...")
	status, _ = e.do(t, http.MethodPost, base+"/otp/request", nil)
	require.Equal(t, http.StatusOK, status)

	status, body = e.do(t, http.MethodPost, base+"/otp/verify", map[string]string{"code": "000000"})
	assert.Equal(t, http.StatusUnprocessableEntity, status)
	errBody := body["error"].(map[string]interface{})
	assert.Equal(t, "invalid verification code", errBody["message"])

	status, _ = e.do(t, http.MethodPost, base+"/otp/verify", map[string]string{"code": "123456"})
	require.Equal(t, http.StatusOK, status)

	body = e.advance(t, sessionID)
	assert.Equal(t, "personal_details", body["stepName"])

	t.Log("filling personal details...")
	status, _ = e.do(t, http.MethodPut, base+"/personal", map[string]interface{}{
		"firstName": "Asha",
		"lastName":  "Iyer",
		"email":     "asha.iyer@example.com",
		"phone":     "+919876543210",
		"address": map[string]string{
			"line1": "14 Lake View Road",
			"city":  "Chennai",
		},
	})
	require.Equal(t, http.StatusOK, status)

	body = e.advance(t, sessionID)
	assert.Equal(t, "employment_details", body["stepName"])

	t.Log("filling employment details...")
	status, _ = e.do(t, http.MethodPut, base+"/employment", map[string]interface{}{
		"type":          "salaried",
		"companyName":   "Meridian Systems",
		"designation":   "Engineer",
		"monthlyIncome": 85000,
	})
	require.Equal(t, http.StatusOK, status)

	body = e.advance(t, sessionID)
	assert.Equal(t, "documents", body["stepName"])

	t.Log("attaching documents...")
	content := base64.StdEncoding.EncodeToString([]byte("pdf-bytes"))
	for _, kind := range []string{"identity_proof", "address_proof", "income_proof"} {
		status, _ = e.do(t, http.MethodPut, base+"/documents", map[string]string{
			"kind":     kind,
			"fileName": kind + ".pdf",
			"content":  content,
		})
		require.Equal(t, http.StatusOK, status)
	}

	body = e.advance(t, sessionID)
	assert.Equal(t, "loan_terms", body["stepName"])

	t.Log("selecting loan terms...")
	status, body = e.do(t, http.MethodPut, base+"/loan", map[string]interface{}{
		"typeId":       "personal",
		"amount":       500000,
		"tenureMonths": 36,
		"purpose":      "home renovation",
	})
	require.Equal(t, http.StatusOK, status)

	draft := body["draft"].(map[string]interface{})
	loan := draft["loan"].(map[string]interface{})
	assert.Equal(t, float64(16727), loan["emi"])
	assert.Equal(t, float64(10000), loan["processingFee"])

	status, _ = e.do(t, http.MethodPut, base+"/terms", map[string]bool{"accepted": true})
	require.Equal(t, http.StatusOK, status)

	body = e.advance(t, sessionID)
	assert.Equal(t, "review", body["stepName"])

	t.Log("submitting application...")
	status, body = e.do(t, http.MethodPost, base+"/submit", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "submitted", body["state"])
	assert.Equal(t, "APP-E2E-001", body["applicationId"])

	// Each boundary fired exactly once over the wire.
	assert.Equal(t, int32(1), atomic.LoadInt32(&e.stub.otpRequests))
	assert.Equal(t, int32(2), atomic.LoadInt32(&e.stub.otpVerifies))
	assert.Equal(t, int32(1), atomic.LoadInt32(&e.stub.profiles))
	assert.Equal(t, int32(1), atomic.LoadInt32(&e.stub.employments))
	assert.Equal(t, int32(1), atomic.LoadInt32(&e.stub.uploads))
	assert.Equal(t, int32(1), atomic.LoadInt32(&e.stub.submissions))

	// The resume snapshot is cleared once the application is filed.
	assert.False(t, e.rdb.Exists("lendflow:resume:mobile:+919876543210"))

	t.Log("full wizard journey completed")
}

func TestReturningApplicantPrefillE2E(t *testing.T) {
	e := newEnv(t)

	status, body := e.do(t, http.MethodPost, "/api/v1/sessions", map[string]string{
		"channel":     "email",
		"destination": "ravi@example.com",
	})
	require.Equal(t, http.StatusCreated, status)
	sessionID := body["sessionId"].(string)
	base := "/api/v1/sessions/" + sessionID

	status, _ = e.do(t, http.MethodPost, base+"/otp/request", nil)
	require.Equal(t, http.StatusOK, status)
	status, _ = e.do(t, http.MethodPost, base+"/otp/verify", map[string]string{"code": "123456"})
	require.Equal(t, http.StatusOK, status)

	// A second visit with the same destination sees the cached snapshot.
	status, body = e.do(t, http.MethodPost, "/api/v1/sessions", map[string]string{
		"channel":     "email",
		"destination": "ravi@example.com",
	})
	require.Equal(t, http.StatusCreated, status)
	require.Contains(t, body, "resume")
	snap := body["resume"].(map[string]interface{})
	assert.Equal(t, true, snap["verified"])
	assert.Equal(t, "ravi@example.com", snap["destination"])
}

func TestStatelessEndpointsE2E(t *testing.T) {
	e := newEnv(t)

	status, body := e.do(t, http.MethodGet, "/api/v1/quote?principal=500000&rate=12.5&tenure=36", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, float64(16727), body["emi"])
	assert.Equal(t, float64(602172), body["totalPayment"])

	status, body = e.do(t, http.MethodGet,
		fmt.Sprintf("/api/v1/eligibility?monthlyIncome=%d&requestedAmount=%d", 85000, 500000), nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, body["eligible"])
	assert.Equal(t, float64(3400000), body["maxEligibleAmount"])

	status, body = e.do(t, http.MethodGet, "/api/v1/loan-types", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, body["loanTypes"], 3)

	status, body = e.do(t, http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ok", body["status"])
}
