package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"virkum-respond/internal/domain"
	"virkum-respond/internal/handler"
	"virkum-respond/internal/mocks"
	"virkum-respond/internal/repository"
	"virkum-respond/internal/scraper"
	"virkum-respond/internal/service"
	"virkum-respond/internal/worker"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testSecret = "test-secret"

type stubScraper struct {
	result *scraper.Result
	err    error
}

func (s *stubScraper) Scrape(_ context.Context, _ string) (*scraper.Result, error) {
	return s.result, s.err
}

type testEnv struct {
	router    *gin.Engine
	runs      *mocks.MockRunManager
	companies *mocks.MockCompanyRepository
	tests     *mocks.MockTestRepository
	scraper   *stubScraper
}

func newTestEnv(t *testing.T, withAuth bool) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)
	env := &testEnv{
		router:    gin.New(),
		runs:      mocks.NewMockRunManager(t),
		companies: mocks.NewMockCompanyRepository(t),
		tests:     mocks.NewMockTestRepository(t),
		scraper:   &stubScraper{},
	}
	var auth gin.HandlerFunc
	if withAuth {
		verifier, err := handler.NewJWTVerifier(testSecret, zap.NewNop())
		require.NoError(t, err)
		auth = handler.AuthMiddleware(verifier)
	}
	h := handler.NewHandler(env.runs, env.companies, env.tests, env.scraper, zap.NewNop())
	h.RegisterRoutes(env.router, auth)
	return env
}

func (e *testEnv) do(method, path, contentType string, body []byte, header ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *testEnv) doJSON(method, path string, body any) *httptest.ResponseRecorder {
	var raw []byte
	if body != nil {
		raw, _ = json.Marshal(body)
	}
	return e.do(method, path, "application/json", raw)
}

func signToken(t *testing.T, secret string, expiresIn time.Duration) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "operator@example.com",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(expiresIn)),
	})
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func errorBody(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var resp handler.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp.Error
}

func TestAuthMiddleware(t *testing.T) {
	env := newTestEnv(t, true)
	env.companies.On("List", mock.Anything).Return([]domain.Company{}, nil)

	tests := []struct {
		name   string
		header []string
		path   string
		want   int
	}{
		{"Missing header", nil, "/api/companies", http.StatusUnauthorized},
		{"Wrong scheme", []string{"Authorization", "Basic abc"}, "/api/companies", http.StatusUnauthorized},
		{"Wrong secret", []string{"Authorization", "Bearer " + signToken(t, "other", time.Hour)}, "/api/companies", http.StatusUnauthorized},
		{"Expired", []string{"Authorization", "Bearer " + signToken(t, testSecret, -time.Minute)}, "/api/companies", http.StatusUnauthorized},
		{"Valid", []string{"Authorization", "Bearer " + signToken(t, testSecret, time.Hour)}, "/api/companies", http.StatusOK},
		{"Query token", nil, "/api/companies?access_token=" + signToken(t, testSecret, time.Hour), http.StatusOK},
		{"Health is public", nil, "/health", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(http.MethodGet, tt.path, "", nil, tt.header...)
			assert.Equal(t, tt.want, w.Code)
		})
	}
}

func TestStartRun(t *testing.T) {
	companyID := int64(3)
	req := domain.RunRequest{CompanyID: &companyID, NumEmails: 10, ConcurrencyLevel: 2}

	t.Run("Accepted", func(t *testing.T) {
		env := newTestEnv(t, false)
		runID := uuid.New()
		env.runs.On("StartRun", mock.Anything, req).Return(runID, nil).Once()

		w := env.doJSON(http.MethodPost, "/api/runs", req)
		require.Equal(t, http.StatusAccepted, w.Code)
		var resp map[string]string
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, runID.String(), resp["run_id"])
		assert.Equal(t, "/api/runs/"+runID.String(), resp["status_url"])
	})

	errCases := []struct {
		name string
		err  error
		want int
	}{
		{"Validation", domain.NewValidationError("num_emails", "must be at least 1"), http.StatusBadRequest},
		{"Unknown company", domain.ErrNotFound, http.StatusNotFound},
		{"Too many runs", domain.ErrTooManyRuns, http.StatusTooManyRequests},
		{"Internal", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range errCases {
		t.Run(tc.name, func(t *testing.T) {
			env := newTestEnv(t, false)
			env.runs.On("StartRun", mock.Anything, req).Return(uuid.Nil, tc.err).Once()
			w := env.doJSON(http.MethodPost, "/api/runs", req)
			assert.Equal(t, tc.want, w.Code)
			assert.NotEmpty(t, errorBody(t, w))
		})
	}

	t.Run("Malformed body", func(t *testing.T) {
		env := newTestEnv(t, false)
		w := env.do(http.MethodPost, "/api/runs", "application/json", []byte("{"))
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestRunStatusAndCancel(t *testing.T) {
	env := newTestEnv(t, false)
	runID := uuid.New()
	grade := 0.7
	env.runs.On("GetRun", mock.Anything, runID).Return(service.RunStatus{
		RunID:   runID,
		Status:  "completed",
		Summary: &domain.RunSummary{RunID: runID, NumEmails: 5, TotalRequests: 5, AvgReplyGrade: &grade},
	}, nil).Once()
	env.runs.On("CancelRun", runID).Return(domain.ErrRunNotActive).Once()

	w := env.doJSON(http.MethodGet, "/api/runs/"+runID.String(), nil)
	require.Equal(t, http.StatusOK, w.Code)
	var status service.RunStatus
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
	assert.Equal(t, "completed", status.Status)
	require.NotNil(t, status.Summary)
	assert.Equal(t, 5, status.Summary.TotalRequests)

	w = env.doJSON(http.MethodPost, "/api/runs/"+runID.String()+"/cancel", nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = env.doJSON(http.MethodGet, "/api/runs/not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListRunEvents(t *testing.T) {
	env := newTestEnv(t, false)
	runID := uuid.New()
	idx := 0
	env.runs.On("Events", mock.Anything, runID, 2).Return([]worker.Event{
		{Seq: 2, Kind: worker.EventTaskStarted, RunID: runID, TaskIndex: &idx},
		{Seq: 3, Kind: worker.EventTaskCompleted, RunID: runID, TaskIndex: &idx},
	}, nil).Once()

	w := env.doJSON(http.MethodGet, "/api/runs/"+runID.String()+"/events?offset=2", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		NextOffset int            `json:"next_offset"`
		Events     []worker.Event `json:"events"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 4, resp.NextOffset)
	require.Len(t, resp.Events, 2)
	assert.Equal(t, worker.EventTaskCompleted, resp.Events[1].Kind)

	w = env.doJSON(http.MethodGet, "/api/runs/"+runID.String()+"/events?offset=-1", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCompanies(t *testing.T) {
	t.Run("Create and conflict", func(t *testing.T) {
		env := newTestEnv(t, false)
		env.companies.On("Create", mock.Anything, domain.Company{Name: "Acme Corp", URL: "https://acme.example"}).
			Return(domain.Company{ID: 1, Name: "Acme Corp", URL: "https://acme.example"}, nil).Once()
		env.companies.On("Create", mock.Anything, domain.Company{Name: "Globex"}).
			Return(domain.Company{}, domain.ErrAlreadyExists).Once()

		w := env.doJSON(http.MethodPost, "/api/companies", map[string]string{"name": " Acme Corp ", "url": "https://acme.example"})
		assert.Equal(t, http.StatusCreated, w.Code)

		w = env.doJSON(http.MethodPost, "/api/companies", map[string]string{"name": "Globex"})
		assert.Equal(t, http.StatusConflict, w.Code)

		w = env.doJSON(http.MethodPost, "/api/companies", map[string]string{"url": "https://nameless.example"})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("Import JSON", func(t *testing.T) {
		env := newTestEnv(t, false)
		env.companies.On("Import", mock.Anything, []domain.Company{{Name: "Acme"}, {Name: "Globex"}}).
			Return(repository.ImportResult{Inserted: 1, Skipped: 1}, nil).Once()

		w := env.doJSON(http.MethodPost, "/api/companies/import", map[string]any{
			"companies": []map[string]string{{"name": "Acme"}, {"name": "Globex"}},
		})
		require.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"inserted":1,"skipped":1}`, w.Body.String())
	})

	t.Run("Import YAML", func(t *testing.T) {
		env := newTestEnv(t, false)
		env.companies.On("Import", mock.Anything, mock.MatchedBy(func(cs []domain.Company) bool {
			return len(cs) == 1 && cs[0].Name == "Acme" && cs[0].Description == "Skincare"
		})).Return(repository.ImportResult{Inserted: 1}, nil).Once()

		body := "companies:\n  - name: Acme\n    description: Skincare\n"
		w := env.do(http.MethodPost, "/api/companies/import", "application/x-yaml", []byte(body))
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("Delete", func(t *testing.T) {
		env := newTestEnv(t, false)
		env.companies.On("Delete", mock.Anything, int64(7)).Return(nil).Once()
		env.companies.On("Delete", mock.Anything, int64(8)).Return(domain.ErrNotFound).Once()

		assert.Equal(t, http.StatusNoContent, env.doJSON(http.MethodDelete, "/api/companies/7", nil).Code)
		assert.Equal(t, http.StatusNotFound, env.doJSON(http.MethodDelete, "/api/companies/8", nil).Code)
		assert.Equal(t, http.StatusBadRequest, env.doJSON(http.MethodDelete, "/api/companies/abc", nil).Code)
	})
}

func TestScrapeCompany(t *testing.T) {
	env := newTestEnv(t, false)
	env.scraper.result = &scraper.Result{URL: "https://acme.example", CompanyName: "Acme", CleanText: "We make lotion."}
	env.companies.On("Create", mock.Anything, mock.MatchedBy(func(c domain.Company) bool {
		return c.Name == "Acme" && c.Info == "We make lotion."
	})).Return(domain.Company{ID: 4, Name: "Acme"}, nil).Once()

	w := env.doJSON(http.MethodPost, "/api/companies/scrape", map[string]any{"url": "acme.example"})
	assert.Equal(t, http.StatusOK, w.Code)

	w = env.doJSON(http.MethodPost, "/api/companies/scrape", map[string]any{"url": "acme.example", "save": true})
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Contains(t, w.Body.String(), `"id":4`)

	env.scraper.result, env.scraper.err = nil, scraper.ErrFetch
	w = env.doJSON(http.MethodPost, "/api/companies/scrape", map[string]any{"url": "down.example"})
	assert.Equal(t, http.StatusBadGateway, w.Code)
}

func TestTests(t *testing.T) {
	env := newTestEnv(t, false)
	env.tests.On("List", mock.Anything, 50).Return([]domain.RunSummary{{TestID: 2}, {TestID: 1}}, nil).Once()
	env.tests.On("List", mock.Anything, 500).Return([]domain.RunSummary(nil), nil).Once()
	env.tests.On("Get", mock.Anything, int64(9)).Return(domain.RunSummary{}, domain.ErrNotFound).Once()
	env.tests.On("ListTasks", mock.Anything, int64(2)).
		Return([]repository.TaskRecord{{TaskIndex: 0}, {TaskIndex: 1}}, nil).Once()

	w := env.doJSON(http.MethodGet, "/api/tests", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"test_id":2`)

	w = env.doJSON(http.MethodGet, "/api/tests?limit=10000", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"data":[]}`, w.Body.String())

	assert.Equal(t, http.StatusNotFound, env.doJSON(http.MethodGet, "/api/tests/9", nil).Code)

	w = env.doJSON(http.MethodGet, "/api/tests/2/tasks", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Data []json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Len(t, resp.Data, 2)
}

func TestStreamRunEvents(t *testing.T) {
	env := newTestEnv(t, false)
	srv := httptest.NewServer(env.router)
	defer srv.Close()

	runID := uuid.New()
	events := worker.NewEventLog()
	events.Append(worker.Event{Kind: worker.EventRunStarted, RunID: runID})
	env.runs.On("EventLog", runID).Return(events, true).Once()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/runs/" + runID.String() + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	go func() {
		idx := 0
		events.Append(worker.Event{Kind: worker.EventTaskStarted, RunID: runID, TaskIndex: &idx})
		events.Append(worker.Event{Kind: worker.EventRunFinished, RunID: runID})
		events.Close()
	}()

	var kinds []worker.EventKind
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	for {
		var e worker.Event
		if err := conn.ReadJSON(&e); err != nil {
			assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "unexpected error: %v", err)
			break
		}
		kinds = append(kinds, e.Kind)
	}
	assert.Equal(t, []worker.EventKind{worker.EventRunStarted, worker.EventTaskStarted, worker.EventRunFinished}, kinds)
}

func TestStreamRunEvents_Archived(t *testing.T) {
	env := newTestEnv(t, false)
	srv := httptest.NewServer(env.router)
	defer srv.Close()

	runID := uuid.New()
	env.runs.On("EventLog", runID).Return(nil, false).Once()
	env.runs.On("Events", mock.Anything, runID, 1).
		Return([]worker.Event{{Seq: 1, Kind: worker.EventRunFinished, RunID: runID}}, nil).Once()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/runs/" + runID.String() + "/ws?offset=1"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	var e worker.Event
	require.NoError(t, conn.ReadJSON(&e))
	assert.Equal(t, worker.EventRunFinished, e.Kind)
	_, _, err = conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure))

	missing := uuid.New()
	env.runs.On("EventLog", missing).Return(nil, false).Once()
	env.runs.On("Events", mock.Anything, missing, 0).Return(nil, domain.ErrNotFound).Once()
	_, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/api/runs/"+missing.String()+"/ws", nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
