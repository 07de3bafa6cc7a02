package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/teranos/mplan/backup"
	"github.com/teranos/mplan/config"
	"github.com/teranos/mplan/execution"
	testutil "github.com/teranos/mplan/internal/testing"
	"github.com/teranos/mplan/plan"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()

	cfg := &config.Config{}
	cfg.Server.AllowedOrigins = []string{"*"}
	cfg.Search.ResultLimit = 10
	cfg.Search.ExactMatchScore = 100
	cfg.Search.PrefixMatchScore = 50
	cfg.Search.ContainsScore = 25
	cfg.Auth.SessionExpiryDays = 30
	cfg.Auth.LoginRatePerMinute = 600
	cfg.Auth.LoginBurst = 10

	s := New(testutil.CreateTestDB(t), cfg, zap.NewNop().Sugar())
	t.Cleanup(func() { s.cancel() })
	return s
}

func doJSON(t *testing.T, s *Server, method, path string, body interface{}, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	for _, cookie := range cookies {
		req.AddCookie(cookie)
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v))
}

func createPlan(t *testing.T, s *Server, name string, actions ...string) *plan.Detail {
	t.Helper()

	rec := doJSON(t, s, http.MethodPost, "/api/plans", CreatePlanRequest{Name: name})
	require.Equal(t, http.StatusCreated, rec.Code)
	var created plan.ActionPlan
	decode(t, rec, &created)

	for i, action := range actions {
		rec := doJSON(t, s, http.MethodPost, "/api/plans/"+created.ID+"/items",
			AddItemRequest{ActionName: action, Position: int64(i)})
		require.Equal(t, http.StatusCreated, rec.Code)
	}

	rec = doJSON(t, s, http.MethodGet, "/api/plans/"+created.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	detail := &plan.Detail{}
	decode(t, rec, detail)
	return detail
}

func TestHealthEndpoint(t *testing.T) {
	s := newTestServer(t)
	rec := doJSON(t, s, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestPlanLifecycleOverHTTP(t *testing.T) {
	s := newTestServer(t)

	detail := createPlan(t, s, "Release checklist", "tag version", "push artifacts")
	assert.Len(t, detail.Items, 2)
	assert.Equal(t, "tag version", detail.Items[0].ActionName)

	// Reorder.
	rec := doJSON(t, s, http.MethodPut, "/api/plans/"+detail.ID+"/items/order",
		ReorderRequest{ItemIDs: []string{detail.Items[1].ID, detail.Items[0].ID}})
	require.Equal(t, http.StatusOK, rec.Code)
	var reordered plan.Detail
	decode(t, rec, &reordered)
	assert.Equal(t, "push artifacts", reordered.Items[0].ActionName)

	// Remove one item.
	rec = doJSON(t, s, http.MethodDelete, "/api/items/"+detail.Items[0].ID, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	// Soft delete.
	rec = doJSON(t, s, http.MethodDelete, "/api/plans/"+detail.ID, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = doJSON(t, s, http.MethodGet, "/api/plans", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var listed ListPlansResponse
	decode(t, rec, &listed)
	assert.Zero(t, listed.Count)
}

func TestPlanErrorMapping(t *testing.T) {
	s := newTestServer(t)

	rec := doJSON(t, s, http.MethodPost, "/api/plans", CreatePlanRequest{Name: "  "})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, s, http.MethodGet, "/api/plans/missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	detail := createPlan(t, s, "Plan", "a")
	rec = doJSON(t, s, http.MethodPut, "/api/plans/"+detail.ID+"/items/order",
		ReorderRequest{ItemIDs: []string{"bogus"}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestExecutionFlowOverHTTP(t *testing.T) {
	s := newTestServer(t)
	detail := createPlan(t, s, "Morning", "coffee", "standup")

	// Starting an empty plan conflicts.
	empty := createPlan(t, s, "Empty")
	rec := doJSON(t, s, http.MethodPost, "/api/plans/"+empty.ID+"/executions", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = doJSON(t, s, http.MethodPost, "/api/plans/"+detail.ID+"/executions", nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	var run execution.Detail
	decode(t, rec, &run)
	require.Len(t, run.Items, 2)

	// Finish refused while items remain.
	rec = doJSON(t, s, http.MethodPost, "/api/executions/"+run.ID+"/finish", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	// Toggle both items.
	for _, item := range run.Items {
		rec = doJSON(t, s, http.MethodPost,
			fmt.Sprintf("/api/executions/%s/items/%s", run.ID, item.ID),
			ToggleItemRequest{Finished: true})
		require.Equal(t, http.StatusOK, rec.Code)
		var toggled ToggleItemResponse
		decode(t, rec, &toggled)
		assert.True(t, toggled.Finished)
		assert.NotEmpty(t, toggled.FinishedDisplay)
	}

	rec = doJSON(t, s, http.MethodGet, "/api/executions/"+run.ID+"/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var status struct {
		Total    int  `json:"total"`
		Finished int  `json:"finished"`
		Complete bool `json:"complete"`
	}
	decode(t, rec, &status)
	assert.True(t, status.Complete)

	rec = doJSON(t, s, http.MethodPost, "/api/executions/"+run.ID+"/finish", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	// Finished executions cannot be toggled or deleted.
	rec = doJSON(t, s, http.MethodPost,
		fmt.Sprintf("/api/executions/%s/items/%s", run.ID, run.Items[0].ID),
		ToggleItemRequest{Finished: false})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = doJSON(t, s, http.MethodDelete, "/api/executions/"+run.ID, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	// Reopen within the window, then the listing moves back to open.
	rec = doJSON(t, s, http.MethodPost, "/api/executions/"+run.ID+"/reopen", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, s, http.MethodGet, "/api/executions?state=open", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var open ListExecutionsResponse
	decode(t, rec, &open)
	assert.Equal(t, 1, open.Count)

	rec = doJSON(t, s, http.MethodGet, "/api/executions?state=bogus", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestActionSearchOverHTTP(t *testing.T) {
	s := newTestServer(t)
	createPlan(t, s, "Plan", "water plants", "water", "wash dishes")

	rec := doJSON(t, s, http.MethodGet, "/api/actions/search?q=water", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var results ListActionsResponse
	decode(t, rec, &results)
	require.Equal(t, 2, results.Count)
	assert.Equal(t, "water", results.Actions[0].Name)

	rec = doJSON(t, s, http.MethodGet, "/api/actions/search?q=", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &results)
	assert.Zero(t, results.Count)
}

func TestAuthFlow(t *testing.T) {
	s := newTestServer(t)

	// First run: setup required, API open.
	rec := doJSON(t, s, http.MethodGet, "/auth/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var status AuthStatusResponse
	decode(t, rec, &status)
	assert.True(t, status.SetupRequired)

	rec = doJSON(t, s, http.MethodGet, "/api/plans", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	// Create the first admin.
	rec = doJSON(t, s, http.MethodPost, "/auth/setup", CredentialsRequest{Name: "admin", Password: "hunter2"})
	require.Equal(t, http.StatusOK, rec.Code)
	cookies := rec.Result().Cookies()
	require.NotEmpty(t, cookies)
	session := cookies[0]
	assert.Equal(t, SessionCookie, session.Name)

	// Setup is one-shot.
	rec = doJSON(t, s, http.MethodPost, "/auth/setup", CredentialsRequest{Name: "other", Password: "pw"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	// API now requires the session.
	rec = doJSON(t, s, http.MethodGet, "/api/plans", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doJSON(t, s, http.MethodGet, "/api/plans", nil, session)
	assert.Equal(t, http.StatusOK, rec.Code)

	// Wrong password rejected, right one opens a session.
	rec = doJSON(t, s, http.MethodPost, "/auth/login", CredentialsRequest{Name: "admin", Password: "wrong"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doJSON(t, s, http.MethodPost, "/auth/login", CredentialsRequest{Name: "admin", Password: "hunter2"})
	assert.Equal(t, http.StatusOK, rec.Code)

	// Logout invalidates the session.
	rec = doJSON(t, s, http.MethodPost, "/auth/logout", nil, session)
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = doJSON(t, s, http.MethodGet, "/api/plans", nil, session)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAdminOnlyEndpoints(t *testing.T) {
	s := newTestServer(t)

	rec := doJSON(t, s, http.MethodPost, "/auth/setup", CredentialsRequest{Name: "admin", Password: "pw"})
	require.Equal(t, http.StatusOK, rec.Code)
	adminSession := rec.Result().Cookies()[0]

	// Admin creates a regular user.
	rec = doJSON(t, s, http.MethodPost, "/api/users",
		CreateUserRequest{Name: "viewer", Password: "pw"}, adminSession)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, s, http.MethodPost, "/auth/login", CredentialsRequest{Name: "viewer", Password: "pw"})
	require.Equal(t, http.StatusOK, rec.Code)
	viewerSession := rec.Result().Cookies()[0]

	// Regular users cannot reach admin endpoints.
	rec = doJSON(t, s, http.MethodGet, "/api/users", nil, viewerSession)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	rec = doJSON(t, s, http.MethodGet, "/api/backup", nil, viewerSession)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// But they can use the planner.
	rec = doJSON(t, s, http.MethodGet, "/api/plans", nil, viewerSession)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestBackupOverHTTP(t *testing.T) {
	s := newTestServer(t)
	createPlan(t, s, "Plan", "only action")

	rec := doJSON(t, s, http.MethodGet, "/api/backup", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var doc backup.Document
	decode(t, rec, &doc)
	assert.Equal(t, backup.Version, doc.Version)
	require.Len(t, doc.ActionPlans, 1)

	// Restore the same document; data survives.
	rec = doJSON(t, s, http.MethodPost, "/api/backup", doc)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, s, http.MethodGet, "/api/plans", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var listed ListPlansResponse
	decode(t, rec, &listed)
	assert.Equal(t, 1, listed.Count)

	// Invalid documents are rejected before any wipe.
	rec = doJSON(t, s, http.MethodPost, "/api/backup", backup.Document{Version: 42})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCORSPreflights(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/plans", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "http://localhost:5173", rec.Header().Get("Access-Control-Allow-Origin"))
}
