package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/felixgeelhaar/subtrack/internal/app"
	"github.com/felixgeelhaar/subtrack/internal/subscriptions/application/queries"
	"github.com/felixgeelhaar/subtrack/pkg/config"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type response struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
	Count   *int            `json:"count"`
}

type testAPI struct {
	t       *testing.T
	handler http.Handler
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()

	var runs atomic.Int32
	engine := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{
			"workflowRunId": fmt.Sprintf("run-%d", runs.Add(1)),
		})
	}))
	t.Cleanup(engine.Close)

	cfg := &config.Config{
		AppEnv:                 "test",
		ServerURL:              "http://subtrack.test",
		AuthUserHeader:         "X-User-ID",
		WorkflowTriggerURL:     engine.URL,
		WorkflowTimeout:        time.Second,
		WorkflowInlineDispatch: true,
		ReminderRunTTL:         time.Hour,
		OutboxPollInterval:     time.Second,
		OutboxBatchSize:        10,
		OutboxMaxRetries:       3,
	}
	c := app.NewInMemoryContainer(cfg, nil)
	t.Cleanup(c.Close)

	handler := NewSubscriptionHandler(SubscriptionHandlerConfig{
		Create:   c.CreateSubscriptionHandler,
		Update:   c.UpdateSubscriptionHandler,
		Cancel:   c.CancelSubscriptionHandler,
		Delete:   c.DeleteSubscriptionHandler,
		Get:      c.GetSubscriptionHandler,
		ListUser: c.ListUserSubscriptionsHandler,
		ListAll:  c.ListAllSubscriptionsHandler,
		Renewals: c.UpcomingRenewalsHandler,
	})
	cfgServer := DefaultServerConfig()
	server := NewServer(cfgServer, handler, c.Health, c.Metrics, nil)

	return &testAPI{t: t, handler: server.Handler()}
}

func (a *testAPI) do(method, path, user string, body any) (*httptest.ResponseRecorder, response) {
	a.t.Helper()

	var buf bytes.Buffer
	if body != nil {
		switch b := body.(type) {
		case string:
			buf.WriteString(b)
		default:
			require.NoError(a.t, json.NewEncoder(&buf).Encode(b))
		}
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if user != "" {
		req.Header.Set("X-User-ID", user)
	}
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)

	var resp response
	require.NoError(a.t, json.Unmarshal(rec.Body.Bytes(), &resp), rec.Body.String())
	return rec, resp
}

func (a *testAPI) create(user string, body map[string]any) queries.SubscriptionDTO {
	a.t.Helper()
	rec, resp := a.do(http.MethodPost, "/api/v1/subscriptions", user, body)
	require.Equal(a.t, http.StatusCreated, rec.Code, rec.Body.String())

	var data struct {
		Subscription queries.SubscriptionDTO `json:"subscription"`
	}
	require.NoError(a.t, json.Unmarshal(resp.Data, &data))
	return data.Subscription
}

func decodeList(t *testing.T, resp response) []queries.SubscriptionDTO {
	t.Helper()
	var subs []queries.SubscriptionDTO
	require.NoError(t, json.Unmarshal(resp.Data, &subs))
	return subs
}

func TestCreateSubscription(t *testing.T) {
	api := newTestAPI(t)

	rec, resp := api.do(http.MethodPost, "/api/v1/subscriptions", "u1", map[string]any{"plan": "pro", "user": "someone-else"})

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.True(t, resp.Success)

	var data struct {
		Subscription  queries.SubscriptionDTO `json:"subscription"`
		WorkflowRunID string                  `json:"workflowRunId"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &data))
	assert.Equal(t, "u1", data.Subscription.UserID)
	assert.Equal(t, "pro", data.Subscription.Plan)
	assert.Equal(t, "active", data.Subscription.Status)
	assert.Equal(t, "run-1", data.WorkflowRunID)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestCreateSubscription_BadInput(t *testing.T) {
	api := newTestAPI(t)

	rec, resp := api.do(http.MethodPost, "/api/v1/subscriptions", "u1", map[string]any{"price": -10})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.False(t, resp.Success)
	assert.Contains(t, resp.Message, "price")

	rec, _ = api.do(http.MethodPost, "/api/v1/subscriptions", "u1", `{"plan":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRequiresAuthenticatedUser(t *testing.T) {
	api := newTestAPI(t)

	rec, resp := api.do(http.MethodGet, "/api/v1/subscriptions", "", nil)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.False(t, resp.Success)
}

func TestRequireUser_BlankHeaderIsUnauthenticated(t *testing.T) {
	called := false
	h := requireUser("X-User-ID", slog.Default(), func(http.ResponseWriter, *http.Request) { called = true })

	req := httptest.NewRequest(http.MethodGet, "/api/v1/subscriptions", nil)
	req.Header.Set("X-User-ID", "   ")
	rec := httptest.NewRecorder()
	h(rec, req)

	assert.False(t, called)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	var resp response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "Unauthorized", resp.Message)
}

func TestListByUser(t *testing.T) {
	api := newTestAPI(t)
	s := api.create("u1", map[string]any{"plan": "pro"})

	rec, resp := api.do(http.MethodGet, "/api/v1/subscriptions/user/u1", "u1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	subs := decodeList(t, resp)
	require.Len(t, subs, 1)
	assert.Equal(t, s.ID, subs[0].ID)

	rec, resp = api.do(http.MethodGet, "/api/v1/subscriptions/user/u2", "u1", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "You are not the owner of this account", resp.Message)
}

func TestListAll_IsOpenToAnyCaller(t *testing.T) {
	api := newTestAPI(t)
	api.create("u1", map[string]any{"plan": "pro"})
	api.create("u2", map[string]any{"plan": "basic"})

	rec, resp := api.do(http.MethodGet, "/api/v1/subscriptions", "u3", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, resp.Count)
	assert.Equal(t, 2, *resp.Count)

	owners := map[string]bool{}
	for _, s := range decodeList(t, resp) {
		owners[s.UserID] = true
	}
	assert.Equal(t, map[string]bool{"u1": true, "u2": true}, owners)
}

func TestResourceRoutes_NotFoundAndPermission(t *testing.T) {
	api := newTestAPI(t)
	s := api.create("u1", map[string]any{"plan": "pro"})

	routes := []struct {
		method string
		path   string
		body   any
	}{
		{http.MethodGet, "/api/v1/subscriptions/%s", nil},
		{http.MethodPut, "/api/v1/subscriptions/%s", map[string]any{"name": "x"}},
		{http.MethodPut, "/api/v1/subscriptions/%s/cancel", nil},
		{http.MethodDelete, "/api/v1/subscriptions/%s", nil},
	}

	for _, route := range routes {
		t.Run(route.method+" "+route.path, func(t *testing.T) {
			rec, resp := api.do(route.method, fmt.Sprintf(route.path, uuid.New()), "u1", route.body)
			assert.Equal(t, http.StatusNotFound, rec.Code)
			assert.Equal(t, "Subscription not found", resp.Message)

			rec, _ = api.do(route.method, fmt.Sprintf(route.path, "not-a-uuid"), "u1", route.body)
			assert.Equal(t, http.StatusNotFound, rec.Code)

			rec, resp = api.do(route.method, fmt.Sprintf(route.path, s.ID), "u2", route.body)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.Equal(t, "You are not the owner of this account", resp.Message)
		})
	}

	rec, resp := api.do(http.MethodGet, "/api/v1/subscriptions/"+s.ID, "u1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var got queries.SubscriptionDTO
	require.NoError(t, json.Unmarshal(resp.Data, &got))
	assert.Equal(t, "pro", got.Plan)
	assert.Equal(t, "active", got.Status)
}

func TestUpdateSubscription(t *testing.T) {
	api := newTestAPI(t)
	s := api.create("u1", map[string]any{"name": "Netflix", "price": 9.99})

	rec, resp := api.do(http.MethodPut, "/api/v1/subscriptions/"+s.ID, "u1", map[string]any{"price": 15.49, "user": "u2"})
	require.Equal(t, http.StatusOK, rec.Code)

	var updated queries.SubscriptionDTO
	require.NoError(t, json.Unmarshal(resp.Data, &updated))
	assert.Equal(t, 15.49, updated.Price)
	assert.Equal(t, "Netflix", updated.Name)
	assert.Equal(t, "u1", updated.UserID)

	rec, _ = api.do(http.MethodPut, "/api/v1/subscriptions/"+s.ID, "u1", map[string]any{"billingCycle": "hourly"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCancelSubscription_Twice(t *testing.T) {
	api := newTestAPI(t)
	s := api.create("u1", map[string]any{"plan": "pro"})

	for i := 0; i < 2; i++ {
		rec, resp := api.do(http.MethodPut, "/api/v1/subscriptions/"+s.ID+"/cancel", "u1", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "Subscription cancelled", resp.Message)

		var cancelled queries.SubscriptionDTO
		require.NoError(t, json.Unmarshal(resp.Data, &cancelled))
		assert.Equal(t, "cancelled", cancelled.Status)
	}
}

func TestDeleteSubscription(t *testing.T) {
	api := newTestAPI(t)
	s := api.create("u1", map[string]any{"plan": "pro"})

	rec, resp := api.do(http.MethodDelete, "/api/v1/subscriptions/"+s.ID, "u1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Subscription deleted", resp.Message)

	rec, _ = api.do(http.MethodGet, "/api/v1/subscriptions/"+s.ID, "u1", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUpcomingRenewals(t *testing.T) {
	api := newTestAPI(t)
	now := time.Now().UTC()
	in3 := now.AddDate(0, 0, 3).Format(time.RFC3339)
	in10 := now.AddDate(0, 0, 10).Format(time.RFC3339)

	due := api.create("u1", map[string]any{"name": "due", "nextBillingDate": in3})
	api.create("u1", map[string]any{"name": "later", "nextBillingDate": in10})
	cancelled := api.create("u1", map[string]any{"name": "cancelled", "nextBillingDate": in3})
	api.create("u2", map[string]any{"name": "not mine", "nextBillingDate": in3})
	rec, _ := api.do(http.MethodPut, "/api/v1/subscriptions/"+cancelled.ID+"/cancel", "u1", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	for _, query := range []string{"?days=7", "", "?days=abc"} {
		t.Run("query "+query, func(t *testing.T) {
			rec, resp := api.do(http.MethodGet, "/api/v1/subscriptions/upcoming-renewals"+query, "u1", nil)
			require.Equal(t, http.StatusOK, rec.Code)
			require.NotNil(t, resp.Count)
			assert.Equal(t, 1, *resp.Count)

			subs := decodeList(t, resp)
			require.Len(t, subs, 1)
			assert.Equal(t, due.ID, subs[0].ID)
		})
	}

	rec, resp := api.do(http.MethodGet, "/api/v1/subscriptions/upcoming-renewals?days=30", "u1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 2, *resp.Count)
}

func TestHealthAndReady(t *testing.T) {
	api := newTestAPI(t)

	rec, resp := api.do(http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, resp.Success)

	rec, resp = api.do(http.MethodGet, "/ready", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, resp.Success)
}

func TestCORSPreflight(t *testing.T) {
	api := newTestAPI(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/subscriptions", nil)
	req.Header.Set("Origin", "https://app.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	api.handler.ServeHTTP(rec, req)

	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}
