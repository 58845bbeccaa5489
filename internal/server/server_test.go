package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"taskdesk/internal/db"
	"taskdesk/internal/domain"
	"taskdesk/internal/engine"
	"taskdesk/internal/migrate"
)

const testSecret = "test-secret"

type mockRoles struct {
	mock.Mock
}

func (m *mockRoles) ActorRoles(ctx context.Context, actorID string) ([]domain.Role, error) {
	args := m.Called(ctx, actorID)
	roles, _ := args.Get(0).([]domain.Role)
	return roles, args.Error(1)
}

type testServer struct {
	*httptest.Server
	Engine engine.Engine
	Roles  *mockRoles
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	_, err = migrate.Migrate(conn)
	require.NoError(t, err)

	log := zaptest.NewLogger(t)
	e := engine.New(conn, log)
	_, err = e.CreateCategory(context.Background(), domain.Actor{ID: "root", Roles: []domain.Role{domain.RoleAdmin}},
		engine.CategoryInput{Name: "General", Color: "#607d8b"})
	require.NoError(t, err)

	roles := &mockRoles{}
	roles.On("ActorRoles", mock.Anything, "root").Return([]domain.Role{domain.RoleAdmin}, nil)
	roles.On("ActorRoles", mock.Anything, "alice").Return([]domain.Role{domain.RoleRequester}, nil)
	roles.On("ActorRoles", mock.Anything, "ann").Return([]domain.Role{domain.RoleAssigner}, nil)
	roles.On("ActorRoles", mock.Anything, "eve").Return([]domain.Role{domain.RoleExecutor}, nil)
	roles.On("ActorRoles", mock.Anything, mock.Anything).Return([]domain.Role(nil), nil)

	handler, err := New(Config{
		Engine:   e,
		BasePath: "/v0",
		Auth:     AuthConfig{JWTSecret: testSecret, AllowLegacyActorHeader: true},
		Roles:    roles,
		Log:      log,
	})
	require.NoError(t, err)
	srv := httptest.NewServer(handler)
	t.Cleanup(func() {
		srv.Close()
		conn.Close()
	})
	return &testServer{Server: srv, Engine: e, Roles: roles}
}

func bearer(t *testing.T, actorID string, roles ...string) map[string]string {
	t.Helper()
	token, err := SignToken(testSecret, actorID, roles, time.Hour)
	require.NoError(t, err)
	return map[string]string{"Authorization": "Bearer " + token}
}

func doJSON(t *testing.T, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader io.Reader = http.NoBody
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, url, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	return res, data
}

type errorEnvelope struct {
	Error struct {
		Code    string         `json:"code"`
		Message string         `json:"message"`
		Details map[string]any `json:"details"`
	} `json:"error"`
}

func decodeError(t *testing.T, data []byte) errorEnvelope {
	t.Helper()
	var env errorEnvelope
	require.NoError(t, json.Unmarshal(data, &env), string(data))
	return env
}

func TestHealthNeedsNoAuth(t *testing.T) {
	srv := newTestServer(t)
	res, _ := doJSON(t, http.MethodGet, srv.URL+"/v0/health", nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
}

func TestUnauthenticatedRequestsRejected(t *testing.T) {
	srv := newTestServer(t)
	res, data := doJSON(t, http.MethodGet, srv.URL+"/v0/requests", nil, nil)
	require.Equal(t, http.StatusUnauthorized, res.StatusCode)
	require.Equal(t, "unauthorized", decodeError(t, data).Error.Code)

	res, data = doJSON(t, http.MethodGet, srv.URL+"/v0/requests", nil, map[string]string{"Authorization": "Bearer nope"})
	require.Equal(t, http.StatusUnauthorized, res.StatusCode)
	require.Equal(t, "invalid_credentials", decodeError(t, data).Error.Code)
}

func TestRequestLifecycleOverHTTP(t *testing.T) {
	srv := newTestServer(t)
	alice := bearer(t, "alice")

	res, data := doJSON(t, http.MethodPost, srv.URL+"/v0/requests", map[string]any{
		"title":       "New laptop",
		"description": "Mine is dying",
		"priority":    "HIGH",
	}, alice)
	require.Equal(t, http.StatusCreated, res.StatusCode, string(data))
	var created RequestResponse
	require.NoError(t, json.Unmarshal(data, &created))
	require.Equal(t, domain.StatusDraft, created.Status)
	require.Equal(t, []string{"submit", "cancel"}, created.AllowedTransitions)

	base := srv.URL + "/v0/requests/" + created.ID
	res, data = doJSON(t, http.MethodPost, base+"/submit", nil, alice)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))

	res, data = doJSON(t, http.MethodPost, base+"/assign", nil, alice)
	require.Equal(t, http.StatusForbidden, res.StatusCode, string(data))
	require.Equal(t, "forbidden", decodeError(t, data).Error.Code)

	res, data = doJSON(t, http.MethodPost, base+"/assign", nil, bearer(t, "ann"))
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var assigned RequestResponse
	require.NoError(t, json.Unmarshal(data, &assigned))
	require.Equal(t, "ann", *assigned.AssignerID)

	res, data = doJSON(t, http.MethodPost, base+"/assign", nil, bearer(t, "ann"))
	require.Equal(t, http.StatusConflict, res.StatusCode, string(data))
	env := decodeError(t, data)
	require.Equal(t, "invalid_state", env.Error.Code)
	require.Equal(t, "ASSIGNED", env.Error.Details["actual"])

	res, data = doJSON(t, http.MethodPost, base+"/comments", map[string]any{"content": "on it"}, bearer(t, "eve"))
	require.Equal(t, http.StatusCreated, res.StatusCode, string(data))

	res, data = doJSON(t, http.MethodPost, base+"/complete", nil, bearer(t, "eve"))
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))

	res, data = doJSON(t, http.MethodGet, base, nil, alice)
	require.Equal(t, http.StatusOK, res.StatusCode)
	var final RequestResponse
	require.NoError(t, json.Unmarshal(data, &final))
	require.Equal(t, domain.StatusCompleted, final.Status)
	require.Len(t, final.Comments, 1)
	require.Empty(t, final.AllowedTransitions)

	res, data = doJSON(t, http.MethodGet, srv.URL+"/v0/stats", nil, alice)
	require.Equal(t, http.StatusOK, res.StatusCode)
	var stats StatsResponse
	require.NoError(t, json.Unmarshal(data, &stats))
	require.Equal(t, 1, stats.Total)
	require.Equal(t, 1, stats.Counts[domain.StatusCompleted])

	srv.Roles.AssertCalled(t, "ActorRoles", mock.Anything, "ann")
}

func TestClaimedRolesMergeWithStored(t *testing.T) {
	srv := newTestServer(t)
	res, data := doJSON(t, http.MethodGet, srv.URL+"/v0/me", nil, bearer(t, "alice", "EXECUTOR", "BOGUS"))
	require.Equal(t, http.StatusOK, res.StatusCode)
	var who WhoAmIResponse
	require.NoError(t, json.Unmarshal(data, &who))
	require.Equal(t, "alice", who.ActorID)
	require.Equal(t, []domain.Role{domain.RoleExecutor, domain.RoleRequester}, who.Roles)
	require.Equal(t, "jwt", who.Source)
}

func TestValidationAndNotFoundEnvelopes(t *testing.T) {
	srv := newTestServer(t)
	alice := bearer(t, "alice")

	res, data := doJSON(t, http.MethodPost, srv.URL+"/v0/requests", map[string]any{
		"title": "   ", "description": "d",
	}, alice)
	require.Equal(t, http.StatusBadRequest, res.StatusCode, string(data))
	env := decodeError(t, data)
	require.Equal(t, "invalid_field", env.Error.Code)
	require.Equal(t, "title", env.Error.Details["field"])

	res, data = doJSON(t, http.MethodGet, srv.URL+"/v0/requests/missing", nil, alice)
	require.Equal(t, http.StatusNotFound, res.StatusCode)
	env = decodeError(t, data)
	require.Equal(t, "not_found", env.Error.Code)
	require.Equal(t, "request missing was not found.", env.Error.Message)
}

func TestErrorsLocalizedFromAcceptLanguage(t *testing.T) {
	srv := newTestServer(t)
	headers := bearer(t, "alice")
	headers["Accept-Language"] = "fr-FR,fr;q=0.9,en;q=0.5"
	res, data := doJSON(t, http.MethodGet, srv.URL+"/v0/requests/missing", nil, headers)
	require.Equal(t, http.StatusNotFound, res.StatusCode)
	require.Equal(t, "request missing introuvable.", decodeError(t, data).Error.Message)

	res, data = doJSON(t, http.MethodGet, srv.URL+"/v0/requests", nil, map[string]string{"Accept-Language": "fr"})
	require.Equal(t, http.StatusUnauthorized, res.StatusCode)
	require.Equal(t, "Authentification requise.", decodeError(t, data).Error.Message)
}

func TestCategoryAdministration(t *testing.T) {
	srv := newTestServer(t)
	root := bearer(t, "root")

	res, data := doJSON(t, http.MethodPost, srv.URL+"/v0/categories", map[string]any{"name": "IT", "color": "blue"}, bearer(t, "alice"))
	require.Equal(t, http.StatusForbidden, res.StatusCode, string(data))

	res, data = doJSON(t, http.MethodPost, srv.URL+"/v0/categories", map[string]any{"name": "IT", "color": "blue"}, root)
	require.Equal(t, http.StatusCreated, res.StatusCode, string(data))
	var it domain.Category
	require.NoError(t, json.Unmarshal(data, &it))
	require.False(t, it.IsDefault)

	res, data = doJSON(t, http.MethodPost, srv.URL+"/v0/categories/"+it.ID+"/default", nil, root)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))

	res, data = doJSON(t, http.MethodDelete, srv.URL+"/v0/categories/"+it.ID, nil, root)
	require.Equal(t, http.StatusConflict, res.StatusCode, string(data))

	res, data = doJSON(t, http.MethodGet, srv.URL+"/v0/categories", nil, root)
	require.Equal(t, http.StatusOK, res.StatusCode)
	var cats []domain.Category
	require.NoError(t, json.Unmarshal(data, &cats))
	require.Len(t, cats, 2)
	defaults := 0
	for _, c := range cats {
		if c.IsDefault {
			defaults++
			require.Equal(t, it.ID, c.ID)
		}
	}
	require.Equal(t, 1, defaults)
}

func TestAPIKeyAndLegacyHeader(t *testing.T) {
	srv := newTestServer(t)
	_, plain, err := srv.Engine.CreateAPIKey(context.Background(), "alice", "laptop")
	require.NoError(t, err)

	res, data := doJSON(t, http.MethodGet, srv.URL+"/v0/me", nil, map[string]string{"X-Api-Key": plain})
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var who WhoAmIResponse
	require.NoError(t, json.Unmarshal(data, &who))
	require.Equal(t, "api_key", who.Source)

	res, _ = doJSON(t, http.MethodGet, srv.URL+"/v0/me", nil, map[string]string{"X-Api-Key": "td_wrong"})
	require.Equal(t, http.StatusUnauthorized, res.StatusCode)

	res, data = doJSON(t, http.MethodGet, srv.URL+"/v0/me", nil, map[string]string{"X-Actor-Id": "eve"})
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	require.NoError(t, json.Unmarshal(data, &who))
	require.Equal(t, "legacy_header", who.Source)
	require.Equal(t, []domain.Role{domain.RoleExecutor}, who.Roles)
}

func TestListRequestsPaginates(t *testing.T) {
	srv := newTestServer(t)
	alice := bearer(t, "alice")
	for _, title := range []string{"one", "two", "three"} {
		res, data := doJSON(t, http.MethodPost, srv.URL+"/v0/requests", map[string]any{"title": title, "description": "d"}, alice)
		require.Equal(t, http.StatusCreated, res.StatusCode, string(data))
	}

	var page paginatedRequests
	res, data := doJSON(t, http.MethodGet, srv.URL+"/v0/requests?limit=2", nil, alice)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	require.NoError(t, json.Unmarshal(data, &page))
	require.Len(t, page.Items, 2)
	require.NotEmpty(t, page.NextCursor)

	seen := map[string]bool{page.Items[0].ID: true, page.Items[1].ID: true}
	req, err := http.NewRequest(http.MethodGet, srv.URL+"/v0/requests", nil)
	require.NoError(t, err)
	q := req.URL.Query()
	q.Set("limit", "2")
	q.Set("cursor", page.NextCursor)
	res, data = doJSON(t, http.MethodGet, srv.URL+"/v0/requests?"+q.Encode(), nil, alice)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	page = paginatedRequests{}
	require.NoError(t, json.Unmarshal(data, &page))
	require.Len(t, page.Items, 1)
	require.False(t, seen[page.Items[0].ID])
	require.Empty(t, page.NextCursor)
}

func TestOpenAPIServedConcurrently(t *testing.T) {
	srv := newTestServer(t)
	bodies := make([][]byte, 8)
	var wg sync.WaitGroup
	for i := range bodies {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := http.Get(srv.URL + "/v0/openapi.json")
			if err != nil {
				return
			}
			defer res.Body.Close()
			if res.StatusCode == http.StatusOK {
				bodies[i], _ = io.ReadAll(res.Body)
			}
		}(i)
	}
	wg.Wait()

	require.NotEmpty(t, bodies[0])
	for _, b := range bodies[1:] {
		require.Equal(t, bodies[0], b)
	}
	var doc map[string]any
	require.NoError(t, json.Unmarshal(bodies[0], &doc))
	require.Contains(t, doc, "paths")
}
