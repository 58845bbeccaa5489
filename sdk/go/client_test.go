package taskdesksdk

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestClientSendsCredentialsAndDecodes(t *testing.T) {
	var seen *http.Request
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = r
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"r1","title":"t","status":"SUBMITTED","comments":[],"attachments":[],"allowed_transitions":["assign","cancel"]}`))
	}))
	defer srv.Close()

	c := New(srv.URL + "/")
	c.BearerToken = "tok"
	c.Language = "fr"
	got, err := c.CreateRequest(context.Background(), NewRequest{Title: "t", Description: "d", Submit: true})
	require.NoError(t, err)
	require.Equal(t, "r1", got.ID)
	require.Equal(t, []string{"assign", "cancel"}, got.AllowedTransitions)

	require.Equal(t, "/v0/requests", seen.URL.Path)
	require.Equal(t, http.MethodPost, seen.Method)
	require.Equal(t, "Bearer tok", seen.Header.Get("Authorization"))
	require.Equal(t, "fr", seen.Header.Get("Accept-Language"))
	require.Equal(t, true, body["submit"])
}

func TestClientDecodesErrorEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v0/requests/r1/assign", r.URL.Path)
		require.Equal(t, "k", r.Header.Get("X-Api-Key"))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(`{"error":{"code":"invalid_state","message":"request r1 is DRAFT","details":{"actual":"DRAFT"}}}`))
	}))
	defer srv.Close()

	c := New(srv.URL)
	c.APIKey = "k"
	_, err := c.Assign(context.Background(), "r1")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, http.StatusConflict, apiErr.StatusCode)
	require.Equal(t, "invalid_state", apiErr.Code)
	require.Equal(t, "DRAFT", apiErr.Details["actual"])
}

func TestListRequestsQuery(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "SUBMITTED", r.URL.Query().Get("status"))
		require.Equal(t, "10", r.URL.Query().Get("limit"))
		require.Equal(t, "a|b", r.URL.Query().Get("cursor"))
		_, _ = w.Write([]byte(`{"items":[{"id":"x"}],"next_cursor":"c2"}`))
	}))
	defer srv.Close()

	page, err := New(srv.URL).ListRequests(context.Background(), "SUBMITTED", 10, "a|b")
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	require.Equal(t, "c2", page.NextCursor)
}
