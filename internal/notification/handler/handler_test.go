package handler

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"auditflow/internal/notification"
	"auditflow/internal/notification/store/memory"
	"auditflow/internal/platform/middleware"
)

type staticValidator struct{}

func (staticValidator) ValidateToken(token string) (*middleware.JWTClaims, error) {
	if token != "valid-token" {
		return nil, fmt.Errorf("invalid token")
	}
	return &middleware.JWTClaims{UserID: uuid.NewString(), Role: "admin"}, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func newServer(t *testing.T) (*httptest.Server, *notification.Service, *memory.Store) {
	t.Helper()
	store := memory.New()
	svc := notification.NewService(store, nil, nil, discardLogger())
	r := chi.NewRouter()
	New(svc, discardLogger(), staticValidator{}).Register(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, svc, store
}

func doJSON(t *testing.T, method, url string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, url, &buf)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer valid-token")
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestUnauthorizedWithoutToken(t *testing.T) {
	srv, _, _ := newServer(t)
	resp, err := http.Get(srv.URL + "/notifications")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestCreateAndGetNotification(t *testing.T) {
	srv, _, _ := newServer(t)
	userID := uuid.New()

	resp := doJSON(t, http.MethodPost, srv.URL+"/notifications", notification.CreateInput{
		UserID:  userID,
		Type:    notification.TypeClockIn,
		Title:   "Clock In",
		Message: "pat@example.com clocked in",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var created notification.Notification
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
	assert.Equal(t, userID, created.UserID)
	assert.False(t, created.IsRead)

	resp = doJSON(t, http.MethodGet, srv.URL+"/notifications/"+created.ID.String(), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = doJSON(t, http.MethodGet, srv.URL+"/notifications/"+uuid.NewString(), nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestCreateRejectsMissingFields(t *testing.T) {
	srv, _, _ := newServer(t)

	resp := doJSON(t, http.MethodPost, srv.URL+"/notifications", notification.CreateInput{
		Type: notification.TypeLogin,
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestListFilters(t *testing.T) {
	srv, svc, _ := newServer(t)
	userA := uuid.New()
	userB := uuid.New()

	a, err := svc.Create(t.Context(), notification.NewLogin(userA, "a@example.com"))
	require.NoError(t, err)
	_, err = svc.Create(t.Context(), notification.NewLogin(userB, "b@example.com"))
	require.NoError(t, err)
	_, err = svc.MarkRead(t.Context(), a.ID)
	require.NoError(t, err)

	var out struct {
		Data  []notification.Notification `json:"data"`
		Count int                         `json:"count"`
	}

	resp := doJSON(t, http.MethodGet, srv.URL+"/notifications?user_id="+userA.String(), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, 1, out.Count)

	resp = doJSON(t, http.MethodGet, srv.URL+"/notifications?is_read=false", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, 1, out.Count)
	assert.Equal(t, userB, out.Data[0].UserID)

	resp = doJSON(t, http.MethodGet, srv.URL+"/notifications?is_read=maybe", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestMarkReadAndReadAll(t *testing.T) {
	srv, svc, _ := newServer(t)
	userID := uuid.New()

	n, err := svc.Create(t.Context(), notification.NewLogin(userID, "a@example.com"))
	require.NoError(t, err)
	_, err = svc.Create(t.Context(), notification.NewLogin(userID, "a@example.com"))
	require.NoError(t, err)

	resp := doJSON(t, http.MethodPost, srv.URL+"/notifications/"+n.ID.String()+"/read", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var read notification.Notification
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&read))
	assert.True(t, read.IsRead)
	assert.NotNil(t, read.ReadAt)

	resp = doJSON(t, http.MethodPost, srv.URL+"/notifications/user/"+userID.String()+"/read-all", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var out struct {
		Updated int64 `json:"updated"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.EqualValues(t, 1, out.Updated)
}

func TestUnreadCountEndpoint(t *testing.T) {
	srv, svc, _ := newServer(t)
	userID := uuid.New()

	_, err := svc.Create(t.Context(), notification.NewLogin(userID, "a@example.com"))
	require.NoError(t, err)

	resp := doJSON(t, http.MethodGet, srv.URL+"/notifications/unread-count?user_id="+userID.String(), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var out struct {
		Unread int64 `json:"unread"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.EqualValues(t, 1, out.Unread)

	resp = doJSON(t, http.MethodGet, srv.URL+"/notifications/unread-count", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestDeleteNotification(t *testing.T) {
	srv, svc, _ := newServer(t)
	userID := uuid.New()

	n, err := svc.Create(t.Context(), notification.NewLogin(userID, "a@example.com"))
	require.NoError(t, err)

	resp := doJSON(t, http.MethodDelete, srv.URL+"/notifications/"+n.ID.String(), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = doJSON(t, http.MethodDelete, srv.URL+"/notifications/"+n.ID.String(), nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
