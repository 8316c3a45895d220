package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tend/internal/model"
	"tend/internal/remote"
)

const testToken = "test-token"

func newTestRouter(t *testing.T) (*gin.Engine, *Repo) {
	t.Helper()
	repo := openTestRepo(t)
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewRouter(repo, testToken, "server-1", log), repo
}

func doRequest(t *testing.T, router *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reqBody io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		require.NoError(t, err)
		reqBody = bytes.NewReader(encoded)
	}
	req := httptest.NewRequest(method, path, reqBody)
	req.Header.Set("Authorization", "Bearer "+testToken)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decodeEvent(t *testing.T, w *httptest.ResponseRecorder) remote.Event {
	t.Helper()
	var e remote.Event
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &e))
	return e
}

func createPayload(name string) remote.EventPayload {
	due, _ := model.ParseDate("2024-01-10")
	return remote.EventPayload{
		Name:           name,
		DueDate:        due,
		FrequencyValue: 7,
		FrequencyUnit:  model.UnitDays,
	}
}

func TestAPI_RequiresToken(t *testing.T) {
	router, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api/events", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "missing bearer token")

	req = httptest.NewRequest(http.MethodGet, "/api/events", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "invalid token")
}

func TestAPI_Health(t *testing.T) {
	router, _ := newTestRouter(t)

	w := doRequest(t, router, http.MethodGet, "/api/health", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var h remote.Health
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &h))
	assert.Equal(t, "ok", h.Status)
	assert.Equal(t, "server-1", h.ServerID)
	assert.Positive(t, h.ServerTime)
}

func TestAPI_CreateAndGet(t *testing.T) {
	router, _ := newTestRouter(t)

	w := doRequest(t, router, http.MethodPost, "/api/events", createPayload("Water plants"))
	require.Equal(t, http.StatusCreated, w.Code)

	created := decodeEvent(t, w)
	assert.Equal(t, int64(1), created.ID)
	assert.Equal(t, "Water plants", created.Name)
	assert.Nil(t, created.Tag)
	assert.NotNil(t, created.History, "history serializes as an array, not null")

	w = doRequest(t, router, http.MethodGet, "/api/events/1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Water plants", decodeEvent(t, w).Name)
}

func TestAPI_CreateRejectsInvalid(t *testing.T) {
	router, _ := newTestRouter(t)

	payload := createPayload("Water plants")
	payload.FrequencyValue = 0
	w := doRequest(t, router, http.MethodPost, "/api/events", payload)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "frequency_value")
}

func TestAPI_List(t *testing.T) {
	router, _ := newTestRouter(t)

	doRequest(t, router, http.MethodPost, "/api/events", createPayload("Water plants"))
	doRequest(t, router, http.MethodPost, "/api/events", createPayload("Laundry"))

	w := doRequest(t, router, http.MethodGet, "/api/events?history_limit=10", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var events []remote.Event
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &events))
	assert.Len(t, events, 2)
}

func TestAPI_ListRejectsBadHistoryLimit(t *testing.T) {
	router, _ := newTestRouter(t)

	for _, q := range []string{"history_limit=-1", "history_limit=366", "history_limit=abc"} {
		w := doRequest(t, router, http.MethodGet, "/api/events?"+q, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code, q)
	}
}

func TestAPI_Update(t *testing.T) {
	router, _ := newTestRouter(t)
	doRequest(t, router, http.MethodPost, "/api/events", createPayload("Water plants"))

	w := doRequest(t, router, http.MethodPut, "/api/events/1",
		map[string]any{"name": "Water all plants"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Water all plants", decodeEvent(t, w).Name)

	w = doRequest(t, router, http.MethodPut, "/api/events/1", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "no fields")

	w = doRequest(t, router, http.MethodPut, "/api/events/99",
		map[string]any{"name": "x"})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAPI_Delete(t *testing.T) {
	router, _ := newTestRouter(t)
	doRequest(t, router, http.MethodPost, "/api/events", createPayload("Water plants"))

	w := doRequest(t, router, http.MethodDelete, "/api/events/1", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = doRequest(t, router, http.MethodDelete, "/api/events/1", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "event not found")
}

func TestAPI_Complete(t *testing.T) {
	router, _ := newTestRouter(t)
	doRequest(t, router, http.MethodPost, "/api/events", createPayload("Water plants"))

	w := doRequest(t, router, http.MethodPost, "/api/events/1/complete",
		map[string]any{"done_date": "2024-01-10"})
	require.Equal(t, http.StatusOK, w.Code)

	completed := decodeEvent(t, w)
	assert.Equal(t, "2024-01-17", completed.DueDate.String())
	require.NotNil(t, completed.LastDone)
	assert.Equal(t, "2024-01-10", completed.LastDone.String())
	require.Len(t, completed.History, 1)
	assert.Equal(t, "done", completed.History[0].Action)
}

func TestAPI_CompleteWithoutBodyDefaultsToToday(t *testing.T) {
	router, _ := newTestRouter(t)
	doRequest(t, router, http.MethodPost, "/api/events", createPayload("Water plants"))

	w := doRequest(t, router, http.MethodPost, "/api/events/1/complete", nil)
	require.Equal(t, http.StatusOK, w.Code)

	completed := decodeEvent(t, w)
	require.NotNil(t, completed.LastDone)
	assert.Equal(t, model.Today().String(), completed.LastDone.String())
}

func TestAPI_History(t *testing.T) {
	router, _ := newTestRouter(t)
	doRequest(t, router, http.MethodPost, "/api/events", createPayload("Water plants"))

	for _, day := range []string{"2024-01-10", "2024-01-17"} {
		doRequest(t, router, http.MethodPost, "/api/events/1/complete",
			map[string]any{"done_date": day})
	}

	w := doRequest(t, router, http.MethodGet, "/api/events/1/history", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var entries []remote.HistoryEntry
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &entries))
	require.Len(t, entries, 2)
	assert.Equal(t, "2024-01-17", entries[0].ActionDate.String(), "newest first")

	w = doRequest(t, router, http.MethodGet, "/api/events/1/history?limit=1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &entries))
	assert.Len(t, entries, 1)

	w = doRequest(t, router, http.MethodGet, "/api/events/99/history", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAPI_InvalidEventID(t *testing.T) {
	router, _ := newTestRouter(t)

	for _, path := range []string{"/api/events/abc", "/api/events/abc/history"} {
		w := doRequest(t, router, http.MethodGet, path, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code, path)
	}
}

func TestAPI_OverdueFlag(t *testing.T) {
	router, _ := newTestRouter(t)

	overdue := createPayload("Past due")
	w := doRequest(t, router, http.MethodPost, "/api/events", overdue)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.True(t, decodeEvent(t, w).IsOverdue, "a 2024 due date is long past")

	future := createPayload("Far future")
	future.DueDate, _ = model.ParseDate(fmt.Sprintf("%d-01-01", 2100))
	w = doRequest(t, router, http.MethodPost, "/api/events", future)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.False(t, decodeEvent(t, w).IsOverdue)
}

func TestAPI_ErrorBodiesAreJSON(t *testing.T) {
	router, _ := newTestRouter(t)

	w := doRequest(t, router, http.MethodGet, "/api/events/99", nil)
	require.Equal(t, http.StatusNotFound, w.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.True(t, strings.Contains(body["error"], "not found"))
}
