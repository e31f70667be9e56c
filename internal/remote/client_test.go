package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fintrackapp/fintrack/internal/model"
)

func testClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := NewClient(&Config{
		BaseURL: server.URL,
		Token: func(context.Context) (string, error) {
			return "test-token", nil
		},
		MaxTries: 3,
	})
	require.NoError(t, err)
	return client
}

func TestListAttachesBearerToken(t *testing.T) {
	var gotAuth string
	client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		fmt.Fprint(w, `[{"id":"r-1","updated_at":"2026-03-14T09:26:53Z","name":"Salary"}]`)
	}))

	records, err := client.List(context.Background(), model.TableTransactions)
	require.NoError(t, err)

	assert.Equal(t, "Bearer test-token", gotAuth)
	require.Len(t, records, 1)
	assert.Equal(t, "r-1", records[0].ID)
	assert.Equal(t, time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC), records[0].UpdatedAt)
	assert.Contains(t, string(records[0].Data), `"name":"Salary"`)
}

func TestCreateReturnsAuthoritativeRecord(t *testing.T) {
	client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/accounts", r.URL.Path)
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var payload map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.Equal(t, "Checking", payload["name"])

		w.WriteHeader(http.StatusCreated)
		fmt.Fprint(w, `{"id":"cloud-7","updated_at":"2026-03-14T10:00:00Z","name":"Checking"}`)
	}))

	rec, err := client.Create(context.Background(), model.TableAccounts,
		json.RawMessage(`{"name":"Checking"}`))
	require.NoError(t, err)
	assert.Equal(t, "cloud-7", rec.ID)
}

func TestUpdateTargetsCloudID(t *testing.T) {
	client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPatch, r.Method)
		require.Equal(t, "/goals/cloud-3", r.URL.Path)
		fmt.Fprint(w, `{"id":"cloud-3","updated_at":"2026-03-14T10:00:00Z"}`)
	}))

	rec, err := client.Update(context.Background(), model.TableGoals, "cloud-3",
		json.RawMessage(`{"saved":"150"}`))
	require.NoError(t, err)
	assert.Equal(t, "cloud-3", rec.ID)
}

func TestDeleteTreats404AsSuccess(t *testing.T) {
	client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))

	err := client.Delete(context.Background(), model.TableLoans, "gone")
	assert.NoError(t, err, "deleting an already-deleted record is success")
}

func TestTransientFailureIsRetried(t *testing.T) {
	var calls atomic.Int32
	client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		fmt.Fprint(w, `[]`)
	}))

	_, err := client.List(context.Background(), model.TableInvestments)
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load(), "two 502s then success")
}

func TestClientErrorIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnprocessableEntity)
	}))

	_, err := client.Create(context.Background(), model.TableGoals, json.RawMessage(`{}`))
	require.Error(t, err)

	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusUnprocessableEntity, statusErr.Code)
	assert.Equal(t, int32(1), calls.Load(), "a 422 must not be retried")
}

func TestRetriesAreBounded(t *testing.T) {
	var calls atomic.Int32
	client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))

	_, err := client.List(context.Background(), model.TableAccounts)
	require.Error(t, err)
	assert.Equal(t, int32(3), calls.Load(), "MaxTries bounds the attempts")
}

func TestTokenFailureAbortsWithoutRequest(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	t.Cleanup(server.Close)

	client, err := NewClient(&Config{
		BaseURL: server.URL,
		Token: func(context.Context) (string, error) {
			return "", errors.New("session expired")
		},
	})
	require.NoError(t, err)

	_, err = client.List(context.Background(), model.TableAccounts)
	require.Error(t, err)
	assert.Equal(t, int32(0), calls.Load(), "no request without a token")
}

func TestRecordUnmarshalRequiresID(t *testing.T) {
	var rec Record
	err := json.Unmarshal([]byte(`{"updated_at":"2026-03-14T09:26:53Z"}`), &rec)
	assert.Error(t, err)
}

func TestNewClientValidation(t *testing.T) {
	_, err := NewClient(nil)
	assert.Error(t, err)

	_, err = NewClient(&Config{BaseURL: "http://x"})
	assert.Error(t, err, "token func is required")
}
