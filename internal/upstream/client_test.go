package upstream

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ThomasChan/Farm-Land/internal/config"
)

func getTestConfig() config.UpstreamConfig {
	return config.UpstreamConfig{
		AuthAPI:      "http://unused",
		Timeout:      2 * time.Second,
		MaxIdleConns: 2,
	}
}

func TestNewClient(t *testing.T) {
	client := NewClient(getTestConfig())
	defer client.Close()

	require.NotNil(t, client.HTTP)
	assert.Equal(t, 2*time.Second, client.HTTP.Timeout)
}

func TestPostJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		body, _ := io.ReadAll(r.Body)
		var got map[string]interface{}
		assert.NoError(t, json.Unmarshal(body, &got))
		assert.Equal(t, "abc", got["id"])

		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"data":[]}`))
	}))
	defer srv.Close()

	client := NewClient(getTestConfig())
	defer client.Close()

	resp, err := client.PostJSON(context.Background(), srv.URL, map[string]string{"id": "abc"})
	require.NoError(t, err)
	assert.True(t, resp.OK())
	assert.Equal(t, http.StatusCreated, resp.Status)
	assert.JSONEq(t, `{"data":[]}`, string(resp.Body))
}

func TestGet_NonOKIsNotAnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := NewClient(getTestConfig())
	defer client.Close()

	resp, err := client.Get(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.False(t, resp.OK())
	assert.Equal(t, http.StatusInternalServerError, resp.Status)
}

func TestPing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusMethodNotAllowed)
	}))

	client := NewClient(getTestConfig())
	defer client.Close()

	assert.NoError(t, client.Ping(context.Background(), srv.URL))

	srv.Close()
	assert.Error(t, client.Ping(context.Background(), srv.URL))
}

func TestGet_ContextCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client := NewClient(getTestConfig())
	defer client.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.Get(ctx, srv.URL)
	assert.Error(t, err)
}

func TestGet_BodyOverCapIsAnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, strings.Repeat("x", 65))
	}))
	defer srv.Close()

	client := NewClient(getTestConfig())
	defer client.Close()
	client.maxBody = 64

	resp, err := client.Get(context.Background(), srv.URL)
	require.ErrorIs(t, err, ErrResponseTooLarge)
	assert.Nil(t, resp)
}

func TestGet_BodyAtCapIsRead(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, strings.Repeat("x", 64))
	}))
	defer srv.Close()

	client := NewClient(getTestConfig())
	defer client.Close()
	client.maxBody = 64

	resp, err := client.Get(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Len(t, resp.Body, 64)
}
