package session

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ThomasChan/Farm-Land/internal/auth"
	"github.com/ThomasChan/Farm-Land/internal/config"
	"github.com/ThomasChan/Farm-Land/internal/logger"
	"github.com/ThomasChan/Farm-Land/internal/models"
	"github.com/ThomasChan/Farm-Land/internal/store"
	"github.com/ThomasChan/Farm-Land/internal/upstream"
)

const password = "secret"

// fakeCollection serves /auth and a /layers collection that appends drawn parcels.
type fakeCollection struct {
	mu      sync.Mutex
	parcels []map[string]interface{}
	creates int
}

func (f *fakeCollection) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	data, _ := io.ReadAll(r.Body)

	switch r.URL.Path {
	case "/auth":
		var body struct {
			Body string `json:"body"`
		}
		_ = json.Unmarshal(data, &body)
		if body.Body != password {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.WriteHeader(http.StatusOK)

	case "/layers":
		f.mu.Lock()
		defer f.mu.Unlock()
		if r.Method == http.MethodPost {
			var body map[string]json.RawMessage
			_ = json.Unmarshal(data, &body)
			if points, ok := body["points"]; ok {
				f.creates++
				f.parcels = append(f.parcels, map[string]interface{}{
					"_id":    "new",
					"points": json.RawMessage(points),
				})
			}
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"data": f.parcels})

	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (f *fakeCollection) createCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.creates
}

func setupManager(t *testing.T) (*Manager, *fakeCollection) {
	t.Helper()

	collection := &fakeCollection{parcels: []map[string]interface{}{
		{"_id": "a", "points": []map[string]float64{{"lng": 116.1, "lat": 39.9}}},
		{"_id": "b"},
		{"_id": "c", "points": []map[string]float64{{"lng": 116.3, "lat": 39.7}}},
	}}
	srv := httptest.NewServer(collection)
	t.Cleanup(srv.Close)

	client := upstream.NewClient(config.UpstreamConfig{Timeout: 2 * time.Second, MaxIdleConns: 2})
	t.Cleanup(client.Close)

	cfg := &config.Config{
		Map: config.MapConfig{
			Backend:       config.BackendBaidu,
			BaiduLayerAPI: srv.URL + "/layers",
			BingLayerAPI:  srv.URL + "/layers",
		},
		Upstream: config.UpstreamConfig{AuthAPI: srv.URL + "/auth"},
		Session:  config.SessionConfig{IdleTimeout: time.Hour},
		CORS:     config.CORSConfig{Origins: []string{"http://localhost:3000"}},
	}

	m := NewManager(cfg, client, logger.Nop())
	t.Cleanup(m.Close)
	return m, collection
}

func login(t *testing.T, m *Manager) *Session {
	t.Helper()
	s, err := m.Login(context.Background(), password)
	require.NoError(t, err)
	_, err = s.Sync.Load(context.Background())
	require.NoError(t, err)
	return s
}

func TestLogin_OpensSession(t *testing.T) {
	m, _ := setupManager(t)

	s := login(t, m)

	assert.NotEmpty(t, s.ID)
	assert.True(t, s.Gate.Authenticated())
	assert.Equal(t, "baidu", s.Surface.Backend())
	assert.Len(t, s.Store.Parcels(), 3)
	assert.Equal(t, 1, m.Count())

	got, err := m.Get(s.ID)
	require.NoError(t, err)
	assert.Same(t, s, got)
}

func TestLogin_WrongPassword(t *testing.T) {
	m, _ := setupManager(t)

	s, err := m.Login(context.Background(), "nope")

	assert.Nil(t, s)
	assert.ErrorIs(t, err, auth.ErrAuthRejected)
	assert.Equal(t, 0, m.Count())
}

func TestLogin_UnknownBackend(t *testing.T) {
	m, _ := setupManager(t)
	m.cfg.Map.Backend = "leaflet"

	_, err := m.Login(context.Background(), password)
	assert.Error(t, err)
	assert.Equal(t, 0, m.Count())
}

func TestNavigation(t *testing.T) {
	m, _ := setupManager(t)
	s := login(t, m)

	assert.Equal(t, 2, s.Next(), "skips the parcel without geometry")
	assert.Equal(t, 0, s.Next(), "wraps to the first")
	assert.Equal(t, 2, s.Prev(), "wraps to the last")
	assert.Equal(t, 2, s.Store.Selected())

	s.Select(1)
	assert.Equal(t, "b", s.Form.View().ID)
}

func TestDrawCompleteCreatesParcel(t *testing.T) {
	m, collection := setupManager(t)
	s := login(t, m)

	err := s.Surface.Dispatch([]byte(`{"type":"drawComplete","path":[[116.5,39.5],[116.6,39.5],[116.6,39.4]]}`))
	require.NoError(t, err)

	require.Eventually(t, func() bool { return len(s.Store.Parcels()) == 4 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, collection.createCount())

	created := s.Store.Parcels()[3]
	assert.Equal(t, "new", created.ID)
	assert.Equal(t, models.Point{Lng: 116.5, Lat: 39.5}, created.Points[0])
}

func TestRemove(t *testing.T) {
	m, _ := setupManager(t)
	s := login(t, m)

	require.NoError(t, m.Remove(s.ID))

	assert.True(t, s.Closed())
	assert.False(t, s.Gate.Authenticated())
	_, err := m.Get(s.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, m.Remove(s.ID), ErrNotFound)

	// Late responses land on a closed store harmlessly
	s.Store.ReplaceAll(nil)
	assert.Len(t, s.Store.Parcels(), 3)
	assert.ErrorIs(t, s.Store.SetDraftGeometry(0, "[]"), store.ErrClosed)
}

func TestSweep(t *testing.T) {
	m, _ := setupManager(t)

	idle := login(t, m)
	active := login(t, m)

	now := time.Now()
	m.now = func() time.Time { return now }
	_, err := m.Get(active.ID)
	require.NoError(t, err)

	m.now = func() time.Time { return now.Add(90 * time.Minute) }
	_, err = m.Get(active.ID)
	require.NoError(t, err)

	assert.Equal(t, 1, m.Sweep())
	assert.True(t, idle.Closed())
	assert.False(t, active.Closed())
	assert.Equal(t, 1, m.Count())
}

func TestRun_StopsWithContext(t *testing.T) {
	m, _ := setupManager(t)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.Run(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
