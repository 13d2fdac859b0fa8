package api

import (
	"encoding/json"
	"image"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/waytrack/waytrack/internal/compositor"
	"github.com/waytrack/waytrack/internal/tracker"
)

func newTestServer(t *testing.T) *Server {
	s, err := NewServer(nil, 16)
	require.NoError(t, err)
	return s
}

func (s *Server) get(t *testing.T, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestWindowListFollowsEvents(t *testing.T) {
	s := newTestServer(t)

	s.apply(tracker.ToplevelAdd{Info: compositor.Info{Handle: 1, Title: "Editor", AppID: "org.example.Editor"}})
	s.apply(tracker.ToplevelAdd{Info: compositor.Info{Handle: 2, Title: "Terminal"}})
	s.apply(tracker.ToplevelUpdate{Info: compositor.Info{Handle: 1, Title: "Editor — main.go"}})
	s.apply(tracker.ToplevelRemove{Handle: 2})

	rec := s.get(t, "/api/windows")
	require.Equal(t, http.StatusOK, rec.Code)

	var windows []windowJSON
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &windows))
	require.Len(t, windows, 1)
	assert.Equal(t, uint32(1), windows[0].Handle)
	assert.Equal(t, "Editor — main.go", windows[0].Title)
	assert.False(t, windows[0].HasThumbnail)
}

func TestThumbnailLifecycle(t *testing.T) {
	s := newTestServer(t)

	s.apply(tracker.ToplevelAdd{Info: compositor.Info{Handle: 7, Title: "Editor"}})

	rec := s.get(t, "/api/windows/7/thumbnail")
	assert.Equal(t, http.StatusNotFound, rec.Code, "no thumbnail before capture completes")

	s.apply(tracker.ImageReady{Handle: 7, Image: image.NewRGBA(image.Rect(0, 0, 8, 8))})

	rec = s.get(t, "/api/windows/7/thumbnail")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	assert.NotEmpty(t, rec.Body.Bytes())

	s.apply(tracker.ToplevelRemove{Handle: 7})
	rec = s.get(t, "/api/windows/7/thumbnail")
	assert.Equal(t, http.StatusNotFound, rec.Code, "thumbnail evicted with its window")
}

func TestThumbnailBadHandle(t *testing.T) {
	s := newTestServer(t)
	rec := s.get(t, "/api/windows/notanumber/thumbnail")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealthReportsFinished(t *testing.T) {
	s := newTestServer(t)

	rec := s.get(t, "/api/health")
	require.Equal(t, http.StatusOK, rec.Code)

	var health map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	assert.Equal(t, "ok", health["status"])
	assert.Equal(t, false, health["finished"])

	s.apply(tracker.Finished{})

	rec = s.get(t, "/api/health")
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	assert.Equal(t, true, health["finished"])
}

func (s *Server) clientCount() int {
	s.clientMu.Lock()
	defer s.clientMu.Unlock()
	return len(s.clients)
}

func TestBroadcastReachesWebsocketClients(t *testing.T) {
	s := newTestServer(t)
	srv := httptest.NewServer(s.router)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/events"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return s.clientCount() == 1 },
		time.Second, 10*time.Millisecond, "client never registered")

	s.broadcast(tracker.ToplevelAdd{Info: compositor.Info{Handle: 1, Title: "Editor"}})

	conn.SetReadDeadline(time.Now().Add(time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var msg eventJSON
	require.NoError(t, json.Unmarshal(data, &msg))
	assert.Equal(t, "toplevel_add", msg.Type)
	require.NotNil(t, msg.Window)
	assert.Equal(t, "Editor", msg.Window.Title)
}

func TestBroadcastDropsDeadClients(t *testing.T) {
	s := newTestServer(t)
	srv := httptest.NewServer(s.router)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/events"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)

	require.Eventually(t, func() bool { return s.clientCount() == 1 },
		time.Second, 10*time.Millisecond, "client never registered")

	conn.Close()

	// Broadcasts keep flowing and the dead client gets pruned rather
	// than wedging the pump for everyone else.
	require.Eventually(t, func() bool {
		s.broadcast(tracker.ImageReady{Handle: 1})
		return s.clientCount() == 0
	}, time.Second, 20*time.Millisecond, "dead client never pruned")
}

func TestEncodeEvent(t *testing.T) {
	ev := encodeEvent(tracker.ToplevelAdd{Info: compositor.Info{Handle: 3, Title: "Files"}})
	require.NotNil(t, ev)
	assert.Equal(t, "toplevel_add", ev.Type)
	require.NotNil(t, ev.Window)
	assert.Equal(t, "Files", ev.Window.Title)

	ev = encodeEvent(tracker.ImageReady{Handle: 3})
	require.NotNil(t, ev)
	assert.Equal(t, "image_ready", ev.Type)
	assert.Equal(t, uint32(3), ev.Handle)
}
