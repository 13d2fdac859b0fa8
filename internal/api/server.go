// Package api exposes the tracked window list and thumbnails over HTTP and
// rebroadcasts tracker events to websocket clients. It is the single
// consumer of the tracker subscription.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image/png"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"

	"github.com/waytrack/waytrack/internal/compositor"
	"github.com/waytrack/waytrack/internal/logger"
	"github.com/waytrack/waytrack/internal/tracker"
)

// clientWriteTimeout bounds how long one websocket client may stall a
// broadcast before being dropped.
const clientWriteTimeout = 5 * time.Second

// Server drains the tracker subscription into local state and serves it.
type Server struct {
	router   *mux.Router
	upgrader websocket.Upgrader
	sub      *tracker.Subscription
	log      *zerolog.Logger

	mu       sync.RWMutex
	windows  map[compositor.Handle]compositor.Info
	order    []compositor.Handle
	finished bool

	thumbs *lru.Cache[compositor.Handle, []byte]

	clientMu sync.Mutex
	clients  map[*websocket.Conn]struct{}
}

// NewServer creates a server over the given subscription. cacheSize bounds
// the number of encoded thumbnails kept in memory.
func NewServer(sub *tracker.Subscription, cacheSize int) (*Server, error) {
	if cacheSize <= 0 {
		cacheSize = 256
	}
	thumbs, err := lru.New[compositor.Handle, []byte](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create thumbnail cache: %w", err)
	}

	s := &Server{
		router:  mux.NewRouter(),
		sub:     sub,
		log:     logger.WithComponent("api"),
		windows: make(map[compositor.Handle]compositor.Info),
		thumbs:  thumbs,
		clients: make(map[*websocket.Conn]struct{}),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
	s.setupRoutes()
	return s, nil
}

func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/windows", s.handleListWindows).Methods("GET")
	api.HandleFunc("/windows/{handle}/thumbnail", s.handleThumbnail).Methods("GET")
	api.HandleFunc("/events", s.handleEvents)
	api.HandleFunc("/health", s.handleHealth).Methods("GET")
}

// Start serves HTTP on the given port. Blocks.
func (s *Server) Start(port int) error {
	addr := fmt.Sprintf(":%d", port)
	s.log.Info().Str("addr", addr).Msg("API server listening")
	return http.ListenAndServe(addr, s.router)
}

// Run is the event pump: it drains the subscription in order, applies each
// event to the window table and thumbnail cache, and fans it out to
// websocket clients. Returns when the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	for {
		ev, err := s.sub.Next(ctx)
		if err != nil {
			return err
		}
		s.apply(ev)
		s.broadcast(ev)
	}
}

func (s *Server) apply(ev tracker.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch ev := ev.(type) {
	case tracker.ToplevelAdd:
		if _, known := s.windows[ev.Info.Handle]; !known {
			s.order = append(s.order, ev.Info.Handle)
		}
		s.windows[ev.Info.Handle] = ev.Info
	case tracker.ToplevelUpdate:
		s.windows[ev.Info.Handle] = ev.Info
	case tracker.ToplevelRemove:
		delete(s.windows, ev.Handle)
		for i, h := range s.order {
			if h == ev.Handle {
				s.order = append(s.order[:i], s.order[i+1:]...)
				break
			}
		}
		s.thumbs.Remove(ev.Handle)
	case tracker.ImageReady:
		var buf bytes.Buffer
		if err := png.Encode(&buf, ev.Image); err != nil {
			s.log.Warn().Err(err).Uint32("handle", uint32(ev.Handle)).Msg("Thumbnail encode failed")
			return
		}
		s.thumbs.Add(ev.Handle, buf.Bytes())
	case tracker.Finished:
		s.finished = true
		s.log.Warn().Msg("Tracker stream finished; window list is frozen")
	case tracker.Init:
	}
}

// windowJSON is the wire representation of a tracked window.
type windowJSON struct {
	Handle       uint32 `json:"handle"`
	Title        string `json:"title"`
	AppID        string `json:"app_id"`
	Identifier   string `json:"identifier"`
	HasThumbnail bool   `json:"has_thumbnail"`
}

func (s *Server) handleListWindows(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	out := make([]windowJSON, 0, len(s.order))
	for _, h := range s.order {
		info, ok := s.windows[h]
		if !ok {
			continue
		}
		out = append(out, windowJSON{
			Handle:       uint32(info.Handle),
			Title:        info.Title,
			AppID:        info.AppID,
			Identifier:   info.Identifier,
			HasThumbnail: s.thumbs.Contains(h),
		})
	}
	s.mu.RUnlock()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(out)
}

func (s *Server) handleThumbnail(w http.ResponseWriter, r *http.Request) {
	raw := mux.Vars(r)["handle"]
	handle, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		http.Error(w, "invalid handle", http.StatusBadRequest)
		return
	}

	// A missing thumbnail is not an error; the client renders a fallback.
	data, ok := s.thumbs.Get(compositor.Handle(handle))
	if !ok {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Write(data)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	status := map[string]any{
		"status":   "ok",
		"windows":  len(s.windows),
		"finished": s.finished,
	}
	s.mu.RUnlock()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(status)
}

// eventJSON is the websocket representation of a tracker event. Thumbnails
// are not inlined; clients refetch over HTTP on image_ready.
type eventJSON struct {
	Type   string      `json:"type"`
	Window *windowJSON `json:"window,omitempty"`
	Handle uint32      `json:"handle,omitempty"`
}

func encodeEvent(ev tracker.Event) *eventJSON {
	switch ev := ev.(type) {
	case tracker.Init:
		return &eventJSON{Type: "init"}
	case tracker.Finished:
		return &eventJSON{Type: "finished"}
	case tracker.ToplevelAdd:
		return &eventJSON{Type: "toplevel_add", Window: infoJSON(ev.Info)}
	case tracker.ToplevelUpdate:
		return &eventJSON{Type: "toplevel_update", Window: infoJSON(ev.Info)}
	case tracker.ToplevelRemove:
		return &eventJSON{Type: "toplevel_remove", Handle: uint32(ev.Handle)}
	case tracker.ImageReady:
		return &eventJSON{Type: "image_ready", Handle: uint32(ev.Handle)}
	}
	return nil
}

func infoJSON(info compositor.Info) *windowJSON {
	return &windowJSON{
		Handle:     uint32(info.Handle),
		Title:      info.Title,
		AppID:      info.AppID,
		Identifier: info.Identifier,
	}
}

func (s *Server) broadcast(ev tracker.Event) {
	msg := encodeEvent(ev)
	if msg == nil {
		return
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}

	s.clientMu.Lock()
	defer s.clientMu.Unlock()
	for c := range s.clients {
		// A stalled client must not block the event pump; the deadline
		// turns it into a write error and the client is dropped.
		c.SetWriteDeadline(time.Now().Add(clientWriteTimeout))
		if err := c.WriteMessage(websocket.TextMessage, data); err != nil {
			c.Close()
			delete(s.clients, c)
		}
	}
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Debug().Err(err).Msg("Websocket upgrade failed")
		return
	}

	s.clientMu.Lock()
	s.clients[conn] = struct{}{}
	s.clientMu.Unlock()

	// Reads are only used to detect disconnects.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				s.clientMu.Lock()
				conn.Close()
				delete(s.clients, conn)
				s.clientMu.Unlock()
				return
			}
		}
	}()
}
