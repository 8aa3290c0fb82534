// Package hub is the connection/session/protocol core: it accepts one
// WebSocket per client, dispatches typed command envelopes against the bd
// gateway, and pushes snapshot broadcasts to every connection bound to the
// mutated project.
package hub

import (
	"io"
	"io/fs"
	"net/http"
	"strings"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"beadboard/internal/bd"
	"beadboard/internal/logger"
	"beadboard/internal/project"
	"beadboard/internal/seen"
)

// Per-connection request limiter: sustained requests/sec and burst.
// A client issuing unbounded concurrent requests is throttled at the read
// loop instead of fanning out unbounded bd subprocesses.
const (
	requestRate  = 25
	requestBurst = 50
)

type Server struct {
	resolver *project.Resolver
	gateway  *bd.Gateway
	seen     *seen.Store
	registry *Registry
	watcher  *Watcher
	mux      *http.ServeMux
}

func NewServer(resolver *project.Resolver, gateway *bd.Gateway, seenStore *seen.Store, assets fs.FS) *Server {
	s := &Server{
		resolver: resolver,
		gateway:  gateway,
		seen:     seenStore,
		registry: NewRegistry(),
		mux:      http.NewServeMux(),
	}

	w, err := NewWatcher(s.Refresh)
	if err != nil {
		// Broadcasts still fire after mutations through this server; only
		// out-of-band bd edits go unnoticed.
		logger.Warn("project watcher unavailable", "error", err)
	} else {
		s.watcher = w
	}

	s.mux.HandleFunc("GET /ws", s.handleWS)
	s.registerStaticRoutes(assets)
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// Registry exposes the connection registry, mainly for tests.
func (s *Server) Registry() *Registry {
	return s.registry
}

// Close releases the filesystem watcher.
func (s *Server) Close() error {
	if s.watcher != nil {
		return s.watcher.Close()
	}
	return nil
}

// handleWS runs one client session: register, read frames until the socket
// closes, then prune. Each request is handled on its own goroutine, so a
// slow bd invocation does not block later requests on the same connection;
// replies may therefore complete out of arrival order.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	sock, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		logger.Warn("websocket accept", "error", err)
		return
	}
	defer sock.CloseNow()

	c := newConn(uuid.New().String(), sock)
	s.registry.Add(c)
	logger.Info("client connected", "conn", c.ID)

	defer func() {
		s.registry.Remove(c.ID)
		if s.watcher != nil {
			if p := c.Project(); p != "" {
				s.watcher.Release(p)
			}
		}
		logger.Info("client disconnected", "conn", c.ID)
	}()

	ctx := r.Context()
	lim := rate.NewLimiter(rate.Limit(requestRate), requestBurst)

	for {
		_, data, err := sock.Read(ctx)
		if err != nil {
			return
		}
		if err := lim.Wait(ctx); err != nil {
			return
		}
		go s.dispatch(ctx, c, data)
	}
}

// registerStaticRoutes serves the embedded UI bundle, falling back to the
// entry document for any non-asset path so client-side routing works.
func (s *Server) registerStaticRoutes(assets fs.FS) {
	if assets == nil {
		return
	}
	fileServer := http.FileServer(http.FS(assets))
	s.mux.HandleFunc("GET /", func(w http.ResponseWriter, r *http.Request) {
		path := strings.TrimPrefix(r.URL.Path, "/")
		if path == "" {
			path = "index.html"
		}
		if f, err := assets.Open(path); err == nil {
			f.Close()
			fileServer.ServeHTTP(w, r)
			return
		}
		index, err := assets.Open("index.html")
		if err != nil {
			http.NotFound(w, r)
			return
		}
		defer index.Close()
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		io.Copy(w, index)
	})
}
