// Package web serves player websocket sessions and a small JSON API for
// watching and ending conversations.
package web

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/GoMudEngine/palaver/internal/configs"
	"github.com/GoMudEngine/palaver/internal/mudlog"
	"github.com/GoMudEngine/palaver/internal/scheduler"
	"github.com/GoMudEngine/palaver/internal/usercommands"
	"github.com/GoMudEngine/palaver/internal/world"
	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
)

type Options struct {
	Loop     *scheduler.Loop
	Commands *usercommands.Env
	Server   configs.Server
	// Spawn is where players appear unless the client asks otherwise.
	Spawn world.Position
}

type Server struct {
	loop     *scheduler.Loop
	commands *usercommands.Env
	cfg      configs.Server
	spawn    world.Position
	upgrader websocket.Upgrader

	lock     sync.Mutex
	sessions map[string]*session

	httpServer *http.Server
}

func New(opts Options) *Server {
	return &Server{
		loop:     opts.Loop,
		commands: opts.Commands,
		cfg:      opts.Server,
		spawn:    opts.Spawn,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		sessions: map[string]*session{},
	}
}

// Router builds the chi router with the shared middleware.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(requestId)
	r.Use(recoverPanics)
	r.Use(logRequests)

	r.Get(`/ping`, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`pong`))
	})

	r.Get(`/ws`, s.handleWebSocket)

	r.Route(`/api/conversations`, func(r chi.Router) {
		r.Use(s.requireToken)
		r.Get(`/`, s.listConversations)
		r.Get(`/{id}`, s.getConversation)
		r.Post(`/{id}/end`, s.endConversation)
	})

	return r
}

// Start listens on the configured web port until Shutdown.
func (s *Server) Start(addr string) error {
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	mudlog.Info("Web", "addr", addr)

	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown stops accepting requests and closes every player session.
func (s *Server) Shutdown(ctx context.Context) error {
	s.lock.Lock()
	open := make([]*session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		open = append(open, sess)
	}
	s.lock.Unlock()

	for _, sess := range open {
		sess.close()
	}

	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// SessionCount is the number of connected players.
func (s *Server) SessionCount() int {
	s.lock.Lock()
	defer s.lock.Unlock()
	return len(s.sessions)
}
