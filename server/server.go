// Package server exposes portal shells over websockets. Every host page
// connection gets its own shell; content frames connect separately and are
// routed to the shell that owns their portal.
package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/liuxd6825/portalshell/config"
	"github.com/liuxd6825/portalshell/errext"
	"github.com/liuxd6825/portalshell/errext/exitcodes"
	"github.com/liuxd6825/portalshell/event"
	"github.com/liuxd6825/portalshell/lib/types"
	"github.com/liuxd6825/portalshell/log"
	"github.com/liuxd6825/portalshell/shell"
	"github.com/liuxd6825/portalshell/transport"
)

const (
	shutdownTimeout = 5 * time.Second
	eventBuffer     = 256
	hostSendBuffer  = 256
)

// Options configure a Server.
type Options struct {
	Config config.Config
	Logger logrus.FieldLogger
	// CommandLog traces the traffic of every connection.
	CommandLog *log.Logger
	Tracer     trace.Tracer
	Clock      clock.Clock
	// NewPortalID generates portal and shell ids, shell.NewPortalID if nil.
	NewPortalID func() (string, error)
}

// Server serves the host page and frame websockets of many shells.
type Server struct {
	opts   Options
	conf   config.Config
	logger logrus.FieldLogger

	frameCodec transport.Codec
	hostCodec  transport.Codec
	connOpts   transport.ConnOptions
	upgrader   websocket.Upgrader
	events     *event.System

	ctx       context.Context
	cancel    context.CancelFunc
	indexDone <-chan struct{}
	closeOnce sync.Once

	mu       sync.Mutex
	sessions map[string]*session
	// portals maps portal ids to the id of the shell owning them
	portals map[string]string
}

// New returns a Server. It does not listen until ListenAndServe is called;
// Handler can be mounted elsewhere.
func New(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	if opts.CommandLog == nil {
		opts.CommandLog = log.NewNullLogger()
	}
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	if opts.NewPortalID == nil {
		opts.NewPortalID = shell.NewPortalID
	}
	conf := opts.Config
	logger := opts.Logger.WithField("component", "server")
	frameCodec := transport.NewCodec(conf.MessagePrefix.String)

	s := &Server{
		opts:       opts,
		conf:       conf,
		logger:     logger,
		frameCodec: frameCodec,
		hostCodec:  frameCodec.Sub(hostNamespace),
		connOpts: transport.ConnOptions{
			Rate:  rate.Limit(conf.MessageRate.Float64),
			Burst: int(conf.MessageBurst.Int64),
		},
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin(conf.AllowedOrigins),
		},
		events:   event.NewEventSystem(eventBuffer, logger),
		sessions: make(map[string]*session),
		portals:  make(map[string]string),
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.indexDone = event.Handle(s.ctx, s.events, s.index,
		event.FrameOpened, event.FrameClosed, event.Disposed)
	return s
}

// Handler returns the HTTP handler of the service.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(s.conf.ShellPath.String, s.serveShell)
	mux.HandleFunc(s.conf.FramePath.String, s.serveFrame)
	mux.Handle(s.conf.DebugPath.String, withLoggingHandler(s.logger, http.HandlerFunc(s.serveDebug)))
	mux.Handle("/ping", withLoggingHandler(s.logger, handlePing(s.logger)))
	return mux
}

// ListenAndServe serves on the configured address until ctx is done, then
// shuts down and closes every shell.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.conf.Address.String)
	if err != nil {
		return errext.WithExitCodeIfNone(err, exitcodes.CannotStartServer)
	}
	return s.Serve(ctx, ln)
}

// Serve is like ListenAndServe on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{Handler: s.Handler(), ReadHeaderTimeout: 10 * time.Second}
	s.logger.Infof("listening on %s", ln.Addr())

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)
		s.Close()
		<-errCh
		return err
	case err := <-errCh:
		s.Close()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return errext.WithExitCodeIfNone(err, exitcodes.CannotStartServer)
	}
}

// Close disconnects every host page and frame and disposes their shells.
func (s *Server) Close() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		sessions := make([]*session, 0, len(s.sessions))
		for _, sess := range s.sessions {
			sessions = append(sessions, sess)
		}
		s.mu.Unlock()

		for _, sess := range sessions {
			sess.close()
		}
		s.cancel()
		<-s.indexDone
		s.events.UnsubscribeAll()
	})
}

// index keeps the portal routing table in sync with the shells' frames.
func (s *Server) index(e *event.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch e.Type {
	case event.FrameOpened:
		if d, ok := e.Data.(event.FrameData); ok {
			s.portals[d.PortalID] = d.ShellID
		}
	case event.FrameClosed:
		if d, ok := e.Data.(event.FrameData); ok && s.portals[d.PortalID] == d.ShellID {
			delete(s.portals, d.PortalID)
		}
	case event.Disposed:
		shellID, _ := e.Data.(string)
		for portalID, owner := range s.portals {
			if owner == shellID {
				delete(s.portals, portalID)
			}
		}
	}
}

// lookup returns the session whose shell owns portalID. Lifecycle events are
// delivered asynchronously, so a miss in the index falls back to asking
// every shell.
func (s *Server) lookup(ctx context.Context, portalID string) *session {
	s.mu.Lock()
	if sess := s.sessions[s.portals[portalID]]; sess != nil {
		s.mu.Unlock()
		return sess
	}
	sessions := make([]*session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		sessions = append(sessions, sess)
	}
	s.mu.Unlock()

	for _, sess := range sessions {
		if sh := sess.coordinator(); sh != nil && sh.Owns(ctx, portalID) {
			return sess
		}
	}
	return nil
}

func (s *Server) addSession(sess *session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.id] = sess
}

func (s *Server) removeSession(sess *session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sess.id)
}

func (s *Server) shellOptions(id, location string, host shell.Host) shell.Options {
	return shell.Options{
		ID:                id,
		Location:          location,
		Host:              host,
		FrameCap:          int(s.conf.FrameCap.Int64),
		PollInterval:      s.conf.PollInterval.TimeDuration(),
		RenderTimeout:     s.conf.RenderTimeout.TimeDuration(),
		ActivationTimeout: s.conf.ActivationTimeout.TimeDuration(),
		DefaultWorld:      s.conf.DefaultWorld.String,
		IndexDocument:     s.conf.IndexDocument.String,
		Logger:            s.opts.Logger,
		CommandLog:        s.opts.CommandLog,
		Clock:             s.opts.Clock,
		Events:            s.events,
		Tracer:            s.opts.Tracer,
		NewPortalID:       s.opts.NewPortalID,
	}
}

// checkOrigin allows the listed origins. An entry is either a full origin
// such as "https://shell.example", a host pattern such as "*.cdn.example"
// matched on any scheme, or "*" for any origin. Without a list gorilla's
// same-origin check applies.
func checkOrigin(allowed []string) func(*http.Request) bool {
	if len(allowed) == 0 {
		return nil
	}
	var origins, hosts []string
	for _, a := range allowed {
		switch {
		case a == "*":
			return func(*http.Request) bool { return true }
		case strings.Contains(a, "://"):
			origins = append(origins, a)
		default:
			hosts = append(hosts, a)
		}
	}
	// the patterns were validated with the config
	trie, _ := types.NewHostnameTrie(hosts)

	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, o := range origins {
			if strings.EqualFold(o, origin) {
				return true
			}
		}
		u, err := url.Parse(origin)
		if err != nil || trie == nil {
			return false
		}
		_, ok := trie.Contains(u.Hostname())
		return ok
	}
}
