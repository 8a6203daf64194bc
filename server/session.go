package server

import (
	"errors"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/liuxd6825/portalshell/shell"
	"github.com/liuxd6825/portalshell/transport"
)

// hostNamespace prefixes the commands exchanged with host pages.
const hostNamespace = "host:"

// Commands sent by host pages. Pointer events use the shell.PointerKind names.
const (
	hostCmdHello    = "hello"
	hostCmdPopState = "popstate"
)

type hello struct {
	Location string `json:"location"`
}

type popState struct {
	State    shell.HistoryState `json:"state"`
	Location string             `json:"location"`
}

// session is one host page connection and the shell it drives.
type session struct {
	srv    *Server
	id     string
	logger logrus.FieldLogger

	mu     sync.Mutex
	host   *transport.Conn
	shell  *shell.Coordinator
	frames map[transport.Endpoint]struct{}
	closed bool
}

func (s *Server) serveShell(w http.ResponseWriter, r *http.Request) {
	id, err := s.opts.NewPortalID()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.WithError(err).Debug("host upgrade failed")
		return
	}

	sess := &session{
		srv:    s,
		id:     id,
		logger: s.logger.WithField("shell", id),
		frames: make(map[transport.Endpoint]struct{}),
	}
	s.addSession(sess)

	// the handler may run before NewConn returns, so the conn is passed in
	sess.mu.Lock()
	sess.host = transport.NewConn("host-"+id, ws, s.hostCodec, sess, s.opts.CommandLog, transport.ConnOptions{
		Rate:       s.connOpts.Rate,
		Burst:      s.connOpts.Burst,
		SendBuffer: hostSendBuffer,
	})
	sess.mu.Unlock()
	sess.logger.Debug("host connected")
}

func (s *Server) serveFrame(w http.ResponseWriter, r *http.Request) {
	portalID := r.URL.Query().Get(portalParam)
	if portalID == "" {
		http.Error(w, "missing portal parameter", http.StatusBadRequest)
		return
	}
	sess := s.lookup(r.Context(), portalID)
	if sess == nil {
		http.Error(w, "unknown portal", http.StatusNotFound)
		return
	}
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.WithError(err).Debug("frame upgrade failed")
		return
	}
	sess.attachFrame(portalID, ws)
}

const portalParam = "portal"

// HandleMessage implements transport.Handler for the host connection.
func (sess *session) HandleMessage(from transport.Endpoint, env transport.Envelope) {
	if env.Command == hostCmdHello {
		var m hello
		if err := env.Decode(&m); err != nil {
			sess.logger.WithError(err).Warn("ignoring malformed hello")
			return
		}
		sess.start(from, m.Location)
		return
	}

	sh := sess.coordinator()
	if sh == nil {
		sess.logger.WithField("cmd", env.Command).Warnf("ignoring %s before hello", env.Command)
		return
	}
	switch env.Command {
	case hostCmdPopState:
		var m popState
		if err := env.Decode(&m); err != nil {
			sess.logger.WithError(err).Warn("ignoring malformed popstate")
			return
		}
		sh.PopState(m.State, m.Location)
	case string(shell.PointerDown), string(shell.PointerMove), string(shell.PointerUp),
		string(shell.PointerCancel), string(shell.LostPointerCapture):
		var e shell.PointerEvent
		if err := env.Decode(&e); err != nil {
			sess.logger.WithError(err).Warn("ignoring malformed pointer event")
			return
		}
		sh.Pointer(shell.PointerKind(env.Command), e)
	default:
		sess.logger.WithField("cmd", env.Command).Warnf("received unknown host command %q", env.Command)
	}
}

// HandleClose implements transport.Handler for the host connection. The
// tab is gone, so are its frames.
func (sess *session) HandleClose(_ transport.Endpoint, err error) {
	if err != nil {
		sess.logger.WithError(err).Warn("host connection lost")
	}
	sess.close()
}

func (sess *session) start(host transport.Endpoint, location string) {
	sess.mu.Lock()
	if sess.shell != nil || sess.closed {
		sess.mu.Unlock()
		sess.logger.Warn("ignoring repeated hello")
		return
	}
	sh, err := shell.New(sess.srv.shellOptions(sess.id, location, shell.EndpointHost{Endpoint: host}))
	if err != nil {
		sess.mu.Unlock()
		sess.logger.WithError(err).Warn("cannot create shell")
		_ = host.Close()
		return
	}
	sess.shell = sh
	sess.mu.Unlock()

	err = sh.Start(sess.srv.ctx)
	switch {
	case err == nil:
	case errors.Is(err, shell.ErrRedirected):
		// the host page navigates away and comes back with a new connection
		sess.logger.Debug("host redirected")
		_ = host.Close()
	default:
		sess.logger.WithError(err).Error("starting shell failed")
		_ = host.Close()
	}
}

func (sess *session) attachFrame(portalID string, ws *websocket.Conn) {
	sh := sess.coordinator()
	if sh == nil {
		_ = ws.Close()
		return
	}

	sess.mu.Lock()
	if sess.closed {
		sess.mu.Unlock()
		_ = ws.Close()
		return
	}
	conn := transport.NewConn("frame-"+portalID, ws, sess.srv.frameCodec, transport.HandlerFuncs{
		OnMessage: sh.Deliver,
		OnClose: func(from transport.Endpoint, _ error) {
			sh.Detach(from)
			sess.mu.Lock()
			delete(sess.frames, from)
			sess.mu.Unlock()
		},
	}, sess.srv.opts.CommandLog, sess.srv.connOpts)
	sess.frames[conn] = struct{}{}
	sess.mu.Unlock()

	if err := sh.Attach(sess.srv.ctx, portalID, conn); err != nil {
		sess.logger.WithError(err).WithField("portal", portalID).Warn("rejecting frame connection")
		_ = conn.Close()
	}
}

func (sess *session) coordinator() *shell.Coordinator {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return sess.shell
}

// close disposes the shell and disconnects the host page and every frame.
func (sess *session) close() {
	sess.mu.Lock()
	if sess.closed {
		sess.mu.Unlock()
		return
	}
	sess.closed = true
	sh, host := sess.shell, sess.host
	frames := make([]transport.Endpoint, 0, len(sess.frames))
	for f := range sess.frames {
		frames = append(frames, f)
	}
	sess.mu.Unlock()

	sess.srv.removeSession(sess)
	if sh != nil {
		sh.Dispose()
	}
	for _, f := range frames {
		_ = f.Close()
	}
	if host != nil {
		_ = host.Close()
	}
	sess.logger.Debug("host disconnected")
}
