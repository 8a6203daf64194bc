package transport

// Endpoint is one side of a connection to a context the shell talks to.
// Endpoint identity is what attributes inbound messages to a frame: a frame
// is whoever holds its endpoint, never whoever claims its portal id.
type Endpoint interface {
	// ID identifies the endpoint in logs.
	ID() string
	// Send encodes and queues cmd. It never blocks on the remote side.
	Send(cmd string, payload interface{}) error
	// Close closes the endpoint. Closing twice is a no-op.
	Close() error
	// Done is closed once the endpoint is closed.
	Done() <-chan struct{}
}

// Handler receives what arrives on an endpoint. Calls for one endpoint are
// made from a single goroutine.
type Handler interface {
	HandleMessage(from Endpoint, env Envelope)
	// HandleClose is called once when the endpoint closes. err is nil for
	// a regular closure.
	HandleClose(from Endpoint, err error)
}

// HandlerFuncs adapts plain functions to a Handler. Nil functions are skipped.
type HandlerFuncs struct {
	OnMessage func(from Endpoint, env Envelope)
	OnClose   func(from Endpoint, err error)
}

var _ Handler = HandlerFuncs{}

// HandleMessage implements Handler.
func (h HandlerFuncs) HandleMessage(from Endpoint, env Envelope) {
	if h.OnMessage != nil {
		h.OnMessage(from, env)
	}
}

// HandleClose implements Handler.
func (h HandlerFuncs) HandleClose(from Endpoint, err error) {
	if h.OnClose != nil {
		h.OnClose(from, err)
	}
}
