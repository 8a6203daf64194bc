// Package shell coordinates the content frames of one browser tab.
//
// A shell keeps a small forest of frames, each showing a world. Exactly one
// frame is primary: it has input focus and drives navigation. The others
// are secondary and only rendered as seen through portals of the primary.
// Frames live in isolated contexts and talk to the shell through fire and
// forget messages, so every exchange is either announced until
// acknowledged or bounded by a timeout.
//
// All state of a Coordinator is owned by its event loop. The exported
// methods are safe for concurrent use; they hand work to the loop.
package shell

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/liuxd6825/portalshell/errext"
	"github.com/liuxd6825/portalshell/event"
	"github.com/liuxd6825/portalshell/internal/eventloop"
	"github.com/liuxd6825/portalshell/internal/timers"
	"github.com/liuxd6825/portalshell/log"
	"github.com/liuxd6825/portalshell/portalurl"
	"github.com/liuxd6825/portalshell/transport"
)

// Default timings.
const (
	DefaultPollInterval      = 200 * time.Millisecond
	DefaultRenderTimeout     = 200 * time.Millisecond
	DefaultActivationTimeout = 2 * time.Second
)

// Options configure a Coordinator. Only Location and Host are required.
type Options struct {
	// ID identifies the shell in logs and events. A random id is used if empty.
	ID string
	// Location is the address of the host page when the shell starts.
	Location string
	// InitialPortalURL is loaded into the first primary frame. It defaults
	// to the canonical form of Location.
	InitialPortalURL string
	Host             Host

	FrameCap          int
	PollInterval      time.Duration
	RenderTimeout     time.Duration
	ActivationTimeout time.Duration
	DefaultWorld      string
	IndexDocument     string

	Logger logrus.FieldLogger
	// CommandLog traces every command sent to and received from frames.
	CommandLog  *log.Logger
	Clock       clock.Clock
	Events      event.Emitter
	Tracer      trace.Tracer
	NewPortalID func() (string, error)
}

// Coordinator is the shell of one browser tab.
type Coordinator struct {
	id     string
	opts   Options
	host   Host
	logger logrus.FieldLogger
	cmdLog *log.Logger
	events event.Emitter
	tracer trace.Tracer

	loop        *eventloop.EventLoop
	timers      *timers.Timers
	ctx         context.Context
	cancel      context.CancelFunc
	runOnce     sync.Once
	disposeOnce sync.Once

	codec    *portalurl.Codec
	history  *SessionHistory
	registry *Registry

	started  bool
	disposed bool
	primary  *Frame
	phase    Phase

	portalData        map[string]CameraMatrix
	awaitedFrameTypes map[string]struct{}
	awaitedRenders    map[string]struct{}

	renderTimer uint64
	freezeTimer uint64
	sortTimer   uint64
	pendingSort *pendingSort

	activation     trace.Span
	activationFrom string

	gesture          *gesture
	capturedPointers map[int]struct{}
}

// New returns a Coordinator that does nothing until Start is called.
func New(opts Options) (*Coordinator, error) {
	if opts.Host == nil {
		return nil, errors.New("a host is required")
	}
	if opts.ID == "" {
		id, err := NewPortalID()
		if err != nil {
			return nil, err
		}
		opts.ID = id
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.RenderTimeout <= 0 {
		opts.RenderTimeout = DefaultRenderTimeout
	}
	if opts.ActivationTimeout <= 0 {
		opts.ActivationTimeout = DefaultActivationTimeout
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	if opts.CommandLog == nil {
		opts.CommandLog = log.NewNullLogger()
	}
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	if opts.Tracer == nil {
		opts.Tracer = noop.NewTracerProvider().Tracer("portalshell")
	}

	codec, err := portalurl.NewCodec(opts.Location, opts.DefaultWorld, opts.IndexDocument)
	if err != nil {
		return nil, err
	}

	logger := opts.Logger.WithField("shell", opts.ID)
	c := &Coordinator{
		id:                opts.ID,
		opts:              opts,
		host:              opts.Host,
		logger:            logger,
		cmdLog:            opts.CommandLog,
		events:            opts.Events,
		tracer:            opts.Tracer,
		codec:             codec,
		history:           NewSessionHistory(codec, opts.Host),
		registry:          NewRegistry(opts.FrameCap, opts.NewPortalID),
		phase:             PhaseIdle,
		portalData:        make(map[string]CameraMatrix),
		awaitedFrameTypes: make(map[string]struct{}),
		awaitedRenders:    make(map[string]struct{}),
		capturedPointers:  make(map[int]struct{}),
	}
	c.loop = eventloop.New(func(err error) {
		logger.WithError(err).Error("shell callback failed")
	})
	c.timers = timers.New(c.loop.RegisterCallback, opts.Clock, logger)
	c.ctx, c.cancel = context.WithCancel(context.Background())

	return c, nil
}

// ID returns the shell id.
func (c *Coordinator) ID() string { return c.id }

// Start runs the event loop and opens the initial primary frame. It returns
// ErrRedirected if the host was sent to the canonical form of its location,
// in which case the shell should be disposed.
func (c *Coordinator) Start(ctx context.Context) error {
	c.run()
	return c.do(ctx, c.start)
}

// Dispose stops every timer and the event loop. The frames are left alone,
// the page they live in is going away.
func (c *Coordinator) Dispose() {
	c.disposeOnce.Do(func() {
		c.run()
		_ = c.loop.Do(context.Background(), func() error {
			c.dispose()
			return nil
		})
		c.cancel()
		<-c.loop.Done()
	})
}

// Attach binds the connection of a frame's context to the frame. A frame
// that has not confirmed its role yet is announced it right away.
func (c *Coordinator) Attach(ctx context.Context, portalID string, ep transport.Endpoint) error {
	return c.do(ctx, func() error { return c.attach(portalID, ep) })
}

// Detach unbinds ep from its frame, if it is still bound.
func (c *Coordinator) Detach(ep transport.Endpoint) {
	c.queue(func() { c.detach(ep) })
}

// Deliver handles a message received on ep.
func (c *Coordinator) Deliver(ep transport.Endpoint, env transport.Envelope) {
	c.queue(func() { c.receive(ep, env) })
}

// PopState handles a back/forward navigation of the host page.
func (c *Coordinator) PopState(state HistoryState, location string) {
	c.queue(func() { c.popState(state, location) })
}

// Pointer handles a joystick pointer event of the host page.
func (c *Coordinator) Pointer(kind PointerKind, e PointerEvent) {
	c.queue(func() { c.pointer(kind, e) })
}

// Owns reports whether the shell has a frame with the given portal id.
func (c *Coordinator) Owns(ctx context.Context, portalID string) bool {
	return c.do(ctx, func() error {
		if c.registry.Get(portalID) == nil {
			return ErrUnroutable
		}
		return nil
	}) == nil
}

func (c *Coordinator) run() {
	c.runOnce.Do(func() {
		go c.loop.Run(c.ctx)
	})
}

// do runs f on the event loop and waits for it.
func (c *Coordinator) do(ctx context.Context, f func() error) error {
	err := c.loop.Do(ctx, func() error {
		if c.disposed {
			return ErrDisposed
		}
		return f()
	})
	if errors.Is(err, eventloop.ErrStopped) {
		return ErrDisposed
	}
	return err
}

// queue runs f on the event loop without waiting.
func (c *Coordinator) queue(f func()) {
	c.loop.Queue(func() error {
		if !c.disposed {
			f()
		}
		return nil
	})
}

func (c *Coordinator) start() error {
	if c.started {
		return errors.New("shell already started")
	}
	c.started = true

	location := c.codec.Location()
	canonical, err := c.codec.Canonical(location)
	if err != nil {
		return err
	}
	if canonical != location {
		c.logger.Infof("redirecting to canonical URL %s", canonical)
		c.hostCall(HostCmdRedirect, c.host.Redirect(canonical))
		return ErrRedirected
	}
	c.logger.Info("starting")

	initial := c.opts.InitialPortalURL
	if initial == "" {
		initial = canonical
	}
	f, err := c.openFrame(nil, initial)
	if err != nil {
		return err
	}
	c.primary = f

	portalURL, err := c.codec.PortalURL(f.src)
	if err != nil {
		return err
	}
	c.updateHistory(false, f.PortalID, portalURL)
	c.setTitle(portalURL)
	return nil
}

func (c *Coordinator) dispose() {
	c.timers.Stop()
	for _, f := range c.registry.Frames() {
		f.poll = 0
	}
	c.renderTimer, c.freezeTimer, c.sortTimer = 0, 0, 0
	c.endActivation("disposed")
	c.disposed = true
	c.logger.Debug("disposed")
	c.emit(event.Disposed, c.id)
}

func (c *Coordinator) attach(portalID string, ep transport.Endpoint) error {
	f := c.registry.Get(portalID)
	if f == nil {
		return fmt.Errorf("%w: portal-%s", ErrUnroutable, portalID)
	}
	if f.endpoint != nil {
		select {
		case <-f.endpoint.Done():
		default:
			return fmt.Errorf("%w: portal-%s", ErrAlreadyBound, portalID)
		}
	}
	f.endpoint = ep
	c.cmdLog.Debugf("shell:attach", "portal-%s attached to %s", portalID, ep.ID())
	if !f.confirmed() {
		c.announce(f)
	}
	return nil
}

func (c *Coordinator) detach(ep transport.Endpoint) {
	if f := c.registry.byEndpoint(ep); f != nil {
		f.endpoint = nil
		c.cmdLog.Debugf("shell:attach", "portal-%s detached from %s", f.PortalID, ep.ID())
	}
}

func (c *Coordinator) receive(ep transport.Endpoint, env transport.Envelope) {
	from := c.registry.byEndpoint(ep)
	if from == nil {
		c.logger.WithField("cmd", env.Command).Warnf("ignoring %s from removed frame", env.Command)
		return
	}
	c.cmdLog.Debugf("shell:recv", "portal-%s <- %s", from.PortalID, env.Raw)

	var err error
	switch env.Command {
	case CmdFrameTypeReceived:
		var m FrameTypeReceived
		if err = env.Decode(&m); err == nil {
			c.frameTypeReceived(from, m)
		}
	case CmdPortalOpen:
		var m PortalOpen
		if err = env.Decode(&m); err == nil {
			c.portalOpen(from, m)
		}
	case CmdPortalClose:
		var m PortalClose
		if err = env.Decode(&m); err == nil {
			c.portalClose(from, m)
		}
	case CmdPortalUpdate:
		var m PortalUpdate
		if err = env.Decode(&m); err == nil {
			c.portalUpdate(from, m)
		}
	case CmdPortalWorldRendered:
		c.portalWorldRendered(from)
	case CmdPrimaryRendered:
		c.primaryRendered(from)
	case CmdPortalEnter:
		var m PortalEnter
		if err = env.Decode(&m); err == nil {
			c.portalEnter(from, m)
		}
	case CmdWorldEnter:
		var m WorldEnter
		if err = env.Decode(&m); err == nil {
			c.worldEnter(from, m)
		}
	default:
		c.logger.WithFields(logrus.Fields{"portal": from.PortalID, "cmd": env.Command}).
			Warnf("received unknown command %q from portal-%s", env.Command, from.PortalID)
	}
	if err != nil {
		c.logger.WithError(err).WithField("portal", from.PortalID).Warn("ignoring malformed message")
	}
}

// openFrame registers a frame for portalURL, mounts it and starts announcing
// its role.
func (c *Coordinator) openFrame(owner *Frame, portalURL string) (*Frame, error) {
	f, err := c.registry.Open(owner, func(portalID string) (string, error) {
		return c.codec.FrameURL(portalURL, portalID)
	})
	if err != nil {
		return nil, err
	}
	c.logger.WithField("portal", f.PortalID).Debugf("added frame for %s", portalURL)
	c.hostCall(HostCmdMountFrame, c.host.MountFrame(MountFrame{
		PortalID: f.PortalID,
		Src:      f.src,
		ZIndex:   f.zIndex,
		TiltZ:    f.tiltZ,
	}))
	c.emit(event.FrameOpened, event.FrameData{ShellID: c.id, PortalID: f.PortalID, Src: f.src})
	c.sendFrameType(f, nil)
	return f, nil
}

// closeFrame removes f and the frames it owns. The primary frame is only
// unlinked from its owner; it is removed once another frame takes over.
func (c *Coordinator) closeFrame(f *Frame) {
	removed := c.registry.Remove(f, c.primary)
	if len(removed) == 0 {
		if f == c.primary {
			c.logger.WithField("portal", f.PortalID).Infof("primary frame %s is no longer owned", f.PortalID)
		}
		return
	}
	for _, r := range removed {
		c.logger.WithField("portal", r.PortalID).Infof("removing frame %s", r.PortalID)
		c.stopPolling(r)
		delete(c.portalData, r.PortalID)
		if r.endpoint != nil {
			_ = r.endpoint.Close()
			r.endpoint = nil
		}
		c.hostCall(HostCmdUnmountFrame, c.host.UnmountFrame(r.PortalID))
		c.emit(event.FrameClosed, event.FrameData{ShellID: c.id, PortalID: r.PortalID, Src: r.src})
	}
	c.arrange(c.primary, nil)
}

// send delivers cmd to the frame with the given portal id.
func (c *Coordinator) send(portalID, cmd string, payload interface{}) {
	f := c.registry.Get(portalID)
	if f == nil {
		c.logger.WithError(ErrUnroutable).WithFields(logrus.Fields{"portal": portalID, "cmd": cmd}).
			Warnf("sending %q to portal-%s failed", cmd, portalID)
		return
	}
	c.sendTo(f, cmd, payload)
}

func (c *Coordinator) sendTo(f *Frame, cmd string, payload interface{}) {
	if f.endpoint == nil {
		c.logger.WithFields(logrus.Fields{"portal": f.PortalID, "cmd": cmd}).
			Debugf("not sending %q, portal-%s is not connected", cmd, f.PortalID)
		return
	}
	c.cmdLog.Debugf("shell:send", "portal-%s -> %s", f.PortalID, cmd)
	if err := f.endpoint.Send(cmd, payload); err != nil {
		c.logger.WithError(err).WithFields(logrus.Fields{"portal": f.PortalID, "cmd": cmd}).
			Warnf("sending %q to portal-%s failed", cmd, f.PortalID)
	}
}

// sendPrimary delivers cmd to the current primary frame.
func (c *Coordinator) sendPrimary(cmd string, payload interface{}) {
	if c.primary == nil {
		return
	}
	c.sendTo(c.primary, cmd, payload)
}

func (c *Coordinator) hostCall(cmd string, err error) {
	if err != nil {
		c.logger.WithError(err).WithField("cmd", cmd).Warn("host command failed")
	}
}

func (c *Coordinator) logError(err error) {
	msg, fields := errext.Format(err)
	c.logger.WithFields(fields).Error(msg)
}

func (c *Coordinator) emit(typ event.Type, data interface{}) {
	if c.events != nil {
		c.events.Emit(&event.Event{Type: typ, Data: data})
	}
}

// FrameSnapshot describes one frame of a Snapshot.
type FrameSnapshot struct {
	PortalID  string    `json:"portalId"`
	Src       string    `json:"src"`
	Owner     string    `json:"owner,omitempty"`
	Owned     []string  `json:"owned,omitempty"`
	FrameType FrameType `json:"frameType"`
	Confirmed bool      `json:"confirmed"`
	Connected bool      `json:"connected"`
	ZIndex    int       `json:"zIndex"`
	TiltZ     int       `json:"tiltZ"`
	Hidden    bool      `json:"hidden"`
}

// Snapshot is a point in time view of a shell, used for debugging.
type Snapshot struct {
	ID                string          `json:"id"`
	Location          string          `json:"location"`
	Primary           string          `json:"primary"`
	Phase             Phase           `json:"phase"`
	Frames            []FrameSnapshot `json:"frames"`
	AwaitedFrameTypes []string        `json:"awaitedFrameTypes"`
	AwaitedRenders    []string        `json:"awaitedRenders"`
	PendingSort       bool            `json:"pendingSort"`
	Gesture           *Motion         `json:"gesture,omitempty"`
	CapturedPointers  []int           `json:"capturedPointers,omitempty"`
	HistoryLength     int             `json:"historyLength"`
}

// Snapshot returns the current state of the shell.
func (c *Coordinator) Snapshot(ctx context.Context) (Snapshot, error) {
	var s Snapshot
	err := c.do(ctx, func() error {
		s = c.snapshot()
		return nil
	})
	return s, err
}

func (c *Coordinator) snapshot() Snapshot {
	s := Snapshot{
		ID:                c.id,
		Location:          c.history.Location(),
		Phase:             c.phase,
		AwaitedFrameTypes: sortedKeys(c.awaitedFrameTypes),
		AwaitedRenders:    sortedKeys(c.awaitedRenders),
		PendingSort:       c.pendingSort != nil,
		HistoryLength:     c.history.Len(),
	}
	if c.primary != nil {
		s.Primary = c.primary.PortalID
	}
	if c.gesture != nil {
		s.Gesture = &Motion{DX: c.gesture.dx, DY: c.gesture.dy}
	}
	for id := range c.capturedPointers {
		s.CapturedPointers = append(s.CapturedPointers, id)
	}
	sort.Ints(s.CapturedPointers)
	for _, f := range c.registry.Frames() {
		fs := FrameSnapshot{
			PortalID:  f.PortalID,
			Src:       f.src,
			FrameType: c.frameTypeOf(f),
			Confirmed: f.confirmed(),
			Connected: f.endpoint != nil,
			ZIndex:    f.zIndex,
			TiltZ:     f.tiltZ,
			Hidden:    f.hidden,
		}
		if f.owner != nil {
			fs.Owner = f.owner.PortalID
		}
		for _, o := range sortedOwned(f) {
			fs.Owned = append(fs.Owned, o.PortalID)
		}
		s.Frames = append(s.Frames, fs)
	}
	return s
}

func sortedKeys(m map[string]struct{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
