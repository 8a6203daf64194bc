package shell

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tidwall/gjson"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/liuxd6825/portalshell/event"
)

// Phase is the state of the hand-off between primaries.
type Phase string

// Hand-off phases. A shell is idle until its first hand-off, freezing while
// it waits for both frames to confirm their new roles and activated once
// the new primary was released.
const (
	PhaseIdle      Phase = "idle"
	PhaseFreezing  Phase = "freezing"
	PhaseActivated Phase = "activated"
)

func (c *Coordinator) portalEnter(from *Frame, m PortalEnter) {
	if from != c.primary {
		c.logger.WithField("portal", from.PortalID).
			Warnf("ignoring portal-enter from non-primary portal-%s", from.PortalID)
		return
	}
	to := c.registry.Get(m.PortalID)
	if to == nil {
		c.logger.WithError(ErrUnroutable).WithField("portal", m.PortalID).
			Warnf("ignoring portal-enter to portal-%s", m.PortalID)
		return
	}
	c.activate(to, true, m.TransferData)
}

func (c *Coordinator) worldEnter(from *Frame, m WorldEnter) {
	if from != c.primary {
		c.logger.WithField("portal", from.PortalID).
			Warnf("ignoring world-enter from non-primary portal-%s", from.PortalID)
		return
	}
	to := c.registry.Find(func(f *Frame) bool { return c.codec.Match(f.src, m.PortalURL) })
	if to == nil {
		// might happen after back/forward navigation
		c.logger.Infof("world-enter creating frame for %s", m.PortalURL)
		var err error
		if to, err = c.openFrame(from, m.PortalURL); err != nil {
			c.logError(err)
			return
		}
	}
	c.activate(to, true, m.TransferData)
}

// activate hands the primary role to the frame to. Both frames are
// announced their new roles and the new primary stays frozen until both
// confirmed or the activation timeout passed.
func (c *Coordinator) activate(to *Frame, pushState bool, transferData json.RawMessage) {
	from := c.primary
	if from == nil {
		c.logger.WithField("portal", to.PortalID).Warn("cannot activate a frame before the shell started")
		return
	}
	if to == from {
		c.logger.WithField("portal", to.PortalID).Debugf("portal-%s is already primary", to.PortalID)
		return
	}
	portalURL, err := c.codec.PortalURL(to.src)
	if err != nil {
		c.logError(err)
		return
	}
	c.startActivation(from, to)

	c.pendingSort = &pendingSort{main: to, portal: from}
	c.timers.Clear(c.sortTimer)
	c.sortTimer = c.timers.SetTimeout("frame sort", c.opts.ActivationTimeout, func() {
		c.sortTimer = 0
		if c.pendingSort != nil {
			c.logger.Warn("sorting frames after timeout")
			c.flushSort()
		}
	})

	if present(transferData) && !gjson.GetBytes(transferData, "crossingBackwards").Bool() {
		from.hidden = true
		c.hostCall(HostCmdHideFrame, c.host.HideFrame(from.PortalID))
	}

	if pushState {
		c.updateHistory(true, to.PortalID, portalURL)
	}
	c.setTitle(portalURL)

	c.primary = to
	delete(c.portalData, to.PortalID)
	// renders and acknowledgements still in the pipeline belong to the old roles
	c.awaitedRenders = make(map[string]struct{})
	c.awaitedFrameTypes = make(map[string]struct{})
	c.phase = PhaseFreezing

	if from.owner == nil {
		c.logger.WithField("portal", from.PortalID).Infof("removing unowned secondary frame %s", from.PortalID)
		c.closeFrame(from)
	} else {
		c.logger.WithField("portal", from.PortalID).Debugf("sending frame-type secondary to portal-%s", from.PortalID)
		spec, err := json.Marshal(secondarySpec{PortalURL: portalURL})
		if err != nil {
			c.logError(err)
			return
		}
		c.sendFrameType(from, spec)
		c.awaitedFrameTypes[from.PortalID] = struct{}{}
	}

	c.logger.WithField("portal", to.PortalID).Debugf("sending frame-type primary to portal-%s", to.PortalID)
	c.hostCall(HostCmdFocusFrame, c.host.FocusFrame(to.PortalID))
	c.sendFrameType(to, transferData)
	c.awaitedFrameTypes[to.PortalID] = struct{}{}

	c.timers.Clear(c.freezeTimer)
	c.freezeTimer = c.timers.SetTimeout("freeze", c.opts.ActivationTimeout, func() {
		c.freezeTimer = 0
		if len(c.awaitedFrameTypes) > 0 {
			c.logger.Warn("releasing freeze after timeout")
			c.awaitedFrameTypes = make(map[string]struct{})
			c.releaseFreeze(true)
		}
	})

	if c.gesture != nil {
		c.sendTo(to, CmdMotionStart, Motion{DX: c.gesture.dx, DY: c.gesture.dy})
	}

	c.emit(event.Activated, event.ActivationData{ShellID: c.id, From: from.PortalID, To: to.PortalID})
}

func (c *Coordinator) startActivation(from, to *Frame) {
	c.endActivation("superseded")
	c.activationFrom = from.PortalID
	_, c.activation = c.tracer.Start(c.ctx, "shell.activate", trace.WithAttributes(
		attribute.String("shell.id", c.id),
		attribute.String("portal.from", from.PortalID),
		attribute.String("portal.to", to.PortalID),
	))
}

// endActivation ends a hand-off span that did not reach its release.
func (c *Coordinator) endActivation(reason string) {
	if c.activation == nil {
		return
	}
	c.activation.AddEvent(reason)
	c.activation.End()
	c.activation = nil
}

func timedOutAttr(timedOut bool) attribute.KeyValue {
	return attribute.Bool("shell.timed_out", timedOut)
}

// updateHistory records portalURL in the session history. Portals on another
// origin cannot be written to the address bar; they get a shell URL instead.
func (c *Coordinator) updateHistory(push bool, portalID, portalURL string) {
	write := c.history.ReplaceState
	if push {
		write = c.history.PushState
	}
	state := HistoryState{PortalID: portalID}

	err := write(state, portalURL)
	if err == nil {
		return
	}
	if !errors.Is(err, ErrCrossOrigin) || c.codec.SameOrigin(portalURL) {
		c.logger.WithError(err).WithField("portal", portalID).Error("updating history failed")
	}
	shellURL, err := c.codec.ShellURL(portalURL)
	if err == nil {
		err = write(state, shellURL)
	}
	if err != nil {
		c.logger.WithError(err).WithField("portal", portalID).Error("updating history failed")
	}
}

func (c *Coordinator) setTitle(portalURL string) {
	c.hostCall(HostCmdSetTitle, c.host.SetTitle(c.codec.Title(portalURL)))
}

// popState follows a back/forward navigation of the host page to the frame
// showing the new location. When no frame matches, the host reloads.
func (c *Coordinator) popState(state HistoryState, location string) {
	if err := c.history.PopState(state, location); err != nil {
		c.reload(err)
		return
	}
	canonical, err := c.codec.Canonical(c.history.Location())
	if err == nil {
		canonical, err = c.codec.PortalURL(canonical)
	}
	if err != nil {
		c.reload(err)
		return
	}

	f := c.registry.Get(state.PortalID)
	if f == nil {
		// the user may have navigated further than the loaded frames reach
		f = c.registry.Find(func(f *Frame) bool {
			u, err := c.codec.PortalURL(f.src)
			return err == nil && u == canonical
		})
	}
	if f == nil {
		c.reload(fmt.Errorf("%w: no frame for %s", ErrNavigationMismatch, canonical))
		return
	}

	portalURL, err := c.codec.PortalURL(f.src)
	if err != nil {
		c.reload(err)
		return
	}
	if portalURL != canonical {
		c.reload(fmt.Errorf("%w: location %s does not match portal-%s src %s",
			ErrNavigationMismatch, canonical, f.PortalID, f.src))
		return
	}
	if f == c.primary {
		c.setTitle(portalURL)
		return
	}
	c.activate(f, false, nil)
}

func (c *Coordinator) reload(reason error) {
	c.logger.WithError(reason).Warn("reloading host page")
	c.hostCall(HostCmdReload, c.host.Reload())
}
