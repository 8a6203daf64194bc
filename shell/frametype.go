package shell

import (
	"encoding/json"

	"github.com/sirupsen/logrus"

	"github.com/liuxd6825/portalshell/event"
)

// frameTypeOf derives the role of f from the current primary. Before there
// is a primary every frame is the primary to be.
func (c *Coordinator) frameTypeOf(f *Frame) FrameType {
	if c.primary == nil || c.primary == f {
		return Primary
	}
	return Secondary
}

// sendFrameType announces the role of f, and keeps announcing it until f
// acknowledges. If an announcement is already running only its arguments
// are replaced; the next send picks them up.
func (c *Coordinator) sendFrameType(f *Frame, spec json.RawMessage) {
	f.announcement = &announcement{frameType: c.frameTypeOf(f), spec: spec}
	if f.poll != 0 {
		return
	}
	c.announce(f)
	f.poll = c.timers.SetInterval("frame-type portal-"+f.PortalID, c.opts.PollInterval, func() {
		c.announce(f)
	})
}

func (c *Coordinator) announce(f *Frame) {
	if c.registry.Get(f.PortalID) != f {
		c.stopPolling(f)
		return
	}
	args := f.announcement
	msg := FrameTypeMessage{FrameType: args.frameType, Spec: args.spec}
	if args.frameType == Secondary {
		// a frame that is just waking up must not hear portal-camera-update
		// before frame-type
		if m := c.portalData[f.PortalID]; m != nil {
			msg.CameraMatrix = m
		}
	}
	c.sendTo(f, CmdFrameType, msg)
}

func (c *Coordinator) stopPolling(f *Frame) {
	c.timers.Clear(f.poll)
	f.poll = 0
}

func (c *Coordinator) frameTypeReceived(f *Frame, m FrameTypeReceived) {
	expected := c.frameTypeOf(f)
	if m.FrameType != expected {
		// the role changed after the announcement was sent, keep announcing
		c.logger.WithError(ErrStaleAcknowledgement).WithFields(logrus.Fields{
			"portal":   f.PortalID,
			"received": m.FrameType,
			"expected": expected,
		}).Debugf("ignoring portal-%s frame-type-received (%s) when expecting %s", f.PortalID, m.FrameType, expected)
		return
	}
	c.stopPolling(f)

	if _, awaited := c.awaitedFrameTypes[f.PortalID]; !awaited {
		return
	}
	delete(c.awaitedFrameTypes, f.PortalID)
	if len(c.awaitedFrameTypes) == 0 {
		c.releaseFreeze(false)
	}
}

// releaseFreeze lets the primary resume rendering, ending a hand-off.
func (c *Coordinator) releaseFreeze(timedOut bool) {
	c.timers.Clear(c.freezeTimer)
	c.freezeTimer = 0
	c.sendPrimary(CmdReleaseFreeze, nil)
	c.phase = PhaseActivated

	to := ""
	if c.primary != nil {
		to = c.primary.PortalID
	}
	if c.activation != nil {
		c.activation.SetAttributes(timedOutAttr(timedOut))
		c.activation.End()
		c.activation = nil
	}
	c.emit(event.FreezeReleased, event.ActivationData{
		ShellID:  c.id,
		From:     c.activationFrom,
		To:       to,
		TimedOut: timedOut,
	})
}
