package shell

import "github.com/liuxd6825/portalshell/event"

// portalUpdate forwards the primary's portal sightlines to the frames behind
// the portals and waits, bounded by the render timeout, for those that are
// visible to render before asking the primary for a composed render.
func (c *Coordinator) portalUpdate(from *Frame, m PortalUpdate) {
	if from != c.primary {
		c.logger.WithField("portal", from.PortalID).
			Debugf("ignoring portal-%s portal-update because it's no longer primary", from.PortalID)
		return
	}

	c.awaitedRenders = make(map[string]struct{})
	for _, spec := range m.PortalSpecs {
		c.send(spec.PortalID, CmdPortalCameraUpdate, PortalCameraUpdate{CameraMatrix: spec.CameraMatrix})
		if spec.CameraMatrix != nil {
			c.awaitedRenders[spec.PortalID] = struct{}{}
		}
		// kept for the frame-type announcement in case the frame is not ready yet
		c.portalData[spec.PortalID] = spec.CameraMatrix
	}

	// a slow through-portal world must not hold back the primary, so only
	// one render is awaited at a time
	if c.renderTimer == 0 && len(c.awaitedRenders) > 0 {
		c.renderTimer = c.timers.SetTimeout("portal render", c.opts.RenderTimeout, func() {
			c.renderTimer = 0
			c.logger.Warn("portal render timed out")
			c.awaitedRenders = make(map[string]struct{})
			c.renderPrimary(true)
		})
	}
}

func (c *Coordinator) portalWorldRendered(from *Frame) {
	if c.renderTimer == 0 {
		return
	}
	if _, awaited := c.awaitedRenders[from.PortalID]; !awaited {
		return
	}
	delete(c.awaitedRenders, from.PortalID)
	if len(c.awaitedRenders) == 0 {
		c.timers.Clear(c.renderTimer)
		c.renderTimer = 0
		c.renderPrimary(false)
	}
}

// renderPrimary forces a composed render of the primary. A receipt is only
// requested when a display re-order waits for it.
func (c *Coordinator) renderPrimary(timedOut bool) {
	if c.primary == nil {
		return
	}
	c.sendPrimary(CmdSyncRenderNow, SyncRenderNow{AcknowledgeReceipt: c.pendingSort != nil})
	c.emit(event.RenderForced, event.RenderData{ShellID: c.id, PortalID: c.primary.PortalID, TimedOut: timedOut})
}

func (c *Coordinator) primaryRendered(from *Frame) {
	if from != c.primary {
		c.logger.WithField("portal", from.PortalID).
			Warnf("ignoring primary-rendered from non-primary portal-%s", from.PortalID)
		return
	}
	if c.pendingSort != nil {
		c.flushSort()
	}
}
