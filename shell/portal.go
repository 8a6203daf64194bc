package shell

import "github.com/sirupsen/logrus"

// portalOpen resolves the frame behind a portal of from. An unowned frame
// already showing the URL is adopted, otherwise a new one is opened.
func (c *Coordinator) portalOpen(from *Frame, m PortalOpen) {
	if m.PortalID != "" {
		c.portalNavigate(m)
		return
	}

	target := c.registry.Find(func(f *Frame) bool {
		return f.owner == nil && f != from && c.codec.Match(f.src, m.PortalURL)
	})
	if target == nil {
		var err error
		if target, err = c.openFrame(from, m.PortalURL); err != nil {
			c.logError(err)
			return
		}
	} else {
		target.setOwner(from)
	}

	c.sendTo(from, CmdPortalOpened, PortalOpened{PortalID: target.PortalID})
	if from == c.primary {
		c.arrange(c.primary, target)
	}
}

// portalNavigate points an existing frame at a new URL. The context reloads,
// so its connection is dropped and its role announced again.
func (c *Coordinator) portalNavigate(m PortalOpen) {
	target := c.registry.Get(m.PortalID)
	if target == nil {
		c.logger.WithError(ErrUnroutable).WithField("portal", m.PortalID).
			Warnf("ignoring portal-open for portal-%s", m.PortalID)
		return
	}
	url, err := c.codec.FrameURL(m.PortalURL, m.PortalID)
	if err != nil {
		c.logError(err)
		return
	}
	current, err := c.codec.FrameURL(target.src, m.PortalID)
	if err != nil || current == url {
		return
	}

	c.logger.WithFields(logrus.Fields{"portal": m.PortalID, "from": target.src, "to": url}).
		Warn("portal-open replacing frame URL")
	target.src = url
	target.endpoint = nil
	c.hostCall(HostCmdNavigateFrame, c.host.NavigateFrame(target.PortalID, url))

	var spec []byte
	if target.announcement != nil {
		spec = target.announcement.spec
	}
	c.stopPolling(target)
	c.sendFrameType(target, spec)
}

func (c *Coordinator) portalClose(from *Frame, m PortalClose) {
	target := c.registry.Get(m.PortalID)
	if target == nil {
		c.logger.WithField("portal", m.PortalID).Debugf("portal-%s is already closed", m.PortalID)
		return
	}
	if target.owner != from {
		c.logger.WithFields(logrus.Fields{"portal": m.PortalID, "from": from.PortalID}).
			Warnf("ignoring portal-close for portal-%s from portal-%s, which does not own it", m.PortalID, from.PortalID)
		return
	}
	c.closeFrame(target)
}
