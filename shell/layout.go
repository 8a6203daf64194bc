package shell

import "sort"

// pendingSort is a display re-order deferred until the new primary has
// rendered, so the switch is not visible before it has something to show.
type pendingSort struct {
	main, portal *Frame
}

// arrange puts main on top, portal right behind it and keeps the remaining
// frames in their current stacking order. Every frame becomes visible again.
func (c *Coordinator) arrange(main, portal *Frame) {
	frames := c.registry.Frames()
	rank := func(f *Frame) int {
		switch f {
		case main:
			return 0
		case portal:
			return 1
		default:
			return 2
		}
	}
	sort.SliceStable(frames, func(i, j int) bool {
		ri, rj := rank(frames[i]), rank(frames[j])
		if ri != rj {
			return ri < rj
		}
		return frames[i].zIndex > frames[j].zIndex
	})

	placements := make([]Placement, len(frames))
	for i, f := range frames {
		f.zIndex = -i
		f.tiltZ = i * tiltStep
		f.hidden = false
		placements[i] = Placement{PortalID: f.PortalID, ZIndex: f.zIndex, TiltZ: f.tiltZ}
	}
	c.hostCall(HostCmdArrangeFrames, c.host.ArrangeFrames(placements))
}

func (c *Coordinator) flushSort() {
	p := c.pendingSort
	c.pendingSort = nil
	c.timers.Clear(c.sortTimer)
	c.sortTimer = 0
	if p != nil {
		c.arrange(p.main, p.portal)
	}
}
