package shell

import "github.com/sirupsen/logrus"

// PointerKind is the type of a joystick pointer event.
type PointerKind string

// Pointer events the host page forwards from its joystick.
const (
	PointerDown        PointerKind = "pointer-down"
	PointerMove        PointerKind = "pointer-move"
	PointerUp          PointerKind = "pointer-up"
	PointerCancel      PointerKind = "pointer-cancel"
	LostPointerCapture PointerKind = "lost-pointer-capture"
)

// PointerEvent is a pointer event on the joystick.
type PointerEvent struct {
	PointerID *int    `json:"pointerId"`
	ClientX   float64 `json:"clientX"`
	ClientY   float64 `json:"clientY"`
}

// gesture is a joystick drag in progress. Its deltas are relative to where
// the pointer went down.
type gesture struct {
	originX, originY float64
	dx, dy           float64
}

func (c *Coordinator) pointer(kind PointerKind, e PointerEvent) {
	switch kind {
	case PointerDown:
		if e.PointerID != nil {
			c.capturedPointers[*e.PointerID] = struct{}{}
		}
		c.gesture = &gesture{originX: e.ClientX, originY: e.ClientY}
		c.sendPrimary(CmdMotionStart, Motion{})
	case PointerMove:
		if c.gesture == nil {
			return
		}
		c.gesture.dx = e.ClientX - c.gesture.originX
		c.gesture.dy = e.ClientY - c.gesture.originY
		c.sendPrimary(CmdMotionUpdate, Motion{DX: c.gesture.dx, DY: c.gesture.dy})
	case PointerUp, PointerCancel, LostPointerCapture:
		c.capturedPointers = make(map[int]struct{})
		c.gesture = nil
		c.sendPrimary(CmdMotionEnd, nil)
	default:
		c.logger.WithFields(logrus.Fields{"kind": kind}).Warn("ignoring unknown pointer event")
	}
}
