package shell

import (
	"encoding/json"

	"github.com/liuxd6825/portalshell/transport"
)

// Frame is one content context, an iframe showing a world.
type Frame struct {
	PortalID string

	// src is the frame URL currently loaded.
	src string

	owner *Frame
	owned map[string]*Frame

	// endpoint is the connection of the context currently loaded in the
	// frame, nil until it connects.
	endpoint transport.Endpoint

	// announcement holds the arguments of the latest frame-type announcement;
	// every poll sends them fresh.
	announcement *announcement
	// poll is the id of the repeating announcement timer, 0 once confirmed.
	poll uint64

	zIndex int
	tiltZ  int
	hidden bool
}

type announcement struct {
	frameType FrameType
	spec      json.RawMessage
}

func newFrame(portalID, src string, owner *Frame) *Frame {
	f := &Frame{
		PortalID: portalID,
		src:      src,
		owned:    make(map[string]*Frame),
	}
	f.setOwner(owner)
	return f
}

// Src returns the frame URL currently loaded.
func (f *Frame) Src() string { return f.src }

// Owner returns the frame that opened this one, if it is still linked.
func (f *Frame) Owner() *Frame { return f.owner }

func (f *Frame) setOwner(owner *Frame) {
	if f.owner != nil {
		delete(f.owner.owned, f.PortalID)
	}
	f.owner = owner
	if owner != nil {
		owner.owned[f.PortalID] = f
	}
}

// confirmed reports whether the latest announcement was acknowledged.
func (f *Frame) confirmed() bool {
	return f.poll == 0
}
