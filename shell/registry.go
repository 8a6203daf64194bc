package shell

import (
	"fmt"
	"sort"

	uuid "github.com/nu7hatch/gouuid"

	"github.com/liuxd6825/portalshell/errext"
	"github.com/liuxd6825/portalshell/transport"
)

// DefaultFrameCap is the default number of frames a shell keeps loaded.
const DefaultFrameCap = 4

// tiltStep is the depth offset, in pixels, between stacked frames in the tilt view.
const tiltStep = -200

// NewPortalID returns a random portal id.
func NewPortalID() (string, error) {
	id, err := uuid.NewV4()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// Registry holds the frames of one shell, organized as an ownership forest.
// It iterates frames in the order they were opened.
type Registry struct {
	cap    int
	newID  func() (string, error)
	frames map[string]*Frame
	order  []*Frame
}

// NewRegistry returns a registry holding at most frameCap frames. A nil newID
// selects NewPortalID.
func NewRegistry(frameCap int, newID func() (string, error)) *Registry {
	if frameCap <= 0 {
		frameCap = DefaultFrameCap
	}
	if newID == nil {
		newID = NewPortalID
	}
	return &Registry{
		cap:    frameCap,
		newID:  newID,
		frames: make(map[string]*Frame),
	}
}

// Len returns the number of frames.
func (r *Registry) Len() int { return len(r.order) }

// Get returns the frame with the given portal id, or nil.
func (r *Registry) Get(portalID string) *Frame { return r.frames[portalID] }

// Frames returns the frames in the order they were opened.
func (r *Registry) Frames() []*Frame {
	return append([]*Frame(nil), r.order...)
}

// Open registers a new frame owned by owner, which may be nil. src builds the
// frame URL for the generated portal id. The frame is placed behind all
// others.
func (r *Registry) Open(owner *Frame, src func(portalID string) (string, error)) (*Frame, error) {
	if len(r.order) >= r.cap {
		return nil, errext.WithHint(
			fmt.Errorf("%w: refusing to create more than %d frames", ErrResourceLimit, r.cap),
			"this indicates a portal bug",
		)
	}

	var portalID string
	for {
		id, err := r.newID()
		if err != nil {
			return nil, fmt.Errorf("generating portal id: %w", err)
		}
		if _, exists := r.frames[id]; !exists && id != "" {
			portalID = id
			break
		}
	}

	url, err := src(portalID)
	if err != nil {
		return nil, err
	}

	f := newFrame(portalID, url, owner)
	f.zIndex = -len(r.order)
	f.tiltZ = len(r.order) * tiltStep
	r.frames[portalID] = f
	r.order = append(r.order, f)
	return f, nil
}

// Remove detaches f from its owner and, unless f is primary, removes it and
// every frame it owns. It returns the removed frames, parents first. A
// primary frame is only unlinked from its owner and nothing is returned.
func (r *Registry) Remove(f *Frame, primary *Frame) []*Frame {
	f.setOwner(nil)
	if f == primary {
		return nil
	}
	if r.frames[f.PortalID] != f {
		return nil
	}

	delete(r.frames, f.PortalID)
	for i, o := range r.order {
		if o == f {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}

	removed := []*Frame{f}
	for _, owned := range sortedOwned(f) {
		removed = append(removed, r.Remove(owned, primary)...)
	}
	return removed
}

// Find returns the first frame for which match returns true.
func (r *Registry) Find(match func(*Frame) bool) *Frame {
	for _, f := range r.order {
		if match(f) {
			return f
		}
	}
	return nil
}

// byEndpoint returns the frame currently bound to ep.
func (r *Registry) byEndpoint(ep transport.Endpoint) *Frame {
	return r.Find(func(f *Frame) bool { return f.endpoint != nil && f.endpoint == ep })
}

// sortedOwned lists the frames f owns in stacking order so that cascading
// removals are deterministic.
func sortedOwned(f *Frame) []*Frame {
	out := make([]*Frame, 0, len(f.owned))
	for _, o := range f.owned {
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].zIndex != out[j].zIndex {
			return out[i].zIndex > out[j].zIndex
		}
		return out[i].PortalID < out[j].PortalID
	})
	return out
}
