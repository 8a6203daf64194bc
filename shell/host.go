package shell

import "github.com/liuxd6825/portalshell/transport"

// Commands sent to the host page.
const (
	HostCmdMountFrame    = "mount-frame"
	HostCmdUnmountFrame  = "unmount-frame"
	HostCmdNavigateFrame = "navigate-frame"
	HostCmdArrangeFrames = "arrange-frames"
	HostCmdHideFrame     = "hide-frame"
	HostCmdFocusFrame    = "focus-frame"
	HostCmdSetTitle      = "set-title"
	HostCmdPushState     = "push-state"
	HostCmdReplaceState  = "replace-state"
	HostCmdReload        = "reload"
	HostCmdRedirect      = "redirect"
)

// Placement is where a frame is shown in the host page's stack of frames.
type Placement struct {
	PortalID string `json:"portalId"`
	ZIndex   int    `json:"zIndex"`
	// TiltZ is the depth offset in pixels used by the tilt view.
	TiltZ  int  `json:"tiltZ"`
	Hidden bool `json:"hidden"`
}

// MountFrame describes a new frame for the host page.
type MountFrame struct {
	PortalID string `json:"portalId"`
	Src      string `json:"src"`
	ZIndex   int    `json:"zIndex"`
	TiltZ    int    `json:"tiltZ"`
}

// HistoryState is the state object stored with every history entry.
type HistoryState struct {
	PortalID string `json:"portalId"`
}

// Host is the page embedding the frames. It executes the side effects the
// shell decides on: DOM changes, session history and reloads.
type Host interface {
	MountFrame(frame MountFrame) error
	UnmountFrame(portalID string) error
	NavigateFrame(portalID, src string) error
	ArrangeFrames(placements []Placement) error
	HideFrame(portalID string) error
	FocusFrame(portalID string) error
	SetTitle(title string) error
	PushState(state HistoryState, url string) error
	ReplaceState(state HistoryState, url string) error
	Reload() error
	Redirect(url string) error
}

// EndpointHost is a Host reached through a transport endpoint, normally the
// host page's websocket.
type EndpointHost struct {
	Endpoint transport.Endpoint
}

var _ Host = EndpointHost{}

type (
	portalIDPayload struct {
		PortalID string `json:"portalId"`
	}
	navigatePayload struct {
		PortalID string `json:"portalId"`
		Src      string `json:"src"`
	}
	arrangePayload struct {
		Frames []Placement `json:"frames"`
	}
	titlePayload struct {
		Title string `json:"title"`
	}
	historyPayload struct {
		State HistoryState `json:"state"`
		URL   string       `json:"url"`
	}
	redirectPayload struct {
		URL string `json:"url"`
	}
)

// MountFrame implements Host.
func (h EndpointHost) MountFrame(frame MountFrame) error {
	return h.Endpoint.Send(HostCmdMountFrame, frame)
}

// UnmountFrame implements Host.
func (h EndpointHost) UnmountFrame(portalID string) error {
	return h.Endpoint.Send(HostCmdUnmountFrame, portalIDPayload{portalID})
}

// NavigateFrame implements Host.
func (h EndpointHost) NavigateFrame(portalID, src string) error {
	return h.Endpoint.Send(HostCmdNavigateFrame, navigatePayload{portalID, src})
}

// ArrangeFrames implements Host.
func (h EndpointHost) ArrangeFrames(placements []Placement) error {
	return h.Endpoint.Send(HostCmdArrangeFrames, arrangePayload{placements})
}

// HideFrame implements Host.
func (h EndpointHost) HideFrame(portalID string) error {
	return h.Endpoint.Send(HostCmdHideFrame, portalIDPayload{portalID})
}

// FocusFrame implements Host.
func (h EndpointHost) FocusFrame(portalID string) error {
	return h.Endpoint.Send(HostCmdFocusFrame, portalIDPayload{portalID})
}

// SetTitle implements Host.
func (h EndpointHost) SetTitle(title string) error {
	return h.Endpoint.Send(HostCmdSetTitle, titlePayload{title})
}

// PushState implements Host.
func (h EndpointHost) PushState(state HistoryState, url string) error {
	return h.Endpoint.Send(HostCmdPushState, historyPayload{state, url})
}

// ReplaceState implements Host.
func (h EndpointHost) ReplaceState(state HistoryState, url string) error {
	return h.Endpoint.Send(HostCmdReplaceState, historyPayload{state, url})
}

// Reload implements Host.
func (h EndpointHost) Reload() error {
	return h.Endpoint.Send(HostCmdReload, nil)
}

// Redirect implements Host.
func (h EndpointHost) Redirect(url string) error {
	return h.Endpoint.Send(HostCmdRedirect, redirectPayload{url})
}
