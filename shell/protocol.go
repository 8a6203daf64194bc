package shell

import "encoding/json"

// Commands exchanged with content frames.
const (
	CmdFrameType           = "frame-type"
	CmdFrameTypeReceived   = "frame-type-received"
	CmdPortalOpen          = "portal-open"
	CmdPortalOpened        = "portal-opened"
	CmdPortalClose         = "portal-close"
	CmdPortalUpdate        = "portal-update"
	CmdPortalCameraUpdate  = "portal-camera-update"
	CmdPortalWorldRendered = "portal-world-rendered"
	CmdSyncRenderNow       = "sync-render-now"
	CmdPrimaryRendered     = "primary-rendered"
	CmdPortalEnter         = "portal-enter"
	CmdWorldEnter          = "world-enter"
	CmdReleaseFreeze       = "release-freeze"
	CmdMotionStart         = "motion-start"
	CmdMotionUpdate        = "motion-update"
	CmdMotionEnd           = "motion-end"
)

// FrameType is the role of a frame.
type FrameType string

// Frame roles.
const (
	Primary   FrameType = "primary"
	Secondary FrameType = "secondary"
)

// CameraMatrix is a portal camera transform as reported by the primary
// avatar. A nil matrix means the portal is not visible.
type CameraMatrix []float64

// FrameTypeMessage announces a role to a frame.
type FrameTypeMessage struct {
	FrameType FrameType       `json:"frameType"`
	Spec      json.RawMessage `json:"spec"`
	// CameraMatrix is only attached for secondary frames, so a frame that
	// is just waking up learns its viewpoint together with its role.
	CameraMatrix CameraMatrix `json:"cameraMatrix,omitempty"`
}

// FrameTypeReceived acknowledges a FrameTypeMessage.
type FrameTypeReceived struct {
	FrameType FrameType `json:"frameType"`
}

// PortalOpen asks for a frame showing PortalURL. With a PortalID the
// existing frame is pointed at PortalURL instead.
type PortalOpen struct {
	PortalID  string `json:"portalId"`
	PortalURL string `json:"portalURL"`
}

// PortalOpened answers PortalOpen.
type PortalOpened struct {
	PortalID string `json:"portalId"`
}

// PortalClose asks to remove an owned frame.
type PortalClose struct {
	PortalID string `json:"portalId"`
}

// PortalSpec is one portal sightline of a PortalUpdate.
type PortalSpec struct {
	PortalID     string       `json:"portalId"`
	CameraMatrix CameraMatrix `json:"cameraMatrix"`
}

// PortalUpdate reports the portals the primary currently sees.
type PortalUpdate struct {
	PortalSpecs []PortalSpec `json:"portalSpecs"`
}

// PortalCameraUpdate forwards a sightline to the frame behind a portal.
type PortalCameraUpdate struct {
	CameraMatrix CameraMatrix `json:"cameraMatrix"`
}

// SyncRenderNow asks the primary for a composed render.
type SyncRenderNow struct {
	AcknowledgeReceipt bool `json:"acknowledgeReceipt"`
}

// PortalEnter asks to hand off to the frame behind a portal.
type PortalEnter struct {
	PortalID     string          `json:"portalId"`
	TransferData json.RawMessage `json:"transferData"`
}

// WorldEnter asks to hand off to the frame showing PortalURL.
type WorldEnter struct {
	PortalURL    string          `json:"portalURL"`
	TransferData json.RawMessage `json:"transferData"`
}

// Motion relays the joystick gesture.
type Motion struct {
	DX float64 `json:"dx"`
	DY float64 `json:"dy"`
}

// secondarySpec is the secondary frame description sent to a demoted primary.
// Frames expect a non-null value on demotion.
type secondarySpec struct {
	PortalURL string `json:"portalURL"`
}

// present reports whether a raw JSON value is set and not null.
func present(raw json.RawMessage) bool {
	return len(raw) > 0 && string(raw) != "null"
}
