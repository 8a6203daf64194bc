// Package event implements a small publish/subscribe system used to report
// shell lifecycle changes (frames opened and closed, hand-offs, forced
// renders) to interested parties outside the shell's event loop.
package event

// Type represents the different event types emitted by a shell.
type Type string

// List of all event types.
const (
	FrameOpened    Type = "frameOpened"
	FrameClosed    Type = "frameClosed"
	Activated      Type = "activated"
	FreezeReleased Type = "freezeReleased"
	RenderForced   Type = "renderForced"
	Disposed       Type = "disposed"
)

// Event is the emitted object sent to all subscribers of its type.
// The subscriber should call its Done method when finished processing
// to notify the emitter, though this is not required for all events.
type Event struct {
	Type Type
	Data interface{}
	Done func()
}

// FrameData is the Data of FrameOpened and FrameClosed events.
type FrameData struct {
	ShellID  string
	PortalID string
	Src      string
}

// ActivationData is the Data of Activated and FreezeReleased events.
type ActivationData struct {
	ShellID  string
	From, To string
	TimedOut bool
}

// RenderData is the Data of RenderForced events.
type RenderData struct {
	ShellID  string
	PortalID string
	TimedOut bool
}
