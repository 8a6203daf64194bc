package shell

import "errors"

var (
	// ErrResourceLimit is returned when opening a frame would exceed the frame cap.
	ErrResourceLimit = errors.New("frame limit reached")
	// ErrStaleAcknowledgement describes a frame-type acknowledgement for a
	// role the frame no longer holds. It is only logged.
	ErrStaleAcknowledgement = errors.New("stale frame-type acknowledgement")
	// ErrUnroutable is reported when a message targets a frame that is not registered.
	ErrUnroutable = errors.New("portal not found")
	// ErrNavigationMismatch is reported when a history navigation points at
	// a location no loaded frame shows. The host is asked to reload.
	ErrNavigationMismatch = errors.New("navigation does not match any frame")
	// ErrRedirected is returned by Start when the host was sent to the
	// canonical form of its location.
	ErrRedirected = errors.New("redirected to canonical location")
	// ErrCrossOrigin is returned when a history entry would change the origin.
	ErrCrossOrigin = errors.New("history entry must be same-origin")
	// ErrDisposed is returned by calls made after Dispose.
	ErrDisposed = errors.New("shell disposed")
	// ErrAlreadyBound is returned when attaching to a frame that already has
	// a live connection.
	ErrAlreadyBound = errors.New("frame already connected")
)
