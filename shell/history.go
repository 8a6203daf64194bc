package shell

import (
	"fmt"

	"github.com/liuxd6825/portalshell/portalurl"
)

type historyEntry struct {
	state HistoryState
	url   string
}

// SessionHistory mirrors the session history of the host page. Like a
// browser it refuses entries that would leave the page's origin, and it
// keeps the codec's location in sync with the address bar.
type SessionHistory struct {
	codec   *portalurl.Codec
	host    Host
	entries []historyEntry
	index   int
}

// NewSessionHistory returns a history whose single entry is the codec's
// current location.
func NewSessionHistory(codec *portalurl.Codec, host Host) *SessionHistory {
	return &SessionHistory{
		codec:   codec,
		host:    host,
		entries: []historyEntry{{url: codec.Location()}},
	}
}

// PushState adds an entry after the current one, dropping any forward entries.
func (h *SessionHistory) PushState(state HistoryState, url string) error {
	entry, err := h.entry(state, url)
	if err != nil {
		return err
	}
	if err := h.host.PushState(state, entry.url); err != nil {
		return err
	}
	h.entries = append(h.entries[:h.index+1], entry)
	h.index++
	return h.codec.SetLocation(entry.url)
}

// ReplaceState replaces the current entry.
func (h *SessionHistory) ReplaceState(state HistoryState, url string) error {
	entry, err := h.entry(state, url)
	if err != nil {
		return err
	}
	if err := h.host.ReplaceState(state, entry.url); err != nil {
		return err
	}
	h.entries[h.index] = entry
	return h.codec.SetLocation(entry.url)
}

// PopState records a back/forward navigation of the host page to location.
// The state the host reported wins over the one recorded here.
func (h *SessionHistory) PopState(state HistoryState, location string) error {
	entry, err := h.entry(state, location)
	if err != nil {
		return err
	}
	if i := h.find(entry); i >= 0 {
		h.index = i
	} else {
		// the page went somewhere this shell did not push, e.g. an entry
		// from before a reload
		h.entries = append(h.entries[:h.index+1], entry)
		h.index++
	}
	return h.codec.SetLocation(entry.url)
}

// Location returns the URL of the current entry.
func (h *SessionHistory) Location() string {
	return h.entries[h.index].url
}

// Len returns the number of entries.
func (h *SessionHistory) Len() int {
	return len(h.entries)
}

func (h *SessionHistory) entry(state HistoryState, rawURL string) (historyEntry, error) {
	resolved, err := h.codec.Resolve(rawURL)
	if err != nil {
		return historyEntry{}, err
	}
	if !h.codec.SameOrigin(resolved) {
		return historyEntry{}, fmt.Errorf("%w: %s is not on %s", ErrCrossOrigin, resolved, h.codec.Origin())
	}
	return historyEntry{state: state, url: resolved}, nil
}

// find returns the entry closest to the current one that matches e.
func (h *SessionHistory) find(e historyEntry) int {
	for d := 0; d < len(h.entries); d++ {
		for _, i := range [2]int{h.index - d, h.index + d} {
			if i < 0 || i >= len(h.entries) {
				continue
			}
			c := h.entries[i]
			if c.url == e.url && (e.state.PortalID == "" || c.state.PortalID == e.state.PortalID) {
				return i
			}
		}
	}
	return -1
}
