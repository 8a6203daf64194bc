// Package portalurl converts between the three URL forms a portal shell deals
// with: portal URLs (what a world is, shown in the address bar), frame URLs
// (a portal URL loaded into a specific frame, carrying its portal id) and
// shell URLs (a same-origin address bar entry for a cross-origin portal).
//
// Frame URLs are normalized so that plain string comparison is meaningful:
// the default world and the index document are elided and the query
// parameters are put into a canonical order.
package portalurl

import (
	"fmt"
	"net/url"
	"strings"
)

const (
	// DefaultWorld is the world name that is left out of normalized URLs.
	DefaultWorld = "default"
	// IndexDocument is the file name that is stripped from normalized paths.
	IndexDocument = "index.html"

	// PortalParam carries the portal id of a frame URL.
	PortalParam = "portal"
	// CanonicalParam carries the real portal origin and path in a shell URL.
	CanonicalParam = "canonical"
	worldParam     = "world"
)

// Codec encodes and decodes URLs relative to the location of the shell page.
// It is not safe for concurrent use; every shell owns its own Codec.
type Codec struct {
	DefaultWorld  string
	IndexDocument string

	location *url.URL
}

// NewCodec returns a Codec for a shell loaded at location. Empty defaultWorld
// or indexDocument fall back to DefaultWorld and IndexDocument.
func NewCodec(location, defaultWorld, indexDocument string) (*Codec, error) {
	if defaultWorld == "" {
		defaultWorld = DefaultWorld
	}
	if indexDocument == "" {
		indexDocument = IndexDocument
	}
	c := &Codec{DefaultWorld: defaultWorld, IndexDocument: indexDocument}
	if err := c.SetLocation(location); err != nil {
		return nil, err
	}
	return c, nil
}

// SetLocation changes the address relative URLs are resolved against.
func (c *Codec) SetLocation(location string) error {
	u, err := url.Parse(location)
	if err != nil {
		return fmt.Errorf("invalid shell location %q: %w", location, err)
	}
	if !u.IsAbs() || u.Host == "" {
		return fmt.Errorf("shell location %q must be an absolute URL", location)
	}
	c.location = normalize(u)
	return nil
}

// Location returns the current shell location.
func (c *Codec) Location() string {
	return c.location.String()
}

// Origin returns scheme://host of the shell location.
func (c *Codec) Origin() string {
	return origin(c.location)
}

// SameOrigin reports whether rawURL, resolved against the shell location,
// has the shell's origin.
func (c *Codec) SameOrigin(rawURL string) bool {
	u, err := c.resolve(rawURL)
	if err != nil {
		return false
	}
	return origin(u) == c.Origin()
}

// Resolve returns rawURL resolved against the shell location.
func (c *Codec) Resolve(rawURL string) (string, error) {
	u, err := c.resolve(rawURL)
	if err != nil {
		return "", err
	}
	return u.String(), nil
}

// FrameURL returns the normalized URL for loading portalURL into the frame
// with the given portal id.
func (c *Codec) FrameURL(portalURL, portalID string) (string, error) {
	u, err := c.resolve(portalURL)
	if err != nil {
		return "", err
	}
	ps := parseParams(u.RawQuery).set(PortalParam, portalID)
	ps = c.elideDefaults(u, ps)
	u.RawQuery = ps.canonicalOrder().encode()
	return u.String(), nil
}

// PortalURL strips the frame specific parts from frameURL.
func (c *Codec) PortalURL(frameURL string) (string, error) {
	u, err := c.resolve(frameURL)
	if err != nil {
		return "", err
	}
	ps := parseParams(u.RawQuery).del(PortalParam)
	u.RawQuery = c.elideDefaults(u, ps).encode()
	return u.String(), nil
}

// ShellURL returns a same-origin address for portalURL: the shell page
// carrying the portal's query, its hash and the portal's origin and path in
// the canonical parameter.
func (c *Codec) ShellURL(portalURL string) (string, error) {
	u, err := c.resolve(portalURL)
	if err != nil {
		return "", err
	}
	shell := *c.location
	shell.User = nil
	ps := parseParams(u.RawQuery)
	shell.Fragment, shell.RawFragment = u.Fragment, u.RawFragment

	base := *u
	base.RawQuery, base.ForceQuery = "", false
	base.Fragment, base.RawFragment = "", ""
	shell.RawQuery = ps.set(CanonicalParam, base.String()).encode()
	shell.ForceQuery = false
	return shell.String(), nil
}

// Canonical returns the real destination of a shell URL. URLs without a
// canonical parameter are returned unchanged.
func (c *Codec) Canonical(shellURL string) (string, error) {
	u, err := url.Parse(shellURL)
	if err != nil {
		return "", fmt.Errorf("invalid shell URL %q: %w", shellURL, err)
	}
	ps := parseParams(u.RawQuery)
	canonical, ok := ps.get(CanonicalParam)
	if !ok || canonical == "" {
		return shellURL, nil
	}
	dest, err := url.Parse(canonical)
	if err != nil || !dest.IsAbs() {
		return "", fmt.Errorf("invalid canonical URL %q", canonical)
	}
	dest = normalize(dest)
	dest.RawQuery, dest.ForceQuery = ps.del(CanonicalParam).encode(), false
	dest.Fragment, dest.RawFragment = u.Fragment, u.RawFragment
	return dest.String(), nil
}

// Title is the document title shown for rawURL: the path and query when it
// is on the shell's origin, otherwise everything after the scheme.
func (c *Codec) Title(rawURL string) string {
	if prefix := c.Origin() + "/"; strings.HasPrefix(rawURL, prefix) {
		return rawURL[len(prefix):]
	}
	if i := strings.Index(rawURL, "://"); i >= 0 {
		return rawURL[i+3:]
	}
	return rawURL
}

// Match reports whether the frame loaded from frameSrc shows portalURL,
// which may be a partial URL such as "?world=portal1". Matching is exact
// after normalization, with these relaxations: empty "portal" and "anchor"
// values match anything, "debug" values are ignored, and hash parameters
// are compared as a set.
func (c *Codec) Match(frameSrc, portalURL string) bool {
	want, err := c.FrameURL(portalURL, "")
	if err != nil {
		return false
	}
	if frameSrc == want {
		return true
	}
	wu, err := url.Parse(want)
	if err != nil {
		return false
	}
	fu, err := url.Parse(frameSrc)
	if err != nil {
		return false
	}
	fu = normalize(fu)
	if origin(fu) != origin(wu) || fu.EscapedPath() != wu.EscapedPath() {
		return false
	}

	frameParams := parseParams(fu.RawQuery)
	for _, p := range parseParams(wu.RawQuery) {
		frameValue, present := frameParams.get(p.key)
		frameParams = frameParams.del(p.key)
		switch {
		case (p.key == PortalParam || p.key == "anchor") && (p.value == "" || frameValue == ""):
			continue
		case p.key == "debug":
			continue
		case !present || frameValue != p.value:
			return false
		}
	}
	if len(frameParams) > 0 {
		return false
	}

	return parseParams(wu.EscapedFragment()).sortedByKey().encode() ==
		parseParams(fu.EscapedFragment()).sortedByKey().encode()
}

func (c *Codec) resolve(rawURL string) (*url.URL, error) {
	ref, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL %q: %w", rawURL, err)
	}
	return normalize(c.location.ResolveReference(ref)), nil
}

// elideDefaults drops world=<default world> and a trailing index document.
func (c *Codec) elideDefaults(u *url.URL, ps params) params {
	if world, _ := ps.get(worldParam); world == c.DefaultWorld {
		ps = ps.del(worldParam)
	}
	if strings.HasSuffix(u.Path, "/"+c.IndexDocument) {
		u.Path = strings.TrimSuffix(u.Path, c.IndexDocument)
		u.RawPath = ""
	}
	u.ForceQuery = false
	return ps
}

func origin(u *url.URL) string {
	return u.Scheme + "://" + u.Host
}

var defaultPorts = map[string]string{"http": "80", "https": "443", "ws": "80", "wss": "443"}

// normalize lowercases the host, drops default ports and gives hierarchical
// URLs at least a "/" path, the way browsers serialize them.
func normalize(u *url.URL) *url.URL {
	n := *u
	n.Host = strings.ToLower(n.Host)
	if port := n.Port(); port != "" && defaultPorts[n.Scheme] == port {
		n.Host = strings.TrimSuffix(n.Host, ":"+port)
	}
	if n.Host != "" && n.Path == "" {
		n.Path = "/"
		n.RawPath = ""
	}
	return &n
}
