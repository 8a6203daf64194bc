package portalurl

import (
	"net/url"
	"sort"
	"strings"
)

// param is one key/value pair of a query string. Query strings are kept as
// ordered lists because their order is part of a frame URL's identity.
type param struct {
	key, value string
}

type params []param

// parseParams decodes an application/x-www-form-urlencoded string without
// losing the order of the pairs. Pairs that fail to unescape are kept raw.
func parseParams(raw string) params {
	raw = strings.TrimPrefix(raw, "?")
	raw = strings.TrimPrefix(raw, "#")
	if raw == "" {
		return nil
	}
	var ps params
	for _, part := range strings.Split(raw, "&") {
		if part == "" {
			continue
		}
		key, value, _ := strings.Cut(part, "=")
		ps = append(ps, param{key: unescape(key), value: unescape(value)})
	}
	return ps
}

func unescape(s string) string {
	if u, err := url.QueryUnescape(s); err == nil {
		return u
	}
	return s
}

func (ps params) encode() string {
	if len(ps) == 0 {
		return ""
	}
	var b strings.Builder
	for i, p := range ps {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(url.QueryEscape(p.key))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(p.value))
	}
	return b.String()
}

// get returns the first value for key.
func (ps params) get(key string) (string, bool) {
	for _, p := range ps {
		if p.key == key {
			return p.value, true
		}
	}
	return "", false
}

// set replaces the first value for key and drops the others, or appends the
// pair when key is absent.
func (ps params) set(key, value string) params {
	out := make(params, 0, len(ps)+1)
	found := false
	for _, p := range ps {
		if p.key != key {
			out = append(out, p)
			continue
		}
		if !found {
			out = append(out, param{key: key, value: value})
			found = true
		}
	}
	if !found {
		out = append(out, param{key: key, value: value})
	}
	return out
}

func (ps params) del(key string) params {
	out := ps[:0:0]
	for _, p := range ps {
		if p.key != key {
			out = append(out, p)
		}
	}
	return out
}

// rank places "world" first, "q" second to last and "portal" last.
func rank(key string) int {
	switch key {
	case "world":
		return 0
	case "q":
		return 2
	case "portal":
		return 3
	default:
		return 1
	}
}

// canonicalOrder sorts a copy of ps into frame URL order. Duplicate keys keep
// their relative order.
func (ps params) canonicalOrder() params {
	out := append(params(nil), ps...)
	sort.SliceStable(out, func(i, j int) bool {
		ri, rj := rank(out[i].key), rank(out[j].key)
		if ri != rj {
			return ri < rj
		}
		return ri == 1 && out[i].key < out[j].key
	})
	return out
}

// sortedByKey is the order used to compare hash parameters as a set.
func (ps params) sortedByKey() params {
	out := append(params(nil), ps...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].key < out[j].key })
	return out
}
