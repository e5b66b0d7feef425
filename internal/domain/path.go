// Package domain holds the core, transport-agnostic types shared across the
// dispatching, load-balancing and streaming subsystems: destination names,
// weighted addresses, endpoints and the error taxonomy they raise.
package domain

import "strings"

// Path is an immutable, shareable destination name: a slash-delimited
// sequence of path elements used purely as an identifier. It is carried by
// reference through the pipeline (resolver -> router -> balancer -> endpoint).
type Path string

// Elements splits the path on '/', dropping empty leading/trailing segments.
func (p Path) Elements() []string {
	trimmed := strings.Trim(string(p), "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

// HasPrefix reports whether p starts with the given destination-name prefix,
// matched element-wise (so "/svc/a" is a prefix of "/svc/a/b" but not of
// "/svc/ab").
func (p Path) HasPrefix(prefix Path) bool {
	pe, pfe := p.Elements(), prefix.Elements()
	if len(pfe) > len(pe) {
		return false
	}
	for i, e := range pfe {
		if pe[i] != e {
			return false
		}
	}
	return true
}

func (p Path) String() string {
	return string(p)
}
