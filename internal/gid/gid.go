// Package gid extracts the calling goroutine's runtime-assigned id so
// that mutex can recognize re-entrant locking by the same logical
// owner, and thread can recognize "the current thread" for
// PriorityInherit resolution.
//
// Go deliberately does not expose a goroutine id through any public
// API. This package parses it out of a runtime.Stack dump, the same
// trick used by goroutine-id-keyed caches and request-scoped state
// helpers elsewhere in the example pack (e.g.
// joeycumines-go-utilpkg/goroutineid). It is intentionally the only
// place in this module that does this; every other package treats the
// returned value as an opaque comparable ID.
package gid

import (
	"bytes"
	"runtime"
	"strconv"
)

// Current returns the calling goroutine's runtime id.
func Current() uint64 {
	buf := make([]byte, 64)
	n := runtime.Stack(buf, false)
	buf = buf[:n]

	// The first line looks like "goroutine 123 [running]:".
	const prefix = "goroutine "
	if !bytes.HasPrefix(buf, []byte(prefix)) {
		return 0
	}
	buf = buf[len(prefix):]
	idx := bytes.IndexByte(buf, ' ')
	if idx < 0 {
		return 0
	}
	id, err := strconv.ParseUint(string(buf[:idx]), 10, 64)
	if err != nil {
		return 0
	}
	return id
}
