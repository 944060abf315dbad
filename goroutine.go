package slabpool

import (
	"bytes"
	"runtime"
	"strconv"
)

// goroutineID extracts the calling goroutine's id by parsing the header
// line of runtime.Stack's output. Go deliberately exposes no public
// thread-local-storage API, so the zoned arena's "one slab list per
// thread" requirement (spec.md §4.5/§5) is approximated here with "one
// slab list per goroutine" using the same id-scraping trick long used by
// goroutine-local-storage packages (e.g. jtolds/gls, petermattis/goid).
// It is not on any hot path: zoneFor calls it once per operation and then
// does a single map lookup under the arena's mutex.
func goroutineID() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	line := buf[:n]
	const prefix = "goroutine "
	if i := bytes.Index(line, []byte(prefix)); i >= 0 {
		line = line[i+len(prefix):]
	}
	if sp := bytes.IndexByte(line, ' '); sp >= 0 {
		line = line[:sp]
	}
	id, err := strconv.ParseUint(string(line), 10, 64)
	if err != nil {
		return 0
	}
	return id
}
