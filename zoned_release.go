//go:build !slabpool_debug

package slabpool

// checkZoneOwnership is a no-op in release builds: a cross-thread release
// in the zoned arena is undefined behavior per spec.md §7, not a checked
// error.
func checkZoneOwnership(foundInCallerZone bool) {}
