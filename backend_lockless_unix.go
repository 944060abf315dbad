//go:build unix

package slabpool

import "github.com/nmxmxh/slabpool/internal/backing"

func defaultLocklessBacking() backing.Allocator {
	return backing.NewMmap()
}
