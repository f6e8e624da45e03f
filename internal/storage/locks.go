package storage

import (
	"sync"

	"github.com/cespare/xxhash/v2"
)

const lockStripes = 64

// keyLocks serializes engine and index updates per key without a global lock.
type keyLocks [lockStripes]sync.Mutex

func (l *keyLocks) lock(key string) func() {
	m := &l[xxhash.Sum64String(key)%lockStripes]
	m.Lock()
	return m.Unlock
}

// lockAll acquires every stripe in order and returns a func releasing them.
func (l *keyLocks) lockAll() func() {
	for i := range l {
		l[i].Lock()
	}
	return func() {
		for i := len(l) - 1; i >= 0; i-- {
			l[i].Unlock()
		}
	}
}
