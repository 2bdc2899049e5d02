package service

import "sync"

// vacancyLocks serializes mutating operations per vacancy so two callers
// cannot double-generate sets past the existence check or race each other
// into assigning different centers.
type vacancyLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// acquire locks the mutex for vacancyID and returns its release function.
func (v *vacancyLocks) acquire(vacancyID string) func() {
	v.mu.Lock()
	if v.locks == nil {
		v.locks = make(map[string]*sync.Mutex)
	}
	lock, ok := v.locks[vacancyID]
	if !ok {
		lock = &sync.Mutex{}
		v.locks[vacancyID] = lock
	}
	v.mu.Unlock()

	lock.Lock()
	return lock.Unlock
}
