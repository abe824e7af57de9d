package cas

import "sync"

// FailCounter tracks consecutive failed password attempts per username so
// the service can lock a principal after too many.
type FailCounter interface {
	Fail(username string) int
	Zero(username string)
	Count(username string) int
}

type memFailCounter struct {
	lock  sync.Mutex
	users map[string]int
}

var _ FailCounter = (*memFailCounter)(nil)

func NewFailCounter() FailCounter {
	return &memFailCounter{users: map[string]int{}}
}

func (mem *memFailCounter) Fail(username string) int {
	mem.lock.Lock()
	defer mem.lock.Unlock()
	mem.users[username]++
	return mem.users[username]
}

func (mem *memFailCounter) Zero(username string) {
	mem.lock.Lock()
	defer mem.lock.Unlock()
	delete(mem.users, username)
}

func (mem *memFailCounter) Count(username string) int {
	mem.lock.Lock()
	defer mem.lock.Unlock()
	return mem.users[username]
}
