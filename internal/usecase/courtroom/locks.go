package courtroom

import (
	"sync"

	"github.com/google/uuid"
)

// coupleLocks - мьютекс на пару. Все мутации сессии одной пары
// выполняются строго по очереди, разные пары не мешают друг другу.
type coupleLocks struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*coupleLock
}

type coupleLock struct {
	mu   sync.Mutex
	refs int
}

func newCoupleLocks() *coupleLocks {
	return &coupleLocks{locks: make(map[uuid.UUID]*coupleLock)}
}

// Lock захватывает мьютекс пары и возвращает функцию освобождения.
func (l *coupleLocks) Lock(coupleID uuid.UUID) func() {
	l.mu.Lock()
	lock, ok := l.locks[coupleID]
	if !ok {
		lock = &coupleLock{}
		l.locks[coupleID] = lock
	}
	lock.refs++
	l.mu.Unlock()

	lock.mu.Lock()
	return func() {
		lock.mu.Unlock()

		l.mu.Lock()
		lock.refs--
		if lock.refs == 0 {
			delete(l.locks, coupleID)
		}
		l.mu.Unlock()
	}
}
