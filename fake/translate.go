// File: fake/translate.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package fake

import (
	"fmt"
	"sync"

	"github.com/momentics/hioload-dma/api"
)

// TranslationService is a controllable translation/locking service. By
// default it maps identity; an offset simulates remapping and Bounce
// simulates transparent bounce-buffer redirection.
type TranslationService struct {
	mu sync.Mutex

	// Offset is added to every locked address.
	Offset uint32
	// Bounce marks every lock result as bounced.
	Bounce bool
	// FailLocks makes Lock return an error.
	FailLocks bool

	nextHandle uint64
	locks      map[uint64]uint32
	unlocks    int
}

// NewTranslationService creates an identity-mapping service.
func NewTranslationService() *TranslationService {
	return &TranslationService{locks: make(map[uint64]uint32)}
}

// Lock implements api.TranslationService.
func (t *TranslationService) Lock(bus uint32, size int, flags uint32) (api.LockResult, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.FailLocks {
		return api.LockResult{}, fmt.Errorf("fake translation: lock refused")
	}
	t.nextHandle++
	t.locks[t.nextHandle] = bus
	return api.LockResult{
		Physical: bus + t.Offset,
		Handle:   t.nextHandle,
		Bounced:  t.Bounce,
	}, nil
}

// Unlock implements api.TranslationService.
func (t *TranslationService) Unlock(handle uint64) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.unlocks++
	if _, ok := t.locks[handle]; !ok {
		return fmt.Errorf("fake translation: unknown handle %d", handle)
	}
	delete(t.locks, handle)
	return nil
}

// UnlockAttempts reports how many Unlock calls were made, valid or not.
func (t *TranslationService) UnlockAttempts() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.unlocks
}

// LockedRanges reports currently held locks, for leak assertions.
func (t *TranslationService) LockedRanges() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.locks)
}
