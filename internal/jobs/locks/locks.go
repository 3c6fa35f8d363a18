package locks

import (
	"context"
	"sync"
	"time"
)

// Locker grants exclusive, non-blocking ownership of a key. The returned release
// func is safe to call more than once.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (release func(), ok bool, err error)
}

func ProcessKey(fileID string) string { return "process:" + fileID }

func TranscodeKey(fileID, quality string) string { return "transcode:" + fileID + ":" + quality }

// KeyedMutex is an in-process Locker. ttl is ignored; holders always release.
type KeyedMutex struct {
	mu   sync.Mutex
	held map[string]struct{}
}

func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{held: map[string]struct{}{}}
}

func (k *KeyedMutex) TryLock(_ context.Context, key string, _ time.Duration) (func(), bool, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if _, busy := k.held[key]; busy {
		return func() {}, false, nil
	}
	k.held[key] = struct{}{}
	var once sync.Once
	return func() {
		once.Do(func() {
			k.mu.Lock()
			delete(k.held, key)
			k.mu.Unlock()
		})
	}, true, nil
}
