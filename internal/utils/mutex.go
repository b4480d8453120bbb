package utils

import "sync"

var mu sync.Mutex

func ExecuteWithMutex(fn func()) {
	mu.Lock()
	defer mu.Unlock()
	fn()
}

// KeyedMutex serializes work per key; different keys never block each other.
type KeyedMutex struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func (k *KeyedMutex) get(key string) *sync.Mutex {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.locks == nil {
		k.locks = make(map[string]*sync.Mutex)
	}
	l, ok := k.locks[key]
	if !ok {
		l = &sync.Mutex{}
		k.locks[key] = l
	}
	return l
}

func (k *KeyedMutex) Execute(key string, fn func() error) error {
	l := k.get(key)
	l.Lock()
	defer l.Unlock()
	return fn()
}
