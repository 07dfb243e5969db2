package ftplib

import "sync"

// VMap is a thread-safe generic map with read-write mutex protection. Used
// for the worker table, so the supervisor can publish state transitions
// while display code reads a consistent snapshot concurrently.
type VMap[kT comparable, vT any] struct {
	kv map[kT]vT
	mu sync.RWMutex
}

// NewVMap creates and returns a new empty VMap instance.
func NewVMap[kT comparable, vT any]() VMap[kT, vT] {
	return VMap[kT, vT]{kv: make(map[kT]vT)}
}

// Make (re)initializes the internal map. Call this before first use on a
// zero-value VMap, or to reset one.
func (vm *VMap[kT, vT]) Make() {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	vm.kv = make(map[kT]vT)
}

// Set stores a value for the given key with write lock protection.
func (vm *VMap[kT, vT]) Set(key kT, val vT) {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	vm.kv[key] = val
}

// Get retrieves a value for the given key with read lock protection.
func (vm *VMap[kT, vT]) Get(key kT) (val vT) {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	val = vm.kv[key]
	return
}

// Dump returns all keys and values as separate slices with write lock
// protection so a reader never observes a map being resized mid-iteration.
func (vm *VMap[kT, vT]) Dump() (keys []kT, vals []vT) {
	vm.mu.Lock()
	defer vm.mu.Unlock()

	n := len(vm.kv)
	keys = make([]kT, n)
	vals = make([]vT, n)

	var i int
	for k, v := range vm.kv {
		keys[i] = k
		vals[i] = v
		i++
	}
	return
}

// Range iterates over all key-value pairs with read lock protection. If f
// returns false, iteration stops early. f must not modify the map.
func (vm *VMap[kT, vT]) Range(f func(key kT, val vT) bool) {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	for k, v := range vm.kv {
		if !f(k, v) {
			return
		}
	}
}
