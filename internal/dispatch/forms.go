package dispatch

import "sync"

// FormKey identifies one conversation: the surface it runs on and the
// acting user. Two surfaces never share form state even for the same user.
type FormKey struct {
	Surface int64
	User    int64
}

// FormState is one in-progress conversation. Name encodes the step
// ("product:price"); Data accumulates the answers collected so far.
type FormState struct {
	Name string
	Data map[string]string
}

// Advance moves the conversation to the next step in place.
func (s *FormState) Advance(name string) { s.Name = name }

// FormStore holds all in-flight conversation states in memory. Worker
// restarts drop them, which matches the conversational model: a half-filled
// form is not durable data.
type FormStore struct {
	mu     sync.Mutex
	states map[FormKey]*FormState
}

// NewFormStore builds an empty FormStore.
func NewFormStore() *FormStore {
	return &FormStore{states: make(map[FormKey]*FormState)}
}

// Get returns the active state for key, or nil.
func (f *FormStore) Get(key FormKey) *FormState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.states[key]
}

// Start replaces key's state with a fresh one named name.
func (f *FormStore) Start(key FormKey, name string) *FormState {
	f.mu.Lock()
	defer f.mu.Unlock()
	st := &FormState{Name: name, Data: make(map[string]string)}
	f.states[key] = st
	return st
}

// Clear drops key's state.
func (f *FormStore) Clear(key FormKey) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.states, key)
}

// Len reports how many conversations are in flight.
func (f *FormStore) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.states)
}
