package balancedq

// stack is a bounded LIFO store backed by a fixed array.
// It does no locking of its own. Queue guards it, so that a clear and the
// insert that caused it are observed as one unit.
type stack[T any] struct {
	slots []T
	top   int // Number of items held. slots[top-1] is the newest.
}

func newStack[T any](capacity int) *stack[T] {
	return &stack[T]{
		slots: make([]T, capacity),
	}
}

func (s *stack[T]) len() int {
	return s.top
}

func (s *stack[T]) capacity() int {
	return len(s.slots)
}

func (s *stack[T]) free() int {
	return len(s.slots) - s.top
}

func (s *stack[T]) full() bool {
	return s.top == len(s.slots)
}

// push returns false if the stack is full
func (s *stack[T]) push(v T) bool {
	if s.top == len(s.slots) {
		return false
	}
	s.slots[s.top] = v
	s.top++
	return true
}

// pop returns the newest item
func (s *stack[T]) pop() (T, bool) {
	var zero T
	if s.top == 0 {
		return zero, false
	}
	s.top--
	v := s.slots[s.top]
	s.slots[s.top] = zero // release the reference, frames are big
	return v, true
}

// clear drops everything, and returns the number of items dropped
func (s *stack[T]) clear() int {
	n := s.top
	clear(s.slots[:n])
	s.top = 0
	return n
}
