// Package notify provides a thread-safe multi-subscriber callback list.
package notify

import (
	"errors"
	"fmt"
	"sync"
)

// ErrClosed is the panic value raised when subscribing to a closed Fanout.
// A subscription that can never fire is a caller bug.
var ErrClosed = errors.New("notify: subscribe on closed fanout")

// Token identifies one subscription.
type Token uint64

// Handler receives published values. A returned error is reported to the
// publisher.
type Handler[T any] func(T) error

// SubscriberError reports the failure of one subscriber during PublishAll.
type SubscriberError struct {
	Token Token
	Err   error
}

func (e *SubscriberError) Error() string {
	return fmt.Sprintf("subscriber %d: %v", e.Token, e.Err)
}

func (e *SubscriberError) Unwrap() error {
	return e.Err
}

type subscription[T any] struct {
	token Token
	fn    Handler[T]
}

// Fanout delivers each published value to every current subscriber in
// subscription order. The zero value is ready to use.
type Fanout[T any] struct {
	mu     sync.Mutex
	subs   []subscription[T]
	next   Token
	closed bool
}

// Subscribe registers fn and returns its token. It panics with ErrClosed if
// the fanout has been closed.
func (f *Fanout[T]) Subscribe(fn Handler[T]) Token {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		panic(ErrClosed)
	}
	f.next++
	f.subs = append(f.subs, subscription[T]{token: f.next, fn: fn})
	return f.next
}

// Unsubscribe removes exactly the subscription identified by token. It
// reports whether the token was registered.
func (f *Fanout[T]) Unsubscribe(token Token) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	for i, s := range f.subs {
		if s.token == token {
			// Copy rather than shift in place so snapshots held by an
			// in-flight publish are unaffected.
			subs := make([]subscription[T], 0, len(f.subs)-1)
			subs = append(subs, f.subs[:i]...)
			f.subs = append(subs, f.subs[i+1:]...)
			return true
		}
	}
	return false
}

// Close unregisters every subscriber. Later Subscribe calls panic.
func (f *Fanout[T]) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subs = nil
	f.closed = true
}

// Len returns the number of current subscribers.
func (f *Fanout[T]) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}

func (f *Fanout[T]) snapshot() []subscription[T] {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.subs
}

// Publish invokes subscribers in order and stops at the first one that
// returns an error, which is returned.
func (f *Fanout[T]) Publish(v T) error {
	for _, s := range f.snapshot() {
		if err := s.fn(v); err != nil {
			return &SubscriberError{Token: s.token, Err: err}
		}
	}
	return nil
}

// PublishAll invokes every subscriber even when some fail. Returned errors
// and recovered panics are collected as *SubscriberError values.
func (f *Fanout[T]) PublishAll(v T) []error {
	var errs []error
	for _, s := range f.snapshot() {
		if err := invoke(s.fn, v); err != nil {
			errs = append(errs, &SubscriberError{Token: s.token, Err: err})
		}
	}
	return errs
}

func invoke[T any](fn Handler[T], v T) (err error) {
	defer func() {
		if r := recover(); r != nil {
			if e, ok := r.(error); ok {
				err = fmt.Errorf("panic: %w", e)
				return
			}
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn(v)
}
