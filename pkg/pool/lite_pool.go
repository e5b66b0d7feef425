// Package pool is a strongly typed wrapper around sync.Pool with optional
// Reset() support. It eliminates the need for unsafe type assertions
// (interface{} casts). Objects returned from Get() are guaranteed to be the
// correct type. If the pooled type implements Resettable, it is zeroed
// before being returned to the pool via Put().
//
// Adapted from the teacher's generic lite pool; tcplb uses it to back
// stream.BufferPool, one process-wide pool of byte buffers shared by every
// listener.
package pool

import "sync"

type Resettable interface {
	Reset()
}

type Pool[T any] struct {
	pool sync.Pool
}

func NewLitePool[T any](newFn func() T) *Pool[T] {
	if newFn == nil {
		panic("litepool: constructor must not be nil")
	}
	test := newFn()
	if any(test) == nil {
		panic("litepool: constructor returned nil")
	}

	return &Pool[T]{
		pool: sync.Pool{
			New: func() any {
				v := newFn()
				if any(v) == nil {
					panic("litepool: constructor returned nil")
				}
				return v
			},
		},
	}
}

func (p *Pool[T]) Get() T {
	//nolint:forcetypeassert // safe due to validated New
	return p.pool.Get().(T)
}

func (p *Pool[T]) Put(v T) {
	if r, ok := any(v).(Resettable); ok {
		r.Reset()
	}
	p.pool.Put(v)
}
