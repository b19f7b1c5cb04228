// Copyright (c) 2026 BVK Chaitanya

package ctxutil

import (
	"context"
	"os"
	"sync"
)

// CloseGroup runs goroutines that share a common lifetime. Close cancels the
// shared context with os.ErrClosed and waits for all goroutines to return.
type CloseGroup struct {
	closeCtx  context.Context
	causeFunc context.CancelCauseFunc

	wg sync.WaitGroup

	once sync.Once
}

func (cg *CloseGroup) init() {
	cg.closeCtx, cg.causeFunc = context.WithCancelCause(context.Background())
}

// WithParent ties the group lifetime to a parent context. It must be called
// before any other method.
func (cg *CloseGroup) WithParent(parent context.Context) {
	cg.once.Do(func() {
		cg.closeCtx, cg.causeFunc = context.WithCancelCause(parent)
	})
}

func (cg *CloseGroup) Close() {
	cg.once.Do(cg.init)
	cg.causeFunc(os.ErrClosed)
	cg.wg.Wait()
}

// Wait blocks till all goroutines are complete without canceling them.
func (cg *CloseGroup) Wait() {
	cg.wg.Wait()
}

func (cg *CloseGroup) Context() context.Context {
	cg.once.Do(cg.init)
	return cg.closeCtx
}

func (cg *CloseGroup) Go(f func(ctx context.Context)) {
	cg.once.Do(cg.init)

	cg.wg.Add(1)
	go func() {
		defer cg.wg.Done()
		f(cg.closeCtx)
	}()
}
