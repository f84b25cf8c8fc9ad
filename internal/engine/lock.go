package engine

import (
	"context"
	"fmt"
	"sync"
)

// taskLocks serializes work on a single task while leaving other tasks free.
type taskLocks struct {
	mu    sync.Mutex
	locks map[string]*taskLock
}

type taskLock struct {
	ch   chan struct{}
	refs int
}

func newTaskLocks() *taskLocks {
	return &taskLocks{locks: map[string]*taskLock{}}
}

// Lock blocks until the task is free or ctx is done. The returned func releases it.
func (l *taskLocks) Lock(ctx context.Context, taskID string) (func(), error) {
	l.mu.Lock()
	tl, ok := l.locks[taskID]
	if !ok {
		tl = &taskLock{ch: make(chan struct{}, 1)}
		l.locks[taskID] = tl
	}
	tl.refs++
	l.mu.Unlock()

	select {
	case tl.ch <- struct{}{}:
		var once sync.Once
		return func() {
			once.Do(func() {
				<-tl.ch
				l.release(taskID, tl)
			})
		}, nil
	case <-ctx.Done():
		l.release(taskID, tl)
		return nil, fmt.Errorf("%w: %s: %w", ErrTaskBusy, taskID, ctx.Err())
	}
}

func (l *taskLocks) release(taskID string, tl *taskLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	tl.refs--
	if tl.refs == 0 {
		delete(l.locks, taskID)
	}
}

func (l *taskLocks) held() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
