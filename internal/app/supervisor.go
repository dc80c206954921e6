package app

import (
	"context"
	"runtime/debug"
	"sync"

	"routined/pkg/logx"
)

// supervisor runs the app's auxiliary goroutines with names, panic
// recovery, and a single Wait for shutdown.
type supervisor struct {
	log logx.Logger
	wg  sync.WaitGroup
}

func newSupervisor(log logx.Logger) *supervisor {
	return &supervisor{log: log}
}

// Go starts fn under the supervisor. fn is expected to return when its
// context is done; errors are logged, not propagated.
func (s *supervisor) Go(ctx context.Context, name string, fn func(ctx context.Context) error) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				s.log.Error("panic in goroutine",
					logx.String("name", name),
					logx.Any("panic", r),
					logx.String("stack", string(debug.Stack())))
			}
		}()
		if err := fn(ctx); err != nil && ctx.Err() == nil {
			s.log.Warn("goroutine exited with error",
				logx.String("name", name), logx.Err(err))
		}
	}()
}

// Wait blocks until every supervised goroutine has returned.
func (s *supervisor) Wait() {
	s.wg.Wait()
}
