package usecase

import (
	"context"
	"time"

	"go.uber.org/zap"
)

type compensation struct {
	name string
	fn   func(ctx context.Context) error
}

// cleanupStack releases external resources acquired during one request, in
// reverse order. Failures are logged and never replace the request outcome.
type cleanupStack struct {
	steps   []compensation
	timeout time.Duration
}

func (s *cleanupStack) push(name string, fn func(ctx context.Context) error) {
	s.steps = append(s.steps, compensation{name: name, fn: fn})
}

// run executes every step even when ctx is already cancelled or expired.
func (s *cleanupStack) run(ctx context.Context, logger *zap.Logger) {
	base := context.WithoutCancel(ctx)
	for i := len(s.steps) - 1; i >= 0; i-- {
		step := s.steps[i]
		stepCtx, cancel := context.WithTimeout(base, s.timeout)
		if err := step.fn(stepCtx); err != nil {
			logger.Warn("cleanup step failed", zap.String("step", step.name), zap.Error(err))
		} else {
			logger.Debug("cleanup step completed", zap.String("step", step.name))
		}
		cancel()
	}
	s.steps = nil
}
