package services

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// MultiNotifier fans a message out to every sink and fails only if all of them fail
type MultiNotifier struct {
	sinks  []Notifier
	logger *zap.Logger
}

func NewMultiNotifier(logger *zap.Logger, sinks ...Notifier) *MultiNotifier {
	return &MultiNotifier{sinks: sinks, logger: logger}
}

func (m *MultiNotifier) Notify(ctx context.Context, text string) error {
	if len(m.sinks) == 0 {
		return errors.New("no notification sinks configured")
	}
	var errs []error
	for _, s := range m.sinks {
		if err := s.Notify(ctx, text); err != nil {
			m.logger.Warn("Notification sink failed", zap.String("sink", fmt.Sprintf("%T", s)), zap.Error(err))
			errs = append(errs, err)
		}
	}
	if len(errs) == len(m.sinks) {
		return errors.Join(errs...)
	}
	return nil
}
