package services

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Suspend modes
const (
	SuspendSleep   = "sleep"   // stay resident, wait on a timer
	SuspendRTCWake = "rtcwake" // arm the RTC and suspend the board
	SuspendOneShot = "oneshot" // exit; an external timer starts the next cycle
)

// Suspender waits out the remainder of a duty period
type Suspender struct {
	mode    string
	rtcMode string
	run     CommandRunner
	logger  *zap.Logger
}

func NewSuspender(mode, rtcMode string, run CommandRunner, logger *zap.Logger) (*Suspender, error) {
	switch mode {
	case SuspendSleep, SuspendRTCWake, SuspendOneShot:
	default:
		return nil, fmt.Errorf("unknown suspend mode %q", mode)
	}
	if run == nil {
		run = ShellRunner
	}
	if rtcMode == "" {
		rtcMode = "mem"
	}
	return &Suspender{mode: mode, rtcMode: rtcMode, run: run, logger: logger}, nil
}

// Resident reports whether the process keeps running between cycles
func (s *Suspender) Resident() bool {
	return s.mode != SuspendOneShot
}

// Suspend returns once d has elapsed or ctx is cancelled
func (s *Suspender) Suspend(ctx context.Context, d time.Duration) error {
	s.logger.Info("Suspending", zap.String("mode", s.mode), zap.Duration("duration", d))

	switch s.mode {
	case SuspendOneShot:
		return nil
	case SuspendRTCWake:
		secs := int(d.Round(time.Second) / time.Second)
		if secs < 1 {
			return nil
		}
		// rtcwake blocks until the board resumes
		if err := s.run(ctx, fmt.Sprintf("rtcwake -m %s -s %d", s.rtcMode, secs)); err != nil {
			return fmt.Errorf("rtcwake: %w", err)
		}
		return nil
	default:
		if !sleepCtx(ctx, d) {
			return ctx.Err()
		}
		return nil
	}
}
