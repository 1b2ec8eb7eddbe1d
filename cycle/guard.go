package cycle

import (
	"context"
	"fmt"

	"ruuvigate/models"

	"github.com/looplab/fsm"
	"go.uber.org/zap"
)

const (
	eventBeginStartup = "begin_startup"
	eventBeginFlush   = "begin_flush"
	eventCommit       = "commit"
	eventAbandon      = "abandon"
)

var statesByName = map[string]models.RecoveryState{
	models.StateNormal.String():      models.StateNormal,
	models.StatePreNetworkA.String(): models.StatePreNetworkA,
	models.StatePreNetworkB.String(): models.StatePreNetworkB,
}

// newGuard builds the machine that every recovery transition goes through.
// A network phase can only be entered from NORMAL and only left back to NORMAL.
func newGuard(initial models.RecoveryState, logger *zap.Logger) *fsm.FSM {
	normal := models.StateNormal.String()
	phaseA := models.StatePreNetworkA.String()
	phaseB := models.StatePreNetworkB.String()

	return fsm.NewFSM(
		initial.String(),
		fsm.Events{
			{Name: eventBeginStartup, Src: []string{normal}, Dst: phaseA},
			{Name: eventBeginFlush, Src: []string{normal}, Dst: phaseB},
			{Name: eventCommit, Src: []string{phaseA, phaseB}, Dst: normal},
			{Name: eventAbandon, Src: []string{phaseA, phaseB}, Dst: normal},
		},
		fsm.Callbacks{
			"enter_state": func(_ context.Context, e *fsm.Event) {
				logger.Info("Recovery state changed",
					zap.String("event", e.Event),
					zap.String("from", e.Src),
					zap.String("to", e.Dst))
			},
		},
	)
}

// transition fires event on the guard and mirrors the result into the checkpoint.
// The checkpoint is not saved here.
func (r *cycleRun) transition(ctx context.Context, event string) error {
	if err := r.guard.Event(ctx, event); err != nil {
		return &FatalError{
			Phase:     "recovery transition",
			Err:       fmt.Errorf("%s from %s: %w", event, r.guard.Current(), err),
			Immediate: true,
		}
	}
	r.cp.RecoveryState = statesByName[r.guard.Current()]
	return nil
}
