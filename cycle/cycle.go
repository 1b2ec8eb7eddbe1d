package cycle

import (
	"context"
	"fmt"
	"time"

	"ruuvigate/models"
	"ruuvigate/services"

	"github.com/google/uuid"
	"github.com/looplab/fsm"
	"go.uber.org/zap"
)

// CheckpointStore is the subset of storage.CheckpointStore the cycle needs
type CheckpointStore interface {
	Load() models.Checkpoint
	Save(models.Checkpoint) error
}

type Collector interface {
	Collect(ctx context.Context, registry []models.DeviceID, onMeasurement func(models.Measurement)) *models.ScanCycleStatus
}

type Recorder interface {
	Record(m models.Measurement, battery models.BatterySnapshot) error
}

type Flusher interface {
	FlushAll(ctx context.Context) models.FlushReport
}

// FlusherFactory connects the remote document sink once the link is up.
// The returned close func releases the sink.
type FlusherFactory func(ctx context.Context) (Flusher, func() error, error)

type Network interface {
	BringUp(ctx context.Context) error
	TearDown(ctx context.Context) error
	PowerOff() error
	CurrentTime(ctx context.Context) (time.Time, error)
}

type Clock interface {
	Set(t time.Time) error
}

type Battery interface {
	Read(ctx context.Context) (models.BatterySnapshot, error)
}

type Journal interface {
	Append(msg string, fields ...zap.Field)
	Error(msg string, fields ...zap.Field)
	Entries() ([]string, error)
	Clear() error
}

type Metrics interface {
	ObserveCheckpoint(models.Checkpoint)
	ObserveBattery(models.BatterySnapshot)
	ObserveScan(*models.ScanCycleStatus)
	ObserveFlush(models.FlushReport, time.Time)
	ObserveCycle(time.Duration, time.Time)
	Write() error
}

type StatusPublisher interface {
	Publish(ctx context.Context, st services.GatewayStatus) error
}

// Config holds the duty-cycle parameters
type Config struct {
	Registry            []models.DeviceID
	FlushThreshold      uint32
	TargetPeriod        time.Duration
	MaxRecoveryAttempts uint32 // 0 disables the budget
	RestartGrace        time.Duration
	WorkerTimeout       time.Duration
	NetworkTimeout      time.Duration // bounds bring-up and teardown; defaults to WorkerTimeout
	NotifyAttempts      int
	NotifyRetryDelay    time.Duration
}

// Deps are the collaborators of one orchestrator. Metrics and Mirror are optional.
type Deps struct {
	Store     CheckpointStore
	Collector Collector
	Recorder  Recorder
	Connect   FlusherFactory
	Network   Network
	Clock     Clock
	Notifier  services.Notifier
	Battery   Battery
	Journal   Journal
	Reporter  *services.Reporter
	Metrics   Metrics
	Mirror    StatusPublisher
	Logger    *zap.Logger
	Now       func() time.Time
}

// Result describes one finished duty cycle
type Result struct {
	Sleep      time.Duration
	Checkpoint models.Checkpoint
	Report     *models.FlushReport
	Scan       *models.ScanCycleStatus
}

// FatalError ends the process. With Immediate unset the caller waits Grace
// before exiting so the radio settles; the supervisor restarts the process
// and the persisted recovery state resumes the failed phase.
type FatalError struct {
	Phase     string
	Err       error
	Grace     time.Duration
	Immediate bool
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("%s: %v", e.Phase, e.Err)
}

func (e *FatalError) Unwrap() error {
	return e.Err
}

// Orchestrator sequences collection and the two network phases across one wake
type Orchestrator struct {
	cfg  Config
	deps Deps
}

func New(cfg Config, deps Deps) *Orchestrator {
	if cfg.WorkerTimeout <= 0 {
		cfg.WorkerTimeout = 30 * time.Second
	}
	if cfg.NetworkTimeout <= 0 {
		cfg.NetworkTimeout = cfg.WorkerTimeout
	}
	if cfg.NotifyAttempts < 1 {
		cfg.NotifyAttempts = 3
	}
	if cfg.FlushThreshold == 0 {
		cfg.FlushThreshold = 1
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Reporter == nil {
		deps.Reporter = services.NewReporter("", 0)
	}
	return &Orchestrator{cfg: cfg, deps: deps}
}

// cycleRun is the state of a single Run call
type cycleRun struct {
	*Orchestrator

	logger  *zap.Logger
	guard   *fsm.FSM
	cp      models.Checkpoint
	start   time.Time
	battery *models.BatterySnapshot
	result  Result
}

// Run executes one duty cycle and returns how long to suspend before the next.
// A *FatalError means the process must exit instead of suspending.
func (o *Orchestrator) Run(ctx context.Context) (Result, error) {
	logger := o.deps.Logger.With(zap.String("cycle_id", uuid.NewString()))
	cp := o.deps.Store.Load()

	r := &cycleRun{
		Orchestrator: o,
		logger:       logger,
		guard:        newGuard(cp.RecoveryState, logger),
		cp:           cp,
		start:        o.deps.Now(),
	}

	logger.Info("Duty cycle started",
		zap.Uint32("boot_count", cp.BootCount),
		zap.String("recovery_state", cp.RecoveryState.String()),
		zap.Bool("first_boot", cp.FirstBoot),
		zap.Bool("error_flag", cp.ErrorFlag))
	r.journal(fmt.Sprintf("Cycle start: state %s, boot count %d", cp.RecoveryState, cp.BootCount))

	if err := r.sequence(ctx); err != nil {
		logger.Error("Duty cycle aborted", zap.Error(err))
		return r.result, err
	}
	return r.finish()
}

func (r *cycleRun) sequence(ctx context.Context) error {
	switch r.cp.RecoveryState {
	case models.StatePreNetworkB:
		r.journal("Resuming upload phase")
		proceed, err := r.resume(ctx)
		if err != nil {
			return err
		}
		if proceed {
			return r.flushPhase(ctx, true)
		}
		return nil

	case models.StatePreNetworkA:
		r.journal("Resuming startup phase")
		proceed, err := r.resume(ctx)
		if err != nil {
			return err
		}
		if proceed {
			if err := r.startupPhase(ctx, true); err != nil {
				return err
			}
		}

	default:
		if r.cp.FirstBoot {
			if err := r.startupPhase(ctx, false); err != nil {
				return err
			}
		}
	}

	if err := r.collectPhase(ctx); err != nil {
		return err
	}
	if r.cp.BootCount >= r.cfg.FlushThreshold {
		return r.flushPhase(ctx, false)
	}
	return nil
}

// resume charges one attempt against the recovery budget, or abandons the
// interrupted phase once the budget is spent. It reports whether to retry the phase.
func (r *cycleRun) resume(ctx context.Context) (bool, error) {
	limit := r.cfg.MaxRecoveryAttempts
	if limit > 0 && r.cp.RecoveryAttempts >= limit {
		phase := r.cp.RecoveryState
		r.logger.Error("Recovery budget exhausted, abandoning phase",
			zap.String("phase", phase.String()),
			zap.Uint32("attempts", r.cp.RecoveryAttempts))
		r.journal(fmt.Sprintf("Abandoning %s after %d attempts", phase, r.cp.RecoveryAttempts))

		if err := r.transition(ctx, eventAbandon); err != nil {
			return false, err
		}
		r.cp.ErrorFlag = true
		r.cp.RecoveryAttempts = 0
		if phase == models.StatePreNetworkA {
			r.cp.FirstBoot = false
		}
		return false, r.save()
	}

	r.cp.RecoveryAttempts++
	return true, r.save()
}

// startupPhase announces a freshly provisioned gateway
func (r *cycleRun) startupPhase(ctx context.Context, resumed bool) error {
	if !resumed {
		r.journal("First boot operations")
		if err := r.enter(ctx, eventBeginStartup); err != nil {
			return err
		}
	}

	if err := r.bringUp(ctx, "startup"); err != nil {
		return err
	}
	r.syncClock(ctx)
	r.readBattery(ctx)

	msg := r.deps.Reporter.StartupMessage(r.deps.Now(), r.battery, len(r.cfg.Registry))
	if err := r.notify(ctx, msg); err != nil {
		r.logger.Warn("Failed to send startup message", zap.Error(err))
		r.journalError("Failed to send first boot message")
	}
	r.drainJournal(ctx)

	r.cp.FirstBoot = false
	if err := r.commit(ctx); err != nil {
		return err
	}
	r.journal("First boot completed")
	r.tearDown(ctx)
	return nil
}

// collectPhase gathers one scan cycle into the per-device documents
func (r *cycleRun) collectPhase(ctx context.Context) error {
	if r.cp.ErrorFlag {
		r.logger.Warn("Error in previous cycle, skipping data collection")
		r.journal("Error in previous cycle was detected, skipping data collection")
		r.cp.ErrorFlag = false
		return r.save()
	}

	r.journal("Starting data collection")
	r.readBattery(ctx)
	var snapshot models.BatterySnapshot
	if r.battery != nil {
		snapshot = *r.battery
	}

	status := r.deps.Collector.Collect(ctx, r.cfg.Registry, func(m models.Measurement) {
		if err := r.deps.Recorder.Record(m, snapshot); err != nil {
			r.logger.Error("Failed to record measurement",
				zap.String("device", m.DeviceID.String()),
				zap.Error(err))
			r.journal(fmt.Sprintf("Failed to store reading of %s", m.DeviceID))
		}
	})
	r.result.Scan = status
	if r.deps.Metrics != nil {
		r.deps.Metrics.ObserveScan(status)
	}

	if len(status.Covered) == 0 {
		r.journalError("Failed to receive any sensor data")
	} else {
		r.journal(fmt.Sprintf("Received data from %d/%d sensors after %d attempts",
			len(status.Covered), status.Expected, status.Attempts))
	}

	r.cp.BootCount++
	return r.save()
}

// flushPhase uploads every pending document
func (r *cycleRun) flushPhase(ctx context.Context, resumed bool) error {
	if !resumed {
		r.journal("Sending accumulated data")
		if err := r.enter(ctx, eventBeginFlush); err != nil {
			return err
		}
	}

	if err := r.bringUp(ctx, "upload"); err != nil {
		return err
	}
	r.syncClock(ctx)

	flusher, closeSink, err := r.deps.Connect(ctx)
	if err != nil {
		r.journalError("Document sink init failed for data sending")
		return r.networkFailure("connect document sink", err)
	}
	defer func() {
		if err := closeSink(); err != nil {
			r.logger.Warn("Failed to close document sink", zap.Error(err))
		}
	}()

	report := flusher.FlushAll(ctx)
	r.result.Report = &report
	now := r.deps.Now()
	if r.deps.Metrics != nil {
		r.deps.Metrics.ObserveFlush(report, now)
	}

	switch report.Outcome {
	case models.OutcomeAllOK:
		r.journal("All sensor files sent successfully")
		r.cp.BootCount = 0
	case models.OutcomePartial:
		r.journal("Some sensor files were not sent")
	case models.OutcomeNoDocuments:
		r.journal("No sensor files found")
	default:
		r.journalError("Failed to send any files")
	}

	if report.Outcome != models.OutcomeNoneSent {
		if r.battery == nil {
			r.readBattery(ctx)
		}
		since := time.Duration(r.cp.BootCount) * r.cfg.TargetPeriod
		if report.Outcome == models.OutcomeAllOK {
			since = time.Duration(r.cfg.FlushThreshold) * r.cfg.TargetPeriod
		}
		msg := r.deps.Reporter.FlushMessage(now, report, r.battery, since)
		if err := r.notify(ctx, msg); err != nil {
			r.logger.Warn("Failed to send flush report", zap.Error(err))
			r.journalError("Failed to send message about battery status")
		}
	}
	r.drainJournal(ctx)

	if err := r.commit(ctx); err != nil {
		return err
	}
	r.mirror(ctx, report)
	r.tearDown(ctx)
	return nil
}

// finish computes the remaining sleep and persists the final checkpoint
func (r *cycleRun) finish() (Result, error) {
	now := r.deps.Now()
	elapsed := now.Sub(r.start)
	sleep := r.cfg.TargetPeriod - elapsed
	if sleep < 0 {
		sleep = 0
	}

	r.journal(fmt.Sprintf("Final boot count: %d", r.cp.BootCount))
	if err := r.save(); err != nil {
		return r.result, err
	}

	r.result.Sleep = sleep
	r.result.Checkpoint = r.cp
	if r.deps.Metrics != nil {
		r.deps.Metrics.ObserveCycle(elapsed, now)
		if err := r.deps.Metrics.Write(); err != nil {
			r.logger.Warn("Failed to write metrics textfile", zap.Error(err))
		}
	}

	r.logger.Info("Duty cycle finished",
		zap.Duration("elapsed", elapsed),
		zap.Duration("sleep", sleep),
		zap.Uint32("boot_count", r.cp.BootCount))
	return r.result, nil
}

// enter persists the PRE_NETWORK state before the radio is touched
func (r *cycleRun) enter(ctx context.Context, event string) error {
	if err := r.transition(ctx, event); err != nil {
		return err
	}
	r.cp.RecoveryAttempts = 0
	return r.save()
}

// commit persists NORMAL once the phase's side effects are done
func (r *cycleRun) commit(ctx context.Context) error {
	if err := r.transition(ctx, eventCommit); err != nil {
		return err
	}
	r.cp.RecoveryAttempts = 0
	return r.save()
}

func (r *cycleRun) save() error {
	if err := r.deps.Store.Save(r.cp); err != nil {
		r.logger.Error("Failed to persist checkpoint", zap.Error(err))
		return &FatalError{Phase: "save checkpoint", Err: err, Immediate: true}
	}
	r.result.Checkpoint = r.cp
	if r.deps.Metrics != nil {
		r.deps.Metrics.ObserveCheckpoint(r.cp)
	}
	return nil
}

func (r *cycleRun) bringUp(ctx context.Context, phase string) error {
	err := services.RunBounded(ctx, r.cfg.NetworkTimeout, r.deps.Network.BringUp)
	if err != nil {
		r.journalError(fmt.Sprintf("Network bring-up failed in %s phase", phase))
		return r.networkFailure("network bring-up", err)
	}
	return nil
}

// networkFailure flags the next cycle, cuts the radio and escalates.
// The recovery state stays at the phase that failed.
func (r *cycleRun) networkFailure(phase string, cause error) error {
	r.logger.Error("Network phase failed", zap.String("phase", phase), zap.Error(cause))
	r.cp.ErrorFlag = true
	if err := r.save(); err != nil {
		return err
	}
	if err := r.deps.Network.PowerOff(); err != nil {
		r.logger.Warn("Failed to power off modem", zap.Error(err))
	}
	return &FatalError{Phase: phase, Err: cause, Grace: r.cfg.RestartGrace}
}

func (r *cycleRun) tearDown(ctx context.Context) {
	if err := services.RunBounded(ctx, r.cfg.NetworkTimeout, r.deps.Network.TearDown); err != nil {
		r.logger.Warn("Failed to tear down network", zap.Error(err))
	}
}

func (r *cycleRun) syncClock(ctx context.Context) {
	var t time.Time
	err := services.RunBounded(ctx, r.cfg.WorkerTimeout, func(ctx context.Context) error {
		now, err := r.deps.Network.CurrentTime(ctx)
		if err != nil {
			return err
		}
		t = now
		return nil
	})
	if err == nil {
		err = r.deps.Clock.Set(t)
	}
	if err != nil {
		r.logger.Warn("Failed to synchronize time", zap.Error(err))
		r.journalError("Failed to synchronize time")
		return
	}
	r.logger.Info("Clock synchronized", zap.Time("time", t))
}

func (r *cycleRun) readBattery(ctx context.Context) {
	if r.deps.Battery == nil {
		return
	}
	b, err := r.deps.Battery.Read(ctx)
	if err != nil {
		r.logger.Warn("Failed to read battery", zap.Error(err))
		return
	}
	r.battery = &b
	if r.deps.Metrics != nil {
		r.deps.Metrics.ObserveBattery(b)
	}
}

func (r *cycleRun) notify(ctx context.Context, text string) error {
	return services.Retry(ctx, r.logger, "notify", r.cfg.NotifyAttempts, r.cfg.NotifyRetryDelay, func(ctx context.Context) error {
		return services.RunBounded(ctx, r.cfg.WorkerTimeout, func(ctx context.Context) error {
			return r.deps.Notifier.Notify(ctx, text)
		})
	})
}

// drainJournal ships the journal to the notifier and clears it once every chunk went out
func (r *cycleRun) drainJournal(ctx context.Context) {
	lines, err := r.deps.Journal.Entries()
	if err != nil {
		r.logger.Warn("Failed to read journal", zap.Error(err))
		return
	}
	if len(lines) == 0 {
		return
	}
	for _, msg := range r.deps.Reporter.JournalMessages(lines) {
		if err := r.notify(ctx, msg); err != nil {
			r.logger.Warn("Failed to send journal, keeping it for the next network phase", zap.Error(err))
			return
		}
	}
	if err := r.deps.Journal.Clear(); err != nil {
		r.logger.Warn("Failed to clear journal", zap.Error(err))
	}
}

func (r *cycleRun) mirror(ctx context.Context, report models.FlushReport) {
	if r.deps.Mirror == nil {
		return
	}
	st := services.GatewayStatus{
		UpdatedAt:  r.deps.Now().Format(time.RFC3339),
		Checkpoint: r.cp,
		LastFlush:  &report,
	}
	if r.battery != nil {
		st.Battery = *r.battery
	}
	err := services.RunBounded(ctx, r.cfg.WorkerTimeout, func(ctx context.Context) error {
		return r.deps.Mirror.Publish(ctx, st)
	})
	if err != nil {
		r.logger.Warn("Failed to mirror gateway status", zap.Error(err))
	}
}

func (r *cycleRun) journal(msg string) {
	if r.deps.Journal != nil {
		r.deps.Journal.Append(msg)
	}
}

func (r *cycleRun) journalError(msg string) {
	if r.deps.Journal != nil {
		r.deps.Journal.Error(msg)
	}
}
