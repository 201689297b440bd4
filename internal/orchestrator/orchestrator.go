// Package orchestrator runs the control loop that turns aggregated file
// changes and operator commands into stage pipeline runs.
package orchestrator

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/phuslu/log"

	"github.com/lucasnoah/autobuilder/internal/changes"
	"github.com/lucasnoah/autobuilder/internal/config"
	"github.com/lucasnoah/autobuilder/internal/db"
	"github.com/lucasnoah/autobuilder/internal/display"
	"github.com/lucasnoah/autobuilder/internal/input"
	"github.com/lucasnoah/autobuilder/internal/logger"
	"github.com/lucasnoah/autobuilder/internal/pipeline"
	"github.com/lucasnoah/autobuilder/internal/runner"
)

// DefaultTick is the interval between control loop iterations.
const DefaultTick = 100 * time.Millisecond

// StageRunner runs one stage program to completion or cancellation.
type StageRunner interface {
	Run(ctx context.Context, path string, args []string, opts runner.RunOpts) (*runner.Outcome, error)
}

// Commands is the operator command source. TakeCommand pauses the source
// until Resume.
type Commands interface {
	HasCommand() bool
	TakeCommand() string
	Peek() (string, bool)
	Resume()
	ReadLine() (string, bool)
	Close()
}

// ChangeSource is the aggregated view of filesystem changes.
type ChangeSource interface {
	State() changes.State
	Modifications() int
	Generation() uint64
	Reset()
	ResetModifications()
}

// History records stage runs and discovered tests.
type History interface {
	LogStageRun(r db.StageRun) error
	UpsertTests(root string, names []string) error
}

// Watch is the filesystem watch the loop reconfigures and stops.
type Watch interface {
	SetPatterns(patterns []string)
	Close() error
}

// Deps holds the collaborators of an Orchestrator. History and Watch may
// be nil.
type Deps struct {
	Root     string
	Config   *config.Manager
	Changes  ChangeSource
	Commands Commands
	Runner   StageRunner
	Printer  *display.Printer
	History  History
	Watch    Watch
	// Tests seeds the known test names, e.g. from the history database.
	Tests []string
}

// Orchestrator owns all cross-component state transitions. It is driven
// from a single goroutine.
type Orchestrator struct {
	root     string
	cfg      *config.Manager
	changes  ChangeSource
	commands Commands
	runner   StageRunner
	out      *display.Printer
	history  History
	watch    Watch
	log      *log.Logger

	tick  time.Duration
	tests []string
	// builds counts build invocations since the last clean.
	builds int
	// restarting is set when a run was interrupted; the next modification
	// tick runs regardless of the build interval.
	restarting bool
	quit       bool
	stopped    bool
}

// New creates an Orchestrator.
func New(d Deps) *Orchestrator {
	return &Orchestrator{
		root:     d.Root,
		cfg:      d.Config,
		changes:  d.Changes,
		commands: d.Commands,
		runner:   d.Runner,
		out:      d.Printer,
		history:  d.History,
		watch:    d.Watch,
		log:      logger.WithComponent("orchestrator"),
		tick:     DefaultTick,
		tests:    append([]string(nil), d.Tests...),
	}
}

// SetTick overrides the loop interval (for testing).
func (o *Orchestrator) SetTick(d time.Duration) {
	if d > 0 {
		o.tick = d
	}
}

// Builds returns the number of builds since the last clean.
func (o *Orchestrator) Builds() int { return o.builds }

// Restarting reports whether the last run was interrupted.
func (o *Orchestrator) Restarting() bool { return o.restarting }

// Tests returns the known test names.
func (o *Orchestrator) Tests() []string { return append([]string(nil), o.tests...) }

// Quitting reports whether quit was requested.
func (o *Orchestrator) Quitting() bool { return o.quit }

// Start discovers tests and prints the status screen.
func (o *Orchestrator) Start(ctx context.Context) {
	o.loadTests(ctx, o.cfg.Current())
	o.out.Clear()
	o.out.Status(o.cfg.Current(), o.tests)
}

// Run starts the loop and blocks until quit is requested or ctx is done.
// Cancelling ctx is a clean shutdown, not an error.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.Start(ctx)

	t := time.NewTicker(o.tick)
	defer t.Stop()
	defer o.shutdown()

	for !o.quit {
		select {
		case <-ctx.Done():
			o.log.Info().Msg("context cancelled")
			return nil
		case <-t.C:
			o.Tick(ctx)
		}
	}
	return nil
}

// Tick runs one iteration of the control loop.
func (o *Orchestrator) Tick(ctx context.Context) {
	if o.commands.HasCommand() {
		line := o.commands.TakeCommand()
		wipe := o.handleLine(ctx, line)
		if o.quit {
			return
		}
		o.commands.Resume()
		if wipe {
			o.out.Clear()
		}
		o.out.Status(o.cfg.Current(), o.tests)
		return
	}

	switch o.changes.State() {
	case changes.Idle:
		return
	case changes.Modified:
		cfg := o.cfg.Current()
		if !o.restarting && o.changes.Modifications() < cfg.Options.BuildInterval {
			return
		}
		o.changes.Reset()
		o.changes.ResetModifications()
		o.execute(ctx, pipeline.Normal)
	case changes.Structural:
		o.changes.Reset()
		o.changes.ResetModifications()
		o.execute(ctx, pipeline.ForcedClean)
	}
	if !o.quit {
		o.out.Status(o.cfg.Current(), o.tests)
	}
}

// stepResult classifies how one stage invocation ended.
type stepResult int

const (
	stepDone stepResult = iota
	// stepFailed is a stage that ran and exited non-zero.
	stepFailed
	// stepNotRun is a stage whose program could not be started.
	stepNotRun
	stepCancelled
)

// execute runs one pipeline. It reports whether the run was cancelled.
func (o *Orchestrator) execute(ctx context.Context, trigger pipeline.Trigger) bool {
	cfg := o.cfg.Current()
	steps := pipeline.Plan(pipeline.FromConfig(cfg), trigger, o.builds, o.tests)
	runID := uuid.NewString()
	o.restarting = false

	// Only changes that arrive after the run started may cancel it.
	startGen := o.changes.Generation()
	interrupt := func() bool {
		if o.quitPending() {
			return true
		}
		return cfg.Options.Interrupt &&
			o.changes.State() != changes.Idle &&
			o.changes.Generation() != startGen
	}

	names := make([]string, len(steps))
	for i, s := range steps {
		names[i] = s.Stage
	}
	o.log.Info().Str("run_id", runID).Str("trigger", trigger.String()).Strs("stages", names).Int("builds", o.builds).Msg("pipeline started")
	start := time.Now()

	for _, step := range steps {
		res := o.runStep(ctx, cfg, runID, trigger, step, interrupt)
		if res == stepCancelled {
			o.restarting = true
			o.log.Info().Str("run_id", runID).Str("stage", step.Stage).Int("builds", o.builds).Msg("pipeline interrupted")
			return true
		}
		if res != stepNotRun {
			o.count(step)
		}
		if ctx.Err() != nil {
			return true
		}
	}

	o.log.Info().Str("run_id", runID).Int("builds", o.builds).Dur("duration", time.Since(start)).Msg("pipeline finished")

	o.loadTests(ctx, cfg)
	return false
}

// count updates the build counter after a stage invocation finished:
// a clean resets it, a build or clang-tidy advances it.
func (o *Orchestrator) count(step pipeline.Step) {
	built, cleaned := pipeline.Counts([]pipeline.Step{step})
	switch {
	case cleaned:
		o.builds = 0
	case built:
		o.builds++
	}
}

func (o *Orchestrator) runStep(ctx context.Context, cfg *config.Config, runID string, trigger pipeline.Trigger, step pipeline.Step, interrupt func() bool) stepResult {
	rec := db.StageRun{
		RunID:   runID,
		Root:    o.root,
		Stage:   step.Stage,
		Trigger: trigger.String(),
		Args:    strings.Join(step.Args, " "),
	}

	script, err := cfg.ScriptPath(step.Stage)
	if err != nil {
		o.out.Error("could not find %s script: %v", step.Stage, err)
		rec.Error = err.Error()
		o.record(rec)
		return stepNotRun
	}

	o.out.StageStart(step, script)
	outcome, err := o.runner.Run(ctx, script, step.Args, runner.RunOpts{Echo: true, Interrupt: interrupt})
	if err != nil {
		var spawnErr *runner.SpawnError
		if errors.As(err, &spawnErr) {
			o.out.Error("could not start %s: %v", step.Stage, spawnErr.Err)
		} else {
			o.out.Error("running %s: %v", step.Stage, err)
		}
		o.log.Error().Err(err).Str("stage", step.Stage).Msg("stage failed to run")
		rec.Error = err.Error()
		o.record(rec)
		return stepNotRun
	}

	rec.DurationMs = outcome.Duration.Milliseconds()
	if outcome.Cancelled {
		rec.Cancelled = true
		o.record(rec)
		if !o.quitPending() && ctx.Err() == nil {
			o.out.Cancelled(step.Stage)
		}
		return stepCancelled
	}

	code := outcome.ExitCode
	rec.ExitCode = &code
	rec.StderrBytes = len(outcome.Stderr)
	o.record(rec)

	if len(outcome.Stderr) > 0 {
		o.out.StageStderr(step.Stage, outcome.Stderr)
	}
	if code != 0 {
		o.out.StageExit(step.Stage, code)
		return stepFailed
	}
	return stepDone
}

// loadTests runs list-tests silently and merges the discovered names.
func (o *Orchestrator) loadTests(ctx context.Context, cfg *config.Config) {
	script, err := cfg.ScriptPath(config.ListTests)
	if err != nil {
		o.log.Warn().Err(err).Msg("list-tests not configured")
		return
	}
	outcome, err := o.runner.Run(ctx, script, nil, runner.RunOpts{Interrupt: o.quitPending})
	if err != nil {
		o.log.Warn().Err(err).Str("path", script).Msg("list-tests failed to run")
		return
	}
	if outcome.Cancelled || outcome.ExitCode != 0 || len(outcome.Stdout) == 0 {
		o.log.Debug().Bool("cancelled", outcome.Cancelled).Int("exit_code", outcome.ExitCode).Msg("no test list")
		return
	}

	found, err := pipeline.ParseTestList(outcome.Stdout)
	if err != nil {
		o.log.Warn().Err(err).Msg("unreadable test list")
		return
	}
	merged, added := pipeline.MergeTests(o.tests, found)
	o.tests = merged
	if len(added) > 0 {
		o.log.Info().Strs("tests", added).Msg("discovered tests")
	}
	if o.history != nil {
		if err := o.history.UpsertTests(o.root, found); err != nil {
			o.log.Warn().Err(err).Msg("record tests")
		}
	}
}

func (o *Orchestrator) record(r db.StageRun) {
	if o.history == nil {
		return
	}
	if err := o.history.LogStageRun(r); err != nil {
		o.log.Warn().Err(err).Str("stage", r.Stage).Msg("record stage run")
	}
}

// quitPending reports whether the operator typed quit while a stage runs.
func (o *Orchestrator) quitPending() bool {
	line, ok := o.commands.Peek()
	if !ok {
		return false
	}
	cmd, _ := input.Parse(line)
	return cmd == input.Quit
}

// shutdown stops the watch and the command channel. It runs once.
func (o *Orchestrator) shutdown() {
	if o.stopped {
		return
	}
	o.stopped = true
	o.out.Info("Stopping...")
	if o.watch != nil {
		if err := o.watch.Close(); err != nil {
			o.log.Warn().Err(err).Msg("close watcher")
		}
	}
	o.commands.Close()
	o.log.Info().Msg("stopped")
}
