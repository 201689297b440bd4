// Package pipeline decides which stage programs run for a trigger. It has
// no side effects: the orchestrator executes the returned steps.
package pipeline

import (
	"strings"

	"github.com/lucasnoah/autobuilder/internal/config"
)

// Trigger is the condition that started a pipeline run.
type Trigger int

const (
	// Normal is a run started by accumulated modifications or the operator.
	Normal Trigger = iota
	// ForcedClean always begins with the clean stage.
	ForcedClean
)

func (t Trigger) String() string {
	if t == ForcedClean {
		return "forced-clean"
	}
	return "normal"
}

// PlanConfig is the slice of configuration Plan depends on.
type PlanConfig struct {
	Build       bool
	Test        bool
	Coverage    bool
	ClangFormat bool
	ClangTidy   bool

	AlwaysClean    bool
	PeriodicClean  bool
	NumBuildsClean int
	Verbose        bool

	ExcludedTests []string
}

// FromConfig extracts a PlanConfig from a configuration snapshot.
func FromConfig(cfg *config.Config) PlanConfig {
	return PlanConfig{
		Build:          cfg.Stages.Enabled(config.StageBuild),
		Test:           cfg.Stages.Enabled(config.StageTest),
		Coverage:       cfg.Stages.Enabled(config.StageCoverage),
		ClangFormat:    cfg.Stages.Enabled(config.StageClangFormat),
		ClangTidy:      cfg.Stages.Enabled(config.StageClangTidy),
		AlwaysClean:    cfg.Options.AlwaysClean,
		PeriodicClean:  cfg.Options.PeriodicClean,
		NumBuildsClean: cfg.Options.NumBuildsClean,
		Verbose:        cfg.Options.Verbose,
		ExcludedTests:  append([]string(nil), cfg.ExcludedTests...),
	}
}

// Step is one stage invocation.
type Step struct {
	Stage string
	Args  []string
}

func (s Step) String() string {
	if len(s.Args) == 0 {
		return s.Stage
	}
	return s.Stage + " " + strings.Join(s.Args, " ")
}

// Plan returns the ordered stage invocations for a run.
//
// builds is the number of builds since the last clean; tests are the
// test names discovered so far.
func Plan(cfg PlanConfig, trigger Trigger, builds int, tests []string) []Step {
	var steps []Step

	periodic := cfg.PeriodicClean && builds >= cfg.NumBuildsClean
	if trigger == ForcedClean || cfg.AlwaysClean || periodic {
		steps = append(steps, Step{Stage: config.StageClean})
	}

	if cfg.Build {
		if cfg.ClangTidy {
			steps = append(steps, Step{Stage: config.StageClangTidy})
		} else {
			steps = append(steps, Step{Stage: config.StageBuild})
		}
	}

	if cfg.Test {
		args, ok := TestArgs(ActiveTests(tests, cfg.ExcludedTests), len(tests) > 0, cfg.Verbose)
		if ok {
			steps = append(steps, Step{Stage: config.StageTest, Args: args})
			if cfg.Coverage {
				steps = append(steps, Step{Stage: config.StageCoverage})
			}
		}
	}

	if cfg.ClangFormat {
		steps = append(steps, Step{Stage: config.StageClangFormat})
	}
	return steps
}

// Counts reports whether a completed plan advances the build counter and
// whether it resets it.
func Counts(steps []Step) (built, cleaned bool) {
	for _, s := range steps {
		switch s.Stage {
		case config.StageClean:
			cleaned = true
		case config.StageBuild, config.StageClangTidy:
			built = true
		}
	}
	return built, cleaned
}
