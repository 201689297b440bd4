package orchestrator

import (
	"context"
	"strconv"
	"strings"

	"github.com/lucasnoah/autobuilder/internal/config"
	"github.com/lucasnoah/autobuilder/internal/display"
	"github.com/lucasnoah/autobuilder/internal/input"
	"github.com/lucasnoah/autobuilder/internal/pipeline"
)

// handleLine acts on one operator line while the channel is paused. It
// reports whether the screen should be cleared before the status redraw.
func (o *Orchestrator) handleLine(ctx context.Context, line string) bool {
	cmd, ok := input.Parse(line)
	if !ok {
		o.out.Error("unknown command %q", strings.TrimSpace(line))
		return false
	}
	o.log.Info().Str("command", cmd.String()).Msg("operator command")

	switch cmd {
	case input.Quit:
		o.quit = true
		return false
	case input.RunNow:
		o.execute(ctx, pipeline.Normal)
		return false
	case input.ForceCleanBuild:
		o.execute(ctx, pipeline.ForcedClean)
		return false
	case input.EditStages:
		o.editStages()
	case input.EditTests:
		o.editTests()
	case input.ToggleAlwaysClean:
		o.update(func(c *config.Config) { c.Options.AlwaysClean = !c.Options.AlwaysClean })
	case input.TogglePeriodicClean:
		o.update(func(c *config.Config) { c.Options.PeriodicClean = !c.Options.PeriodicClean })
	case input.ToggleShowOptions:
		o.update(func(c *config.Config) { c.Options.ShowOptions = !c.Options.ShowOptions })
	case input.ToggleShowTests:
		o.update(func(c *config.Config) { c.Options.ShowTests = !c.Options.ShowTests })
	case input.ToggleVerbose:
		o.update(func(c *config.Config) { c.Options.Verbose = !c.Options.Verbose })
	case input.ToggleInterrupt:
		o.update(func(c *config.Config) { c.Options.Interrupt = !c.Options.Interrupt })
	case input.SetCleanThreshold:
		if n, ok := o.promptInt("Please input the number of builds required to trigger a clean:"); ok {
			o.update(func(c *config.Config) { c.Options.NumBuildsClean = n })
		}
	case input.SetBuildInterval:
		if n, ok := o.promptInt("Please input the number of saves required to trigger a build:"); ok {
			o.update(func(c *config.Config) { c.Options.BuildInterval = n })
		}
	case input.AddPattern:
		o.addPattern()
	}
	return true
}

// update persists a configuration change and reports failures to the operator.
func (o *Orchestrator) update(fn func(*config.Config)) bool {
	if _, err := o.cfg.Update(fn); err != nil {
		o.out.Error("configuration not changed: %v", err)
		o.log.Warn().Err(err).Msg("config update rejected")
		return false
	}
	return true
}

func (o *Orchestrator) prompt(question string) (string, bool) {
	o.out.Prompt(question)
	line, ok := o.commands.ReadLine()
	if !ok {
		return "", false
	}
	return strings.TrimSpace(line), true
}

func (o *Orchestrator) promptInt(question string) (int, bool) {
	answer, ok := o.prompt(question)
	if !ok || answer == "" {
		return 0, false
	}
	n, err := strconv.Atoi(answer)
	if err != nil {
		o.out.Error("%q is not a number", answer)
		return 0, false
	}
	return n, true
}

func (o *Orchestrator) addPattern() {
	pattern, ok := o.prompt("Please input the matching pattern you would like to add:")
	if !ok || pattern == "" {
		return
	}
	if !o.update(func(c *config.Config) { c.Options.Patterns = append(c.Options.Patterns, pattern) }) {
		return
	}
	if o.watch != nil {
		o.watch.SetPatterns(o.cfg.Current().Options.Patterns)
	}
}

func (o *Orchestrator) editStages() {
	cfg := o.cfg.Current()
	items := make([]display.Toggle, len(cfg.Stages))
	for i, st := range cfg.Stages {
		items[i] = display.Toggle{Name: st.Name, On: st.Enabled}
	}
	items = o.editToggles("Enable/Disable build stages", items)
	o.update(func(c *config.Config) {
		for _, it := range items {
			c.Stages.Set(it.Name, it.On)
		}
	})
}

func (o *Orchestrator) editTests() {
	if len(o.tests) == 0 {
		o.out.Info("No tests detected yet.")
		return
	}
	cfg := o.cfg.Current()
	items := make([]display.Toggle, len(o.tests))
	for i, t := range o.tests {
		items[i] = display.Toggle{Name: t, On: !cfg.IsExcluded(t)}
	}
	items = o.editToggles("Enable/Disable tests", items)

	excluded := []string{}
	listed := make(map[string]bool, len(items))
	for _, it := range items {
		listed[it.Name] = true
		if !it.On {
			excluded = append(excluded, it.Name)
		}
	}
	// Keep exclusions for tests that are not currently discovered.
	for _, t := range cfg.ExcludedTests {
		if !listed[t] {
			excluded = append(excluded, t)
		}
	}
	o.update(func(c *config.Config) { c.ExcludedTests = excluded })
}

// editToggles shows a numbered list and flips entries by number until the
// operator enters an empty line.
func (o *Orchestrator) editToggles(title string, items []display.Toggle) []display.Toggle {
	for {
		o.out.Toggles(title, items)
		line, ok := o.commands.ReadLine()
		if !ok {
			return items
		}
		fields := strings.FieldsFunc(line, func(r rune) bool { return r == ' ' || r == ',' || r == '\t' })
		if len(fields) == 0 {
			return items
		}
		for _, f := range fields {
			n, err := strconv.Atoi(f)
			if err != nil || n < 1 || n > len(items) {
				o.out.Error("no entry %q", f)
				continue
			}
			items[n-1].On = !items[n-1].On
		}
	}
}
