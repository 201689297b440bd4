// Package display renders the operator-facing status screen, menus and
// stage reports.
package display

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/lucasnoah/autobuilder/internal/config"
	"github.com/lucasnoah/autobuilder/internal/input"
	"github.com/lucasnoah/autobuilder/internal/pipeline"
)

// clearScreen moves the cursor home and erases the display.
const clearScreen = "\033[H\033[2J"

// Printer writes formatted output for the operator. Colours follow the
// capabilities of the writer it was created for.
type Printer struct {
	w io.Writer

	bold    lipgloss.Style
	green   lipgloss.Style
	red     lipgloss.Style
	yellow  lipgloss.Style
	blue    lipgloss.Style
	purple  lipgloss.Style
	grey    lipgloss.Style
	heading lipgloss.Style
}

// New creates a Printer writing to w.
func New(w io.Writer) *Printer {
	r := lipgloss.NewRenderer(w)
	return &Printer{
		w:       w,
		bold:    r.NewStyle().Bold(true),
		green:   r.NewStyle().Foreground(lipgloss.Color("2")),
		red:     r.NewStyle().Foreground(lipgloss.Color("1")),
		yellow:  r.NewStyle().Foreground(lipgloss.Color("3")),
		blue:    r.NewStyle().Foreground(lipgloss.Color("4")),
		purple:  r.NewStyle().Foreground(lipgloss.Color("5")),
		grey:    r.NewStyle().Faint(true),
		heading: r.NewStyle().Bold(true).Foreground(lipgloss.Color("5")),
	}
}

// Writer returns the underlying writer.
func (p *Printer) Writer() io.Writer {
	return p.w
}

// Clear erases the terminal.
func (p *Printer) Clear() {
	fmt.Fprint(p.w, clearScreen)
}

// Bool renders true in green and false in red.
func (p *Printer) Bool(b bool) string {
	if b {
		return p.green.Bold(true).Render("True")
	}
	return p.red.Bold(true).Render("False")
}

// Status prints the full status screen: config summary, tests and the
// options menu, or the minimal menu when show_options is off.
func (p *Printer) Status(cfg *config.Config, tests []string) {
	showTests := cfg.Stages.Enabled(config.StageTest) && cfg.Options.ShowTests
	if !cfg.Options.ShowOptions {
		if showTests {
			p.Tests(cfg, tests, true)
		}
		p.Menu(cfg, true)
		return
	}
	p.Config(cfg)
	if showTests {
		p.Tests(cfg, tests, false)
	}
	p.Menu(cfg, false)
}

// Config prints the stage toggles and tuning options.
func (p *Printer) Config(cfg *config.Config) {
	fmt.Fprintf(p.w, "\n    %s\n", p.bold.Render("Config"))
	for _, st := range cfg.Stages {
		fmt.Fprintf(p.w, "     › %s - %s\n", capitalize(st.Name), p.Bool(st.Enabled))
	}
	o := cfg.Options
	fmt.Fprintf(p.w, "\n    Periodic clean builds: \t%s\tBuild interval: \t%d\n", p.Bool(o.PeriodicClean), o.BuildInterval)
	fmt.Fprintf(p.w, "    Interruptable builds: \t%s\tBuilds between clean:\t%d\n", p.Bool(o.Interrupt), o.NumBuildsClean)
	fmt.Fprintf(p.w, "    Verbose testing: \t%s\n", p.Bool(o.Verbose))
	fmt.Fprintf(p.w, "    Matching patterns: \t%s\n\n", strings.Join(o.Patterns, ", "))
}

// Tests prints discovered tests grouped into unit and functional tests.
// Excluded tests are greyed out, or hidden when filter is set.
func (p *Printer) Tests(cfg *config.Config, tests []string, filter bool) {
	groups := []struct {
		title string
		kind  pipeline.TestKind
	}{
		{"Unit tests", pipeline.UnitTest},
		{"Functional tests", pipeline.FunctionalTest},
		{"Other tests", pipeline.OtherTest},
	}
	if len(tests) == 0 {
		fmt.Fprintln(p.w, p.grey.Render("    No tests detected"))
		return
	}
	for _, g := range groups {
		var lines []string
		for _, t := range tests {
			if pipeline.Classify(t) != g.kind {
				continue
			}
			excluded := cfg.IsExcluded(t)
			if excluded && filter {
				continue
			}
			if excluded {
				lines = append(lines, p.grey.Render(t))
			} else {
				lines = append(lines, p.blue.Render(t))
			}
		}
		if len(lines) == 0 {
			continue
		}
		fmt.Fprintf(p.w, "    %s\n", g.title)
		for _, l := range lines {
			fmt.Fprintf(p.w, "\t%s\n", l)
		}
	}
}

// Menu prints the keyboard options.
func (p *Printer) Menu(cfg *config.Config, minimal bool) {
	if cfg.Options.AlwaysClean {
		fmt.Fprintf(p.w, "\n\t%s\n", p.purple.Render("~~~ Always clean build active ~~~"))
	}
	if minimal {
		fmt.Fprintf(p.w, "\n    › Enter %s to show options, %s to toggle show tests, %s to exit, or press %s to run\n",
			p.blue.Render(input.ToggleShowOptions.Key()),
			p.blue.Render(input.ToggleShowTests.Key()),
			p.red.Render(input.Quit.Key()),
			p.green.Render("ENTER"))
		return
	}

	fmt.Fprintf(p.w, "\n    Watch Usage\n")
	for i, h := range input.Menu() {
		lead := "                "
		if i == 0 {
			lead = "        › Enter "
		}
		fmt.Fprintf(p.w, "%s%s %s\n", lead, p.green.Render(fmt.Sprintf("%-2s", h.Key)), h.Description)
	}
	fmt.Fprintf(p.w, "\n        › Press %s to trigger a run\n", p.blue.Bold(true).Render("ENTER"))
	fmt.Fprintf(p.w, "        › Enter %s to exit.\n", p.red.Bold(true).Render(input.Quit.Key()))
}

// StageStart announces a stage invocation.
func (p *Printer) StageStart(step pipeline.Step, script string) {
	fmt.Fprintf(p.w, "Running script: %s\n", p.bold.Render(scriptName(script, step)))
}

// StageStderr reports a stage that wrote to stderr.
func (p *Printer) StageStderr(stage string, stderr []byte) {
	fmt.Fprintf(p.w, "\n%s\n\n", p.red.Render(capitalize(stage)+" encountered an error during execution:"))
	p.w.Write(stderr)
	if len(stderr) > 0 && stderr[len(stderr)-1] != '\n' {
		fmt.Fprintln(p.w)
	}
}

// StageExit reports a non-zero exit status.
func (p *Printer) StageExit(stage string, code int) {
	fmt.Fprintln(p.w, p.red.Render(fmt.Sprintf("%s exited with status %d", capitalize(stage), code)))
}

// Cancelled reports a run stopped by a newer change.
func (p *Printer) Cancelled(stage string) {
	fmt.Fprintln(p.w, p.yellow.Render(fmt.Sprintf("%s interrupted by a new change, restarting", capitalize(stage))))
}

// Error prints a message in red.
func (p *Printer) Error(format string, args ...interface{}) {
	fmt.Fprintln(p.w, p.red.Render("ERROR: "+fmt.Sprintf(format, args...)))
}

// Warning prints a message under a yellow banner.
func (p *Printer) Warning(msg string) {
	fmt.Fprintf(p.w, "\t%s\n%s\n", p.yellow.Bold(true).Render("--- WARNING ---"), msg)
}

// Info prints a plain line.
func (p *Printer) Info(format string, args ...interface{}) {
	fmt.Fprintf(p.w, format+"\n", args...)
}

// Prompt prints a question without a trailing newline.
func (p *Printer) Prompt(question string) {
	fmt.Fprintf(p.w, "%s ", question)
}

// Toggle is one entry of a numbered on/off list.
type Toggle struct {
	Name string
	On   bool
}

// Toggles prints a numbered list of switches for interactive editing.
func (p *Printer) Toggles(title string, items []Toggle) {
	fmt.Fprintf(p.w, "\n    %s\n", p.heading.Render(title))
	for i, it := range items {
		mark := p.grey.Render("[ ]")
		if it.On {
			mark = p.green.Render("[x]")
		}
		fmt.Fprintf(p.w, "     %2d %s %s\n", i+1, mark, it.Name)
	}
	fmt.Fprintln(p.w, "\n    Enter numbers to toggle (e.g. 1 3), or press ENTER to finish:")
}

func scriptName(script string, step pipeline.Step) string {
	name := script
	if i := strings.LastIndexByte(script, '/'); i >= 0 {
		name = script[i+1:]
	}
	if len(step.Args) > 0 {
		name += " " + strings.Join(step.Args, " ")
	}
	return name
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
