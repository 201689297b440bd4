package input

import "strings"

// Command is an operator action entered on a single line.
type Command int

const (
	Unknown Command = iota
	Quit
	EditStages
	EditTests
	ForceCleanBuild
	ToggleAlwaysClean
	SetCleanThreshold
	TogglePeriodicClean
	SetBuildInterval
	ToggleShowOptions
	ToggleShowTests
	ToggleVerbose
	ToggleInterrupt
	AddPattern
	RunNow
)

type commandSpec struct {
	cmd  Command
	key  string
	name string
	help string
}

// commandTable lists commands in menu order.
var commandTable = []commandSpec{
	{EditStages, "e", "edit-stages", "to choose which stages should be run"},
	{EditTests, "t", "edit-tests", "to choose which tests should be run"},
	{ToggleShowOptions, "s", "toggle-show-options", "to minimise options"},
	{ToggleShowTests, "h", "toggle-show-tests", "to hide/show tests"},
	{ForceCleanBuild, "c", "force-clean-build", "to trigger a clean build"},
	{SetCleanThreshold, "cf", "set-clean-threshold", "to change how frequently a clean build should run"},
	{ToggleAlwaysClean, "ca", "toggle-always-clean", "to toggle always clean builds"},
	{TogglePeriodicClean, "ct", "toggle-periodic-clean", "to toggle periodic clean builds"},
	{SetBuildInterval, "n", "set-build-interval", "to change the number of saves to trigger a build"},
	{ToggleVerbose, "v", "toggle-verbose", "to toggle verbose testing"},
	{AddPattern, "p", "add-pattern", "to add a new matching pattern"},
	{ToggleInterrupt, "i", "toggle-interrupt", "to toggle interruptable builds"},
	{Quit, "q", "quit", "to exit"},
}

// Parse maps an operator line to a Command. Keys are case-sensitive; the
// long names are accepted as well. An empty line means run now.
func Parse(line string) (Command, bool) {
	line = strings.TrimSpace(line)
	if line == "" {
		return RunNow, true
	}
	for _, spec := range commandTable {
		if line == spec.key || line == spec.name {
			return spec.cmd, true
		}
	}
	return Unknown, false
}

// String returns the long name of the command.
func (c Command) String() string {
	if c == RunNow {
		return "run-now"
	}
	for _, spec := range commandTable {
		if spec.cmd == c {
			return spec.name
		}
	}
	return "unknown"
}

// Key returns the short key an operator types for the command.
func (c Command) Key() string {
	for _, spec := range commandTable {
		if spec.cmd == c {
			return spec.key
		}
	}
	return ""
}

// Help describes a command for the options menu.
type Help struct {
	Key         string
	Description string
}

// Menu returns help entries for every keyed command except quit, in menu order.
func Menu() []Help {
	out := make([]Help, 0, len(commandTable))
	for _, spec := range commandTable {
		if spec.cmd == Quit {
			continue
		}
		out = append(out, Help{Key: spec.key, Description: spec.help})
	}
	return out
}
