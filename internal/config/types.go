package config

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// Version is the configuration format this release writes.
const Version = "1.0"

// Stage names. ListTests is a script mapping only; it cannot be toggled.
const (
	StageBuild       = "build"
	StageTest        = "test"
	StageCoverage    = "coverage"
	StageClangFormat = "clang-format"
	StageClangTidy   = "clang-tidy"
	StageClean       = "clean"
	ListTests        = "list-tests"
)

// KnownStages lists the toggleable stages in their default display order.
var KnownStages = []string{
	StageBuild,
	StageTest,
	StageCoverage,
	StageClangFormat,
	StageClangTidy,
	StageClean,
}

// Config is the autobuilder configuration parsed from autobuilder.yaml.
// Every field holds a concrete value once Load returns.
type Config struct {
	Version       string            `yaml:"version"`
	ScriptFolder  string            `yaml:"script_folder"`
	ScriptPaths   map[string]string `yaml:"script_paths"`
	Stages        Stages            `yaml:"stages"`
	ExcludedTests []string          `yaml:"excluded_tests"`
	Options       Options           `yaml:"options"`

	// dir is the directory of the file the config was read from; a relative
	// script_folder is resolved against it.
	dir string
}

// Options holds the tuning switches the operator can change at runtime.
type Options struct {
	Patterns       []string `yaml:"patterns"`
	AlwaysClean    bool     `yaml:"always_clean"`
	PeriodicClean  bool     `yaml:"periodic_clean"`
	NumBuildsClean int      `yaml:"num_builds_clean"`
	BuildInterval  int      `yaml:"build_interval"`
	Interrupt      bool     `yaml:"interrupt"`
	Verbose        bool     `yaml:"verbose"`
	ShowOptions    bool     `yaml:"show_options"`
	ShowTests      bool     `yaml:"show_tests"`
}

// StageToggle is one entry of the ordered stages mapping.
type StageToggle struct {
	Name    string
	Enabled bool
}

// Stages is the stages mapping with its file order preserved.
type Stages []StageToggle

// Enabled reports whether the named stage is switched on.
func (s Stages) Enabled(name string) bool {
	for _, st := range s {
		if st.Name == name {
			return st.Enabled
		}
	}
	return false
}

// Set switches a stage on or off, appending it if it is not listed yet.
func (s *Stages) Set(name string, enabled bool) {
	for i := range *s {
		if (*s)[i].Name == name {
			(*s)[i].Enabled = enabled
			return
		}
	}
	*s = append(*s, StageToggle{Name: name, Enabled: enabled})
}

// Names returns the stage names in order.
func (s Stages) Names() []string {
	names := make([]string, len(s))
	for i, st := range s {
		names[i] = st.Name
	}
	return names
}

// UnmarshalYAML decodes a mapping of stage name to bool, keeping key order.
func (s *Stages) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: stages must be a mapping of stage name to true/false", value.Line)
	}
	out := make(Stages, 0, len(value.Content)/2)
	for i := 0; i+1 < len(value.Content); i += 2 {
		key, val := value.Content[i], value.Content[i+1]
		var enabled bool
		if err := val.Decode(&enabled); err != nil {
			return fmt.Errorf("line %d: stage %q: %w", val.Line, key.Value, err)
		}
		out = append(out, StageToggle{Name: key.Value, Enabled: enabled})
	}
	*s = out
	return nil
}

// MarshalYAML encodes the stages as an ordered mapping.
func (s Stages) MarshalYAML() (interface{}, error) {
	node := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	for _, st := range s {
		val := "false"
		if st.Enabled {
			val = "true"
		}
		node.Content = append(node.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: st.Name},
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!bool", Value: val},
		)
	}
	return node, nil
}

// Default returns a freshly allocated configuration with every default set.
func Default() *Config {
	return &Config{
		Version:      Version,
		ScriptFolder: "scripts",
		ScriptPaths: map[string]string{
			StageBuild:       "build.sh",
			StageTest:        "test.sh",
			StageCoverage:    "coverage.sh",
			StageClangFormat: "clang-format.sh",
			StageClangTidy:   "clang-tidy.sh",
			StageClean:       "clean.sh",
			ListTests:        "list-tests.sh",
		},
		Stages: Stages{
			{Name: StageBuild, Enabled: true},
			{Name: StageTest, Enabled: true},
			{Name: StageCoverage, Enabled: false},
			{Name: StageClangFormat, Enabled: false},
			{Name: StageClangTidy, Enabled: false},
			{Name: StageClean, Enabled: false},
		},
		ExcludedTests: []string{},
		Options: Options{
			Patterns:       []string{"*.c", "*.cpp", "*.h", "*.hpp", "CMakeLists.txt"},
			NumBuildsClean: 5,
			BuildInterval:  1,
			ShowOptions:    true,
		},
	}
}

// Clone returns a deep copy of c.
func (c *Config) Clone() *Config {
	out := *c
	out.ScriptPaths = make(map[string]string, len(c.ScriptPaths))
	for k, v := range c.ScriptPaths {
		out.ScriptPaths[k] = v
	}
	out.Stages = append(Stages(nil), c.Stages...)
	out.ExcludedTests = append([]string{}, c.ExcludedTests...)
	out.Options.Patterns = append([]string(nil), c.Options.Patterns...)
	return &out
}

// IsExcluded reports whether a test name is in the excluded list.
func (c *Config) IsExcluded(test string) bool {
	for _, t := range c.ExcludedTests {
		if t == test {
			return true
		}
	}
	return false
}
