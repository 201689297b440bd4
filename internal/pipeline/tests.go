package pipeline

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// TestKind classifies a discovered test by its name.
type TestKind int

const (
	OtherTest TestKind = iota
	UnitTest
	FunctionalTest
)

// Classify returns UnitTest for names containing "unit" and FunctionalTest
// for names containing "ftest".
func Classify(name string) TestKind {
	switch {
	case strings.Contains(name, "unit"):
		return UnitTest
	case strings.Contains(name, "ftest"):
		return FunctionalTest
	}
	return OtherTest
}

// ActiveTests returns the known tests minus the excluded ones, in order.
func ActiveTests(known, excluded []string) []string {
	skip := make(map[string]bool, len(excluded))
	for _, e := range excluded {
		skip[e] = true
	}
	var active []string
	for _, t := range known {
		if !skip[t] {
			active = append(active, t)
		}
	}
	return active
}

// TestFilter builds the ctest regex selecting exactly the given tests.
// Names are matched literally and whole, so "unit" does not select
// "unit_long".
func TestFilter(tests []string) string {
	quoted := make([]string, len(tests))
	for i, t := range tests {
		quoted[i] = regexp.QuoteMeta(t)
	}
	return "^(" + strings.Join(quoted, "|") + ")$"
}

// TestArgs builds the arguments for the test stage. With no discovered
// tests there is nothing to filter on and every test runs. When tests are
// known but all of them are excluded, ok is false and the test stage is
// skipped.
func TestArgs(active []string, discovered, verbose bool) (args []string, ok bool) {
	if discovered && len(active) == 0 {
		return nil, false
	}
	if len(active) > 0 {
		args = append(args, "-R", TestFilter(active))
	}
	if verbose {
		args = append(args, "-V")
	}
	return args, true
}

type testList struct {
	Tests []struct {
		Name string `json:"name"`
	} `json:"tests"`
}

// ParseTestList decodes list-tests output of the form
// {"tests":[{"name":"..."}]}. Empty names and duplicates are dropped.
func ParseTestList(data []byte) ([]string, error) {
	var list testList
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("parse test list: %w", err)
	}
	seen := make(map[string]bool, len(list.Tests))
	names := make([]string, 0, len(list.Tests))
	for _, t := range list.Tests {
		name := strings.TrimSpace(t.Name)
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		names = append(names, name)
	}
	return names, nil
}

// MergeTests appends names not already in known and returns the result
// with the additions.
func MergeTests(known, found []string) (merged, added []string) {
	have := make(map[string]bool, len(known))
	for _, t := range known {
		have[t] = true
	}
	merged = append([]string(nil), known...)
	for _, t := range found {
		if !have[t] {
			have[t] = true
			merged = append(merged, t)
			added = append(added, t)
		}
	}
	return merged, added
}
