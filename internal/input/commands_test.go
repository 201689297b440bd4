package input

import "testing"

func TestParse(t *testing.T) {
	tests := []struct {
		line   string
		want   Command
		wantOK bool
	}{
		{"", RunNow, true},
		{"   ", RunNow, true},
		{"q", Quit, true},
		{"quit", Quit, true},
		{"e", EditStages, true},
		{"t", EditTests, true},
		{"c", ForceCleanBuild, true},
		{"ca", ToggleAlwaysClean, true},
		{"cf", SetCleanThreshold, true},
		{"ct", TogglePeriodicClean, true},
		{"n", SetBuildInterval, true},
		{"s", ToggleShowOptions, true},
		{"h", ToggleShowTests, true},
		{"v", ToggleVerbose, true},
		{"i", ToggleInterrupt, true},
		{"p", AddPattern, true},
		{"toggle-interrupt", ToggleInterrupt, true},
		{"Q", Unknown, false},
		{"build", Unknown, false},
	}
	for _, tt := range tests {
		got, ok := Parse(tt.line)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("Parse(%q) = (%v, %v), want (%v, %v)", tt.line, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestCommandNames(t *testing.T) {
	if RunNow.String() != "run-now" {
		t.Errorf("RunNow.String() = %q", RunNow.String())
	}
	if SetCleanThreshold.Key() != "cf" {
		t.Errorf("SetCleanThreshold.Key() = %q, want cf", SetCleanThreshold.Key())
	}
	for _, h := range Menu() {
		if h.Key == "q" {
			t.Error("Menu() should not list quit")
		}
	}
}
