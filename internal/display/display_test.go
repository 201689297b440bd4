package display

import (
	"bytes"
	"strings"
	"testing"

	"github.com/lucasnoah/autobuilder/internal/config"
	"github.com/lucasnoah/autobuilder/internal/pipeline"
)

func TestStatusFull(t *testing.T) {
	var buf bytes.Buffer
	p := New(&buf)

	cfg := config.Default()
	cfg.Options.ShowTests = true
	cfg.Options.AlwaysClean = true
	cfg.ExcludedTests = []string{"ftest_slow"}
	p.Status(cfg, []string{"unit_math", "ftest_slow", "smoke"})

	out := buf.String()
	for _, want := range []string{
		"Config",
		"Build - True",
		"Coverage - False",
		"Build interval: \t1",
		"Builds between clean:\t5",
		"*.c, *.cpp",
		"Unit tests",
		"unit_math",
		"Functional tests",
		"ftest_slow",
		"Other tests",
		"Always clean build active",
		"Watch Usage",
		"to choose which stages should be run",
		"to trigger a run",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("status output missing %q:\n%s", want, out)
		}
	}
}

func TestStatusMinimalHidesExcluded(t *testing.T) {
	var buf bytes.Buffer
	p := New(&buf)

	cfg := config.Default()
	cfg.Options.ShowOptions = false
	cfg.Options.ShowTests = true
	cfg.ExcludedTests = []string{"ftest_slow"}
	p.Status(cfg, []string{"unit_math", "ftest_slow"})

	out := buf.String()
	if strings.Contains(out, "Config") || strings.Contains(out, "Watch Usage") {
		t.Errorf("minimal status shows the full menu:\n%s", out)
	}
	if strings.Contains(out, "ftest_slow") {
		t.Error("minimal status lists an excluded test")
	}
	if !strings.Contains(out, "unit_math") {
		t.Error("minimal status hides an active test")
	}
	if !strings.Contains(out, "press ENTER to run") {
		t.Errorf("minimal menu missing:\n%s", out)
	}
}

func TestStatusTestsNeedTestStage(t *testing.T) {
	var buf bytes.Buffer
	cfg := config.Default()
	cfg.Options.ShowTests = true
	cfg.Stages.Set(config.StageTest, false)
	New(&buf).Status(cfg, []string{"unit_math"})
	if strings.Contains(buf.String(), "unit_math") {
		t.Error("tests listed while the test stage is disabled")
	}
}

func TestNoTestsDetected(t *testing.T) {
	var buf bytes.Buffer
	New(&buf).Tests(config.Default(), nil, false)
	if !strings.Contains(buf.String(), "No tests detected") {
		t.Errorf("output = %q", buf.String())
	}
}

func TestStageReports(t *testing.T) {
	var buf bytes.Buffer
	p := New(&buf)

	p.StageStart(pipeline.Step{Stage: "test", Args: []string{"-R", "(a)"}}, "/proj/scripts/test.sh")
	p.StageStderr("build", []byte("undefined reference"))
	p.StageExit("build", 2)
	p.Cancelled("test")

	out := buf.String()
	for _, want := range []string{
		"Running script: test.sh -R (a)",
		"Build encountered an error during execution:",
		"undefined reference\n",
		"Build exited with status 2",
		"Test interrupted",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestToggles(t *testing.T) {
	var buf bytes.Buffer
	New(&buf).Toggles("Stages", []Toggle{{Name: "build", On: true}, {Name: "coverage"}})
	out := buf.String()
	if !strings.Contains(out, " 1 [x] build") || !strings.Contains(out, " 2 [ ] coverage") {
		t.Errorf("toggles output:\n%s", out)
	}
}

func TestBoolAndClear(t *testing.T) {
	var buf bytes.Buffer
	p := New(&buf)
	if p.Bool(true) != "True" || p.Bool(false) != "False" {
		t.Errorf("Bool() without colour = %q / %q", p.Bool(true), p.Bool(false))
	}
	p.Clear()
	if buf.String() != clearScreen {
		t.Errorf("Clear() wrote %q", buf.String())
	}
}
