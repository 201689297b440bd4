package config

import "fmt"

// ValidationError represents a single validation issue with a config.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// knownStage is the set of valid stage names.
var knownStage = func() map[string]bool {
	m := make(map[string]bool, len(KnownStages))
	for _, s := range KnownStages {
		m[s] = true
	}
	return m
}()

// Validate checks a Config for structural and semantic errors.
// It returns a slice of all validation errors found (empty if valid).
func Validate(cfg *Config) []ValidationError {
	var errs []ValidationError

	seen := make(map[string]bool)
	for i, st := range cfg.Stages {
		field := fmt.Sprintf("stages[%d]", i)
		if !knownStage[st.Name] {
			errs = append(errs, ValidationError{
				Field:   field,
				Message: fmt.Sprintf("unknown stage %q", st.Name),
			})
			continue
		}
		if seen[st.Name] {
			errs = append(errs, ValidationError{
				Field:   field,
				Message: fmt.Sprintf("duplicate stage %q", st.Name),
			})
		}
		seen[st.Name] = true
	}

	// Clean and list-tests run without being toggled on, so they always
	// need a script.
	required := []string{StageClean, ListTests}
	for _, st := range cfg.Stages {
		if st.Enabled && knownStage[st.Name] && st.Name != StageClean {
			required = append(required, st.Name)
		}
	}
	for _, name := range required {
		if cfg.ScriptPaths[name] == "" {
			errs = append(errs, ValidationError{
				Field:   "script_paths." + name,
				Message: "is required",
			})
		}
	}

	if cfg.Options.BuildInterval < 1 {
		errs = append(errs, ValidationError{Field: "options.build_interval", Message: "must be at least 1"})
	}
	if cfg.Options.NumBuildsClean < 1 {
		errs = append(errs, ValidationError{Field: "options.num_builds_clean", Message: "must be at least 1"})
	}
	if len(cfg.Options.Patterns) == 0 {
		errs = append(errs, ValidationError{Field: "options.patterns", Message: "at least one pattern is required"})
	}
	for i, p := range cfg.Options.Patterns {
		if p == "" {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("options.patterns[%d]", i),
				Message: "must not be empty",
			})
		}
	}

	return errs
}
