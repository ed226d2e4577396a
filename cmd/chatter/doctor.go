package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tomatyss/chatter/internal/infra/config"
	"github.com/tomatyss/chatter/internal/infra/logger"
	"github.com/tomatyss/chatter/internal/security"
)

// CheckStatus represents the result of a health check.
type CheckStatus string

const (
	StatusPass CheckStatus = "PASS"
	StatusWarn CheckStatus = "WARN"
	StatusFail CheckStatus = "FAIL"
)

// CheckResult holds the outcome of a single health check.
type CheckResult struct {
	Name    string
	Status  CheckStatus
	Message string
	Fix     string // optional fix suggestion
}

// Check is a named health check function.
type Check struct {
	Name string
	Fn   func(cfg *config.Config) CheckResult
}

func newDoctorCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check configuration, working directory and audit trail",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDoctor(cmd.OutOrStdout(), flags)
		},
	}
}

// runDoctor executes all health checks and reports results.
func runDoctor(w io.Writer, flags *rootFlags) error {
	// Some checks work without a config.
	cfg, cfgErr := config.Load(flags.configPath)
	if cfg != nil && flags.workingDir != "" {
		cfg.Agent.WorkingDirectory = flags.workingDir
	}

	checks := []Check{
		{Name: "Config file", Fn: checkConfigFile(flags.configPath, cfgErr)},
		{Name: "Working directory", Fn: checkWorkingDirectory},
		{Name: "Safety policy", Fn: checkSafetyPolicy},
		{Name: "Agent mode", Fn: checkAgentMode},
		{Name: "Audit log", Fn: checkAuditLog},
		{Name: "Tracer", Fn: checkTracer},
	}

	fmt.Fprintln(w, "chatter doctor")
	fmt.Fprintln(w, strings.Repeat("=", 50))
	fmt.Fprintln(w)

	var pass, warn, fail int
	for _, check := range checks {
		result := check.Fn(cfg)
		result.Name = check.Name

		fmt.Fprintf(w, "  %s %s: %s\n", statusIcon(result.Status), result.Name, result.Message)
		if result.Fix != "" {
			fmt.Fprintf(w, "      Fix: %s\n", result.Fix)
		}

		switch result.Status {
		case StatusPass:
			pass++
		case StatusWarn:
			warn++
		case StatusFail:
			fail++
		}
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, strings.Repeat("-", 50))
	fmt.Fprintf(w, "Results: %d passed, %d warnings, %d failed\n", pass, warn, fail)

	if fail > 0 {
		fmt.Fprintln(w, "\nFix the FAIL issues above before enabling agent mode.")
		return fmt.Errorf("%d check(s) failed", fail)
	}
	if warn > 0 {
		fmt.Fprintln(w, "\nchatter should work, but consider addressing the warnings.")
	} else {
		fmt.Fprintln(w, "\nAll checks passed.")
	}
	return nil
}

func statusIcon(s CheckStatus) string {
	switch s {
	case StatusPass:
		return "[PASS]"
	case StatusWarn:
		return "[WARN]"
	case StatusFail:
		return "[FAIL]"
	default:
		return "[????]"
	}
}

var errNoConfig = CheckResult{Status: StatusFail, Message: "cannot check, config not loaded"}

// checkConfigFile reports on the config file. A missing file is only a
// warning because the defaults apply.
func checkConfigFile(cfgPath string, cfgErr error) func(*config.Config) CheckResult {
	return func(_ *config.Config) CheckResult {
		if cfgErr != nil {
			return CheckResult{
				Status:  StatusFail,
				Message: fmt.Sprintf("config error: %v", cfgErr),
				Fix:     "Fix the reported fields, and make sure the file is not group or world writable",
			}
		}
		if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
			return CheckResult{
				Status:  StatusWarn,
				Message: fmt.Sprintf("no config file at %s, using defaults", cfgPath),
				Fix:     "Create chatter.yaml or pass --config",
			}
		}
		return CheckResult{
			Status:  StatusPass,
			Message: fmt.Sprintf("config loaded from %s", cfgPath),
		}
	}
}

// checkWorkingDirectory verifies the sandbox root exists and is writable.
func checkWorkingDirectory(cfg *config.Config) CheckResult {
	if cfg == nil {
		return errNoConfig
	}
	dir, err := filepath.Abs(cfg.Agent.WorkingDirectory)
	if err != nil {
		return CheckResult{Status: StatusFail, Message: fmt.Sprintf("resolve working directory: %v", err)}
	}

	info, err := os.Stat(dir)
	if err != nil {
		return CheckResult{
			Status:  StatusFail,
			Message: fmt.Sprintf("working directory %s: %v", dir, err),
			Fix:     "Create it or set agent.working_directory / --workdir",
		}
	}
	if !info.IsDir() {
		return CheckResult{Status: StatusFail, Message: fmt.Sprintf("%s is not a directory", dir)}
	}

	if err := probeWritable(dir); err != nil {
		return CheckResult{
			Status:  StatusWarn,
			Message: fmt.Sprintf("%s is not writable; write_file and update_file will fail", dir),
		}
	}
	return CheckResult{Status: StatusPass, Message: dir}
}

// checkSafetyPolicy builds the safety manager the agent would use and
// confirms it lets tools into the working directory.
func checkSafetyPolicy(cfg *config.Config) CheckResult {
	if cfg == nil {
		return errNoConfig
	}
	sm, err := security.NewSafetyManager(cfg.DomainAgentConfig(), logger.Discard())
	if err != nil {
		return CheckResult{Status: StatusFail, Message: err.Error()}
	}
	for _, p := range cfg.Agent.ExtraAllowedPaths {
		sm.AddAllowedPath(p)
	}
	for _, p := range cfg.Agent.ExtraForbiddenPaths {
		sm.AddForbiddenPath(p)
	}

	wd := sm.Config().WorkingDirectory
	if !sm.WouldAllowPath(wd) {
		return CheckResult{
			Status:  StatusFail,
			Message: fmt.Sprintf("working directory %s is inside a forbidden location", wd),
			Fix:     "Point agent.working_directory at a project directory",
		}
	}
	if len(sm.Config().AllowedExtensions) == 0 {
		return CheckResult{
			Status:  StatusWarn,
			Message: "no allowed extensions; every file tool call will be refused",
			Fix:     "Set agent.allowed_extensions",
		}
	}
	return CheckResult{
		Status: StatusPass,
		Message: fmt.Sprintf("%d allowed, %d forbidden paths; extensions: %s",
			len(sm.AllowedPaths()), len(sm.ForbiddenPaths()), strings.Join(sm.Config().AllowedExtensions, ", ")),
	}
}

func checkAgentMode(cfg *config.Config) CheckResult {
	if cfg == nil {
		return errNoConfig
	}
	if !cfg.Agent.Enabled {
		return CheckResult{
			Status:  StatusWarn,
			Message: "agent mode is off; the run session only executes tools after /agent on",
		}
	}
	mode := "live"
	if cfg.Agent.DryRunMode {
		mode = "dry run"
	}
	return CheckResult{
		Status:  StatusPass,
		Message: fmt.Sprintf("enabled (%s, auto backup %t)", mode, cfg.Agent.AutoBackup),
	}
}

// checkAuditLog verifies the audit file's directory can be written.
func checkAuditLog(cfg *config.Config) CheckResult {
	if cfg == nil {
		return errNoConfig
	}
	if !cfg.Audit.Enabled {
		return CheckResult{Status: StatusPass, Message: "disabled"}
	}

	dir := filepath.Dir(cfg.Audit.Path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return CheckResult{
			Status:  StatusFail,
			Message: fmt.Sprintf("cannot create %s: %v", dir, err),
			Fix:     "Set audit.path to a writable location",
		}
	}
	if err := probeWritable(dir); err != nil {
		return CheckResult{
			Status:  StatusFail,
			Message: fmt.Sprintf("%s is not writable", dir),
			Fix:     "Set audit.path to a writable location",
		}
	}
	return CheckResult{Status: StatusPass, Message: cfg.Audit.Path}
}

func checkTracer(cfg *config.Config) CheckResult {
	if cfg == nil {
		return errNoConfig
	}
	if !cfg.Tracer.Enabled {
		return CheckResult{Status: StatusPass, Message: "disabled"}
	}
	if cfg.Tracer.Exporter == "stdout" {
		return CheckResult{
			Status:  StatusWarn,
			Message: "stdout exporter interleaves spans with session output (mcp switches it to stderr)",
			Fix:     "Use tracer.exporter: stderr",
		}
	}
	return CheckResult{Status: StatusPass, Message: "exporter " + cfg.Tracer.Exporter}
}

func probeWritable(dir string) error {
	f, err := os.CreateTemp(dir, ".chatter-doctor-*")
	if err != nil {
		return err
	}
	name := f.Name()
	f.Close()
	return os.Remove(name)
}
