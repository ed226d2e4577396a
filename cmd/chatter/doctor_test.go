package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/tomatyss/chatter/internal/infra/config"
)

func writeTestFile(t *testing.T, path, content string) error {
	t.Helper()
	return os.WriteFile(path, []byte(content), 0o600)
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Defaults()
	cfg.Agent.WorkingDirectory = t.TempDir()
	return cfg
}

func TestCheckConfigFile_Missing(t *testing.T) {
	fn := checkConfigFile("/nonexistent/path/chatter.yaml", nil)
	result := fn(nil)
	if result.Status != StatusWarn {
		t.Errorf("expected WARN for missing file, got %s", result.Status)
	}
	if result.Fix == "" {
		t.Error("expected fix suggestion for missing file")
	}
}

func TestCheckConfigFile_LoadError(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "chatter.yaml")
	if err := writeTestFile(t, cfgPath, "agent: {{"); err != nil {
		t.Fatal(err)
	}

	fn := checkConfigFile(cfgPath, &config.ValidationError{Errors: []string{"bad yaml"}})
	result := fn(nil)
	if result.Status != StatusFail {
		t.Errorf("expected FAIL for load error, got %s", result.Status)
	}
}

func TestCheckConfigFile_Loaded(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "chatter.yaml")
	if err := writeTestFile(t, cfgPath, "agent:\n  enabled: true\n"); err != nil {
		t.Fatal(err)
	}

	result := checkConfigFile(cfgPath, nil)(nil)
	if result.Status != StatusPass {
		t.Errorf("expected PASS, got %s: %s", result.Status, result.Message)
	}
}

func TestChecks_NilConfig(t *testing.T) {
	for name, fn := range map[string]func(*config.Config) CheckResult{
		"working directory": checkWorkingDirectory,
		"safety policy":     checkSafetyPolicy,
		"agent mode":        checkAgentMode,
		"audit log":         checkAuditLog,
		"tracer":            checkTracer,
	} {
		if got := fn(nil).Status; got != StatusFail {
			t.Errorf("%s: expected FAIL for nil config, got %s", name, got)
		}
	}
}

func TestCheckWorkingDirectory(t *testing.T) {
	cfg := testConfig(t)
	if got := checkWorkingDirectory(cfg); got.Status != StatusPass {
		t.Errorf("expected PASS, got %s: %s", got.Status, got.Message)
	}

	cfg.Agent.WorkingDirectory = filepath.Join(cfg.Agent.WorkingDirectory, "missing")
	if got := checkWorkingDirectory(cfg); got.Status != StatusFail {
		t.Errorf("expected FAIL for missing directory, got %s", got.Status)
	}
}

func TestCheckWorkingDirectory_NotADirectory(t *testing.T) {
	cfg := testConfig(t)
	file := filepath.Join(cfg.Agent.WorkingDirectory, "plain.txt")
	if err := writeTestFile(t, file, "x"); err != nil {
		t.Fatal(err)
	}
	cfg.Agent.WorkingDirectory = file

	if got := checkWorkingDirectory(cfg); got.Status != StatusFail {
		t.Errorf("expected FAIL for a file, got %s", got.Status)
	}
}

func TestCheckSafetyPolicy(t *testing.T) {
	cfg := testConfig(t)
	if got := checkSafetyPolicy(cfg); got.Status != StatusPass {
		t.Errorf("expected PASS, got %s: %s", got.Status, got.Message)
	}

	cfg.Agent.AllowedExtensions = nil
	if got := checkSafetyPolicy(cfg); got.Status != StatusWarn {
		t.Errorf("expected WARN with no extensions, got %s", got.Status)
	}
}

func TestCheckSafetyPolicy_ForbiddenWorkingDirectory(t *testing.T) {
	cfg := testConfig(t)
	cfg.Agent.WorkingDirectory = "/etc"
	if got := checkSafetyPolicy(cfg); got.Status != StatusFail {
		t.Errorf("expected FAIL for /etc, got %s", got.Status)
	}

	cfg = testConfig(t)
	cfg.Agent.ExtraForbiddenPaths = []string{cfg.Agent.WorkingDirectory}
	if got := checkSafetyPolicy(cfg); got.Status != StatusFail {
		t.Errorf("expected FAIL when the working directory is forbidden, got %s", got.Status)
	}
}

func TestCheckAgentMode(t *testing.T) {
	cfg := testConfig(t)
	cfg.Agent.Enabled = false
	if got := checkAgentMode(cfg); got.Status != StatusWarn {
		t.Errorf("expected WARN when disabled, got %s", got.Status)
	}

	cfg.Agent.Enabled = true
	cfg.Agent.DryRunMode = true
	got := checkAgentMode(cfg)
	if got.Status != StatusPass {
		t.Errorf("expected PASS when enabled, got %s", got.Status)
	}
	if !strings.Contains(got.Message, "dry run") {
		t.Errorf("expected dry run in message, got %q", got.Message)
	}
}

func TestCheckAuditLog(t *testing.T) {
	cfg := testConfig(t)
	if got := checkAuditLog(cfg); got.Status != StatusPass || got.Message != "disabled" {
		t.Errorf("expected PASS disabled, got %s: %s", got.Status, got.Message)
	}

	cfg.Audit.Enabled = true
	cfg.Audit.Path = filepath.Join(t.TempDir(), "logs", "audit.jsonl")
	if got := checkAuditLog(cfg); got.Status != StatusPass {
		t.Errorf("expected PASS, got %s: %s", got.Status, got.Message)
	}
	if _, err := os.Stat(filepath.Dir(cfg.Audit.Path)); err != nil {
		t.Errorf("expected audit dir to be created: %v", err)
	}
}

func TestCheckTracer(t *testing.T) {
	cfg := testConfig(t)
	if got := checkTracer(cfg); got.Status != StatusPass {
		t.Errorf("expected PASS when disabled, got %s", got.Status)
	}

	cfg.Tracer.Enabled = true
	cfg.Tracer.Exporter = "stdout"
	if got := checkTracer(cfg); got.Status != StatusWarn {
		t.Errorf("expected WARN for stdout exporter, got %s", got.Status)
	}

	cfg.Tracer.Exporter = "stderr"
	if got := checkTracer(cfg); got.Status != StatusPass {
		t.Errorf("expected PASS for stderr exporter, got %s", got.Status)
	}
}

func TestStatusIcon(t *testing.T) {
	tests := map[CheckStatus]string{
		StatusPass:         "[PASS]",
		StatusWarn:         "[WARN]",
		StatusFail:         "[FAIL]",
		CheckStatus("odd"): "[????]",
	}
	for status, want := range tests {
		if got := statusIcon(status); got != want {
			t.Errorf("statusIcon(%s) = %q, want %q", status, got, want)
		}
	}
}

func TestRunDoctor(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "chatter.yaml")
	if err := writeTestFile(t, cfgPath, "agent:\n  enabled: true\n"); err != nil {
		t.Fatal(err)
	}

	var out bytes.Buffer
	err := runDoctor(&out, &rootFlags{configPath: cfgPath, workingDir: t.TempDir()})
	if err != nil {
		t.Fatalf("runDoctor: %v\n%s", err, out.String())
	}
	if !strings.Contains(out.String(), "Results: 6 passed, 0 warnings, 0 failed") {
		t.Errorf("unexpected summary:\n%s", out.String())
	}
}

func TestRunDoctor_Fails(t *testing.T) {
	workDir := t.TempDir()
	cfgPath := filepath.Join(t.TempDir(), "chatter.yaml")
	content := "agent:\n  working_directory: " + workDir + "\n  extra_forbidden_paths:\n    - " + workDir + "\n"
	if err := writeTestFile(t, cfgPath, content); err != nil {
		t.Fatal(err)
	}

	var out bytes.Buffer
	err := runDoctor(&out, &rootFlags{configPath: cfgPath})
	if err == nil {
		t.Fatal("expected an error for a forbidden working directory")
	}
	if !strings.Contains(out.String(), "[FAIL] Safety policy") {
		t.Errorf("expected safety policy failure:\n%s", out.String())
	}
}
