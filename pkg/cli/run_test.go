package cli

import (
	"testing"
)

func TestBuildEnvExplicitPairsOnly(t *testing.T) {
	env := buildEnv([]string{"FOO=bar", "BAZ=qux", "malformed"}, false)
	if len(env) != 2 {
		t.Fatalf("expected 2 entries, got %+v", env)
	}
	if env["FOO"] != "bar" || env["BAZ"] != "qux" {
		t.Errorf("unexpected env: %+v", env)
	}
}

func TestBuildEnvAllMergesCallerEnvironment(t *testing.T) {
	t.Setenv("AWF_TEST_PASSTHROUGH_VAR", "passthrough-value")

	env := buildEnv([]string{"AWF_TEST_PASSTHROUGH_VAR=overridden"}, true)
	if env["AWF_TEST_PASSTHROUGH_VAR"] != "overridden" {
		t.Error("expected an explicit --env to override the passed-through caller value")
	}

	if _, ok := env["PATH"]; !ok {
		t.Error("expected --env-all to pass through the caller's PATH")
	}
}

func TestReservedExitCodesAreDistinct(t *testing.T) {
	if reservedStartupFailureExitCode == 0 {
		t.Error("startup failure must not reuse exit code 0 (reserved for agent success)")
	}
	if reservedSignalExitCode != 130 {
		t.Errorf("spec §6 fixes the signal exit code at 130, got %d", reservedSignalExitCode)
	}
	if reservedStartupFailureExitCode == reservedSignalExitCode {
		t.Error("startup-failure and signal exit codes must be distinguishable")
	}
}
