package main

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"pkt.systems/pslog"

	"github.com/custodhq/custod/internal/version"
)

func executeRootCommand(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand(pslog.NewStructured(io.Discard))
	var stdout bytes.Buffer
	var stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func TestVersionCommandPrintsVersion(t *testing.T) {
	stdout, stderr, err := executeRootCommand(t, "version")
	if err != nil {
		t.Fatalf("version command failed: %v", err)
	}
	if stderr != "" {
		t.Fatalf("expected empty stderr, got %q", stderr)
	}
	want := "custod " + version.String() + "\n"
	if stdout != want {
		t.Fatalf("unexpected stdout: got %q want %q", stdout, want)
	}
}

func TestParseOptionsTypesValues(t *testing.T) {
	opts, err := parseOptions([]string{"name=edge", "count=3", "deep={\"a\":1}", "flag=true"})
	if err != nil {
		t.Fatalf("parseOptions() error = %v", err)
	}
	if opts["name"] != "edge" {
		t.Fatalf("name = %#v, want string edge", opts["name"])
	}
	if opts["count"] != float64(3) {
		t.Fatalf("count = %#v, want number 3", opts["count"])
	}
	if opts["flag"] != true {
		t.Fatalf("flag = %#v, want true", opts["flag"])
	}
	deep, ok := opts["deep"].(map[string]any)
	if !ok || deep["a"] != float64(1) {
		t.Fatalf("deep = %#v, want object", opts["deep"])
	}

	if _, err := parseOptions([]string{"novalue"}); err == nil {
		t.Fatal("parseOptions(novalue) error = nil, want key=value failure")
	}
	if _, err := parseOptions([]string{"=x"}); err == nil {
		t.Fatal("parseOptions(=x) error = nil, want empty key failure")
	}
}

func TestConfigInitWritesDefaultsAndRespectsForce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")

	stdout, _, err := executeRootCommand(t, "--config", path, "config", "init")
	if err != nil {
		t.Fatalf("config init failed: %v", err)
	}
	if !strings.Contains(stdout, path) {
		t.Fatalf("stdout = %q, want path %q", stdout, path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading written config: %v", err)
	}
	if !strings.Contains(string(data), "port = 24950") {
		t.Fatalf("written config = %q, want default port", data)
	}

	if _, _, err := executeRootCommand(t, "--config", path, "config", "init"); err == nil {
		t.Fatal("second config init error = nil, want already-exists failure")
	}
	if _, _, err := executeRootCommand(t, "--config", path, "config", "init", "--force"); err != nil {
		t.Fatalf("config init --force failed: %v", err)
	}
}

func TestStatusReportsEmptyRegistry(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	runDir := t.TempDir()

	stdout, _, err := executeRootCommand(t, "status", "--run-dir", runDir, "--port", "0")
	if err != nil {
		t.Fatalf("status failed: %v", err)
	}
	if !strings.Contains(stdout, "no endpoints registered in "+runDir) {
		t.Fatalf("stdout = %q, want empty-registry notice", stdout)
	}
	if !strings.Contains(stdout, "daemon: unreachable") {
		t.Fatalf("stdout = %q, want unreachable notice", stdout)
	}
}

func TestStatusHonorsRunDirFromEnvironment(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	runDir := t.TempDir()
	t.Setenv("CUSTOD_RUN_DIR", runDir)

	stdout, _, err := executeRootCommand(t, "status", "--port", "0")
	if err != nil {
		t.Fatalf("status failed: %v", err)
	}
	if !strings.Contains(stdout, "no endpoints registered in "+runDir) {
		t.Fatalf("stdout = %q, want registry dir from environment", stdout)
	}
}

func TestCallRejectsInvalidConfig(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	_, _, err := executeRootCommand(t, "call", "ping", "--hostname", "0.0.0.0")
	if err == nil {
		t.Fatal("call with non-loopback hostname error = nil, want validation failure")
	}
	if !strings.Contains(err.Error(), "loopback") {
		t.Fatalf("error = %v, want loopback validation message", err)
	}
}
