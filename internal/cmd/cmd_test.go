package cmd

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/circletel/circletel/internal/jobs"
)

const testJWTSecret = "test-secret-at-least-32-chars-long-0123"

func writeConfig(t *testing.T) string {
	t.Helper()
	t.Setenv("DATABASE_URL", "")
	path := filepath.Join(t.TempDir(), "circletel.json")
	data := `{
		"server": {"addr": "127.0.0.1:0"},
		"auth": {"supabase_jwt_secret": "` + testJWTSecret + `", "cron_secret": "cron-secret-value"},
		"storage": {"driver": "sqlite", "dsn": ":memory:"},
		"logging": {"level": "error"},
		"blob": {"driver": "memory"}
	}`
	if err := os.WriteFile(path, []byte(data), 0600); err != nil {
		t.Fatal(err)
	}
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd("1.2.3")
	out := &bytes.Buffer{}
	root.SetOut(out)
	root.SetErr(out)
	root.SetArgs(append([]string{"--env-file", ""}, args...))
	err := root.Execute()
	return out.String(), err
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "version")
	if err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(out) != "circletel-api 1.2.3" {
		t.Errorf("version output = %q", out)
	}
}

func TestJobList(t *testing.T) {
	out, err := execute(t, "job", "-c", writeConfig(t))
	if err != nil {
		t.Fatalf("job: %v", err)
	}
	for _, name := range []string{jobs.CCDebitOrders, jobs.DebitOrders, jobs.PaymentSyncMonitor, jobs.IntegrationsHealth} {
		if !strings.Contains(out, name) {
			t.Errorf("job list missing %s: %q", name, out)
		}
	}
}

func TestJobUnknown(t *testing.T) {
	_, err := execute(t, "job", "no-such-job", "-c", writeConfig(t))
	if !errors.Is(err, jobs.ErrUnknownJob) {
		t.Fatalf("err = %v, want ErrUnknownJob", err)
	}
	if !strings.Contains(err.Error(), jobs.PaymentSyncMonitor) {
		t.Errorf("error should list available jobs: %v", err)
	}
}

func TestJobRunPrintsResult(t *testing.T) {
	out, err := execute(t, "job", jobs.PaymentSyncMonitor, "-c", writeConfig(t))
	if err != nil {
		t.Fatalf("job: %v", err)
	}
	if !strings.Contains(out, `"checks"`) {
		t.Errorf("expected monitor result JSON, got %q", out)
	}
}

func TestConfigShowMasksSecrets(t *testing.T) {
	out, err := execute(t, "config", "show", "-c", writeConfig(t))
	if err != nil {
		t.Fatalf("config show: %v", err)
	}
	if strings.Contains(out, testJWTSecret) || strings.Contains(out, "cron-secret-value") {
		t.Errorf("secrets leaked: %s", out)
	}
	if !strings.Contains(out, `"supabase_jwt_secret": "test***`) {
		t.Errorf("expected masked jwt secret: %s", out)
	}
}

func TestMaskSecret(t *testing.T) {
	tests := []struct{ in, want string }{
		{"", ""},
		{"short", "*****"},
		{"abcdefghijkl", "abcd****ijkl"},
	}
	for _, tt := range tests {
		if got := maskSecret(tt.in); got != tt.want {
			t.Errorf("maskSecret(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestResolveConfigPath(t *testing.T) {
	root := NewRootCmd("dev")
	if got := resolveConfigPath(root, []string{"positional.json"}, "default.json"); got != "positional.json" {
		t.Errorf("positional = %q", got)
	}
	if got := resolveConfigPath(root, nil, "default.json"); got != "default.json" {
		t.Errorf("default = %q", got)
	}
	if err := root.PersistentFlags().Set("config", "flag.json"); err != nil {
		t.Fatal(err)
	}
	if got := resolveConfigPath(root, nil, "default.json"); got != "flag.json" {
		t.Errorf("flag = %q", got)
	}
}

func TestInitDefaultsRefusesOverwrite(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("CIRCLETEL_STORAGE_DRIVER", "")
	out := filepath.Join(t.TempDir(), "generated.json")

	if _, err := execute(t, "init", "--defaults", "-o", out); err != nil {
		t.Fatalf("init: %v", err)
	}
	if _, err := os.Stat(out); err != nil {
		t.Fatalf("config not written: %v", err)
	}

	_, err := execute(t, "init", "--defaults", "-o", out)
	if err == nil || !strings.Contains(err.Error(), "already exists") {
		t.Fatalf("second init err = %v", err)
	}
	if _, err := execute(t, "init", "--defaults", "--force", "-o", out); err != nil {
		t.Fatalf("init --force: %v", err)
	}
}
