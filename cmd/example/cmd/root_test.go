package cmd

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// resetState clears viper, flag values and HOME left over from earlier runs
func resetState(t *testing.T) {
	t.Helper()

	viper.Reset()
	cfgFile = ""
	configOutput = "table"
	for _, fs := range []*pflag.FlagSet{rootCmd.PersistentFlags(), configShowCmd.Flags()} {
		fs.VisitAll(func(f *pflag.Flag) {
			_ = f.Value.Set(f.DefValue)
			f.Changed = false
		})
	}
	t.Setenv("HOME", t.TempDir())
}

// execute runs the CLI with args against fresh config state and returns
// stdout and stderr
func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	resetState(t)

	var stdout, stderr bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stderr)
	rootCmd.SetArgs(append([]string{}, args...))
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
	})

	err := Execute()
	return stdout.String(), stderr.String(), err
}

func lines(s string) []string {
	return strings.Split(strings.TrimSpace(s), "\n")
}

func assertSequence(t *testing.T, got []string, want []string) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("expected %d records, got %d:\n%s", len(want), len(got), strings.Join(got, "\n"))
	}
	for i := range want {
		if !strings.Contains(got[i], want[i]) {
			t.Errorf("record %d = %q, want it to contain %q", i, got[i], want[i])
		}
	}
}

var fullSequence = []string{
	"INFO: Starting",
	"DEBUG: Doing something with [1, 2]",
	"INFO: Got 3",
	"INFO: Exiting!",
}

func TestExecuteLogsFullSequence(t *testing.T) {
	out, _, err := execute(t)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	got := lines(out)
	assertSequence(t, got, fullSequence)
	for _, line := range got {
		if !strings.Contains(line, "run_id:") {
			t.Errorf("record missing run_id: %q", line)
		}
	}
}

func TestRunSubcommand(t *testing.T) {
	out, _, err := execute(t, "run")
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	assertSequence(t, lines(out), fullSequence)
}

func TestEnvironmentOverridesDefaultLevel(t *testing.T) {
	t.Setenv("EXAMPLE_LOG_LEVEL", "info")

	out, _, err := execute(t)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	assertSequence(t, lines(out), []string{
		"INFO: Starting",
		"INFO: Got 3",
		"INFO: Exiting!",
	})
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestConfigFileSelectsJSONFormat(t *testing.T) {
	path := writeConfig(t, "log:\n  format: json\n")

	out, _, err := execute(t, "--config", path)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	var messages []string
	for _, line := range lines(out) {
		var entry struct {
			Level   string                 `json:"level"`
			Message string                 `json:"message"`
			Fields  map[string]interface{} `json:"fields"`
		}
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			t.Fatalf("record is not JSON: %q", line)
		}
		if entry.Fields["run_id"] == nil {
			t.Errorf("record missing run_id: %q", line)
		}
		messages = append(messages, entry.Level+" "+entry.Message)
	}

	want := "INFO Starting|DEBUG Doing something with [1, 2]|INFO Got 3|INFO Exiting!"
	if got := strings.Join(messages, "|"); got != want {
		t.Errorf("messages = %q, want %q", got, want)
	}
}

func TestFlagOverridesConfigFile(t *testing.T) {
	path := writeConfig(t, "log:\n  level: error\n")

	out, _, err := execute(t, "--config", path, "--log-level", "debug")
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	assertSequence(t, lines(out), fullSequence)
}

func TestDefaultConfigFileInHome(t *testing.T) {
	home := t.TempDir()
	dir := filepath.Join(home, ".example")
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("log:\n  level: warn\n"), 0644); err != nil {
		t.Fatal(err)
	}

	resetState(t)
	t.Setenv("HOME", home)
	initConfig()

	cfg, err := loadConfig()
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.Log.Level != "warn" {
		t.Errorf("log.level = %q, want warn", cfg.Log.Level)
	}
}

func TestMissingExplicitConfigFails(t *testing.T) {
	out, _, err := execute(t, "--config", filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil {
		t.Fatal("expected error for missing config file")
	}
	if !strings.Contains(err.Error(), "failed to read config") {
		t.Errorf("unexpected error: %v", err)
	}
	if out != "" {
		t.Errorf("no records expected on config failure, got %q", out)
	}
}

func TestInvalidLogSettingsFail(t *testing.T) {
	if _, _, err := execute(t, "--log-level", "loud"); err == nil {
		t.Error("expected error for unknown log level")
	}
	if _, _, err := execute(t, "--log-format", "xml"); err == nil {
		t.Error("expected error for unknown log format")
	}
}

func TestLogFileAndMetricsTextfile(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "logs", "example.log")
	promPath := filepath.Join(dir, "example.prom")

	out, _, err := execute(t, "--log-file", logPath, "--metrics-textfile", promPath)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	assertSequence(t, lines(out), fullSequence)

	logData, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	assertSequence(t, lines(string(logData)), fullSequence)

	promData, err := os.ReadFile(promPath)
	if err != nil {
		t.Fatalf("read metrics textfile: %v", err)
	}
	for _, want := range []string{"example_sum_result 3", "example_runs_total 1"} {
		if !strings.Contains(string(promData), want) {
			t.Errorf("metrics textfile missing %q:\n%s", want, promData)
		}
	}
}

func TestConfigShowYAML(t *testing.T) {
	t.Setenv("EXAMPLE_SHUTDOWN_TIMEOUT", "10s")

	out, _, err := execute(t, "config", "show", "-o", "yaml")
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	var cfg struct {
		Log struct {
			Level  string `yaml:"level"`
			Format string `yaml:"format"`
		} `yaml:"log"`
		Shutdown struct {
			Timeout string `yaml:"timeout"`
		} `yaml:"shutdown"`
	}
	if err := yaml.Unmarshal([]byte(out), &cfg); err != nil {
		t.Fatalf("output is not YAML: %v\n%s", err, out)
	}
	if cfg.Log.Level != "debug" || cfg.Log.Format != "text" {
		t.Errorf("unexpected log config: %+v", cfg.Log)
	}
	if cfg.Shutdown.Timeout != "10s" {
		t.Errorf("shutdown.timeout = %q, want 10s", cfg.Shutdown.Timeout)
	}
	if strings.Contains(out, "Exiting!") {
		t.Errorf("config show must not run the example:\n%s", out)
	}
}

func TestConfigShowJSON(t *testing.T) {
	out, _, err := execute(t, "config", "show", "-o", "json", "--log-format", "json")
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	var cfg Config
	if err := json.Unmarshal([]byte(out), &cfg); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, out)
	}
	if cfg.Log.Format != "json" {
		t.Errorf("log.format = %q, want json", cfg.Log.Format)
	}
	if cfg.Tracing.Endpoint != "localhost:4318" {
		t.Errorf("tracing.endpoint = %q", cfg.Tracing.Endpoint)
	}
	if cfg.Shutdown.Timeout != defaultShutdownTimeout {
		t.Errorf("shutdown.timeout = %v, want %v", cfg.Shutdown.Timeout, defaultShutdownTimeout)
	}
	if !strings.Contains(out, `"timeout": "5s"`) {
		t.Errorf("timeout should render as a duration string:\n%s", out)
	}
}

func TestConfigShowTableIsDefault(t *testing.T) {
	t.Setenv("EXAMPLE_LOG_LEVEL", "warn")

	out, _, err := execute(t, "config", "show")
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	rows := map[string]string{
		"log.level":           "warn",
		"log.format":          "text",
		"shutdown.timeout":    "5s",
		"tracing.endpoint":    "localhost:4318",
		"tracing.environment": "development",
	}
	for _, line := range lines(out) {
		for key, value := range rows {
			if strings.Contains(line, key) {
				if !strings.Contains(line, value) {
					t.Errorf("row for %s = %q, want value %q", key, line, value)
				}
				delete(rows, key)
			}
		}
	}
	for key := range rows {
		t.Errorf("table missing row for %s:\n%s", key, out)
	}
	if strings.Contains(out, "Exiting!") {
		t.Errorf("config show must not run the example:\n%s", out)
	}
}

func TestConfigShowUnknownFormat(t *testing.T) {
	if _, _, err := execute(t, "config", "show", "-o", "xml"); err == nil {
		t.Fatal("expected error for unknown output format")
	}
}

func TestShutdownConfigJSONRoundTrip(t *testing.T) {
	data, err := json.Marshal(ShutdownConfig{Timeout: 1500 * time.Millisecond})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if string(data) != `{"timeout":"1.5s"}` {
		t.Errorf("json = %s", data)
	}

	var got ShutdownConfig
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if got.Timeout != 1500*time.Millisecond {
		t.Errorf("timeout = %v", got.Timeout)
	}

	if err := json.Unmarshal([]byte(`{"timeout":"soon"}`), &got); err == nil {
		t.Error("expected error for invalid duration")
	}
}

func TestVersion(t *testing.T) {
	out, _, err := execute(t, "version")
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if strings.TrimSpace(out) != "example dev" {
		t.Errorf("version output = %q", out)
	}
}
