package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/urfave/cli/v3"
)

func TestLoadConfigFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := "temperature: 0.7\nfilter_threshold: 0.5\nsteps: 12\nterminator: 0\nlog_level: debug\nserver_address: 0.0.0.0:9000\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := loadConfigFile(path)
	if err != nil {
		t.Fatalf("loadConfigFile: %v", err)
	}
	if cfg.Temperature == nil || *cfg.Temperature != 0.7 {
		t.Fatalf("temperature: %v", cfg.Temperature)
	}
	if cfg.Terminator == nil || *cfg.Terminator != 0 {
		t.Fatalf("terminator 0 should be distinguishable from unset: %v", cfg.Terminator)
	}
	if cfg.Seed != nil {
		t.Fatalf("seed should be unset, got %v", *cfg.Seed)
	}
	if cfg.LogLevel != "debug" || cfg.ServerAddress != "0.0.0.0:9000" {
		t.Fatalf("unexpected strings: %+v", cfg)
	}
}

func TestLoadConfigFileMissingAndInvalid(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	cfg, err := loadConfigFile(filepath.Join(dir, "nope.yaml"))
	if err != nil || cfg.Steps != nil {
		t.Fatalf("missing file should yield zero config, got %+v err=%v", cfg, err)
	}

	bad := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(bad, []byte("steps: [oops"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := loadConfigFile(bad); err == nil {
		t.Fatal("expected parse error")
	}
}

// runSampling parses args with the sampling flags and applies cfg.
func runSampling(t *testing.T, cfg Config, args ...string) samplingFlags {
	t.Helper()
	var s samplingFlags
	cmd := &cli.Command{
		Name:  "test",
		Flags: s.flags(),
		Action: func(ctx context.Context, c *cli.Command) error {
			applySamplingConfig(c, cfg, &s)
			return nil
		},
	}
	if err := cmd.Run(context.Background(), append([]string{"test"}, args...)); err != nil {
		t.Fatalf("Run: %v", err)
	}
	return s
}

func TestApplySamplingConfig(t *testing.T) {
	t.Parallel()

	temp, steps, term := 0.3, int64(7), int64(4)
	cfg := Config{Temperature: &temp, Steps: &steps, Terminator: &term}

	s := runSampling(t, cfg)
	if s.temperature != 0.3 || s.steps != 7 {
		t.Fatalf("config not applied: %+v", s)
	}
	if !s.hasTerminator || s.terminator != 4 {
		t.Fatalf("terminator from config not applied: %+v", s)
	}
	if s.filterThreshold != 0.9 || s.seed != -1 {
		t.Fatalf("flag defaults lost: %+v", s)
	}

	s = runSampling(t, cfg, "--temp", "2", "-n", "3", "--terminator", "9")
	if s.temperature != 2 || s.steps != 3 || s.terminator != 9 {
		t.Fatalf("explicit flags should win over config: %+v", s)
	}

	s = runSampling(t, Config{})
	if s.hasTerminator {
		t.Fatal("terminator should be unset without flag or config")
	}
}

func TestSamplingOptions(t *testing.T) {
	t.Parallel()

	s := samplingFlags{steps: 5, temperature: 0.5, filterThreshold: 0.8, seed: 3, terminator: 2, hasTerminator: true}
	opts := s.options(nil)
	if opts.Steps != 5 || opts.Temperature != 0.5 || opts.FilterThreshold != 0.8 || opts.Seed != 3 {
		t.Fatalf("unexpected options: %+v", opts)
	}
	if opts.Terminator == nil || *opts.Terminator != 2 {
		t.Fatalf("terminator: %v", opts.Terminator)
	}
}
