package main

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/felixgeelhaar/pacer/internal/config"
	"github.com/felixgeelhaar/pacer/internal/daemon"
	"github.com/felixgeelhaar/pacer/internal/domain"
	"github.com/felixgeelhaar/pacer/internal/ledger"
	"github.com/felixgeelhaar/pacer/internal/roadmap"
	"github.com/felixgeelhaar/pacer/internal/scheduler"
	"github.com/felixgeelhaar/pacer/internal/storage/local"
	"github.com/felixgeelhaar/pacer/internal/strategy"
)

func startDaemon(t *testing.T) string {
	t.Helper()

	cfg := config.DefaultLocalConfig()
	cfg.Sequencer.PopulationSize = 10
	cfg.Sequencer.MaxGenerations = 5
	cfg.Metrics.Enabled = false

	sched := scheduler.NewService(ledger.New(), strategy.NewEngine(strategy.WithSeed(1)))
	seq, err := roadmap.NewSequencer(cfg.Sequencer.Config, roadmap.WithSeed(1))
	if err != nil {
		t.Fatalf("create sequencer: %v", err)
	}
	store, err := local.NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("create store: %v", err)
	}
	roadmaps := roadmap.NewService(roadmap.NewRunner(seq, roadmap.DefaultRunnerConfig(), nil, nil), roadmap.NewLocalRepository(store), sched)

	srv, err := daemon.NewServer(daemon.ServerConfig{Config: cfg, Scheduler: sched, Roadmaps: roadmaps})
	if err != nil {
		t.Fatalf("create server: %v", err)
	}

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts.URL
}

// runCLI executes the root command against server and returns its output
func runCLI(t *testing.T, server string, args ...string) (string, error) {
	t.Helper()

	var out bytes.Buffer
	root := newRootCommand()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(append([]string{"--server", server}, args...))
	err := root.Execute()
	return out.String(), err
}

func TestRecordAndRecommend(t *testing.T) {
	server := startDaemon(t)

	for i := 0; i < strategy.DefaultMinDataPoints; i++ {
		out, err := runCLI(t, server, "record", "algebra", "--minutes", "20", "--prereq", "arithmetic")
		if err != nil {
			t.Fatalf("record error = %v\n%s", err, out)
		}
		if !strings.Contains(out, "Recorded attempt") {
			t.Errorf("record output = %q", out)
		}
	}

	out, err := runCLI(t, server, "recommend", "algebra")
	if err != nil {
		t.Fatalf("recommend error = %v", err)
	}
	if !strings.Contains(out, "Strategy for algebra") {
		t.Errorf("recommend output = %q", out)
	}

	out, err = runCLI(t, server, "topics")
	if err != nil || strings.TrimSpace(out) != "algebra" {
		t.Errorf("topics = %q, %v", out, err)
	}

	out, err = runCLI(t, server, "topics", "show", "algebra")
	if err != nil {
		t.Fatalf("topics show error = %v", err)
	}
	if !strings.Contains(out, "Attempts:      3") {
		t.Errorf("topics show output = %q", out)
	}

	out, err = runCLI(t, server, "topics", "prereqs", "algebra")
	if err != nil {
		t.Fatalf("prereqs error = %v", err)
	}
	if !strings.Contains(out, "arithmetic") {
		t.Errorf("prereqs output = %q", out)
	}

	out, err = runCLI(t, server, "overview")
	if err != nil {
		t.Fatalf("overview error = %v", err)
	}
	if !strings.Contains(out, "Total attempts:     3") {
		t.Errorf("overview output = %q", out)
	}
}

func TestRecord_RequiresMinutes(t *testing.T) {
	server := startDaemon(t)

	if _, err := runCLI(t, server, "record", "algebra"); err == nil {
		t.Error("expected error without --minutes")
	}
}

func TestRecommend_UnknownTopic(t *testing.T) {
	server := startDaemon(t)

	out, err := runCLI(t, server, "recommend", "unknown")
	if err != nil {
		t.Fatalf("recommend error = %v", err)
	}
	if !strings.Contains(out, "No strategy for unknown yet") {
		t.Errorf("output = %q", out)
	}
}

func TestJSONOutput(t *testing.T) {
	server := startDaemon(t)

	out, err := runCLI(t, server, "-o", "json", "sequence", "a", "b", "c")
	if err != nil {
		t.Fatalf("sequence error = %v", err)
	}

	var result roadmap.Result
	if err := json.Unmarshal([]byte(out), &result); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, out)
	}
	if len(result.Topics) != 3 {
		t.Errorf("sequenced %d topics, want 3", len(result.Topics))
	}
}

func TestRoadmapLifecycle(t *testing.T) {
	server := startDaemon(t)

	file := filepath.Join(t.TempDir(), "curriculum.yaml")
	content := `topics:
  - id: arithmetic
    subtopics:
      - title: addition
        completed: true
      - title: division
  - id: algebra
    title: Algebra
`
	if err := os.WriteFile(file, []byte(content), 0644); err != nil {
		t.Fatalf("write file: %v", err)
	}

	out, err := runCLI(t, server, "-o", "json", "roadmap", "create", "--title", "maths", "--file", file)
	if err != nil {
		t.Fatalf("roadmap create error = %v\n%s", err, out)
	}
	var rm domain.Roadmap
	if err := json.Unmarshal([]byte(out), &rm); err != nil {
		t.Fatalf("decode roadmap: %v", err)
	}
	if rm.Title != "maths" || len(rm.Topics) != 2 {
		t.Fatalf("roadmap = %+v", rm)
	}

	out, err = runCLI(t, server, "roadmap", "show", rm.ID.String())
	if err != nil || !strings.Contains(out, "maths") {
		t.Errorf("roadmap show = %q, %v", out, err)
	}

	out, err = runCLI(t, server, "roadmap", "list")
	if err != nil || !strings.Contains(out, rm.ID.String()) {
		t.Errorf("roadmap list = %q, %v", out, err)
	}

	out, err = runCLI(t, server, "roadmap", "resequence", rm.ID.String())
	if err != nil || !strings.Contains(out, "resequenced") {
		t.Errorf("roadmap resequence = %q, %v", out, err)
	}

	if _, err := runCLI(t, server, "roadmap", "show", "not-a-uuid"); err == nil {
		t.Error("expected error for invalid id")
	}
}

func TestDaemonNotRunning(t *testing.T) {
	ts := httptest.NewServer(nil)
	url := ts.URL
	ts.Close()

	_, err := runCLI(t, url, "topics")
	if err == nil || !strings.Contains(err.Error(), "pacer start") {
		t.Errorf("error = %v, want hint to start the daemon", err)
	}

	out, err := runCLI(t, url, "status")
	if err != nil || !strings.Contains(out, "stopped") {
		t.Errorf("status = %q, %v", out, err)
	}
}

func TestStatus(t *testing.T) {
	server := startDaemon(t)

	out, err := runCLI(t, server, "status")
	if err != nil {
		t.Fatalf("status error = %v", err)
	}
	if !strings.Contains(out, "Status:   running") || !strings.Contains(out, "Address:  "+server) {
		t.Errorf("status output = %q", out)
	}
}

func TestInitAndConfig(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	out, err := runCLI(t, "http://127.0.0.1:1", "init", "--storage", "sqlite", "--postgres-url", "postgres://localhost/pacer")
	if err != nil {
		t.Fatalf("init error = %v\n%s", err, out)
	}

	for _, name := range []string{"config.yaml", "secrets.yaml"} {
		if _, err := os.Stat(filepath.Join(home, ".pacer", name)); err != nil {
			t.Errorf("%s not written: %v", name, err)
		}
	}

	out, err = runCLI(t, "http://127.0.0.1:1", "config")
	if err != nil {
		t.Fatalf("config error = %v", err)
	}
	if !strings.Contains(out, "driver: sqlite") {
		t.Errorf("config output = %q", out)
	}
	if strings.Contains(out, "postgres://") {
		t.Error("config output must not include secrets")
	}

	// Running again keeps the existing config
	out, err = runCLI(t, "http://127.0.0.1:1", "init")
	if err != nil || !strings.Contains(out, "already exists") {
		t.Errorf("second init = %q, %v", out, err)
	}
}

func TestInit_RejectsUnknownDriver(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	if _, err := runCLI(t, "http://127.0.0.1:1", "init", "--storage", "mongo"); err == nil {
		t.Error("expected error for unknown storage driver")
	}
}

func TestRoadmapTopics(t *testing.T) {
	topics, err := roadmapTopics([]string{"a", "b"}, "")
	if err != nil || len(topics) != 2 || topics[0].Title != "a" {
		t.Errorf("roadmapTopics() = %+v, %v", topics, err)
	}

	if _, err := roadmapTopics(nil, ""); err == nil {
		t.Error("expected error with no topics")
	}
	if _, err := roadmapTopics([]string{"a"}, "topics.yaml"); err == nil {
		t.Error("expected error with args and file")
	}
}

func TestLoadTopicsFile(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name    string
		content string
		want    int
		wantErr bool
	}{
		{"yaml list", "- id: a\n- id: b\n", 2, false},
		{"json list", `[{"id": "a", "title": "A"}]`, 1, false},
		{"wrapped", "topics:\n  - id: a\n", 1, false},
		{"empty", "[]", 0, true},
		{"garbage", "::", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, strings.ReplaceAll(tt.name, " ", "_"))
			if err := os.WriteFile(path, []byte(tt.content), 0644); err != nil {
				t.Fatalf("write: %v", err)
			}
			topics, err := loadTopicsFile(path)
			if (err != nil) != tt.wantErr {
				t.Fatalf("loadTopicsFile() error = %v, wantErr %v", err, tt.wantErr)
			}
			if len(topics) != tt.want {
				t.Errorf("got %d topics, want %d", len(topics), tt.want)
			}
			for _, topic := range topics {
				if topic.Title == "" {
					t.Error("title should default to id")
				}
			}
		})
	}
}

func TestTailFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pacerd.log")
	if err := os.WriteFile(path, []byte("first line\nsecond line\nthird line\n"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}

	var buf bytes.Buffer
	if err := tailFile(&buf, path, 15); err != nil {
		t.Fatalf("tailFile() error = %v", err)
	}
	if got := buf.String(); got != "third line\n" {
		t.Errorf("tailFile() = %q, want only the last full line", got)
	}
}

func TestRenderProgressBar(t *testing.T) {
	tests := []struct {
		value float64
		want  string
	}{
		{0, "[░░░░]"},
		{0.5, "[██░░]"},
		{1, "[████]"},
		{1.5, "[████]"},
		{-1, "[░░░░]"},
	}

	for _, tt := range tests {
		if got := renderProgressBar(tt.value, 4); got != tt.want {
			t.Errorf("renderProgressBar(%v) = %q, want %q", tt.value, got, tt.want)
		}
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("short", 10); got != "short" {
		t.Errorf("truncate() = %q", got)
	}
	if got := truncate("a very long roadmap title", 6); got != "a ver…" {
		t.Errorf("truncate() = %q", got)
	}
}
