package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/abelbrown/threadline/internal/api"
	"github.com/abelbrown/threadline/internal/config"
	"github.com/abelbrown/threadline/internal/fetch"
	"github.com/abelbrown/threadline/internal/store"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("THREADLINE_SERVER", "")
	t.Setenv("THREADLINE_TOKEN", "")

	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestBuildTabs(t *testing.T) {
	cfg := config.DefaultConfig()
	tabs := buildTabs(cfg, api.NewClient(cfg.Server.BaseURL, "", 0), fetch.NewFetcher(time.Second))

	if len(tabs) != len(cfg.Feeds) {
		t.Fatalf("tabs = %d, want %d", len(tabs), len(cfg.Feeds))
	}
	seen := make(map[string]bool)
	for _, tab := range tabs {
		if seen[tab.FeedID] {
			t.Errorf("duplicate feed id for %s", tab.Name)
		}
		seen[tab.FeedID] = true
		if tab.Source == nil {
			t.Errorf("%s has no source", tab.Name)
		}
	}

	home := tabs[0]
	want := api.Source{Endpoint: "/feed/home", Sort: "hot", Limit: cfg.Scroll.PageSize}.ID()
	if home.FeedID != want {
		t.Errorf("home id = %s, want the id of its first sort", home.FeedID)
	}
	if home.ReadOnly {
		t.Error("server tab is read-only")
	}
	if last := tabs[len(tabs)-1]; !last.ReadOnly {
		t.Error("rss tab accepts mutations")
	}
}

func TestConfigCommandAppliesOverrides(t *testing.T) {
	dir := t.TempDir()
	keys := filepath.Join(dir, "keys.sh")
	os.WriteFile(keys, []byte("export THREADLINE_TOKEN=\"secret\"\n"), 0600)

	out, err := execute(t, "config", "--data-dir", dir, "--server", "https://example.com/api", "--keys", keys)
	if err != nil {
		t.Fatalf("config: %v\n%s", err, out)
	}

	var cfg config.Config
	if err := json.Unmarshal([]byte(out), &cfg); err != nil {
		t.Fatalf("output is not json: %v\n%s", err, out)
	}
	if cfg.Server.BaseURL != "https://example.com/api" {
		t.Errorf("base url = %q", cfg.Server.BaseURL)
	}
	if cfg.Server.Token != "********" {
		t.Errorf("token not redacted: %q", cfg.Server.Token)
	}
}

func TestConfigInit(t *testing.T) {
	dir := t.TempDir()

	out, err := execute(t, "config", "--init", "--data-dir", dir)
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	if !strings.Contains(out, "config.json") {
		t.Errorf("output = %q", out)
	}
	if _, err := config.LoadFrom(filepath.Join(dir, "config.json")); err != nil {
		t.Errorf("written config does not load: %v", err)
	}

	if _, err := execute(t, "config", "--init", "--data-dir", dir); err == nil {
		t.Error("second init overwrote the file")
	}
}

func TestConfigCommandRejectsInvalidFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	os.WriteFile(path, []byte(`{"settings": {"feed_layout": "grid"}}`), 0600)

	_, err := execute(t, "config", "--config", path)
	if err == nil || !strings.Contains(err.Error(), "grid") {
		t.Errorf("err = %v", err)
	}
}

func TestPruneCommand(t *testing.T) {
	dir := t.TempDir()
	st, err := store.Open(filepath.Join(dir, "threadline.db"))
	if err != nil {
		t.Fatal(err)
	}
	st.SavePosition("old", store.Position{InView: []string{"post:1"}, SavedAt: time.Now().Add(-60 * 24 * time.Hour)})
	st.SavePosition("new", store.Position{InView: []string{"post:2"}})
	st.Close()

	out, err := execute(t, "prune", "--data-dir", dir)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "pruned 1 ") {
		t.Errorf("output = %q", out)
	}
}

func TestRunExitCode(t *testing.T) {
	t.Setenv("THREADLINE_SERVER", "")
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	os.WriteFile(path, []byte(`not json`), 0600)

	if code := run([]string{"config", "--config", path}); code != 1 {
		t.Errorf("exit code = %d, want 1", code)
	}
	if code := run([]string{"config", "--data-dir", dir, "--config", filepath.Join(dir, "missing.json")}); code != 0 {
		t.Errorf("exit code = %d, want 0", code)
	}
}
