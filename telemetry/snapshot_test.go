package telemetry

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pthm-cable/slime/components"
)

func TestSnapshotSaveLoad(t *testing.T) {
	tmpDir := t.TempDir()

	agents := []components.Agent{
		{Position: [2]float32{0.25, -0.5}, Heading: 1.5},
		{Position: [2]float32{-1, 1}, Heading: -3},
	}
	snapshot := NewSnapshot(42, 640, 360, 1000, agents)
	snapshot.Bookmark = &Bookmark{Type: BookmarkNetworkFormed, Frame: 1000, Description: "test"}

	path, err := SaveSnapshot(snapshot, tmpDir)
	if err != nil {
		t.Fatalf("SaveSnapshot failed: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("snapshot file not found: %v", err)
	}
	if want := "agents_00001000_network_formed.json"; filepath.Base(path) != want {
		t.Errorf("file name = %s, want %s", filepath.Base(path), want)
	}

	loaded, err := LoadSnapshot(path)
	if err != nil {
		t.Fatalf("LoadSnapshot failed: %v", err)
	}
	if loaded.Seed != 42 || loaded.Width != 640 || loaded.Height != 360 || loaded.Frame != 1000 {
		t.Errorf("header = %+v", loaded)
	}
	if loaded.Bookmark == nil || loaded.Bookmark.Type != BookmarkNetworkFormed {
		t.Errorf("bookmark = %+v", loaded.Bookmark)
	}

	got := loaded.ToAgents()
	if len(got) != len(agents) {
		t.Fatalf("agents = %d, want %d", len(got), len(agents))
	}
	for i := range agents {
		if got[i].Position != agents[i].Position || got[i].Heading != agents[i].Heading {
			t.Errorf("agent %d = %+v, want %+v", i, got[i], agents[i])
		}
	}
}

func TestLoadSnapshotRejectsVersion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "old.json")
	if err := os.WriteFile(path, []byte(`{"version": 99, "agents": []}`), 0644); err != nil {
		t.Fatal(err)
	}
	_, err := LoadSnapshot(path)
	if err == nil || !strings.Contains(err.Error(), "version") {
		t.Errorf("LoadSnapshot err = %v, want version error", err)
	}
}
