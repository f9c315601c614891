package telemetry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pthm-cable/slime/components"
)

// SnapshotVersion is incremented when the format changes.
const SnapshotVersion = 1

// Snapshot holds the agent population at one frame.
type Snapshot struct {
	Version int    `json:"version"`
	Seed    uint64 `json:"seed"`

	Width  uint32 `json:"width"`
	Height uint32 `json:"height"`

	Frame uint64 `json:"frame"`

	Agents []AgentState `json:"agents"`

	Bookmark *Bookmark `json:"bookmark,omitempty"`
}

// AgentState is the JSON form of one agent.
type AgentState struct {
	X       float32 `json:"x"`
	Y       float32 `json:"y"`
	Heading float32 `json:"heading"`
}

// NewSnapshot captures agents read back at frame.
func NewSnapshot(seed uint64, width, height uint32, frame uint64, agents []components.Agent) *Snapshot {
	s := &Snapshot{
		Version: SnapshotVersion,
		Seed:    seed,
		Width:   width,
		Height:  height,
		Frame:   frame,
		Agents:  make([]AgentState, len(agents)),
	}
	for i, a := range agents {
		s.Agents[i] = AgentState{X: a.Position[0], Y: a.Position[1], Heading: a.Heading}
	}
	return s
}

// ToAgents converts the snapshot back into device records.
func (s *Snapshot) ToAgents() []components.Agent {
	out := make([]components.Agent, len(s.Agents))
	for i, a := range s.Agents {
		out[i].Position = [2]float32{a.X, a.Y}
		out[i].Heading = a.Heading
	}
	return out
}

// SaveSnapshot writes a snapshot to disk.
// Returns the filepath where it was saved.
func SaveSnapshot(snapshot *Snapshot, dir string) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create snapshot dir: %w", err)
	}

	name := fmt.Sprintf("agents_%08d", snapshot.Frame)
	if snapshot.Bookmark != nil {
		name += "_" + strings.ReplaceAll(string(snapshot.Bookmark.Type), " ", "_")
	}
	path := filepath.Join(dir, name+".json")

	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal snapshot: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("write snapshot: %w", err)
	}
	return path, nil
}

// LoadSnapshot reads a snapshot from disk.
func LoadSnapshot(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}

	var snapshot Snapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	if snapshot.Version != SnapshotVersion {
		return nil, fmt.Errorf("snapshot version %d, want %d", snapshot.Version, SnapshotVersion)
	}
	return &snapshot, nil
}
