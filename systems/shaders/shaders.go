// Package shaders embeds the WGSL programs run by hardware backends.
package shaders

import _ "embed"

var (
	//go:embed simulate_world.wgsl
	SimulateWorld string

	//go:embed simulate_agents.wgsl
	SimulateAgents string

	//go:embed draw_world.wgsl
	DrawWorld string

	//go:embed draw_agents.wgsl
	DrawAgents string
)

// Entry points shared by every program.
const (
	ComputeEntry  = "main"
	VertexEntry   = "vs_main"
	FragmentEntry = "fs_main"
)

// All returns every program by name.
func All() map[string]string {
	return map[string]string{
		"simulate_world":  SimulateWorld,
		"simulate_agents": SimulateAgents,
		"draw_world":      DrawWorld,
		"draw_agents":     DrawAgents,
	}
}
