package soft

// TraceKind identifies a traced operation.
type TraceKind string

const (
	TraceClear    TraceKind = "clear"
	TraceDispatch TraceKind = "dispatch"
	TraceDraw     TraceKind = "draw"
)

// TraceEvent records one executed command.
type TraceEvent struct {
	Kind     TraceKind
	Pass     string // pass label
	Pipeline string // pipeline label, empty for clears

	Workgroups    [3]uint32 // dispatches
	VertexCount   uint32    // draws
	InstanceCount uint32    // draws
	Fragments     int       // draws: fragments written
}

func (d *Device) record(ev TraceEvent) {
	if !d.opts.Trace {
		return
	}
	d.mu.Lock()
	d.trace = append(d.trace, ev)
	d.mu.Unlock()
}

// Trace returns the events recorded since the last ResetTrace.
func (d *Device) Trace() []TraceEvent {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]TraceEvent, len(d.trace))
	copy(out, d.trace)
	return out
}

// ResetTrace discards recorded events.
func (d *Device) ResetTrace() {
	d.mu.Lock()
	d.trace = d.trace[:0]
	d.mu.Unlock()
}
