package vm

// Phase is the lifecycle position of one VM run. Transitions only move
// forward; Failed is reachable from Preparing, Launching and
// BootScripted, and teardown runs exactly once after a successful
// launch.
type Phase int

const (
	PhaseInit Phase = iota
	PhasePreparing
	PhaseLaunching
	PhaseBootScripted
	PhaseReady
	PhaseTearingDown
	PhaseDone
	PhaseFailed
)

func (p Phase) String() string {
	switch p {
	case PhaseInit:
		return "init"
	case PhasePreparing:
		return "preparing"
	case PhaseLaunching:
		return "launching"
	case PhaseBootScripted:
		return "boot-scripted"
	case PhaseReady:
		return "ready"
	case PhaseTearingDown:
		return "tearing-down"
	case PhaseDone:
		return "done"
	case PhaseFailed:
		return "failed"
	default:
		return "unknown"
	}
}
