package lifecycle

import "strconv"

// Phase is one step of the forward-only startup and shutdown sequence.
type Phase int

const (
	PhaseCreated Phase = iota
	PhaseConfigLoaded
	PhaseLoggingReady
	PhaseSignalsArmed
	PhaseUserInitialized
	PhaseRunning
	PhaseShuttingDown
	PhaseCleanedUp
)

var phaseNames = [...]string{
	PhaseCreated:         "Created",
	PhaseConfigLoaded:    "ConfigLoaded",
	PhaseLoggingReady:    "LoggingReady",
	PhaseSignalsArmed:    "SignalsArmed",
	PhaseUserInitialized: "UserInitialized",
	PhaseRunning:         "Running",
	PhaseShuttingDown:    "ShuttingDown",
	PhaseCleanedUp:       "CleanedUp",
}

func (p Phase) String() string {
	if p >= 0 && int(p) < len(phaseNames) {
		return phaseNames[p]
	}
	return "Phase(" + strconv.Itoa(int(p)) + ")"
}

// PhaseNames lists every phase in order.
func PhaseNames() []string {
	return append([]string(nil), phaseNames[:]...)
}
