// Package status defines the indicator capability the client drives at
// connection state transitions. Indicators are purely observational; they
// never influence the connection state machine. The original deployment
// painted a Sense HAT LED matrix here.
package status

import "log/slog"

// Phase names a connection lifecycle transition.
type Phase string

const (
	PhaseConnecting Phase = "connecting"
	PhaseConnected  Phase = "connected"
	PhaseRetry      Phase = "retry"
	PhaseAborted    Phase = "aborted"
	PhaseStopped    Phase = "stopped"
)

// Color is the display hint accompanying a phase.
type Color string

const (
	ColorGreen Color = "green"
	ColorRed   Color = "red"
	ColorBlue  Color = "blue"
)

// Indicator receives connection phase transitions.
type Indicator interface {
	ShowStatus(phase Phase, color Color)
}

// LogIndicator reports transitions through a slog.Logger.
type LogIndicator struct {
	logger *slog.Logger
}

var _ Indicator = (*LogIndicator)(nil)

// NewLogIndicator creates an indicator that logs each transition.
func NewLogIndicator(logger *slog.Logger) *LogIndicator {
	return &LogIndicator{logger: logger.With("component", "StatusIndicator")}
}

func (i *LogIndicator) ShowStatus(phase Phase, color Color) {
	i.logger.Info("Connection status changed", "phase", string(phase), "color", string(color))
}

type nopIndicator struct{}

func (nopIndicator) ShowStatus(Phase, Color) {}

// Nop discards all transitions.
var Nop Indicator = nopIndicator{}
