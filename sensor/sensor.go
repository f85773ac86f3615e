// Package sensor abstracts acquisition of raw motion readings. Hardware
// drivers live outside this module; the Source interface is the seam they
// plug into.
package sensor

import (
	"math"
	"sync"

	"github.com/INLOpen/motionrelay/record"
)

// Source provides one set of raw motion readings per call. Implementations
// are read by a single sender loop and are not required to be thread-safe.
type Source interface {
	ReadOrientation() record.Orientation
	ReadAngularRate() record.Vec3
	ReadLinearAcceleration() record.Vec3
}

// SimSource generates smooth deterministic readings. It stands in for the
// IMU during development and in tests.
type SimSource struct {
	mu   sync.Mutex
	step int
}

var _ Source = (*SimSource)(nil)

// NewSimSource creates a simulated source starting at phase zero.
func NewSimSource() *SimSource {
	return &SimSource{}
}

// ReadOrientation advances the simulation one step and returns slowly
// rotating aircraft-axis angles in degrees.
func (s *SimSource) ReadOrientation() record.Orientation {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.step++
	phase := float64(s.step) / 50.0
	return record.Orientation{
		Roll:  math.Mod(360+10*math.Sin(phase), 360),
		Pitch: math.Mod(360+5*math.Sin(phase/2), 360),
		Yaw:   math.Mod(float64(s.step)*0.5, 360),
	}
}

// ReadAngularRate returns the rotation rate matching the current phase.
func (s *SimSource) ReadAngularRate() record.Vec3 {
	s.mu.Lock()
	defer s.mu.Unlock()
	phase := float64(s.step) / 50.0
	return record.Vec3{
		X: 0.2 * math.Cos(phase),
		Y: 0.05 * math.Cos(phase/2),
		Z: 0.0087,
	}
}

// ReadLinearAcceleration returns gravity plus a small wobble, in Gs.
func (s *SimSource) ReadLinearAcceleration() record.Vec3 {
	s.mu.Lock()
	defer s.mu.Unlock()
	phase := float64(s.step) / 50.0
	return record.Vec3{
		X: 0.02 * math.Sin(phase),
		Y: 0.01 * math.Sin(phase/3),
		Z: 1 + 0.005*math.Sin(phase*2),
	}
}
