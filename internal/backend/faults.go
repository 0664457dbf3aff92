package backend

import (
	"fmt"
	"math/rand"
	"sync"
)

// FaultPolicy decides whether a simulated backend call fails. It stands
// in for the failure modes of the real services so the pipeline's error
// path is exercised without them.
type FaultPolicy interface {
	Trip(stage string) error
}

// NoFaults never fails.
type NoFaults struct{}

func (NoFaults) Trip(string) error { return nil }

// RandomFaults fails each call with a fixed probability.
type RandomFaults struct {
	mu   sync.Mutex
	prob float64
	rng  *rand.Rand
}

func NewRandomFaults(prob float64, seed int64) *RandomFaults {
	return &RandomFaults{
		prob: prob,
		rng:  rand.New(rand.NewSource(seed)),
	}
}

func (f *RandomFaults) Trip(stage string) error {
	if f.prob <= 0 {
		return nil
	}

	f.mu.Lock()
	draw := f.rng.Float64()
	f.mu.Unlock()

	if draw < f.prob {
		return fmt.Errorf("simulated %s backend failure", stage)
	}
	return nil
}

// ScriptedFaults fails deterministically for the configured stages.
// Tests use it to force exact pass/fail sequences.
type ScriptedFaults struct {
	mu    sync.Mutex
	fails map[string]error
}

func NewScriptedFaults() *ScriptedFaults {
	return &ScriptedFaults{fails: make(map[string]error)}
}

// Fail makes every call for the stage return err until cleared.
func (f *ScriptedFaults) Fail(stage string, err error) *ScriptedFaults {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fails[stage] = err
	return f
}

func (f *ScriptedFaults) Clear(stage string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.fails, stage)
}

func (f *ScriptedFaults) Trip(stage string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fails[stage]
}
