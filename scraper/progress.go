// Copyright (C) 2025 Mars Vista Authors.
// See LICENSE for copying information.

package scraper

import (
	"sync"
	"time"
)

// RoverProgress holds per-rover scrape counts since process start. It is
// not persisted.
type RoverProgress struct {
	Rover     string    `json:"rover"`
	Running   bool      `json:"running"`
	LastSol   int       `json:"last_sol"`
	Inserted  int       `json:"inserted"`
	Skipped   int       `json:"skipped"`
	Failed    int       `json:"failed_sols"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Progress tracks in-process scrape counters for the admin progress
// endpoint.
type Progress struct {
	mu     sync.Mutex
	rovers map[string]*RoverProgress
}

// NewProgress creates an empty tracker.
func NewProgress() *Progress {
	return &Progress{rovers: make(map[string]*RoverProgress)}
}

// SetRunning marks a rover's scrape as started or finished.
func (progress *Progress) SetRunning(rover string, running bool) {
	progress.mu.Lock()
	defer progress.mu.Unlock()
	state := progress.state(rover)
	state.Running = running
	state.UpdatedAt = time.Now()
}

// Record adds one sol outcome to the rover's counters.
func (progress *Progress) Record(rover string, result SolResult) {
	progress.mu.Lock()
	defer progress.mu.Unlock()

	state := progress.state(rover)
	state.LastSol = result.Sol
	state.Inserted += result.Inserted
	state.Skipped += result.Skipped
	if !result.Success {
		state.Failed++
	}
	state.UpdatedAt = time.Now()
}

// RecordSummary adds a bulk outcome to the rover's counters.
func (progress *Progress) RecordSummary(rover string, summary Summary) {
	progress.mu.Lock()
	defer progress.mu.Unlock()

	state := progress.state(rover)
	state.LastSol = summary.EndSol
	state.Inserted += summary.Inserted
	state.Skipped += summary.Skipped
	state.Failed += len(summary.FailedSols)
	state.UpdatedAt = time.Now()
}

// Snapshot returns a copy of a rover's counters.
func (progress *Progress) Snapshot(rover string) (RoverProgress, bool) {
	progress.mu.Lock()
	defer progress.mu.Unlock()

	state, ok := progress.rovers[rover]
	if !ok {
		return RoverProgress{Rover: rover}, false
	}
	return *state, true
}

func (progress *Progress) state(rover string) *RoverProgress {
	state, ok := progress.rovers[rover]
	if !ok {
		state = &RoverProgress{Rover: rover}
		progress.rovers[rover] = state
	}
	return state
}
