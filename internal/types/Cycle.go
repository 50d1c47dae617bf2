/*

Types for the rewarder's periodic cycles.

*/

package types

import "time"

// CycleReport summarizes one rewarder cycle.
type CycleReport struct {
	ID            string    `json:"id"`
	Number        int       `json:"number"`
	BlockNumber   uint64    `json:"block_number"`
	EpochsCreated int       `json:"epochs_created"`
	Tranches      int       `json:"tranches"`
	Failures      int       `json:"failures"`
	StartedAt     time.Time `json:"started_at"`
	FinishedAt    time.Time `json:"finished_at"`
	Error         string    `json:"error,omitempty"`
}
