package models

import "time"

// ItemOutcome records how a single identifier fared during a batch run.
type ItemOutcome struct {
	ISBN        string    `csv:"isbn" json:"isbn"`
	State       string    `csv:"state" json:"state"`
	Step        string    `csv:"step" json:"step"`
	Err         string    `csv:"error" json:"error,omitempty"`
	AttemptedAt time.Time `csv:"attempted_at" json:"attempted_at"`
}

// Batch run states recorded per item.
const (
	StateEnriched = "enriched"
	StateFailed   = "failed"
	StateSkipped  = "skipped"
	StateBlocked  = "blocked"
)

// RunSummary holds the overall result of a batch run.
type RunSummary struct {
	StartTime  time.Time
	EndTime    time.Time
	Enriched   int
	Failed     int
	Skipped    int
	Processed  int
	StopReason string
	Outcomes   []ItemOutcome
}
