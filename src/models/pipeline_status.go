package models

import "time"

// Pipeline phases
const (
	PhaseWarmingUp = "warming-up"
	PhaseStreaming = "streaming"
	PhaseStopping  = "stopping"
)

// MPipelineStatus is a point-in-time view of one symbol pipeline.
type MPipelineStatus struct {
	Symbol        string    `json:"symbol"`
	Subscribers   int       `json:"subscribers"`
	Phase         string    `json:"phase"`
	Position      Position  `json:"position"`
	StopValue     float64   `json:"stopValue"`
	BarsPublished int64     `json:"barsPublished"`
	LastBar       *MBar     `json:"lastBar,omitempty"`
	StartedAt     time.Time `json:"startedAt"`
}
