package models

import "time"

// SystemMetrics is a point-in-time summary of the engine's instrumentation.
type SystemMetrics struct {
	CacheHitRatio            float64   `json:"cache_hit_ratio"`
	CacheHits                uint64    `json:"cache_hits"`
	CacheMisses              uint64    `json:"cache_misses"`
	RequestsTotal            uint64    `json:"requests_total"`
	AverageRequestDurationMs float64   `json:"average_request_duration_ms"`
	JobsStarted              uint64    `json:"jobs_started"`
	JobsCompleted            uint64    `json:"jobs_completed"`
	JobsFailed               uint64    `json:"jobs_failed"`
	JobsCancelled            uint64    `json:"jobs_cancelled"`
	ActiveJobs               int64     `json:"active_jobs"`
	EditsApplied             uint64    `json:"edits_applied"`
	EditsRejected            uint64    `json:"edits_rejected"`
	Goroutines               int       `json:"goroutines"`
	GeneratedAt              time.Time `json:"generated_at"`
}
