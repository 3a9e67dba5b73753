package domain

import "time"

// Plan is a user's care plan. Only the evidence log and the focus-area
// declaration matter to the ingestion pipeline; everything else belongs to the
// plan workflow outside this service.
type Plan struct {
	ID         string         `db:"id"`
	UserID     string         `db:"user_id"`
	Title      string         `db:"title"`
	Status     PlanStatus     `db:"status"`
	FocusAreas []string       `db:"focus_areas"`
	Evidence   []EvidenceNote `db:"evidence"`
	CreatedAt  time.Time      `db:"created_at"`
	UpdatedAt  time.Time      `db:"updated_at"`
}

// EvidenceNote documents one upload that supported a plan.
type EvidenceNote struct {
	UploadID   string    `json:"upload_id"`
	Markers    []string  `json:"markers"`
	FocusAreas []string  `json:"focus_areas"`
	NotedAt    time.Time `json:"noted_at"`
}
