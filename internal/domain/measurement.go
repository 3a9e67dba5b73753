package domain

import "time"

const (
	FlagUnmappedBiomarker = "UNMAPPED_BIOMARKER"
	FlagLowConfidence     = "LOW_CONFIDENCE"
)

// Measurement is one extracted biomarker value. Rows are append-only:
// corrections arrive as new rows from a later upload.
type Measurement struct {
	ID          string     `db:"id"`
	UploadID    string     `db:"upload_id"`
	UserID      string     `db:"user_id"`
	MarkerName  string     `db:"marker_name"`
	BiomarkerID *string    `db:"biomarker_id"`
	Value       float64    `db:"value"`
	Unit        string     `db:"unit"`
	Confidence  float64    `db:"confidence"`
	Flags       []string   `db:"flags"`
	CapturedAt  *time.Time `db:"captured_at"`
	CreatedAt   time.Time  `db:"created_at"`
}
