package domain

import "time"

// PanelUpload is the processing record of one submitted lab file. SourceKey is
// the location the client wrote to; StorageKey is where the sealed ciphertext
// lives. Once the record reaches a terminal status only tag updates (plan
// link, biomarker tags) may touch it.
type PanelUpload struct {
	ID                string             `db:"id"`
	UserID            string             `db:"user_id"`
	SourceKey         string             `db:"source_key"`
	StorageKey        string             `db:"storage_key"`
	ContentType       string             `db:"content_type"`
	SHA256            string             `db:"sha256"`
	RawMetadata       map[string]string  `db:"raw_metadata"`
	Status            UploadStatus       `db:"status"`
	ErrorCode         string             `db:"error_code"`
	ErrorMessage      string             `db:"error_message"`
	NormalizedPayload *NormalizedPayload `db:"normalized_payload"`
	BiomarkerTags     []string           `db:"biomarker_tags"`
	PlanID            *string            `db:"plan_id"`
	ProcessedAt       *time.Time         `db:"processed_at"`
	CreatedAt         time.Time          `db:"created_at"`
}

// NormalizedPayload is the extraction supervisor's output snapshot.
type NormalizedPayload struct {
	Method           string   `json:"method"`
	Summary          string   `json:"summary"`
	Notes            []string `json:"notes,omitempty"`
	MeasurementCount int      `json:"measurement_count"`
}

// Raw metadata keys the client may supply when registering an upload.
const (
	MetaOriginalFileName = "original_file_name"
	MetaCapturedAt       = "captured_at"
)
