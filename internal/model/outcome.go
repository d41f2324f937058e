package model

// Status classifies how a single source file was handled.
type Status string

const (
	StatusInserted  Status = "inserted"
	StatusSkipped   Status = "skipped"   // no "Left" section
	StatusDuplicate Status = "duplicate" // fingerprint already ingested
	StatusFailed    Status = "failed"
	StatusDropped   Status = "dropped" // seen but never read: vanished or shut down
)

// Outcome is the result of pushing one file through the ingest pipeline.
type Outcome struct {
	Path        string
	Status      Status
	Record      *StoredRecord // set for inserted and duplicate
	Fingerprint string        // empty unless dedup is enabled
	Err         error         // set for failed and dropped
}
