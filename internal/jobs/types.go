package jobs

const (
	TaskPurge        = "storage:purge"
	TaskExpireOutput = "storage:expire-output"
	TaskAbortStale   = "storage:abort-stale"
)

type PurgePayload struct {
	UserID int64    `json:"user_id"`
	Keys   []string `json:"keys"`   // source object keys
	Reason string   `json:"reason"` // "merged", "cancelled", "replaced", "failed"
}

type ExpireOutputPayload struct {
	UserID int64  `json:"user_id"`
	Key    string `json:"key"` // merged output key
}

type AbortStalePayload struct {
	Prefix       string `json:"prefix"`         // "" = whole bucket
	OlderThanSec int64  `json:"older_than_sec"` // uploads initiated before now-age are aborted
}
