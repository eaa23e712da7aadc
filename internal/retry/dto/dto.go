package dto

import "encoding/json"

type RecordEventInput struct {
	TenantID   string
	EventKey   string
	EventType  string
	Payload    json.RawMessage
	MaxRetries int
}

type CleanupResult struct {
	CompletedDeleted int64 `json:"completedDeleted"`
	FailedDeleted    int64 `json:"failedDeleted"`
}
