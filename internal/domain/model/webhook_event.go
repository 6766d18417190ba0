package model

import "time"

// WebhookEventRecord is the dedup ledger entry keyed by (EventID, Provider).
// Written exactly once per successfully-or-safely-handled event, never mutated,
// never deleted here; retention is an external concern.
type WebhookEventRecord struct {
	EventID  string
	Provider string
	SeenAt   time.Time
}

func NewWebhookEventRecord(eventID, provider string) *WebhookEventRecord {
	return &WebhookEventRecord{EventID: eventID, Provider: provider, SeenAt: time.Now().UTC()}
}
