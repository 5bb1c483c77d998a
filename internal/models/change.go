package models

import "time"

type ChangeOp string

const (
	OpInsert ChangeOp = "insert"
	OpUpdate ChangeOp = "update"
	OpDelete ChangeOp = "delete"
)

// ChangeEvent announces a committed write so dashboards can re-fetch.
type ChangeEvent struct {
	Table string    `json:"table"`
	Op    ChangeOp  `json:"op"`
	ID    string    `json:"id,omitempty"`
	At    time.Time `json:"at"`
}

// ChangePublisher fans change events out to subscribers. Publish must not
// block the writer.
type ChangePublisher interface {
	Publish(ev ChangeEvent)
}
