package storage

import "exposurePool/internal/model"

// Storage defines a sink for log records.
type Storage interface {
	PutLogBatch(logs []model.LogRecord) error
}

// SnapshotStore persists tranche snapshots.
type SnapshotStore interface {
	PutSnapshots(snaps []model.TrancheSnapshot) error
}
