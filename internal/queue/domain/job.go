package domain

import (
	"time"

	"gorm.io/datatypes"
)

// Queue names known to the pipeline. Dequeueing from anything else is a
// configuration error, not a transient failure.
const (
	QueueMaterialize = "materialize"
	QueueClassify    = "classify"
	QueueImport      = "import"
	QueueDeadletter  = "deadletter"
)

// QueueJob is one envelope inside a named queue. A dequeued job is leased by
// pushing visible_at forward; the lease expiring is the implicit retry path.
type QueueJob struct {
	ID         string         `json:"id" gorm:"primaryKey"`
	Queue      string         `json:"queue" gorm:"index:idx_queue_visible;not null"`
	Payload    datatypes.JSON `json:"payload"`
	EnqueuedAt time.Time      `json:"enqueued_at"`
	VisibleAt  time.Time      `json:"visible_at" gorm:"index:idx_queue_visible"`
	ReadCount  int            `json:"read_count"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

// ArchivedJob is the inspectable "done" partition. Jobs land here via
// Archive instead of being deleted outright.
type ArchivedJob struct {
	ID          string         `json:"id" gorm:"primaryKey"`
	OriginQueue string         `json:"origin_queue" gorm:"index"`
	Payload     datatypes.JSON `json:"payload"`
	ReadCount   int            `json:"read_count"`
	Context     datatypes.JSON `json:"context"`
	EnqueuedAt  time.Time      `json:"enqueued_at"`
	ArchivedAt  time.Time      `json:"archived_at"`
}
