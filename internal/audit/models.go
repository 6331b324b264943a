package audit

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Event is one row of the audit trail: a single replication-surface mutation
// this replica applied locally, recorded after the chat.Db mutation that
// applied it (which commits the Db file) succeeded.
type Event struct {
	ID          uuid.UUID `gorm:"type:text;primaryKey"`
	ReplicaAddr string    `gorm:"not null"`
	Operation   string    `gorm:"not null"`
	Detail      string    `gorm:"not null"`
	CreatedAt   time.Time `gorm:"not null"`
}

func (Event) TableName() string { return "audit_events" }

// BeforeCreate assigns a time-ordered UUIDv7 if one isn't already set, so
// rows sort chronologically by ID without a separate index.
func (e *Event) BeforeCreate(tx *gorm.DB) error {
	if e.ID == (uuid.UUID{}) {
		id, err := uuid.NewV7()
		if err != nil {
			return err
		}
		e.ID = id
	}
	return nil
}
