package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type TaskStatus string

const (
	TaskPending   TaskStatus = "pending"
	TaskRunning   TaskStatus = "running"
	TaskSucceeded TaskStatus = "succeeded"
	TaskFailed    TaskStatus = "failed"
)

// UUIDList is a jsonb-stored list of task ids a task depends on.
type UUIDList []uuid.UUID

func (l UUIDList) Value() (driver.Value, error) {
	if l == nil {
		return nil, nil
	}
	return json.Marshal(l)
}

func (l *UUIDList) Scan(value any) error {
	if value == nil {
		*l = nil
		return nil
	}
	var raw []byte
	switch v := value.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("cannot scan %T into UUIDList", value)
	}
	return json.Unmarshal(raw, l)
}

// Task is one durable unit of the evaluation graph. A task becomes
// eligible for dispatch when it is pending, RunAfter has passed, and
// every task in DependsOn has succeeded. Claiming a task takes a lease
// (LeaseUntil); a running task whose lease expires is swept back to
// pending, so tasks orphaned by a crashed or restarted runner are
// re-dispatched (at-least-once).
type Task struct {
	ID            uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	JobID         uuid.UUID  `gorm:"type:uuid;index" json:"job_id"`
	Name          string     `gorm:"type:varchar(50)" json:"name"`
	Queue         string     `gorm:"type:varchar(50);index" json:"queue"`
	Status        TaskStatus `gorm:"type:varchar(20);index" json:"status"`
	Attempts      int        `json:"attempts"`
	MaxAttempts   int        `json:"max_attempts"`
	BackoffBaseMs int64      `json:"backoff_base_ms"`
	DependsOn     UUIDList   `gorm:"type:jsonb" json:"depends_on"`
	RunAfter      time.Time  `gorm:"index" json:"run_after"`
	LeaseUntil    *time.Time `gorm:"index" json:"lease_until"`
	LastError     *string    `gorm:"type:text" json:"last_error"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

func (t *Task) BackoffBase() time.Duration {
	return time.Duration(t.BackoffBaseMs) * time.Millisecond
}
