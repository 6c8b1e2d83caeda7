package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// JobStatus describes the life-cycle state of a cleanup job.
type JobStatus string

const (
	JobStatusOpen       JobStatus = "OPEN"
	JobStatusInProgress JobStatus = "IN_PROGRESS"
	JobStatusCompleted  JobStatus = "COMPLETED"
)

// Job is a batch of tickets broadcast to field workers. At most one worker
// holds AcceptedBy at any time; the accept path enforces this with a single
// conditional update. A COMPLETED job whose CompletedAt has been cleared by a
// verification rejection counts as active again for the accepting worker.
type Job struct {
	ID          uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	Title       string     `gorm:"not null" json:"title"`
	Status      JobStatus  `gorm:"not null;default:OPEN;index" json:"status"`
	AcceptedBy  *uuid.UUID `gorm:"type:uuid;index" json:"accepted_by,omitempty"`
	AcceptedAt  *time.Time `json:"accepted_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Notes       string     `gorm:"type:text" json:"notes,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// BeforeCreate is a GORM hook that populates the primary key and defaults.
func (j *Job) BeforeCreate(tx *gorm.DB) error {
	if j.ID == uuid.Nil {
		j.ID = uuid.New()
	}
	if j.Status == "" {
		j.Status = JobStatusOpen
	}
	return nil
}

// JobTicket links a job to one of its tickets.
type JobTicket struct {
	ID       uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	JobID    uuid.UUID `gorm:"type:uuid;not null;index;uniqueIndex:idx_job_ticket" json:"job_id"`
	TicketID uuid.UUID `gorm:"type:uuid;not null;index;uniqueIndex:idx_job_ticket" json:"ticket_id"`
}

func (JobTicket) TableName() string {
	return "job_tickets"
}

// BeforeCreate populates the link primary key.
func (jt *JobTicket) BeforeCreate(tx *gorm.DB) error {
	if jt.ID == uuid.Nil {
		jt.ID = uuid.New()
	}
	return nil
}

// WorkerAttendance is an append-only record written when a worker accepts a
// job. It is never mutated.
type WorkerAttendance struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	JobID       uuid.UUID `gorm:"type:uuid;not null;index" json:"job_id"`
	WorkerID    uuid.UUID `gorm:"type:uuid;not null;index" json:"worker_id"`
	Role        string    `json:"role"`
	CheckedInAt time.Time `gorm:"autoCreateTime" json:"checked_in_at"`
}

func (WorkerAttendance) TableName() string {
	return "worker_attendance"
}

// BeforeCreate populates the attendance primary key.
func (a *WorkerAttendance) BeforeCreate(tx *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}
