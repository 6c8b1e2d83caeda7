package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// TicketStatus describes the life-cycle state of a waste report.
type TicketStatus string

const (
	TicketStatusNew                 TicketStatus = "NEW"
	TicketStatusOpen                TicketStatus = "OPEN"
	TicketStatusPending             TicketStatus = "PENDING"
	TicketStatusInProgress          TicketStatus = "IN_PROGRESS"
	TicketStatusCompleted           TicketStatus = "COMPLETED"
	TicketStatusPendingVerification TicketStatus = "PENDING_VERIFICATION"
	TicketStatusRejected            TicketStatus = "REJECTED"
	TicketStatusClosed              TicketStatus = "CLOSED"
)

// Priority is the computed risk level of a ticket.
type Priority string

const (
	PriorityCritical Priority = "CRITICAL"
	PriorityHigh     Priority = "HIGH"
	PriorityMedium   Priority = "MEDIUM"
	PriorityLow      Priority = "LOW"
	PriorityNormal   Priority = "NORMAL"
)

// DedupStatuses are the ticket states eligible for geo-deduplication.
var DedupStatuses = []TicketStatus{TicketStatusNew, TicketStatusOpen, TicketStatusPending}

// Ticket represents one reported waste incident persisted in Postgres.
// A ticket only exists after the vision gate has confirmed garbage in the
// before-image; repeat reports at the same site bump TicketCount instead of
// creating new rows.
type Ticket struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Latitude  float64   `gorm:"not null;index:idx_tickets_location" json:"latitude"`
	Longitude float64   `gorm:"not null;index:idx_tickets_location" json:"longitude"`
	Accuracy  *float64  `json:"accuracy,omitempty"`

	Description           string `gorm:"type:text" json:"description"`
	TranslatedDescription string `gorm:"type:text" json:"translated_description,omitempty"`

	BeforeImageRef string  `gorm:"type:text;not null" json:"before_image_ref"`
	AfterImageRef  *string `gorm:"type:text" json:"after_image_ref,omitempty"`

	WasteType    string  `json:"waste_type"`
	Severity     string  `json:"severity"`
	DrainBlocked bool    `json:"drain_blocked"`
	Confidence   float64 `json:"confidence"`

	Priority        Priority     `gorm:"not null;default:NORMAL" json:"priority"`
	RainProbability float64      `json:"rain_probability"`
	Status          TicketStatus `gorm:"not null;default:OPEN;index" json:"status"`
	TicketCount     int          `gorm:"not null;default:1" json:"ticket_count"`

	Materials         []string `gorm:"serializer:json" json:"materials,omitempty"`
	EstimatedWeightKg float64  `json:"estimated_weight_kg"`
	EstimatedRevenue  float64  `json:"estimated_revenue"`
	ValueConfidence   float64  `json:"value_confidence"`

	VerifyConfidence     float64    `json:"verify_confidence,omitempty"`
	VerifyVerdict        string     `json:"verify_verdict,omitempty"`
	VerifyReasoning      string     `gorm:"type:text" json:"verify_reasoning,omitempty"`
	VerifyIsClean        bool       `json:"verify_is_clean,omitempty"`
	VerifyLandmarksMatch bool       `json:"verify_landmarks_match,omitempty"`
	VerifyDrainClear     bool       `json:"verify_drain_clear,omitempty"`
	VerifiedAt           *time.Time `json:"verified_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// BeforeCreate is a GORM hook that populates the primary key and defaults.
func (t *Ticket) BeforeCreate(tx *gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	if t.Status == "" {
		t.Status = TicketStatusOpen
	}
	if t.Priority == "" {
		t.Priority = PriorityNormal
	}
	if t.TicketCount < 1 {
		t.TicketCount = 1
	}
	return nil
}
