package worker

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/example/cleancity/backend/internal/models"
)

// Auditor runs the cleanup verification for one ticket.
type Auditor interface {
	Verify(ctx context.Context, ticketID uuid.UUID) (*models.Ticket, error)
}

// PendingLister surfaces tickets awaiting verification.
type PendingLister interface {
	ListPendingVerification(ctx context.Context, limit int) ([]models.Ticket, error)
}

// VerifyWorker continuously polls for completed tickets with after-images and
// pushes them through the auditor, so cleanups get verdicts without anyone
// calling the verify endpoint.
type VerifyWorker struct {
	id       string
	auditor  Auditor
	tickets  PendingLister
	interval time.Duration
	batch    int
}

// NewVerifyWorker creates the worker with a random identifier.
func NewVerifyWorker(auditor Auditor, tickets PendingLister, interval time.Duration, batch int) *VerifyWorker {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if batch <= 0 {
		batch = 10
	}
	return &VerifyWorker{
		id:       uuid.New().String(),
		auditor:  auditor,
		tickets:  tickets,
		interval: interval,
		batch:    batch,
	}
}

// Run starts the polling loop and should be launched in its own goroutine.
func (w *VerifyWorker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Printf("verify worker %s shutting down", w.id)
			return
		case <-ticker.C:
			w.poll(ctx)
		}
	}
}

func (w *VerifyWorker) poll(ctx context.Context) {
	pending, err := w.tickets.ListPendingVerification(ctx, w.batch)
	if err != nil {
		log.Printf("list pending verification error: %v", err)
		return
	}
	for _, ticket := range pending {
		verified, err := w.auditor.Verify(ctx, ticket.ID)
		if err != nil {
			log.Printf("verify ticket %s failed: %v", ticket.ID, err)
			continue
		}
		log.Printf("ticket %s verified: %s", verified.ID, verified.VerifyVerdict)
	}
}
