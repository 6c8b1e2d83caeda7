package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/example/cleancity/backend/internal/errs"
	"github.com/example/cleancity/backend/internal/models"
)

// TicketRepository provides persistence access for Ticket entities, including
// the geo-deduplication merge path.
type TicketRepository struct {
	db *gorm.DB
}

// NewTicketRepository constructs a repository using the provided gorm DB.
func NewTicketRepository(db *gorm.DB) *TicketRepository {
	return &TicketRepository{db: db}
}

// Create persists the ticket instance.
func (r *TicketRepository) Create(ctx context.Context, ticket *models.Ticket) error {
	return errors.WithStack(r.db.WithContext(ctx).Create(ticket).Error)
}

// Update persists the modified ticket.
func (r *TicketRepository) Update(ctx context.Context, ticket *models.Ticket) error {
	return errors.WithStack(r.db.WithContext(ctx).Save(ticket).Error)
}

// FindByID returns the ticket by id.
func (r *TicketRepository) FindByID(ctx context.Context, id uuid.UUID) (*models.Ticket, error) {
	var ticket models.Ticket
	if err := r.db.WithContext(ctx).First(&ticket, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.NotFound("ticket not found")
		}
		return nil, errors.WithStack(err)
	}
	return &ticket, nil
}

// FindDuplicateCandidate returns the oldest open ticket whose coordinates
// fall within the tolerance box of the given position, or nil when the site
// has no open report. The first-detected incident record is authoritative.
func (r *TicketRepository) FindDuplicateCandidate(ctx context.Context, lat, lon, toleranceDeg float64) (*models.Ticket, error) {
	var ticket models.Ticket
	err := r.db.WithContext(ctx).
		Where("status IN ?", models.DedupStatuses).
		Where("latitude BETWEEN ? AND ?", lat-toleranceDeg, lat+toleranceDeg).
		Where("longitude BETWEEN ? AND ?", lon-toleranceDeg, lon+toleranceDeg).
		Order("created_at asc").
		First(&ticket).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return &ticket, nil
}

// IncrementTicketCount bumps the merge counter with a single conditional
// update. It reports false when the candidate left the dedup window between
// read and write, in which case the caller inserts a fresh ticket.
func (r *TicketRepository) IncrementTicketCount(ctx context.Context, id uuid.UUID) (bool, error) {
	res := r.db.WithContext(ctx).Model(&models.Ticket{}).
		Where("id = ? AND status IN ?", id, models.DedupStatuses).
		UpdateColumn("ticket_count", gorm.Expr("ticket_count + 1"))
	if res.Error != nil {
		return false, errors.WithStack(res.Error)
	}
	return res.RowsAffected > 0, nil
}

// MergeOrCreate implements the geo-dedup merge: an in-window candidate is
// incremented and returned otherwise unchanged, else the ticket is inserted
// with ticket_count 1. Merged reports true when the submission was folded
// into an existing ticket.
func (r *TicketRepository) MergeOrCreate(ctx context.Context, ticket *models.Ticket, toleranceDeg float64) (*models.Ticket, bool, error) {
	candidate, err := r.FindDuplicateCandidate(ctx, ticket.Latitude, ticket.Longitude, toleranceDeg)
	if err != nil {
		return nil, false, err
	}
	if candidate != nil {
		bumped, err := r.IncrementTicketCount(ctx, candidate.ID)
		if err != nil {
			return nil, false, err
		}
		if bumped {
			merged, err := r.FindByID(ctx, candidate.ID)
			return merged, true, err
		}
		// Candidate closed between read and write; fall through to insert.
	}
	if err := r.Create(ctx, ticket); err != nil {
		return nil, false, err
	}
	return ticket, false, nil
}

// SetAfterImage records the after-photo reference. Repeated calls replace the
// previous photo.
func (r *TicketRepository) SetAfterImage(ctx context.Context, id uuid.UUID, ref string) error {
	res := r.db.WithContext(ctx).Model(&models.Ticket{}).
		Where("id = ?", id).
		Update("after_image_ref", ref)
	if res.Error != nil {
		return errors.WithStack(res.Error)
	}
	if res.RowsAffected == 0 {
		return errs.NotFound("ticket not found")
	}
	return nil
}

// UpdateVerification persists the full verification result onto the ticket.
func (r *TicketRepository) UpdateVerification(ctx context.Context, ticket *models.Ticket) error {
	err := r.db.WithContext(ctx).Model(ticket).
		Select("status", "verify_confidence", "verify_verdict", "verify_reasoning",
			"verify_is_clean", "verify_landmarks_match", "verify_drain_clear", "verified_at").
		Updates(ticket).Error
	return errors.WithStack(err)
}

// UpdateStatusOnly is the reduced-field fallback when the full verification
// update cannot be persisted.
func (r *TicketRepository) UpdateStatusOnly(ctx context.Context, id uuid.UUID, status models.TicketStatus) error {
	err := r.db.WithContext(ctx).Model(&models.Ticket{}).
		Where("id = ?", id).
		Update("status", status).Error
	return errors.WithStack(err)
}

// ListPendingVerification returns tickets awaiting an audit: explicitly
// parked in PENDING_VERIFICATION, or completed with an after image and no
// verdict yet.
func (r *TicketRepository) ListPendingVerification(ctx context.Context, limit int) ([]models.Ticket, error) {
	if limit <= 0 {
		limit = 10
	}
	var tickets []models.Ticket
	err := r.db.WithContext(ctx).
		Where(
			r.db.Where("status = ?", models.TicketStatusPendingVerification).
				Or("status = ? AND after_image_ref IS NOT NULL AND verify_verdict = ?", models.TicketStatusCompleted, ""),
		).
		Order("updated_at asc").
		Limit(limit).
		Find(&tickets).Error
	return tickets, errors.WithStack(err)
}

// ListByIDs returns the tickets for the given ids.
func (r *TicketRepository) ListByIDs(ctx context.Context, ids []uuid.UUID) ([]models.Ticket, error) {
	var tickets []models.Ticket
	err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&tickets).Error
	return tickets, errors.WithStack(err)
}
