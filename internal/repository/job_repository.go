package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/example/cleancity/backend/internal/errs"
	"github.com/example/cleancity/backend/internal/models"
)

// JobWithTickets pairs a job with its linked tickets.
type JobWithTickets struct {
	Job     models.Job
	Tickets []models.Ticket
}

// JobRepository provides persistence access for jobs, job-ticket links and
// attendance records. All state transitions are single conditional updates so
// concurrent callers cannot both win.
type JobRepository struct {
	db *gorm.DB
}

// NewJobRepository constructs a repository using the provided gorm DB.
func NewJobRepository(db *gorm.DB) *JobRepository {
	return &JobRepository{db: db}
}

// Create persists a job and its ticket links in one transaction.
func (r *JobRepository) Create(ctx context.Context, job *models.Job, ticketIDs []uuid.UUID) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.Ticket{}).Where("id IN ?", ticketIDs).Count(&count).Error; err != nil {
			return errors.WithStack(err)
		}
		if int(count) != len(ticketIDs) {
			return errs.NotFound("one or more tickets not found")
		}
		if err := tx.Create(job).Error; err != nil {
			return errors.WithStack(err)
		}
		for _, ticketID := range ticketIDs {
			link := models.JobTicket{JobID: job.ID, TicketID: ticketID}
			if err := tx.Create(&link).Error; err != nil {
				return errors.WithStack(err)
			}
		}
		return nil
	})
}

// FindByID returns the job by id.
func (r *JobRepository) FindByID(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	var job models.Job
	if err := r.db.WithContext(ctx).First(&job, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.NotFound("job not found")
		}
		return nil, errors.WithStack(err)
	}
	return &job, nil
}

// TicketsForJob returns the tickets linked to a job.
func (r *JobRepository) TicketsForJob(ctx context.Context, jobID uuid.UUID) ([]models.Ticket, error) {
	var tickets []models.Ticket
	sub := r.db.Model(&models.JobTicket{}).Select("ticket_id").Where("job_id = ?", jobID)
	err := r.db.WithContext(ctx).Where("id IN (?)", sub).Find(&tickets).Error
	return tickets, errors.WithStack(err)
}

// HasLink reports whether the ticket belongs to the job.
func (r *JobRepository) HasLink(ctx context.Context, jobID, ticketID uuid.UUID) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.JobTicket{}).
		Where("job_id = ? AND ticket_id = ?", jobID, ticketID).
		Count(&count).Error
	return count > 0, errors.WithStack(err)
}

// Accept atomically assigns the job to a worker. The status guard in the
// UPDATE is the exclusivity contract: when two workers race, exactly one
// update matches a row and the loser gets a conflict. On success the linked
// tickets cascade to IN_PROGRESS and an attendance record is appended.
func (r *JobRepository) Accept(ctx context.Context, jobID, workerID uuid.UUID, role string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := time.Now().UTC()
		res := tx.Model(&models.Job{}).
			Where("id = ? AND status = ?", jobID, models.JobStatusOpen).
			Updates(map[string]any{
				"status":      models.JobStatusInProgress,
				"accepted_by": workerID,
				"accepted_at": now,
			})
		if res.Error != nil {
			return errors.WithStack(res.Error)
		}
		if res.RowsAffected == 0 {
			var count int64
			if err := tx.Model(&models.Job{}).Where("id = ?", jobID).Count(&count).Error; err != nil {
				return errors.WithStack(err)
			}
			if count == 0 {
				return errs.NotFound("job not found")
			}
			return errs.Conflict("job already accepted")
		}

		attendance := models.WorkerAttendance{JobID: jobID, WorkerID: workerID, Role: role, CheckedInAt: now}
		if err := tx.Create(&attendance).Error; err != nil {
			return errors.WithStack(err)
		}

		sub := tx.Model(&models.JobTicket{}).Select("ticket_id").Where("job_id = ?", jobID)
		if err := tx.Model(&models.Ticket{}).
			Where("id IN (?)", sub).
			Update("status", models.TicketStatusInProgress).Error; err != nil {
			return errors.WithStack(err)
		}
		return nil
	})
}

// Complete marks the job done for the accepting worker and cascades its
// tickets to COMPLETED. A job whose completion was rejected by verification
// (completed_at cleared) may be completed again by the same worker.
func (r *JobRepository) Complete(ctx context.Context, jobID, workerID uuid.UUID, notes string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := time.Now().UTC()
		values := map[string]any{
			"status":       models.JobStatusCompleted,
			"completed_at": now,
		}
		if notes != "" {
			values["notes"] = notes
		}
		res := tx.Model(&models.Job{}).
			Where("id = ? AND accepted_by = ?", jobID, workerID).
			Where(
				tx.Where("status = ?", models.JobStatusInProgress).
					Or("status = ? AND completed_at IS NULL", models.JobStatusCompleted),
			).
			Updates(values)
		if res.Error != nil {
			return errors.WithStack(res.Error)
		}
		if res.RowsAffected == 0 {
			var count int64
			if err := tx.Model(&models.Job{}).Where("id = ?", jobID).Count(&count).Error; err != nil {
				return errors.WithStack(err)
			}
			if count == 0 {
				return errs.NotFound("job not found")
			}
			return errs.Conflict("job is not active for this worker")
		}

		sub := tx.Model(&models.JobTicket{}).Select("ticket_id").Where("job_id = ?", jobID)
		if err := tx.Model(&models.Ticket{}).
			Where("id IN (?)", sub).
			Where("status <> ?", models.TicketStatusClosed).
			Update("status", models.TicketStatusCompleted).Error; err != nil {
			return errors.WithStack(err)
		}
		return nil
	})
}

// ClearCompletedAt returns a completed job to the active view after a
// verification rejection. The status stays COMPLETED; the active view treats
// a null completed_at as work still owed.
func (r *JobRepository) ClearCompletedAt(ctx context.Context, jobID uuid.UUID) error {
	res := r.db.WithContext(ctx).Model(&models.Job{}).
		Where("id = ?", jobID).
		Update("completed_at", nil)
	if res.Error != nil {
		return errors.WithStack(res.Error)
	}
	if res.RowsAffected == 0 {
		return errs.NotFound("job not found")
	}
	return nil
}

// ListOpenWithTickets returns all broadcastable jobs with their tickets.
func (r *JobRepository) ListOpenWithTickets(ctx context.Context) ([]JobWithTickets, error) {
	var jobs []models.Job
	if err := r.db.WithContext(ctx).
		Where("status = ?", models.JobStatusOpen).
		Order("created_at asc").
		Find(&jobs).Error; err != nil {
		return nil, errors.WithStack(err)
	}
	return r.attachTickets(ctx, jobs)
}

// ListActiveByWorker returns the worker's active jobs: in progress, or
// completed but returned by a verification rejection.
func (r *JobRepository) ListActiveByWorker(ctx context.Context, workerID uuid.UUID) ([]JobWithTickets, error) {
	var jobs []models.Job
	if err := r.db.WithContext(ctx).
		Where("accepted_by = ?", workerID).
		Where(
			r.db.Where("status = ?", models.JobStatusInProgress).
				Or("status = ? AND completed_at IS NULL", models.JobStatusCompleted),
		).
		Order("created_at asc").
		Find(&jobs).Error; err != nil {
		return nil, errors.WithStack(err)
	}
	return r.attachTickets(ctx, jobs)
}

// FindJobIDByTicket returns the most recent job linked to the ticket.
func (r *JobRepository) FindJobIDByTicket(ctx context.Context, ticketID uuid.UUID) (uuid.UUID, error) {
	var rawJobID string
	err := r.db.WithContext(ctx).Model(&models.JobTicket{}).
		Select("job_tickets.job_id").
		Joins("JOIN jobs ON jobs.id = job_tickets.job_id").
		Where("job_tickets.ticket_id = ?", ticketID).
		Order("jobs.created_at desc").
		Limit(1).
		Scan(&rawJobID).Error
	if err != nil {
		return uuid.Nil, errors.WithStack(err)
	}
	if rawJobID == "" {
		return uuid.Nil, errs.NotFound("no job linked to ticket")
	}
	jobID, err := uuid.Parse(rawJobID)
	if err != nil {
		return uuid.Nil, errors.WithStack(err)
	}
	return jobID, nil
}

// Attendance returns the append-only attendance log for a job.
func (r *JobRepository) Attendance(ctx context.Context, jobID uuid.UUID) ([]models.WorkerAttendance, error) {
	var records []models.WorkerAttendance
	err := r.db.WithContext(ctx).
		Where("job_id = ?", jobID).
		Order("checked_in_at asc").
		Find(&records).Error
	return records, errors.WithStack(err)
}

func (r *JobRepository) attachTickets(ctx context.Context, jobs []models.Job) ([]JobWithTickets, error) {
	out := make([]JobWithTickets, 0, len(jobs))
	for _, job := range jobs {
		tickets, err := r.TicketsForJob(ctx, job.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, JobWithTickets{Job: job, Tickets: tickets})
	}
	return out, nil
}
