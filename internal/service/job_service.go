package service

import (
	"context"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/example/cleancity/backend/internal/errs"
	"github.com/example/cleancity/backend/internal/geo"
	"github.com/example/cleancity/backend/internal/metrics"
	"github.com/example/cleancity/backend/internal/models"
	"github.com/example/cleancity/backend/internal/mq"
	"github.com/example/cleancity/backend/internal/repository"
	"github.com/example/cleancity/backend/internal/scoring"
	"github.com/example/cleancity/backend/internal/storage"
)

// AnnotatedJob is a job prepared for the worker-facing views: tickets
// attached, centroid and distance computed, top priority and drain count
// derived. The derived fields are never stored.
type AnnotatedJob struct {
	Job               models.Job      `json:"job"`
	Tickets           []models.Ticket `json:"tickets"`
	CentroidLat       float64         `json:"centroid_lat"`
	CentroidLon       float64         `json:"centroid_lon"`
	DistanceKm        *float64        `json:"distance_km,omitempty"`
	TopPriority       models.Priority `json:"top_priority"`
	DrainBlockedCount int             `json:"drain_blocked_count"`
}

// JobService implements the dispatch workflow: batching tickets into jobs,
// broadcasting them, arbitrating acceptance and closing out field work.
type JobService struct {
	jobs    *repository.JobRepository
	tickets *repository.TicketRepository
	store   ObjectStore
	events  mq.Publisher
}

// NewJobService builds the service with its collaborators.
func NewJobService(jobs *repository.JobRepository, tickets *repository.TicketRepository, store ObjectStore, events mq.Publisher) *JobService {
	return &JobService{jobs: jobs, tickets: tickets, store: store, events: events}
}

// Create batches tickets into a new broadcast job.
func (s *JobService) Create(ctx context.Context, title string, ticketIDs []uuid.UUID) (*models.Job, error) {
	if strings.TrimSpace(title) == "" {
		return nil, errs.Validation("title is required")
	}
	if len(ticketIDs) == 0 {
		return nil, errs.Validation("at least one ticket is required")
	}
	job := &models.Job{Title: strings.TrimSpace(title)}
	if err := s.jobs.Create(ctx, job, ticketIDs); err != nil {
		return nil, err
	}
	s.publishEvent(ctx, mq.EventJobCreated, job)
	return job, nil
}

// Get returns a job with its tickets.
func (s *JobService) Get(ctx context.Context, jobID uuid.UUID) (*AnnotatedJob, error) {
	job, err := s.jobs.FindByID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	tickets, err := s.jobs.TicketsForJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	annotated := annotate(*job, tickets, nil, nil)
	return &annotated, nil
}

// Accept assigns the job to the worker. Exactly one of any number of
// concurrent callers wins; the rest receive a conflict.
func (s *JobService) Accept(ctx context.Context, jobID, workerID uuid.UUID, role string) (*models.Job, error) {
	if workerID == uuid.Nil {
		return nil, errs.Validation("worker id is required")
	}
	if role == "" {
		role = "field"
	}
	if err := s.jobs.Accept(ctx, jobID, workerID, role); err != nil {
		if errs.KindOf(err) == errs.KindConflict {
			metrics.AcceptConflicts.Inc()
		}
		return nil, err
	}
	job, err := s.jobs.FindByID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	s.publishEvent(ctx, mq.EventJobAccepted, job)
	return job, nil
}

// UploadAfterImage stores a worker's after-photo and records the reference on
// the ticket. Repeated calls replace the photo.
func (s *JobService) UploadAfterImage(ctx context.Context, jobID, ticketID uuid.UUID, image []byte, contentType string) (string, error) {
	if len(image) == 0 {
		return "", errs.Validation("image is required")
	}
	linked, err := s.jobs.HasLink(ctx, jobID, ticketID)
	if err != nil {
		return "", err
	}
	if !linked {
		return "", errs.NotFound("ticket is not part of this job")
	}

	ref, err := s.store.Upload(ctx, image, contentType)
	if err != nil {
		log.Printf("after-image upload degraded to inline: %v", err)
		metrics.DegradedEnrichments.WithLabelValues("storage").Inc()
		ref = storage.InlineRef(image, contentType)
	}
	if err := s.tickets.SetAfterImage(ctx, ticketID, ref); err != nil {
		return "", err
	}
	return ref, nil
}

// Complete marks the job done. After-image completeness is advisory at this
// layer: missing photos are logged, not rejected.
func (s *JobService) Complete(ctx context.Context, jobID, workerID uuid.UUID, notes string) (*models.Job, error) {
	if workerID == uuid.Nil {
		return nil, errs.Validation("worker id is required")
	}
	tickets, err := s.jobs.TicketsForJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	for _, t := range tickets {
		if t.AfterImageRef == nil || *t.AfterImageRef == "" {
			log.Printf("job %s completed with ticket %s missing an after image", jobID, t.ID)
		}
	}

	if err := s.jobs.Complete(ctx, jobID, workerID, notes); err != nil {
		return nil, err
	}
	job, err := s.jobs.FindByID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	s.publishEvent(ctx, mq.EventJobCompleted, job)
	return job, nil
}

// ListAvailable returns all OPEN jobs annotated for broadcast, closest first
// when a worker location is supplied. Jobs without a computable distance sort
// last; ties keep their creation order.
func (s *JobService) ListAvailable(ctx context.Context, workerLat, workerLon *float64) ([]AnnotatedJob, error) {
	open, err := s.jobs.ListOpenWithTickets(ctx)
	if err != nil {
		return nil, err
	}
	annotated := make([]AnnotatedJob, 0, len(open))
	for _, jt := range open {
		annotated = append(annotated, annotate(jt.Job, jt.Tickets, workerLat, workerLon))
	}
	sort.SliceStable(annotated, func(i, j int) bool {
		di, dj := annotated[i].DistanceKm, annotated[j].DistanceKm
		switch {
		case di == nil && dj == nil:
			return false
		case di == nil:
			return false
		case dj == nil:
			return true
		default:
			return *di < *dj
		}
	})
	return annotated, nil
}

// WorkerJobs returns the worker's active jobs, including completed jobs that
// a verification rejection returned to the field.
func (s *JobService) WorkerJobs(ctx context.Context, workerID uuid.UUID) ([]AnnotatedJob, error) {
	active, err := s.jobs.ListActiveByWorker(ctx, workerID)
	if err != nil {
		return nil, err
	}
	annotated := make([]AnnotatedJob, 0, len(active))
	for _, jt := range active {
		annotated = append(annotated, annotate(jt.Job, jt.Tickets, nil, nil))
	}
	return annotated, nil
}

// Attendance returns the append-only acceptance log for a job.
func (s *JobService) Attendance(ctx context.Context, jobID uuid.UUID) ([]models.WorkerAttendance, error) {
	if _, err := s.jobs.FindByID(ctx, jobID); err != nil {
		return nil, err
	}
	return s.jobs.Attendance(ctx, jobID)
}

func annotate(job models.Job, tickets []models.Ticket, workerLat, workerLon *float64) AnnotatedJob {
	out := AnnotatedJob{
		Job:         job,
		Tickets:     tickets,
		TopPriority: scoring.TopPriority(tickets),
	}
	if len(tickets) == 0 {
		return out
	}
	var latSum, lonSum float64
	for _, t := range tickets {
		latSum += t.Latitude
		lonSum += t.Longitude
		if t.DrainBlocked {
			out.DrainBlockedCount++
		}
	}
	out.CentroidLat = latSum / float64(len(tickets))
	out.CentroidLon = lonSum / float64(len(tickets))
	if workerLat != nil && workerLon != nil {
		d := geo.HaversineKm(*workerLat, *workerLon, out.CentroidLat, out.CentroidLon)
		out.DistanceKm = &d
	}
	return out
}

func (s *JobService) publishEvent(ctx context.Context, event string, job *models.Job) {
	if s.events == nil {
		return
	}
	payload := map[string]any{
		"event":      event,
		"jobId":      job.ID.String(),
		"status":     job.Status,
		"occurredAt": time.Now().UTC().Format(time.RFC3339),
	}
	if job.AcceptedBy != nil {
		payload["acceptedBy"] = job.AcceptedBy.String()
	}
	if err := s.events.Publish(ctx, event, payload); err != nil {
		log.Printf("publish %s failed: %v", event, err)
	}
}
