package service

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/example/cleancity/backend/internal/errs"
	"github.com/example/cleancity/backend/internal/models"
	"github.com/example/cleancity/backend/internal/repository"
	"github.com/example/cleancity/backend/internal/storage"
	"gorm.io/gorm"
)

func newJobService(t *testing.T, db *gorm.DB) (*JobService, *repository.TicketRepository, *recordingPublisher) {
	t.Helper()
	pub := &recordingPublisher{}
	tickets := repository.NewTicketRepository(db)
	svc := NewJobService(repository.NewJobRepository(db), tickets, &fakeStore{}, pub)
	return svc, tickets, pub
}

func seedTicket(t *testing.T, tickets *repository.TicketRepository, lat, lon float64, priority models.Priority, drain bool) *models.Ticket {
	t.Helper()
	ticket := &models.Ticket{
		Latitude:       lat,
		Longitude:      lon,
		BeforeImageRef: "reports/before.jpg",
		Priority:       priority,
		DrainBlocked:   drain,
		Status:         models.TicketStatusOpen,
	}
	if err := tickets.Create(context.Background(), ticket); err != nil {
		t.Fatalf("seed ticket: %v", err)
	}
	return ticket
}

func TestCreateValidatesInput(t *testing.T) {
	db := setupDB(t)
	svc, tickets, _ := newJobService(t, db)
	ctx := context.Background()

	if _, err := svc.Create(ctx, "", []uuid.UUID{uuid.New()}); errs.KindOf(err) != errs.KindValidation {
		t.Fatalf("empty title err = %v, want validation", err)
	}
	if _, err := svc.Create(ctx, "sweep", nil); errs.KindOf(err) != errs.KindValidation {
		t.Fatalf("no tickets err = %v, want validation", err)
	}
	if _, err := svc.Create(ctx, "sweep", []uuid.UUID{uuid.New()}); errs.KindOf(err) != errs.KindNotFound {
		t.Fatalf("unknown ticket err = %v, want not found", err)
	}

	ticket := seedTicket(t, tickets, 12.9716, 77.5946, models.PriorityNormal, false)
	job, err := svc.Create(ctx, "ward 12 sweep", []uuid.UUID{ticket.ID})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if job.Status != models.JobStatusOpen {
		t.Fatalf("status = %s, want OPEN", job.Status)
	}
}

func TestListAvailableAnnotatesAndSorts(t *testing.T) {
	db := setupDB(t)
	svc, tickets, _ := newJobService(t, db)
	ctx := context.Background()

	// Far job first so sorting has to reorder.
	far := seedTicket(t, tickets, 13.20, 77.70, models.PriorityHigh, false)
	farJob, err := svc.Create(ctx, "far sweep", []uuid.UUID{far.ID})
	if err != nil {
		t.Fatalf("create far: %v", err)
	}
	nearA := seedTicket(t, tickets, 12.9716, 77.5946, models.PriorityCritical, true)
	nearB := seedTicket(t, tickets, 12.9720, 77.5950, models.PriorityNormal, true)
	nearJob, err := svc.Create(ctx, "near sweep", []uuid.UUID{nearA.ID, nearB.ID})
	if err != nil {
		t.Fatalf("create near: %v", err)
	}

	lat, lon := 12.9716, 77.5946
	available, err := svc.ListAvailable(ctx, &lat, &lon)
	if err != nil {
		t.Fatalf("ListAvailable: %v", err)
	}
	if len(available) != 2 {
		t.Fatalf("available = %d, want 2", len(available))
	}
	if available[0].Job.ID != nearJob.ID || available[1].Job.ID != farJob.ID {
		t.Fatalf("jobs not sorted by distance: %s then %s", available[0].Job.Title, available[1].Job.Title)
	}
	near := available[0]
	if near.TopPriority != models.PriorityCritical {
		t.Fatalf("top priority = %s, want CRITICAL", near.TopPriority)
	}
	if near.DrainBlockedCount != 2 {
		t.Fatalf("drain count = %d, want 2", near.DrainBlockedCount)
	}
	wantLat := (nearA.Latitude + nearB.Latitude) / 2
	if near.CentroidLat != wantLat {
		t.Fatalf("centroid lat = %v, want %v", near.CentroidLat, wantLat)
	}
	if near.DistanceKm == nil || *near.DistanceKm > 1 {
		t.Fatalf("near distance = %v, want under 1km", near.DistanceKm)
	}

	// Without a worker location no distances are computed and creation order
	// is preserved.
	available, err = svc.ListAvailable(ctx, nil, nil)
	if err != nil {
		t.Fatalf("ListAvailable: %v", err)
	}
	if available[0].Job.ID != farJob.ID {
		t.Fatal("stable order not preserved without location")
	}
	if available[0].DistanceKm != nil {
		t.Fatal("distance computed without a worker location")
	}
}

func TestUploadAfterImageRequiresLink(t *testing.T) {
	db := setupDB(t)
	svc, tickets, _ := newJobService(t, db)
	ctx := context.Background()

	linked := seedTicket(t, tickets, 12.9716, 77.5946, models.PriorityNormal, false)
	stray := seedTicket(t, tickets, 12.99, 77.60, models.PriorityNormal, false)
	job, err := svc.Create(ctx, "sweep", []uuid.UUID{linked.ID})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if _, err := svc.UploadAfterImage(ctx, job.ID, stray.ID, []byte{1}, "image/jpeg"); errs.KindOf(err) != errs.KindNotFound {
		t.Fatalf("unlinked upload err = %v, want not found", err)
	}

	ref, err := svc.UploadAfterImage(ctx, job.ID, linked.ID, []byte{1}, "image/jpeg")
	if err != nil {
		t.Fatalf("UploadAfterImage: %v", err)
	}
	got, err := tickets.FindByID(ctx, linked.ID)
	if err != nil {
		t.Fatalf("FindByID: %v", err)
	}
	if got.AfterImageRef == nil || *got.AfterImageRef != ref {
		t.Fatalf("after image ref = %v, want %q", got.AfterImageRef, ref)
	}
}

func TestUploadAfterImageInlineFallback(t *testing.T) {
	db := setupDB(t)
	pub := &recordingPublisher{}
	tickets := repository.NewTicketRepository(db)
	svc := NewJobService(repository.NewJobRepository(db), tickets, &fakeStore{err: errServiceDown}, pub)
	ctx := context.Background()

	ticket := seedTicket(t, tickets, 12.9716, 77.5946, models.PriorityNormal, false)
	job, err := svc.Create(ctx, "sweep", []uuid.UUID{ticket.ID})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	ref, err := svc.UploadAfterImage(ctx, job.ID, ticket.ID, []byte{1, 2}, "image/png")
	if err != nil {
		t.Fatalf("UploadAfterImage: %v", err)
	}
	if !storage.IsInline(ref) {
		t.Fatalf("ref = %q, want inline fallback", ref)
	}
}

func TestAcceptAndCompleteFlow(t *testing.T) {
	db := setupDB(t)
	svc, tickets, pub := newJobService(t, db)
	ctx := context.Background()

	ticket := seedTicket(t, tickets, 12.9716, 77.5946, models.PriorityNormal, false)
	job, err := svc.Create(ctx, "sweep", []uuid.UUID{ticket.ID})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	worker := uuid.New()

	accepted, err := svc.Accept(ctx, job.ID, worker, "field")
	if err != nil {
		t.Fatalf("Accept: %v", err)
	}
	if accepted.Status != models.JobStatusInProgress {
		t.Fatalf("status = %s, want IN_PROGRESS", accepted.Status)
	}
	if _, err := svc.Accept(ctx, job.ID, uuid.New(), "field"); errs.KindOf(err) != errs.KindConflict {
		t.Fatalf("second accept err = %v, want conflict", err)
	}

	completed, err := svc.Complete(ctx, job.ID, worker, "done")
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if completed.Status != models.JobStatusCompleted || completed.CompletedAt == nil {
		t.Fatalf("job after complete: %+v", completed)
	}

	records, err := svc.Attendance(ctx, job.ID)
	if err != nil {
		t.Fatalf("Attendance: %v", err)
	}
	if len(records) != 1 || records[0].WorkerID != worker {
		t.Fatalf("attendance = %+v", records)
	}

	want := []string{"job.created", "job.accepted", "job.completed"}
	if len(pub.events) != len(want) {
		t.Fatalf("events = %v", pub.events)
	}
	for i, event := range want {
		if pub.events[i] != event {
			t.Fatalf("event %d = %s, want %s", i, pub.events[i], event)
		}
	}
}
