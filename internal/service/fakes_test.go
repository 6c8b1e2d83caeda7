package service

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	gormsqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"github.com/example/cleancity/backend/internal/ai"
	"github.com/example/cleancity/backend/internal/models"
	"github.com/example/cleancity/backend/internal/repository"
	"github.com/example/cleancity/backend/internal/storage"
)

func setupDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := filepath.Join(t.TempDir(), "cleancity.sqlite")
	db, err := gorm.Open(gormsqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("get sql db: %v", err)
	}
	t.Cleanup(func() {
		_ = sqlDB.Close()
	})
	if err := db.AutoMigrate(&models.Ticket{}, &models.Job{}, &models.JobTicket{}, &models.WorkerAttendance{}); err != nil {
		t.Fatalf("auto migrate: %v", err)
	}
	return db
}

var errServiceDown = errors.New("service down")

type fakeVision struct {
	result ai.VisionResult
	err    error
	calls  int
}

func (f *fakeVision) Analyze(ctx context.Context, image []byte) (ai.VisionResult, error) {
	f.calls++
	return f.result, f.err
}

type fakeValue struct {
	result ai.ValueEstimate
	err    error
}

func (f *fakeValue) Estimate(ctx context.Context, image []byte) (ai.ValueEstimate, error) {
	return f.result, f.err
}

type fakeSpeech struct {
	text string
	err  error
}

func (f *fakeSpeech) Transcribe(ctx context.Context, audio []byte, mimeType string) (string, error) {
	return f.text, f.err
}

type fakeNLP struct {
	result ai.Enrichment
	err    error
}

func (f *fakeNLP) Enrich(ctx context.Context, text string) (ai.Enrichment, error) {
	return f.result, f.err
}

type fakeWeather struct {
	rain float64
	err  error
}

func (f *fakeWeather) MaxRainProbability(ctx context.Context, lat, lon float64) (float64, error) {
	return f.rain, f.err
}

type fakeStore struct {
	err     error
	uploads int
}

func (f *fakeStore) Upload(ctx context.Context, data []byte, contentType string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.uploads++
	return "reports/uploaded.jpg", nil
}

func (f *fakeStore) Resolve(ref string) string {
	if storage.IsInline(ref) {
		return ref
	}
	return "http://store/object/public/" + ref
}

type fakeComparator struct {
	result ai.CompareResult
	err    error
}

func (f *fakeComparator) Compare(ctx context.Context, beforeURL, afterURL string) (ai.CompareResult, error) {
	return f.result, f.err
}

type recordingPublisher struct {
	events []string
}

func (p *recordingPublisher) Publish(ctx context.Context, routingKey string, payload any) error {
	p.events = append(p.events, routingKey)
	return nil
}

// passingPipeline wires a ReportService whose stages all succeed.
func passingPipeline(t *testing.T, db *gorm.DB) (*ReportService, *recordingPublisher) {
	t.Helper()
	pub := &recordingPublisher{}
	svc := NewReportService(
		repository.NewTicketRepository(db),
		&fakeVision{result: ai.VisionResult{HasGarbage: true, WasteType: "plastic", Severity: "medium", Confidence: 0.9}},
		&fakeValue{},
		&fakeSpeech{},
		&fakeNLP{},
		&fakeWeather{},
		&fakeStore{},
		pub,
		0,
	)
	return svc, pub
}

func submission() Submission {
	return Submission{
		Latitude:         12.9716,
		Longitude:        77.5946,
		Description:      "large garbage pile by the road",
		Image:            []byte{0xff, 0xd8, 0xff},
		ImageContentType: "image/jpeg",
	}
}

func ticketRows(t *testing.T, db *gorm.DB) int64 {
	t.Helper()
	var rows int64
	if err := db.Model(&models.Ticket{}).Count(&rows).Error; err != nil {
		t.Fatalf("count tickets: %v", err)
	}
	return rows
}
