package service

import (
	"context"
	"strings"
	"testing"

	"github.com/example/cleancity/backend/internal/ai"
	"github.com/example/cleancity/backend/internal/errs"
	"github.com/example/cleancity/backend/internal/models"
	"github.com/example/cleancity/backend/internal/repository"
	"github.com/example/cleancity/backend/internal/storage"
)

func TestSubmitValidatesInput(t *testing.T) {
	db := setupDB(t)
	svc, _ := passingPipeline(t, db)
	ctx := context.Background()

	sub := submission()
	sub.Image = nil
	if _, err := svc.Submit(ctx, sub); errs.KindOf(err) != errs.KindValidation {
		t.Fatalf("missing image err = %v, want validation", err)
	}

	sub = submission()
	sub.Latitude, sub.Longitude = 0, 0
	if _, err := svc.Submit(ctx, sub); errs.KindOf(err) != errs.KindValidation {
		t.Fatalf("null island err = %v, want validation", err)
	}
	if rows := ticketRows(t, db); rows != 0 {
		t.Fatalf("validation failures wrote %d tickets", rows)
	}
}

func TestSubmitGateRejectionWritesNothing(t *testing.T) {
	db := setupDB(t)
	svc := NewReportService(
		repository.NewTicketRepository(db),
		&fakeVision{result: ai.VisionResult{HasGarbage: false, WasteType: "none", Confidence: 0.2}},
		&fakeValue{}, &fakeSpeech{}, &fakeNLP{}, &fakeWeather{}, &fakeStore{}, nil, 0,
	)

	_, err := svc.Submit(context.Background(), submission())
	if errs.KindOf(err) != errs.KindGateRejected {
		t.Fatalf("err = %v, want gate rejected", err)
	}
	meta := errs.MetaOf(err)
	if meta["reason"] != "vision_failed" {
		t.Fatalf("meta reason = %v, want vision_failed", meta["reason"])
	}
	if meta["confidence"] != 0.2 {
		t.Fatalf("meta confidence = %v, want 0.2", meta["confidence"])
	}
	if rows := ticketRows(t, db); rows != 0 {
		t.Fatalf("gate rejection wrote %d tickets", rows)
	}
}

func TestSubmitVisionOutageIsFatal(t *testing.T) {
	db := setupDB(t)
	svc := NewReportService(
		repository.NewTicketRepository(db),
		&fakeVision{err: errServiceDown},
		&fakeValue{}, &fakeSpeech{}, &fakeNLP{}, &fakeWeather{}, &fakeStore{}, nil, 0,
	)

	_, err := svc.Submit(context.Background(), submission())
	if errs.KindOf(err) != errs.KindUnavailable {
		t.Fatalf("err = %v, want unavailable", err)
	}
	if rows := ticketRows(t, db); rows != 0 {
		t.Fatalf("vision outage wrote %d tickets", rows)
	}
}

func TestSubmitBlockedDrainInRainIsCritical(t *testing.T) {
	db := setupDB(t)
	svc := NewReportService(
		repository.NewTicketRepository(db),
		&fakeVision{result: ai.VisionResult{HasGarbage: true, WasteType: "mixed", Severity: "high", DrainBlocked: true, Confidence: 0.95}},
		&fakeValue{}, &fakeSpeech{}, &fakeNLP{}, &fakeWeather{rain: 75}, &fakeStore{}, nil, 0,
	)

	res, err := svc.Submit(context.Background(), submission())
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if res.Merged {
		t.Fatal("first report should not merge")
	}
	if res.Ticket.Priority != models.PriorityCritical {
		t.Fatalf("priority = %s, want CRITICAL", res.Ticket.Priority)
	}
	if res.Ticket.RainProbability != 75 {
		t.Fatalf("rain_probability = %v, want 75", res.Ticket.RainProbability)
	}
}

func TestSubmitDeduplicatesNearbyReports(t *testing.T) {
	db := setupDB(t)
	svc, pub := passingPipeline(t, db)
	ctx := context.Background()

	first, err := svc.Submit(ctx, submission())
	if err != nil {
		t.Fatalf("first submit: %v", err)
	}

	second := submission()
	second.Latitude, second.Longitude = 12.97161, 77.59461
	res, err := svc.Submit(ctx, second)
	if err != nil {
		t.Fatalf("second submit: %v", err)
	}
	if !res.Merged {
		t.Fatal("second report should merge")
	}
	if res.Ticket.ID != first.Ticket.ID {
		t.Fatalf("merged into %s, want %s", res.Ticket.ID, first.Ticket.ID)
	}
	if res.Ticket.TicketCount != 2 {
		t.Fatalf("ticket_count = %d, want 2", res.Ticket.TicketCount)
	}
	if rows := ticketRows(t, db); rows != 1 {
		t.Fatalf("ticket rows = %d, want 1", rows)
	}
	if len(pub.events) != 2 || pub.events[1] != "report.merged" {
		t.Fatalf("events = %v", pub.events)
	}
}

func TestSubmitEnrichmentFailuresAreInvisible(t *testing.T) {
	db := setupDB(t)
	svc := NewReportService(
		repository.NewTicketRepository(db),
		&fakeVision{result: ai.VisionResult{HasGarbage: true, WasteType: "organic", DrainBlocked: true, Confidence: 0.8}},
		&fakeValue{err: errServiceDown},
		&fakeSpeech{err: errServiceDown},
		&fakeNLP{err: errServiceDown},
		&fakeWeather{err: errServiceDown},
		&fakeStore{}, nil, 0,
	)

	sub := submission()
	sub.Audio = []byte{1, 2}
	res, err := svc.Submit(context.Background(), sub)
	if err != nil {
		t.Fatalf("Submit must survive degraded enrichment: %v", err)
	}
	if res.Ticket.EstimatedRevenue != 0 || len(res.Ticket.Materials) != 0 {
		t.Fatalf("value fields not defaulted: %+v", res.Ticket)
	}
	// Weather outage defaults rain to zero; a blocked drain alone is HIGH.
	if res.Ticket.RainProbability != 0 || res.Ticket.Priority != models.PriorityHigh {
		t.Fatalf("rain/priority = %v/%s, want 0/HIGH", res.Ticket.RainProbability, res.Ticket.Priority)
	}
	if res.Ticket.Description != sub.Description {
		t.Fatalf("description changed to %q", res.Ticket.Description)
	}
}

func TestSubmitTranscriptOverridesShortDescription(t *testing.T) {
	db := setupDB(t)
	transcript := "huge pile of garbage blocking the storm drain"
	svc := NewReportService(
		repository.NewTicketRepository(db),
		&fakeVision{result: ai.VisionResult{HasGarbage: true, Confidence: 0.9}},
		&fakeValue{},
		&fakeSpeech{text: transcript},
		&fakeNLP{},
		&fakeWeather{},
		&fakeStore{}, nil, 0,
	)
	ctx := context.Background()

	sub := submission()
	sub.Description = "trash" // under the 10 char floor
	sub.Audio = []byte{1}
	res, err := svc.Submit(ctx, sub)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if res.Ticket.Description != transcript {
		t.Fatalf("description = %q, want transcript", res.Ticket.Description)
	}

	sub = submission()
	sub.Latitude = 13.0001 // avoid the dedup box of the first ticket
	sub.Description = "a description long enough to keep"
	sub.Audio = []byte{1}
	res, err = svc.Submit(ctx, sub)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if res.Ticket.Description != sub.Description {
		t.Fatalf("long description replaced by transcript: %q", res.Ticket.Description)
	}
}

func TestSubmitNLPEnrichmentIsAdvisory(t *testing.T) {
	db := setupDB(t)
	drain := true
	svc := NewReportService(
		repository.NewTicketRepository(db),
		&fakeVision{result: ai.VisionResult{HasGarbage: true, Confidence: 0.9}},
		&fakeValue{},
		&fakeSpeech{},
		&fakeNLP{result: ai.Enrichment{TranslatedText: "garbage heap near the market", WasteType: "mixed", DrainMentioned: &drain}},
		&fakeWeather{},
		&fakeStore{}, nil, 0,
	)

	res, err := svc.Submit(context.Background(), submission())
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if res.Ticket.TranslatedDescription != "garbage heap near the market" {
		t.Fatalf("translated = %q", res.Ticket.TranslatedDescription)
	}
	if res.Ticket.WasteType != "mixed" {
		t.Fatalf("waste_type = %q, want nlp hint", res.Ticket.WasteType)
	}
	if !res.Ticket.DrainBlocked {
		t.Fatal("drain mention should set drain_blocked")
	}
	// drain hint + no rain = HIGH
	if res.Ticket.Priority != models.PriorityHigh {
		t.Fatalf("priority = %s, want HIGH", res.Ticket.Priority)
	}
}

func TestSubmitShortNLPOutputIgnored(t *testing.T) {
	db := setupDB(t)
	svc := NewReportService(
		repository.NewTicketRepository(db),
		&fakeVision{result: ai.VisionResult{HasGarbage: true, WasteType: "plastic", Confidence: 0.9}},
		&fakeValue{},
		&fakeSpeech{},
		&fakeNLP{result: ai.Enrichment{TranslatedText: "trash"}}, // 5 chars, at the floor
		&fakeWeather{},
		&fakeStore{}, nil, 0,
	)

	res, err := svc.Submit(context.Background(), submission())
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if res.Ticket.TranslatedDescription != "" {
		t.Fatalf("short NLP output recorded: %q", res.Ticket.TranslatedDescription)
	}
}

func TestSubmitStorageOutageFallsBackInline(t *testing.T) {
	db := setupDB(t)
	svc := NewReportService(
		repository.NewTicketRepository(db),
		&fakeVision{result: ai.VisionResult{HasGarbage: true, Confidence: 0.9}},
		&fakeValue{}, &fakeSpeech{}, &fakeNLP{}, &fakeWeather{},
		&fakeStore{err: errServiceDown},
		nil, 0,
	)

	res, err := svc.Submit(context.Background(), submission())
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if !storage.IsInline(res.Ticket.BeforeImageRef) {
		t.Fatalf("before image ref = %q, want inline fallback", res.Ticket.BeforeImageRef)
	}
	if !strings.Contains(res.Ticket.BeforeImageRef, "image/jpeg") {
		t.Fatalf("inline ref lost content type: %q", res.Ticket.BeforeImageRef)
	}
}

func TestCheckDuplicate(t *testing.T) {
	db := setupDB(t)
	svc, _ := passingPipeline(t, db)
	ctx := context.Background()

	if _, err := svc.Submit(ctx, submission()); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	dup, err := svc.CheckDuplicate(ctx, 12.97161, 77.59461)
	if err != nil {
		t.Fatalf("CheckDuplicate: %v", err)
	}
	if dup == nil {
		t.Fatal("expected a duplicate candidate")
	}
	none, err := svc.CheckDuplicate(ctx, 13.5, 78.5)
	if err != nil {
		t.Fatalf("CheckDuplicate: %v", err)
	}
	if none != nil {
		t.Fatalf("unexpected candidate: %+v", none)
	}
}
