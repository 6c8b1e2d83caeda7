package service

import (
	"context"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/example/cleancity/backend/internal/ai"
	"github.com/example/cleancity/backend/internal/errs"
	"github.com/example/cleancity/backend/internal/geo"
	"github.com/example/cleancity/backend/internal/metrics"
	"github.com/example/cleancity/backend/internal/models"
	"github.com/example/cleancity/backend/internal/mq"
	"github.com/example/cleancity/backend/internal/repository"
	"github.com/example/cleancity/backend/internal/scoring"
	"github.com/example/cleancity/backend/internal/storage"
)

const (
	// minDescriptionLen: a transcript only replaces a description shorter
	// than this.
	minDescriptionLen = 10
	// minEnrichmentLen: NLP output must exceed this to be recorded.
	minEnrichmentLen = 5
)

// Submission is one citizen report entering the pipeline.
type Submission struct {
	Latitude         float64
	Longitude        float64
	Accuracy         *float64
	Description      string
	Image            []byte
	ImageContentType string
	Audio            []byte
	AudioContentType string
}

// SubmitResult carries the persisted ticket and whether the report was
// folded into an existing one.
type SubmitResult struct {
	Ticket *models.Ticket `json:"ticket"`
	Merged bool           `json:"merged"`
}

// ReportService runs the intake pipeline: vision gate, concurrent enrichment,
// geo-dedup, risk scoring and the ticket write. Only the vision gate is
// fatal; every other stage degrades to defaults.
type ReportService struct {
	tickets      *repository.TicketRepository
	vision       VisionAnalyzer
	value        ValueEstimator
	speech       Transcriber
	nlp          TextEnricher
	weather      ForecastProvider
	store        ObjectStore
	events       mq.Publisher
	toleranceDeg float64
}

// NewReportService builds the service with its collaborators.
func NewReportService(
	tickets *repository.TicketRepository,
	vision VisionAnalyzer,
	value ValueEstimator,
	speech Transcriber,
	nlp TextEnricher,
	weather ForecastProvider,
	store ObjectStore,
	events mq.Publisher,
	toleranceDeg float64,
) *ReportService {
	if toleranceDeg <= 0 {
		toleranceDeg = geo.DefaultToleranceDeg
	}
	return &ReportService{
		tickets:      tickets,
		vision:       vision,
		value:        value,
		speech:       speech,
		nlp:          nlp,
		weather:      weather,
		store:        store,
		events:       events,
		toleranceDeg: toleranceDeg,
	}
}

// Submit runs a report through the pipeline. A ticket is persisted if and
// only if the vision gate confirms garbage; any other gate outcome produces
// zero ticket writes.
func (s *ReportService) Submit(ctx context.Context, sub Submission) (*SubmitResult, error) {
	if len(sub.Image) == 0 {
		return nil, errs.Validation("image is required")
	}
	if !geo.ValidCoordinates(sub.Latitude, sub.Longitude) {
		return nil, errs.Validation("valid coordinates are required")
	}

	vision, err := s.vision.Analyze(ctx, sub.Image)
	if err != nil {
		metrics.GateOutcomes.WithLabelValues("unavailable").Inc()
		return nil, errs.Unavailable("vision service unavailable", err)
	}
	if !vision.HasGarbage {
		metrics.GateOutcomes.WithLabelValues("rejected").Inc()
		return nil, errs.GateRejected("no garbage detected in image", map[string]any{
			"reason":     "vision_failed",
			"confidence": scoring.NormalizeConfidence(vision.Confidence),
			"waste_type": vision.WasteType,
		})
	}
	metrics.GateOutcomes.WithLabelValues("passed").Inc()

	enriched := s.enrich(ctx, sub)

	description := strings.TrimSpace(sub.Description)
	if enriched.transcript != "" && len(description) < minDescriptionLen {
		description = enriched.transcript
	}
	translated := ""
	if t := strings.TrimSpace(enriched.nlp.TranslatedText); len(t) > minEnrichmentLen {
		translated = t
	}
	wasteType := vision.WasteType
	if wasteType == "" && enriched.nlp.WasteType != "" {
		wasteType = enriched.nlp.WasteType
	}
	drainBlocked := vision.DrainBlocked
	if enriched.nlp.DrainMentioned != nil && *enriched.nlp.DrainMentioned {
		drainBlocked = true
	}

	// Fast path: a known open incident at this site absorbs the report
	// before any image upload.
	if candidate, err := s.tickets.FindDuplicateCandidate(ctx, sub.Latitude, sub.Longitude, s.toleranceDeg); err != nil {
		return nil, err
	} else if candidate != nil {
		bumped, err := s.tickets.IncrementTicketCount(ctx, candidate.ID)
		if err != nil {
			return nil, err
		}
		if bumped {
			merged, err := s.tickets.FindByID(ctx, candidate.ID)
			if err != nil {
				return nil, err
			}
			metrics.MergedReports.Inc()
			s.publishEvent(ctx, mq.EventReportMerged, merged)
			return &SubmitResult{Ticket: merged, Merged: true}, nil
		}
	}

	ref, err := s.store.Upload(ctx, sub.Image, sub.ImageContentType)
	if err != nil {
		log.Printf("image upload degraded to inline: %v", err)
		metrics.DegradedEnrichments.WithLabelValues("storage").Inc()
		ref = storage.InlineRef(sub.Image, sub.ImageContentType)
	}

	ticket := &models.Ticket{
		Latitude:              sub.Latitude,
		Longitude:             sub.Longitude,
		Accuracy:              sub.Accuracy,
		Description:           description,
		TranslatedDescription: translated,
		BeforeImageRef:        ref,
		WasteType:             wasteType,
		Severity:              vision.Severity,
		DrainBlocked:          drainBlocked,
		Confidence:            scoring.NormalizeConfidence(vision.Confidence),
		RainProbability:       enriched.rain,
		Priority:              scoring.Priority(drainBlocked, enriched.rain, vision.Severity),
		Status:                models.TicketStatusOpen,
		Materials:             enriched.value.Materials,
		EstimatedWeightKg:     enriched.value.WeightKg,
		EstimatedRevenue:      enriched.value.Revenue,
		ValueConfidence:       scoring.NormalizeConfidence(enriched.value.Confidence),
	}

	// MergeOrCreate closes the race window between the candidate check above
	// and the insert: a near-simultaneous report for the same site folds in
	// here instead of creating a duplicate row.
	persisted, merged, err := s.tickets.MergeOrCreate(ctx, ticket, s.toleranceDeg)
	if err != nil {
		return nil, err
	}
	if merged {
		metrics.MergedReports.Inc()
		s.publishEvent(ctx, mq.EventReportMerged, persisted)
	} else {
		s.publishEvent(ctx, mq.EventReportCreated, persisted)
	}
	return &SubmitResult{Ticket: persisted, Merged: merged}, nil
}

// CheckDuplicate reports the open ticket a submission at this position would
// merge into, if any.
func (s *ReportService) CheckDuplicate(ctx context.Context, lat, lon float64) (*models.Ticket, error) {
	if !geo.ValidCoordinates(lat, lon) {
		return nil, errs.Validation("valid coordinates are required")
	}
	return s.tickets.FindDuplicateCandidate(ctx, lat, lon, s.toleranceDeg)
}

// GetTicket returns one ticket by id.
func (s *ReportService) GetTicket(ctx context.Context, id uuid.UUID) (*models.Ticket, error) {
	return s.tickets.FindByID(ctx, id)
}

type enrichmentResult struct {
	value      ai.ValueEstimate
	transcript string
	nlp        ai.Enrichment
	rain       float64
}

// enrich fans the three enrichers and the weather fetcher out concurrently.
// They are mutually independent and only contribute advisory fields, so each
// failure is logged, counted and replaced with its zero value.
func (s *ReportService) enrich(ctx context.Context, sub Submission) enrichmentResult {
	var (
		wg  sync.WaitGroup
		out enrichmentResult
	)

	wg.Add(1)
	go func() {
		defer wg.Done()
		estimate, err := s.value.Estimate(ctx, sub.Image)
		if err != nil {
			log.Printf("value estimation degraded: %v", err)
			metrics.DegradedEnrichments.WithLabelValues("value").Inc()
			return
		}
		out.value = estimate
	}()

	if len(sub.Audio) > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			text, err := s.speech.Transcribe(ctx, sub.Audio, sub.AudioContentType)
			if err != nil {
				log.Printf("transcription degraded: %v", err)
				metrics.DegradedEnrichments.WithLabelValues("speech").Inc()
				return
			}
			out.transcript = strings.TrimSpace(text)
		}()
	}

	if strings.TrimSpace(sub.Description) != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			enrichment, err := s.nlp.Enrich(ctx, sub.Description)
			if err != nil {
				log.Printf("text enrichment degraded: %v", err)
				metrics.DegradedEnrichments.WithLabelValues("nlp").Inc()
				return
			}
			out.nlp = enrichment
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		rain, err := s.weather.MaxRainProbability(ctx, sub.Latitude, sub.Longitude)
		if err != nil {
			log.Printf("weather fetch degraded: %v", err)
			metrics.DegradedEnrichments.WithLabelValues("weather").Inc()
			return
		}
		out.rain = rain
	}()

	wg.Wait()
	return out
}

func (s *ReportService) publishEvent(ctx context.Context, event string, ticket *models.Ticket) {
	if s.events == nil {
		return
	}
	payload := map[string]any{
		"event":      event,
		"ticketId":   ticket.ID.String(),
		"status":     ticket.Status,
		"priority":   ticket.Priority,
		"count":      ticket.TicketCount,
		"occurredAt": time.Now().UTC().Format(time.RFC3339),
	}
	if err := s.events.Publish(ctx, event, payload); err != nil {
		log.Printf("publish %s failed: %v", event, err)
	}
}
