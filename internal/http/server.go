package http

import (
	"io"
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/example/cleancity/backend/internal/errs"
	"github.com/example/cleancity/backend/internal/metrics"
	"github.com/example/cleancity/backend/internal/service"
)

// Server wraps the gin engine and the services behind the API.
type Server struct {
	Engine        *gin.Engine
	reports       *service.ReportService
	jobs          *service.JobService
	verify        *service.VerifyService
	maxImageBytes int64
}

// NewServer constructs the API server and registers routes.
func NewServer(reports *service.ReportService, jobs *service.JobService, verify *service.VerifyService, maxImageBytes int64) *Server {
	if maxImageBytes <= 0 {
		maxImageBytes = 10 << 20
	}
	router := gin.Default()
	srv := &Server{
		Engine:        router,
		reports:       reports,
		jobs:          jobs,
		verify:        verify,
		maxImageBytes: maxImageBytes,
	}
	srv.registerRoutes()
	return srv
}

func (s *Server) registerRoutes() {
	s.Engine.GET("/metrics", gin.WrapH(metrics.Handler()))

	api := s.Engine.Group("/api")
	api.GET("/healthz", s.healthz)

	api.POST("/reports/submit", s.submitReport)
	api.GET("/reports/check-duplicate", s.checkDuplicate)
	api.GET("/reports/:id", s.getReport)

	api.POST("/jobs", s.createJob)
	api.GET("/jobs/available", s.availableJobs)
	api.GET("/jobs/worker/:id", s.workerJobs)
	api.GET("/jobs/:id", s.getJob)
	api.GET("/jobs/:id/attendance", s.attendance)
	api.POST("/jobs/:id/accept", s.acceptJob)
	api.POST("/jobs/:id/upload-after", s.uploadAfterImage)
	api.POST("/jobs/:id/complete", s.completeJob)

	api.POST("/verify/:ticketId", s.verifyTicket)
	api.GET("/verify/:ticketId/status", s.verifyStatus)
}

func (s *Server) healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) submitReport(c *gin.Context) {
	lat, err := strconv.ParseFloat(c.PostForm("latitude"), 64)
	if err != nil {
		respondError(c, errs.Validation("latitude is required"))
		return
	}
	lon, err := strconv.ParseFloat(c.PostForm("longitude"), 64)
	if err != nil {
		respondError(c, errs.Validation("longitude is required"))
		return
	}

	sub := service.Submission{
		Latitude:    lat,
		Longitude:   lon,
		Description: c.PostForm("description"),
	}
	if raw := c.PostForm("accuracy"); raw != "" {
		if acc, err := strconv.ParseFloat(raw, 64); err == nil {
			sub.Accuracy = &acc
		}
	}

	imageFile, err := c.FormFile("image")
	if err != nil {
		respondError(c, errs.Validation("image is required"))
		return
	}
	if imageFile.Size > s.maxImageBytes {
		respondError(c, errs.Validation("image exceeds the size limit"))
		return
	}
	sub.Image, sub.ImageContentType, err = readUpload(imageFile)
	if err != nil {
		respondError(c, errs.Validation("image could not be read"))
		return
	}

	if audioFile, err := c.FormFile("audio"); err == nil {
		if audioFile.Size > s.maxImageBytes {
			respondError(c, errs.Validation("audio exceeds the size limit"))
			return
		}
		sub.Audio, sub.AudioContentType, err = readUpload(audioFile)
		if err != nil {
			respondError(c, errs.Validation("audio could not be read"))
			return
		}
	}

	result, err := s.reports.Submit(c.Request.Context(), sub)
	if err != nil {
		respondError(c, err)
		return
	}
	status := http.StatusCreated
	if result.Merged {
		status = http.StatusOK
	}
	c.JSON(status, gin.H{
		"merged": result.Merged,
		"ticket": result.Ticket,
	})
}

func (s *Server) checkDuplicate(c *gin.Context) {
	lat, err := strconv.ParseFloat(c.Query("latitude"), 64)
	if err != nil {
		respondError(c, errs.Validation("latitude is required"))
		return
	}
	lon, err := strconv.ParseFloat(c.Query("longitude"), 64)
	if err != nil {
		respondError(c, errs.Validation("longitude is required"))
		return
	}
	candidate, err := s.reports.CheckDuplicate(c.Request.Context(), lat, lon)
	if err != nil {
		respondError(c, err)
		return
	}
	if candidate == nil {
		c.JSON(http.StatusOK, gin.H{"duplicate": false})
		return
	}
	c.JSON(http.StatusOK, gin.H{"duplicate": true, "ticket": candidate})
}

func (s *Server) getReport(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, errs.Validation("invalid report id"))
		return
	}
	ticket, err := s.reports.GetTicket(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, ticket)
}

func (s *Server) createJob(c *gin.Context) {
	var payload struct {
		Title     string      `json:"title" binding:"required"`
		TicketIDs []uuid.UUID `json:"ticket_ids" binding:"required"`
	}
	if err := c.ShouldBindJSON(&payload); err != nil {
		respondError(c, errs.Validation(err.Error()))
		return
	}
	job, err := s.jobs.Create(c.Request.Context(), payload.Title, payload.TicketIDs)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, job)
}

func (s *Server) availableJobs(c *gin.Context) {
	var workerLat, workerLon *float64
	if raw := c.Query("latitude"); raw != "" {
		if lat, err := strconv.ParseFloat(raw, 64); err == nil {
			workerLat = &lat
		}
	}
	if raw := c.Query("longitude"); raw != "" {
		if lon, err := strconv.ParseFloat(raw, 64); err == nil {
			workerLon = &lon
		}
	}
	jobs, err := s.jobs.ListAvailable(c.Request.Context(), workerLat, workerLon)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, jobs)
}

func (s *Server) workerJobs(c *gin.Context) {
	workerID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, errs.Validation("invalid worker id"))
		return
	}
	jobs, err := s.jobs.WorkerJobs(c.Request.Context(), workerID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, jobs)
}

func (s *Server) getJob(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, errs.Validation("invalid job id"))
		return
	}
	job, err := s.jobs.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, job)
}

func (s *Server) attendance(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, errs.Validation("invalid job id"))
		return
	}
	records, err := s.jobs.Attendance(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, records)
}

func (s *Server) acceptJob(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, errs.Validation("invalid job id"))
		return
	}
	var payload struct {
		WorkerID uuid.UUID `json:"worker_id" binding:"required"`
		Role     string    `json:"role"`
	}
	if err := c.ShouldBindJSON(&payload); err != nil {
		respondError(c, errs.Validation(err.Error()))
		return
	}
	job, err := s.jobs.Accept(c.Request.Context(), id, payload.WorkerID, payload.Role)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "job": job})
}

func (s *Server) uploadAfterImage(c *gin.Context) {
	jobID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, errs.Validation("invalid job id"))
		return
	}
	ticketID, err := uuid.Parse(c.PostForm("ticket_id"))
	if err != nil {
		respondError(c, errs.Validation("ticket_id is required"))
		return
	}
	imageFile, err := c.FormFile("image")
	if err != nil {
		respondError(c, errs.Validation("image is required"))
		return
	}
	if imageFile.Size > s.maxImageBytes {
		respondError(c, errs.Validation("image exceeds the size limit"))
		return
	}
	data, contentType, err := readUpload(imageFile)
	if err != nil {
		respondError(c, errs.Validation("image could not be read"))
		return
	}
	ref, err := s.jobs.UploadAfterImage(c.Request.Context(), jobID, ticketID, data, contentType)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"after_image_ref": ref})
}

func (s *Server) completeJob(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, errs.Validation("invalid job id"))
		return
	}
	var payload struct {
		WorkerID uuid.UUID `json:"worker_id" binding:"required"`
		Notes    string    `json:"notes"`
	}
	if err := c.ShouldBindJSON(&payload); err != nil {
		respondError(c, errs.Validation(err.Error()))
		return
	}
	job, err := s.jobs.Complete(c.Request.Context(), id, payload.WorkerID, payload.Notes)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "job": job})
}

func (s *Server) verifyTicket(c *gin.Context) {
	ticketID, err := uuid.Parse(c.Param("ticketId"))
	if err != nil {
		respondError(c, errs.Validation("invalid ticket id"))
		return
	}
	ticket, err := s.verify.Verify(c.Request.Context(), ticketID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"verdict":    ticket.VerifyVerdict,
		"confidence": ticket.VerifyConfidence,
		"reasoning":  ticket.VerifyReasoning,
		"status":     ticket.Status,
		"ticket":     ticket,
	})
}

func (s *Server) verifyStatus(c *gin.Context) {
	ticketID, err := uuid.Parse(c.Param("ticketId"))
	if err != nil {
		respondError(c, errs.Validation("invalid ticket id"))
		return
	}
	ticket, err := s.verify.Status(c.Request.Context(), ticketID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":      ticket.Status,
		"verdict":     ticket.VerifyVerdict,
		"confidence":  ticket.VerifyConfidence,
		"reasoning":   ticket.VerifyReasoning,
		"verified_at": ticket.VerifiedAt,
	})
}

// respondError maps a service error to its HTTP status and merges any
// structured detail into the body.
func respondError(c *gin.Context, err error) {
	body := gin.H{"error": err.Error()}
	for k, v := range errs.MetaOf(err) {
		body[k] = v
	}
	c.JSON(errs.HTTPStatus(err), body)
}

func readUpload(header *multipart.FileHeader) ([]byte, string, error) {
	file, err := header.Open()
	if err != nil {
		return nil, "", err
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		return nil, "", err
	}
	return data, header.Header.Get("Content-Type"), nil
}
