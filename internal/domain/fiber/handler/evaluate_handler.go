package handler

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/dzackiero/cv-evaluation/internal/middleware"
	"github.com/dzackiero/cv-evaluation/internal/model"
	"github.com/dzackiero/cv-evaluation/internal/service"
	"github.com/dzackiero/cv-evaluation/internal/usecase"
	"github.com/dzackiero/cv-evaluation/internal/util"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

const maxUploadSize = 5 * 1024 * 1024

type EvaluateHandler struct {
	uc        *usecase.EvaluationUsecase
	documents *service.DocumentService
}

func NewEvaluateHandler(uc *usecase.EvaluationUsecase, documents *service.DocumentService) *EvaluateHandler {
	return &EvaluateHandler{uc: uc, documents: documents}
}

func (h *EvaluateHandler) RegisterRoutes(app *fiber.App) {
	app.Post("/upload", middleware.RateLimiter(10, time.Minute), h.Upload)
	app.Post("/evaluate", middleware.RateLimiter(1, 4*time.Second), h.Evaluate)
	app.Get("/result/:id", h.Result)
}

// Upload accepts the candidate's CV and project report PDFs and returns
// the file ids used to start an evaluation.
func (h *EvaluateHandler) Upload(c *fiber.Ctx) error {
	userID := requireUserID(c)
	if userID == "" {
		return util.ErrorResponse(c, util.ErrorResponseFormat{
			Code:    fiber.StatusBadRequest,
			Message: "X-User-ID header is required",
		})
	}

	cvDoc, err := h.processFile(c, userID, "cv", model.DocumentCV)
	if err != nil {
		return err
	}
	reportDoc, err := h.processFile(c, userID, "project_report", model.DocumentProjectReport)
	if err != nil {
		return err
	}

	return util.SuccessResponse(c, util.SuccessResponseFormat{
		Message: "Files uploaded",
		Data: fiber.Map{
			"cv_file_id":     cvDoc.ID,
			"report_file_id": reportDoc.ID,
		},
	})
}

type evaluateRequest struct {
	JobTitle     string    `json:"job_title"`
	CvFileID     uuid.UUID `json:"cv_file_id"`
	ReportFileID uuid.UUID `json:"report_file_id"`
}

// Evaluate creates the evaluation job and enqueues the task graph.
func (h *EvaluateHandler) Evaluate(c *fiber.Ctx) error {
	userID := requireUserID(c)
	if userID == "" {
		return util.ErrorResponse(c, util.ErrorResponseFormat{
			Code:    fiber.StatusBadRequest,
			Message: "X-User-ID header is required",
		})
	}

	var req evaluateRequest
	if err := c.BodyParser(&req); err != nil {
		return util.ErrorResponse(c, util.ErrorResponseFormat{
			Code:    fiber.StatusBadRequest,
			Message: "invalid request body",
		}, err)
	}
	if req.JobTitle == "" || req.CvFileID == uuid.Nil || req.ReportFileID == uuid.Nil {
		return util.ErrorResponse(c, util.ErrorResponseFormat{
			Code:    fiber.StatusBadRequest,
			Message: "job_title, cv_file_id and report_file_id are required",
		})
	}

	job, err := h.uc.InitializeJob(c.Context(), userID, usecase.InitializeJobRequest{
		JobTitle:     req.JobTitle,
		CvFileID:     req.CvFileID,
		ReportFileID: req.ReportFileID,
	})
	if err != nil {
		return util.ErrorResponse(c, util.ErrorResponseFormat{
			Message: "failed to submit evaluation",
		}, err)
	}

	return util.SuccessResponse(c, util.SuccessResponseFormat{
		Code:    fiber.StatusAccepted,
		Message: "Evaluation submitted",
		Data:    fiber.Map{"id": job.ID, "status": job.Status},
	})
}

// Result polls the job status. Safe to call at any point of the
// pipeline.
func (h *EvaluateHandler) Result(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return util.ErrorResponse(c, util.ErrorResponseFormat{
			Code:    fiber.StatusBadRequest,
			Message: "invalid job id",
		}, err)
	}

	status, err := h.uc.GetJobStatus(c.Context(), id)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return util.ErrorResponse(c, util.ErrorResponseFormat{
				Code:    fiber.StatusNotFound,
				Message: "job not found",
			})
		}
		return util.ErrorResponse(c, util.ErrorResponseFormat{
			Message: "failed to get evaluation result",
		}, err)
	}

	return util.SuccessResponse(c, util.SuccessResponseFormat{
		Message: "Success get evaluation result",
		Data:    status,
	})
}

func (h *EvaluateHandler) processFile(c *fiber.Ctx, userID, fieldName string, kind model.DocumentKind) (*model.Document, error) {
	file, err := c.FormFile(fieldName)
	if err != nil {
		return nil, util.ErrorResponse(c, util.ErrorResponseFormat{
			Code:    fiber.StatusBadRequest,
			Message: fmt.Sprintf("%s file is required", fieldName),
		}, err)
	}

	if file.Size > maxUploadSize {
		return nil, util.ErrorResponse(c, util.ErrorResponseFormat{
			Code:    fiber.StatusBadRequest,
			Message: fmt.Sprintf("%s file size is too large (max 5MB)", fieldName),
		})
	}

	if strings.ToLower(filepath.Ext(file.Filename)) != ".pdf" {
		return nil, util.ErrorResponse(c, util.ErrorResponseFormat{
			Code:    fiber.StatusBadRequest,
			Message: fmt.Sprintf("unsupported %s file type", fieldName),
		})
	}

	savePath := uploadPath(kind, file.Filename)
	if err := c.SaveFile(file, savePath); err != nil {
		return nil, util.ErrorResponse(c, util.ErrorResponseFormat{
			Message: fmt.Sprintf("cannot save %s file", fieldName),
		}, err)
	}

	doc, err := h.documents.SavePDF(c.Context(), userID, kind, file.Filename, savePath)
	if err != nil {
		return nil, util.ErrorResponse(c, util.ErrorResponseFormat{
			Message: fmt.Sprintf("failed to extract %s text", fieldName),
		}, err)
	}
	return doc, nil
}

// uploadPath builds a unique location for an uploaded file. The random
// prefix keeps concurrent uploads of the same client-supplied filename
// from overwriting each other.
func uploadPath(kind model.DocumentKind, filename string) string {
	return filepath.Join("./uploads", string(kind), uuid.New().String()+"_"+filepath.Base(filename))
}

func requireUserID(c *fiber.Ctx) string {
	return strings.TrimSpace(c.Get("X-User-ID"))
}
