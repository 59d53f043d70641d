package controllers

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"

	"github.com/ManuelReschke/ListingHub/internal/pkg/env"
	"github.com/ManuelReschke/ListingHub/internal/pkg/media"
	"github.com/ManuelReschke/ListingHub/internal/pkg/shortener"
	"github.com/ManuelReschke/ListingHub/internal/pkg/upload"
	"github.com/ManuelReschke/ListingHub/internal/pkg/usercontext"
	"github.com/ManuelReschke/ListingHub/internal/pkg/workflow"
)

// WorkflowService is the part of workflow.Manager the handlers use.
type WorkflowService interface {
	Open(ctx context.Context, ownerRef string, mode workflow.Mode, recordID uint) (workflow.View, error)
	Get(ctx context.Context, id, ownerRef string) (workflow.View, error)
	Dispatch(ctx context.Context, id, ownerRef string, cmd workflow.Command) (workflow.View, error)
	Cancel(ctx context.Context, id, ownerRef string) error
}

type WorkflowControllerConfig struct {
	// StagingDir holds uploaded files until the workflow submits them.
	StagingDir     string
	MaxUploadBytes int64
	CommandTimeout time.Duration
}

func LoadWorkflowControllerConfig() WorkflowControllerConfig {
	return WorkflowControllerConfig{
		StagingDir:     env.GetEnv("MEDIA_STAGING_DIR", filepath.Join(os.TempDir(), "listinghub-staging")),
		MaxUploadBytes: int64(env.GetInt("MEDIA_MAX_UPLOAD_MB", 10)) << 20,
		CommandTimeout: env.GetDuration("WORKFLOW_COMMAND_TIMEOUT", 2*time.Minute),
	}
}

// WorkflowController exposes the onboarding workflow over JSON.
type WorkflowController struct {
	workflows WorkflowService
	cfg       WorkflowControllerConfig
}

func NewWorkflowController(workflows WorkflowService, cfg WorkflowControllerConfig) *WorkflowController {
	if cfg.CommandTimeout <= 0 {
		cfg.CommandTimeout = 2 * time.Minute
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 10 << 20
	}
	return &WorkflowController{workflows: workflows, cfg: cfg}
}

type openWorkflowRequest struct {
	Mode     string `json:"mode"`
	RecordID uint   `json:"record_id"`

	// RecordSlug is used when RecordID is unset.
	RecordSlug string `json:"record_slug"`
}

// HandleOpen starts a workflow for the calling owner.
func (wc *WorkflowController) HandleOpen(c *fiber.Ctx) error {
	var req openWorkflowRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if req.Mode == "" {
		req.Mode = string(workflow.ModeCreate)
	}
	mode, err := workflow.ParseMode(req.Mode)
	if err != nil {
		return respondWorkflowError(c, nil, err)
	}
	if req.RecordID == 0 && req.RecordSlug != "" {
		if req.RecordID, err = shortener.DecodeID(req.RecordSlug); err != nil {
			return badRequest(c, "invalid record slug")
		}
	}

	ctx, cancel := wc.commandContext(c)
	defer cancel()
	view, err := wc.workflows.Open(ctx, usercontext.GetOwnerRef(c), mode, req.RecordID)
	if err != nil {
		return respondWorkflowError(c, nil, err)
	}
	return c.Status(fiber.StatusCreated).JSON(view)
}

func (wc *WorkflowController) HandleGet(c *fiber.Ctx) error {
	view, err := wc.workflows.Get(c.UserContext(), c.Params("id"), usercontext.GetOwnerRef(c))
	if err != nil {
		return respondWorkflowError(c, nil, err)
	}
	return c.JSON(view)
}

// HandleCommand decodes a command envelope and dispatches it.
func (wc *WorkflowController) HandleCommand(c *fiber.Ctx) error {
	cmd, err := workflow.DecodeEnvelope(c.Body())
	if err != nil {
		return badRequest(c, err.Error())
	}

	ctx, cancel := wc.commandContext(c)
	defer cancel()
	view, err := wc.workflows.Dispatch(ctx, c.Params("id"), usercontext.GetOwnerRef(c), cmd)
	if err != nil {
		return respondWorkflowError(c, &view, err)
	}
	return c.JSON(view)
}

// HandleMedia stages an uploaded image on disk and adds it to the draft.
func (wc *WorkflowController) HandleMedia(c *fiber.Ctx) error {
	kind, err := media.ParseKind(strings.TrimSpace(c.FormValue("kind")))
	if err != nil {
		return badRequest(c, err.Error())
	}
	fh, err := c.FormFile("file")
	if err != nil {
		return badRequest(c, "file is required")
	}
	contentType, err := upload.ValidateFileHeader(fh, wc.cfg.MaxUploadBytes)
	if err != nil {
		status := fiber.StatusUnprocessableEntity
		if errors.Is(err, upload.ErrTooLarge) {
			status = fiber.StatusRequestEntityTooLarge
		}
		return c.Status(status).JSON(fiber.Map{"error": "invalid_file", "message": err.Error()})
	}

	if err := os.MkdirAll(wc.cfg.StagingDir, 0o755); err != nil {
		log.Errorf("[Workflow] Could not create staging dir %s: %v", wc.cfg.StagingDir, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "could not stage upload"})
	}
	ext := strings.ToLower(filepath.Ext(fh.Filename))
	path := filepath.Join(wc.cfg.StagingDir, uuid.NewString()+ext)
	if err := c.SaveFile(fh, path); err != nil {
		log.Errorf("[Workflow] Could not stage %s: %v", fh.Filename, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "could not stage upload"})
	}

	cmd := workflow.AddMedia{
		Kind:        kind,
		File:        media.LocalFile{Path: path, Filename: filepath.Base(fh.Filename), ContentType: contentType},
		Description: strings.TrimSpace(c.FormValue("description")),
	}
	ctx, cancel := wc.commandContext(c)
	defer cancel()
	view, err := wc.workflows.Dispatch(ctx, c.Params("id"), usercontext.GetOwnerRef(c), cmd)
	if err != nil {
		if rmErr := os.Remove(path); rmErr != nil && !os.IsNotExist(rmErr) {
			log.Warnf("[Workflow] Could not remove staged file %s: %v", path, rmErr)
		}
		return respondWorkflowError(c, &view, err)
	}
	return c.Status(fiber.StatusCreated).JSON(view)
}

// HandleCancel discards the draft.
func (wc *WorkflowController) HandleCancel(c *fiber.Ctx) error {
	if err := wc.workflows.Cancel(c.UserContext(), c.Params("id"), usercontext.GetOwnerRef(c)); err != nil {
		return respondWorkflowError(c, nil, err)
	}
	return c.JSON(fiber.Map{"success": true})
}

func (wc *WorkflowController) commandContext(c *fiber.Ctx) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.UserContext(), wc.cfg.CommandTimeout)
}
