package controllers

import (
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/ListingHub/internal/pkg/billing"
	"github.com/ManuelReschke/ListingHub/internal/pkg/plans"
	"github.com/ManuelReschke/ListingHub/internal/pkg/submission"
	"github.com/ManuelReschke/ListingHub/internal/pkg/workflow"
)

// guardErrors are step guard and command errors the caller can fix.
var guardErrors = []error{
	workflow.ErrUnknownMode,
	workflow.ErrCommandNotAllowed,
	workflow.ErrNoTransition,
	workflow.ErrCompleted,
	workflow.ErrClosed,
	workflow.ErrNothingToPay,
	workflow.ErrRecordRequired,
	workflow.ErrMediaIndex,
	workflow.ErrMediaLimit,
	workflow.ErrBadOrder,
	workflow.ErrLogoRequired,
	workflow.ErrCategoryNotInDraft,
	plans.ErrTierRequired,
	plans.ErrPlanUnavailable,
}

// errorStatus maps a workflow error to its HTTP status and error code.
func errorStatus(err error) (int, string) {
	var (
		validationErr *workflow.ValidationError
		incompleteErr *plans.SelectionIncompleteError
		confirmErr    *billing.ConfirmationError
		captureErr    *submission.PaymentCaptureError
		bootstrapErr  *billing.BootstrapError
		retryErr      *billing.RetryableError
		commitErr     *submission.CommitError
	)
	switch {
	case errors.As(err, &validationErr):
		return fiber.StatusUnprocessableEntity, "validation_failed"
	case errors.As(err, &incompleteErr):
		return fiber.StatusUnprocessableEntity, "selection_incomplete"
	case errors.Is(err, workflow.ErrBusy):
		return fiber.StatusConflict, "busy"
	case errors.Is(err, workflow.ErrNotFound), errors.Is(err, submission.ErrRecordNotFound):
		return fiber.StatusNotFound, "not_found"
	case errors.As(err, &confirmErr):
		return fiber.StatusPaymentRequired, "card_rejected"
	case errors.As(err, &captureErr):
		return fiber.StatusPaymentRequired, "payment_capture_failed"
	case errors.As(err, &bootstrapErr):
		return fiber.StatusBadGateway, "billing_account_failed"
	case errors.As(err, &retryErr):
		return fiber.StatusBadGateway, "provider_unavailable"
	case errors.As(err, &commitErr):
		return fiber.StatusInternalServerError, "commit_failed"
	}
	for _, target := range guardErrors {
		if errors.Is(err, target) {
			return fiber.StatusUnprocessableEntity, "not_allowed"
		}
	}
	return fiber.StatusInternalServerError, "internal_server_error"
}

// incompleteCategories collects every category of a joined guard error.
func incompleteCategories(err error) []string {
	var out []string
	var walk func(error)
	walk = func(e error) {
		switch x := e.(type) {
		case *plans.SelectionIncompleteError:
			out = append(out, x.Category)
		case interface{ Unwrap() []error }:
			for _, inner := range x.Unwrap() {
				walk(inner)
			}
		case interface{ Unwrap() error }:
			if inner := x.Unwrap(); inner != nil {
				walk(inner)
			}
		}
	}
	walk(err)
	return out
}

// respondWorkflowError writes err as JSON. The current view is included when
// the workflow still exists so clients can redraw without another round trip.
func respondWorkflowError(c *fiber.Ctx, view *workflow.View, err error) error {
	status, code := errorStatus(err)
	body := fiber.Map{
		"error":   code,
		"message": err.Error(),
	}

	var (
		validationErr *workflow.ValidationError
		incompleteErr *plans.SelectionIncompleteError
		confirmErr    *billing.ConfirmationError
		captureErr    *submission.PaymentCaptureError
	)
	switch {
	case errors.As(err, &validationErr):
		body["fields"] = validationErr.Fields
	case errors.As(err, &incompleteErr):
		body["category"] = incompleteErr.Category
		body["categories"] = incompleteCategories(err)
	case errors.As(err, &confirmErr):
		body["decline_code"] = confirmErr.Code
	case errors.As(err, &captureErr):
		body["unpaid"] = captureErr.Unpaid
		body["escalated"] = captureErr.Escalated
	}
	if status >= fiber.StatusInternalServerError {
		log.Errorf("[API] %s %s failed: %v", c.Method(), c.Path(), err)
		if status == fiber.StatusInternalServerError {
			body["message"] = "internal error"
		}
	}
	if view != nil && view.ID != "" {
		body["workflow"] = view
	}
	return c.Status(status).JSON(body)
}

func badRequest(c *fiber.Ctx, message string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
		"error":   "bad_request",
		"message": message,
	})
}

// parseIDParam reads a positive numeric route parameter.
func parseIDParam(c *fiber.Ctx, name string) (uint, bool) {
	raw := c.Params(name)
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return uint(id), true
}
