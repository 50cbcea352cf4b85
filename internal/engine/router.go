package engine

import (
	"errors"

	"github.com/gofiber/fiber/v2"
)

// RegisterRoutes mounts the dynamic entity API. The schema route is declared
// before the :id route so "schema" is never captured as a record id.
func RegisterRoutes(app fiber.Router, h *Handler, middleware ...fiber.Handler) {
	api := app.Group("/api")
	for _, m := range middleware {
		api.Use(m)
	}

	api.Get("/:entity/schema", h.Schema)
	api.Get("/:entity", h.List)
	api.Post("/:entity", h.Create)
	api.Get("/:entity/:id", h.GetByID)
	api.Put("/:entity/:id", h.Update)
	api.Delete("/:entity/:id", h.Delete)
	api.Post("/:entity/:id/restore", h.Restore)
	api.Get("/:entity/:id/:relation", h.DetailList)
}

// ErrorHandler is the app-level fiber error handler. Structured AppErrors keep
// their code and status; everything else collapses to a generic 500.
func ErrorHandler(c *fiber.Ctx, err error) error {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return c.Status(appErr.Status).JSON(ErrorResponse{Error: appErr})
	}
	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		return c.Status(fiberErr.Code).JSON(ErrorResponse{Error: &AppError{
			Code:    "REQUEST_ERROR",
			Status:  fiberErr.Code,
			Message: fiberErr.Message,
		}})
	}
	return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{Error: &AppError{
		Code:    "INTERNAL_ERROR",
		Status:  fiber.StatusInternalServerError,
		Message: "An unexpected error occurred",
	}})
}
