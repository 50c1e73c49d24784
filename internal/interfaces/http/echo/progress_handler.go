package echo

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	app "github.com/mohammadpnp/book-import/internal/application/importjob"
	domain "github.com/mohammadpnp/book-import/internal/domain/importjob"
)

type ProgressHandler struct {
	progress app.GetImportProgress
	active   app.ListActiveImports
}

func NewProgressHandler(progress app.GetImportProgress, active app.ListActiveImports) *ProgressHandler {
	return &ProgressHandler{progress: progress, active: active}
}

func (h *ProgressHandler) GetImportProgress(c echo.Context) error {
	snap, err := h.progress.Execute(c.Request().Context(), app.GetImportProgressInput{
		JobID:     c.Param("jobId"),
		LibraryID: c.QueryParam("library_id"),
	})
	if err != nil {
		if errors.Is(err, app.ErrInvalidJobID) {
			return badRequest(c, "invalid_job_id", "jobId must be a valid UUID")
		}
		if errors.Is(err, app.ErrImportNotFound) {
			return c.JSON(http.StatusNotFound, apiResponse{Error: &errorBody{
				Code:    "not_found",
				Message: "import job not found",
			}})
		}
		return c.JSON(http.StatusInternalServerError, apiResponse{Error: &errorBody{
			Code:    "internal_error",
			Message: "failed to get import progress",
		}})
	}

	return c.JSON(http.StatusOK, apiResponse{Data: snap})
}

func (h *ProgressHandler) ListActiveImports(c echo.Context) error {
	snaps, err := h.active.Execute(c.Request().Context(), domain.Scope{LibraryID: c.Param("libraryId")})
	if err != nil {
		if errors.Is(err, app.ErrInvalidLibraryID) {
			return badRequest(c, "invalid_library_id", "libraryId must be a valid UUID")
		}
		return c.JSON(http.StatusInternalServerError, apiResponse{Error: &errorBody{
			Code:    "internal_error",
			Message: "failed to list active imports",
		}})
	}

	return c.JSON(http.StatusOK, apiResponse{Data: snaps})
}
