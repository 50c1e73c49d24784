package echo

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	app "github.com/mohammadpnp/book-import/internal/application/importjob"
	domain "github.com/mohammadpnp/book-import/internal/domain/importjob"
)

type ImportHandler struct {
	useCase  app.StartIsbnImport
	validate *validator.Validate
}

type startIsbnImportRequest struct {
	SourcePath string `json:"source_path" validate:"omitempty,max=1024"`
	MaxCount   int    `json:"max_count" validate:"gte=0"`
	MaxRetries *int   `json:"max_retries" validate:"omitempty,gte=0,lte=10"`
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type apiResponse struct {
	Data  any        `json:"data,omitempty"`
	Error *errorBody `json:"error,omitempty"`
}

func NewImportHandler(useCase app.StartIsbnImport) *ImportHandler {
	return &ImportHandler{useCase: useCase, validate: validator.New()}
}

// StartIsbnImport accepts either a multipart upload in the "file" field or
// a JSON body naming a file under the import directory.
func (h *ImportHandler) StartIsbnImport(c echo.Context) error {
	in := app.StartIsbnImportInput{
		Scope: domain.Scope{LibraryID: c.Param("libraryId")},
	}

	var req startIsbnImportRequest
	if strings.HasPrefix(c.Request().Header.Get(echo.HeaderContentType), echo.MIMEMultipartForm) {
		fileHeader, err := c.FormFile("file")
		if err != nil {
			return badRequest(c, "missing_file", "multipart field \"file\" is required")
		}
		if req, err = formRequest(c); err != nil {
			return badRequest(c, "bad_request", "max_count and max_retries must be integers")
		}

		f, err := fileHeader.Open()
		if err != nil {
			return badRequest(c, "bad_request", "uploaded file cannot be read")
		}
		defer f.Close()

		in.FileName = fileHeader.Filename
		in.Content = f
	} else {
		if err := c.Bind(&req); err != nil {
			return badRequest(c, "bad_request", "invalid request body")
		}
		in.SourcePath = req.SourcePath
	}

	if err := h.validate.Struct(req); err != nil {
		return badRequest(c, "invalid_request", validationMessage(err))
	}
	in.MaxCount = req.MaxCount
	in.MaxRetries = req.MaxRetries

	out, err := h.useCase.Execute(c.Request().Context(), in)
	if err != nil {
		switch {
		case errors.Is(err, app.ErrInvalidLibraryID):
			return badRequest(c, "invalid_library_id", "libraryId must be a valid UUID")
		case errors.Is(err, app.ErrInvalidMaxRetries):
			return badRequest(c, "invalid_max_retries", "max_retries is out of range")
		case errors.Is(err, app.ErrInvalidImportSource):
			return badRequest(c, "invalid_source", "provide a file upload or a readable source_path")
		case errors.Is(err, app.ErrUnsupportedFile):
			return c.JSON(http.StatusUnsupportedMediaType, apiResponse{Error: &errorBody{
				Code:    "unsupported_file",
				Message: "file must be delimited text or an xlsx spreadsheet",
			}})
		case errors.Is(err, app.ErrNoIdentifiers):
			return c.JSON(http.StatusUnprocessableEntity, apiResponse{Error: &errorBody{
				Code:    "no_identifiers",
				Message: "file contains no valid ISBNs",
			}})
		}
		return c.JSON(http.StatusInternalServerError, apiResponse{Error: &errorBody{
			Code:    "internal_error",
			Message: "failed to start import",
		}})
	}

	return c.JSON(http.StatusAccepted, apiResponse{Data: out})
}

func formRequest(c echo.Context) (startIsbnImportRequest, error) {
	var req startIsbnImportRequest
	if raw := strings.TrimSpace(c.FormValue("max_count")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return req, err
		}
		req.MaxCount = n
	}
	if raw := strings.TrimSpace(c.FormValue("max_retries")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return req, err
		}
		req.MaxRetries = &n
	}
	return req, nil
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return "invalid request"
	}
	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, strings.ToLower(fe.Field())+" failed "+fe.Tag())
	}
	return strings.Join(fields, "; ")
}

func badRequest(c echo.Context, code, message string) error {
	return c.JSON(http.StatusBadRequest, apiResponse{Error: &errorBody{Code: code, Message: message}})
}
