package presenter

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/totegamma/flock/internal/domain"
)

type errorResponse struct {
	Error      string   `json:"error"`
	Candidates []string `json:"candidates,omitempty"`
	From       string   `json:"from,omitempty"`
	To         string   `json:"to,omitempty"`
}

// OK wraps a successful response.
func OK(c echo.Context, payload any) error {
	return c.JSON(http.StatusOK, payload)
}

func Accepted(c echo.Context, payload any) error {
	return c.JSON(http.StatusAccepted, payload)
}

func BadRequest(c echo.Context, err error) error {
	return c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
}

func BadRequestMessage(c echo.Context, msg string) error {
	return c.JSON(http.StatusBadRequest, errorResponse{Error: msg})
}

func Unauthorized(c echo.Context) error {
	return c.JSON(http.StatusUnauthorized, errorResponse{Error: "a valid session is required"})
}

func Forbidden(c echo.Context) error {
	return c.JSON(http.StatusForbidden, errorResponse{Error: "administrator role required"})
}

func NotFound(c echo.Context, msg string) error {
	return c.JSON(http.StatusNotFound, errorResponse{Error: msg})
}

func InternalError(c echo.Context, err error) error {
	return c.JSON(http.StatusInternalServerError, errorResponse{Error: err.Error()})
}

// Status maps an error to the HTTP status it is rendered with.
func Status(err error) int {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrAmbiguousMatch):
		return http.StatusConflict
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrMergeIncomplete):
		return http.StatusAccepted
	case errors.Is(err, domain.ErrStoreUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Error renders err with the status Status picks. Store details are not
// exposed to clients.
func Error(c echo.Context, err error) error {
	status := Status(err)
	body := errorResponse{Error: err.Error()}

	var ambiguous domain.AmbiguousMatchError
	if errors.As(err, &ambiguous) {
		body.Candidates = ambiguous.CandidateIDs
	}
	var incomplete domain.MergeIncompleteError
	if errors.As(err, &incomplete) {
		body.Error = "merged profile written; old row still present, complete the merge"
		body.From, body.To = incomplete.From, incomplete.To
	}
	switch status {
	case http.StatusServiceUnavailable:
		body.Error = "store temporarily unavailable; retry later"
	case http.StatusInternalServerError:
		body.Error = "internal error"
	}
	return c.JSON(status, body)
}
