package httpadapter

import (
	"net/http"

	"github.com/marcoavk/urban-plan-assistant/internal/core/domain"
)

func mapErrorToHTTPStatus(err error) int {
	switch {
	case domain.IsKind(err, domain.ErrMalformedInput):
		return http.StatusBadRequest
	case domain.IsKind(err, domain.ErrUnsafeLookup):
		return http.StatusBadRequest
	case domain.IsKind(err, domain.ErrNotFound):
		return http.StatusNotFound
	case domain.IsKind(err, domain.ErrTemporary):
		return http.StatusServiceUnavailable
	case domain.IsKind(err, domain.ErrRetrievalFailed):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
