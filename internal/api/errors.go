package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/circletel/circletel/internal/auth"
	"github.com/circletel/circletel/internal/billing"
	"github.com/circletel/circletel/internal/blob"
	"github.com/circletel/circletel/internal/cms"
	"github.com/circletel/circletel/internal/emandate"
	"github.com/circletel/circletel/internal/jobs"
	"github.com/circletel/circletel/internal/netcash"
	"github.com/circletel/circletel/internal/quotes"
)

// errorBody is the JSON shape of every failed API response.
type errorBody struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// statusOf maps a domain error onto an HTTP status and the message shown
// to the caller. Unrecognised errors are 500 with a generic message.
func statusOf(err error) (int, string) {
	var (
		billingVE *billing.ValidationError
		quoteVE   *quotes.ValidationError
		quoteTE   *quotes.TransitionError
		pageVE    *cms.ValidationError
		pageTE    *cms.TransitionError
		payloadVE *netcash.ValidationError
		dateErr   *jobs.DateError
		submitErr *emandate.SubmitError
		apiErr    *netcash.APIError
		httpErr   *netcash.HTTPError
	)
	switch {
	case errors.As(err, &billingVE), errors.As(err, &quoteVE), errors.As(err, &pageVE),
		errors.As(err, &payloadVE), errors.As(err, &dateErr):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, emandate.ErrOrderIDRequired), errors.Is(err, emandate.ErrAccountNumberMissing),
		errors.Is(err, blob.ErrInvalidKey):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, auth.ErrUnauthorized), errors.Is(err, emandate.ErrCustomerRequired):
		return http.StatusUnauthorized, err.Error()
	case errors.Is(err, auth.ErrForbidden):
		return http.StatusForbidden, err.Error()
	case errors.Is(err, quotes.ErrNotFound), errors.Is(err, cms.ErrNotFound), errors.Is(err, blob.ErrNotFound),
		errors.Is(err, billing.ErrWebhookNotFound), errors.Is(err, billing.ErrInvoiceNotFound),
		errors.Is(err, emandate.ErrCustomerNotFound), errors.Is(err, emandate.ErrNoCustomerForUser),
		errors.Is(err, emandate.ErrOrderNotFound), errors.Is(err, emandate.ErrRequestNotFound),
		errors.Is(err, jobs.ErrUnknownJob):
		return http.StatusNotFound, err.Error()
	case errors.As(err, &quoteTE), errors.As(err, &pageTE), errors.Is(err, cms.ErrSlugTaken),
		errors.Is(err, billing.ErrNotReplayable), errors.Is(err, jobs.ErrBusy), errors.Is(err, emandate.ErrNotSubmitted):
		return http.StatusConflict, err.Error()
	case errors.As(err, &submitErr), errors.As(err, &apiErr), errors.As(err, &httpErr):
		return http.StatusBadGateway, err.Error()
	case errors.Is(err, netcash.ErrNotConfigured):
		return http.StatusServiceUnavailable, err.Error()
	case errors.Is(err, emandate.ErrPaymentMethod), errors.Is(err, emandate.ErrRequestRecord):
		return http.StatusInternalServerError, err.Error()
	}
	return http.StatusInternalServerError, "internal server error"
}

// writeAppError writes err with the status statusOf picks. Server-side
// failures are logged with the underlying error.
func writeAppError(w http.ResponseWriter, logger *slog.Logger, msg string, err error) {
	status, text := statusOf(err)
	if status >= http.StatusInternalServerError {
		logger.Error(msg, "error", err)
	}
	writeError(w, status, text)
}
