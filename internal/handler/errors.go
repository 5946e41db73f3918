package handler

import (
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/liafood/backoffice/internal/catalog"
	"github.com/liafood/backoffice/internal/domain/auth"
	"github.com/liafood/backoffice/internal/domain/cart"
	"github.com/liafood/backoffice/internal/domain/client"
	"github.com/liafood/backoffice/internal/domain/invoice"
	"github.com/liafood/backoffice/internal/domain/order"
	"github.com/liafood/backoffice/internal/domain/product"
	"github.com/liafood/backoffice/pkg/httpmiddleware"
)

var (
	errUnauthorized = errors.New("authentication required")
	errForbidden    = errors.New("admin access required")
)

func errInvalidParam(name string) error {
	return errors.Errorf("invalid %s parameter", name)
}

// statusError pins the HTTP status of an error.
type statusError struct {
	code int
	err  error
}

func (e *statusError) Error() string { return e.err.Error() }
func (e *statusError) Unwrap() error { return e.err }

func withStatus(code int, err error) error {
	return &statusError{code: code, err: err}
}

func invalidInput(err error) error {
	return withStatus(http.StatusBadRequest, err)
}

// statusOf classifies domain errors into HTTP statuses.
func statusOf(err error) int {
	var se *statusError
	if errors.As(err, &se) {
		return se.code
	}
	var pnf *order.ProductNotFoundError
	if errors.As(err, &pnf) {
		return http.StatusUnprocessableEntity
	}

	switch {
	case errors.Is(err, errUnauthorized),
		errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, auth.ErrInvalidCredentials),
		errors.Is(err, auth.ErrUnknownClient):
		return http.StatusUnauthorized
	case errors.Is(err, errForbidden):
		return http.StatusForbidden

	case errors.Is(err, order.ErrNotFound),
		errors.Is(err, invoice.ErrNotFound),
		errors.Is(err, client.ErrNotFound),
		errors.Is(err, product.ErrNotFound),
		errors.Is(err, product.ErrCategoryNotFound):
		return http.StatusNotFound

	case errors.Is(err, order.ErrConflict),
		errors.Is(err, invoice.ErrNotEditable),
		errors.Is(err, invoice.ErrInvalidStatus),
		errors.Is(err, invoice.ErrDuplicateNumber),
		errors.Is(err, invoice.ErrNumberingExceeded),
		errors.Is(err, client.ErrDuplicateVAT),
		errors.Is(err, catalog.ErrCodeExhausted):
		return http.StatusConflict

	case errors.Is(err, order.ErrEmptyItems),
		errors.Is(err, order.ErrInvalidQuantity),
		errors.Is(err, order.ErrClientRequired),
		errors.Is(err, order.ErrConfirmationRequired),
		errors.Is(err, invoice.ErrClientRequired),
		errors.Is(err, invoice.ErrEmptyItems),
		errors.Is(err, invoice.ErrInvalidPayment),
		errors.Is(err, product.ErrNameRequired),
		errors.Is(err, product.ErrCodeRequired),
		errors.Is(err, product.ErrNegativePrice),
		errors.Is(err, product.ErrNegativeStock),
		errors.Is(err, client.ErrNameRequired),
		errors.Is(err, client.ErrVATRequired),
		errors.Is(err, cart.ErrInvalidQuantity),
		errors.Is(err, cart.ErrNegativePrice),
		errors.Is(err, cart.ErrLineNotFound):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// fail writes err as a JSON error. Server errors are logged and replaced
// by a generic message.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	code := statusOf(err)
	msg := err.Error()
	if code >= http.StatusInternalServerError {
		zctx.From(r.Context()).Error("Request handling failed", zap.Error(err))
		msg = http.StatusText(code)
	}
	if code == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", `Bearer realm="backoffice"`)
	}
	httpmiddleware.WriteError(w, code, msg)
}
