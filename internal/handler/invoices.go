package handler

import (
	"bytes"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/liafood/backoffice/internal/domain/client"
	"github.com/liafood/backoffice/internal/domain/company"
	"github.com/liafood/backoffice/internal/domain/invoice"
	"github.com/liafood/backoffice/internal/domain/product"
	"github.com/liafood/backoffice/internal/report"
)

// invoiceID reads an invoice number from the path. Numbers contain a
// slash, so both FV0158%2F25 and FV0158-25 are accepted.
func invoiceID(r *http.Request) string {
	id := r.PathValue("id")
	if _, _, ok := invoice.ParseNumber(id); ok {
		return id
	}
	if i := strings.LastIndexByte(id, '-'); i > 0 {
		alt := id[:i] + "/" + id[i+1:]
		if _, _, ok := invoice.ParseNumber(alt); ok {
			return alt
		}
	}
	return id
}

func invoiceStatus(v string) (invoice.Status, bool) {
	switch s := invoice.Status(v); s {
	case invoice.StatusDraft, invoice.StatusSent, invoice.StatusPaid, invoice.StatusOverdue:
		return s, true
	}
	return "", false
}

func (h *Handler) listInvoices(w http.ResponseWriter, r *http.Request) error {
	f, err := h.invoiceFilter(r)
	if err != nil {
		return err
	}
	invoices, err := h.invoices.List(r.Context(), f)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ObjStart()
		arr(e, "invoices", invoices, encodeInvoice)
		e.ObjEnd()
	})
	return nil
}

func (h *Handler) invoiceFilter(r *http.Request) (invoice.Filter, error) {
	q := r.URL.Query()
	f := invoice.Filter{ClientID: q.Get("client_id")}
	if v := q.Get("status"); v != "" {
		s, ok := invoiceStatus(v)
		if !ok {
			return f, invalidInput(errInvalidParam("status"))
		}
		f.Status = s
	}
	var err error
	f.From, f.To, err = h.dateRange(r)
	return f, err
}

func (h *Handler) nextInvoiceNumber(w http.ResponseWriter, r *http.Request) error {
	id, err := h.invoices.NextNumber(r.Context())
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ObjStart()
		strField(e, "id", id)
		e.ObjEnd()
	})
	return nil
}

func (h *Handler) getInvoice(w http.ResponseWriter, r *http.Request) error {
	inv, err := h.invoices.Get(r.Context(), invoiceID(r))
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeInvoice(e, *inv) })
	return nil
}

func decodeInvoiceRequest(w http.ResponseWriter, r *http.Request) (invoice.CreateRequest, error) {
	var (
		req    invoice.CreateRequest
		method string
	)
	if err := decodeBody(w, r, fields{
		"client_id":      str(&req.ClientID),
		"payment_method": str(&method),
		"items":          invoiceItemsField(&req.Items),
	}); err != nil {
		return req, err
	}
	req.PaymentMethod = invoice.PaymentMethod(method)
	return req, nil
}

// unknownProduct turns a missing catalog product into a 422.
func unknownProduct(err error) error {
	if errors.Is(err, product.ErrNotFound) {
		return withStatus(http.StatusUnprocessableEntity, err)
	}
	return err
}

func (h *Handler) createInvoice(w http.ResponseWriter, r *http.Request) error {
	req, err := decodeInvoiceRequest(w, r)
	if err != nil {
		return err
	}
	inv, err := h.invoices.Create(r.Context(), req)
	if err != nil {
		return unknownProduct(err)
	}
	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) { encodeInvoice(e, *inv) })
	return nil
}

func (h *Handler) updateInvoice(w http.ResponseWriter, r *http.Request) error {
	req, err := decodeInvoiceRequest(w, r)
	if err != nil {
		return err
	}
	inv, err := h.invoices.Update(r.Context(), invoiceID(r), req)
	if err != nil {
		return unknownProduct(err)
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeInvoice(e, *inv) })
	return nil
}

func (h *Handler) setInvoiceStatus(w http.ResponseWriter, r *http.Request) error {
	var v string
	if err := decodeBody(w, r, fields{"status": str(&v)}); err != nil {
		return err
	}
	status, ok := invoiceStatus(v)
	if !ok {
		return invalidInput(invoice.ErrInvalidStatus)
	}
	inv, err := h.invoices.SetStatus(r.Context(), invoiceID(r), status)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeInvoice(e, *inv) })
	return nil
}

func (h *Handler) deleteInvoice(w http.ResponseWriter, r *http.Request) error {
	if err := h.invoices.Delete(r.Context(), invoiceID(r)); err != nil {
		return err
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}

func (h *Handler) invoicePDF(w http.ResponseWriter, r *http.Request) error {
	inv, err := h.invoices.Get(r.Context(), invoiceID(r))
	if err != nil {
		return err
	}
	seller, err := h.seller(r)
	if err != nil {
		return err
	}
	var buyer *client.Client
	if c, ok := h.catalog.Client(inv.ClientID); ok {
		buyer = &c
	}
	name := "facture-" + strings.ReplaceAll(inv.ID, "/", "-") + ".pdf"
	return writePDF(w, name, func(out io.Writer) error {
		return report.RenderInvoice(out, inv, seller, buyer)
	})
}

func (h *Handler) seller(r *http.Request) (company.Settings, error) {
	s, err := h.company.Get(r.Context())
	if err != nil {
		return company.Settings{}, errors.Wrap(err, "get company settings")
	}
	return *s, nil
}

// writePDF renders into memory first so a failed render still gets a JSON
// error response.
func writePDF(w http.ResponseWriter, name string, render func(io.Writer) error) error {
	var buf bytes.Buffer
	if err := render(&buf); err != nil {
		return errors.Wrap(err, "render pdf")
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": name}))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
	return nil
}
