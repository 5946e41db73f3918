package handler

import (
	"io"
	"net/http"
	"time"

	"github.com/go-faster/jx"

	"github.com/liafood/backoffice/internal/domain/order"
	"github.com/liafood/backoffice/internal/domain/product"
	"github.com/liafood/backoffice/internal/report"
)

func (h *Handler) sales(r *http.Request) (report.Sales, error) {
	from, to, err := h.dateRange(r)
	if err != nil {
		return report.Sales{}, err
	}
	orders, err := h.orders.List(r.Context(), order.Filter{
		From:   from,
		To:     to,
		Client: r.URL.Query().Get("client"),
	})
	if err != nil {
		return report.Sales{}, err
	}
	return report.Summarize(orders, from, to), nil
}

func (h *Handler) salesReport(w http.ResponseWriter, r *http.Request) error {
	s, err := h.sales(r)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeSales(e, s) })
	return nil
}

func (h *Handler) salesReportPDF(w http.ResponseWriter, r *http.Request) error {
	s, err := h.sales(r)
	if err != nil {
		return err
	}
	seller, err := h.seller(r)
	if err != nil {
		return err
	}
	return writePDF(w, "ventes-"+periodName(s.From, s.To)+".pdf", func(out io.Writer) error {
		return report.RenderSales(out, s, seller)
	})
}

func (h *Handler) invoiceSummary(r *http.Request) (report.Invoices, time.Time, time.Time, error) {
	f, err := h.invoiceFilter(r)
	if err != nil {
		return report.Invoices{}, f.From, f.To, err
	}
	invoices, err := h.invoices.List(r.Context(), f)
	if err != nil {
		return report.Invoices{}, f.From, f.To, err
	}
	return report.SummarizeInvoices(invoices), f.From, f.To, nil
}

func (h *Handler) invoiceReport(w http.ResponseWriter, r *http.Request) error {
	s, _, _, err := h.invoiceSummary(r)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeInvoiceReport(e, s) })
	return nil
}

func (h *Handler) invoiceReportPDF(w http.ResponseWriter, r *http.Request) error {
	s, from, to, err := h.invoiceSummary(r)
	if err != nil {
		return err
	}
	seller, err := h.seller(r)
	if err != nil {
		return err
	}
	return writePDF(w, "factures-"+periodName(from, to)+".pdf", func(out io.Writer) error {
		return report.RenderInvoices(out, s, seller, from, to)
	})
}

func (h *Handler) stock(r *http.Request) report.Stock {
	return report.SummarizeStock(h.catalog.Products(product.Filter{
		Category: r.URL.Query().Get("category"),
	}))
}

func (h *Handler) stockReport(w http.ResponseWriter, r *http.Request) error {
	s := h.stock(r)
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeStock(e, s) })
	return nil
}

func (h *Handler) stockReportPDF(w http.ResponseWriter, r *http.Request) error {
	s := h.stock(r)
	seller, err := h.seller(r)
	if err != nil {
		return err
	}
	return writePDF(w, "stock.pdf", func(out io.Writer) error {
		return report.RenderStock(out, s, seller)
	})
}

// periodName renders the bounds of a half-open period for file names.
func periodName(from, to time.Time) string {
	switch {
	case from.IsZero() && to.IsZero():
		return "complet"
	case to.IsZero():
		return from.Format(time.DateOnly)
	case from.IsZero():
		return "au-" + to.AddDate(0, 0, -1).Format(time.DateOnly)
	}
	return from.Format(time.DateOnly) + "_" + to.AddDate(0, 0, -1).Format(time.DateOnly)
}

func (h *Handler) getCompany(w http.ResponseWriter, r *http.Request) error {
	s, err := h.seller(r)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeCompany(e, s) })
	return nil
}

func (h *Handler) updateCompany(w http.ResponseWriter, r *http.Request) error {
	s, err := h.seller(r)
	if err != nil {
		return err
	}
	if err := decodeBody(w, r, companyFields(&s)); err != nil {
		return err
	}
	if s.Name == "" {
		return invalidInput(errInvalidParam("name"))
	}
	if err := h.company.Save(r.Context(), &s); err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeCompany(e, s) })
	return nil
}
