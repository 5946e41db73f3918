package handler

import (
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/liafood/backoffice/internal/domain/auth"
	"github.com/liafood/backoffice/internal/domain/order"
)

// orderFilter reads the listing filters. Client sessions are always
// restricted to their own orders.
func (h *Handler) orderFilter(r *http.Request) (order.Filter, error) {
	q := r.URL.Query()
	f := order.Filter{
		Status: order.Status(q.Get("status")),
		Client: q.Get("client"),
	}
	if f.Status != "" && !f.Status.Valid() {
		return f, invalidInput(errInvalidParam("status"))
	}
	if day := q.Get("date"); day != "" {
		t, err := h.parseDay(day)
		if err != nil {
			return f, err
		}
		d := order.Day(t)
		f.From, f.To = d.From, d.To
	} else {
		var err error
		if f.From, f.To, err = h.dateRange(r); err != nil {
			return f, err
		}
	}
	limit, err := queryInt(r, "limit")
	if err != nil {
		return f, err
	}
	f.Limit = limit
	if vat := owner(r); vat != "" {
		f.ClientVATNumber = vat
		f.Client = ""
	}
	return f, nil
}

func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request) error {
	f, err := h.orderFilter(r)
	if err != nil {
		return err
	}
	orders, err := h.orders.List(r.Context(), f)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ObjStart()
		arr(e, "orders", orders, encodeOrder)
		e.ObjEnd()
	})
	return nil
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) error {
	o, err := h.orders.Get(r.Context(), r.PathValue("id"), owner(r))
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeOrder(e, *o) })
	return nil
}

// placeOrder submits a new order. Clients order for themselves; admins name
// the client by VAT number.
func (h *Handler) placeOrder(w http.ResponseWriter, r *http.Request) error {
	var (
		vat   string
		items []order.OrderItem
	)
	if err := decodeBody(w, r, fields{
		"client_vat_number": str(&vat),
		"items":             orderItemsField(&items),
	}); err != nil {
		return err
	}

	req := order.PlaceOrderRequest{Items: items}
	claims, _ := auth.ClaimsFromContext(r.Context())
	if claims.IsAdmin() {
		c, ok := h.clientByVAT(vat)
		if !ok {
			return errors.Wrapf(order.ErrClientRequired, "no client with VAT number %q", vat)
		}
		req.ClientVATNumber, req.ClientName = c.VATNumber, c.Name
	} else {
		req.ClientVATNumber, req.ClientName = claims.VATNumber, claims.Name
	}

	res, err := h.orders.PlaceOrder(r.Context(), req)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) { encodeOrder(e, *res.Order) })
	return nil
}

// editOrder replaces the quantities of a pending order. Products left out
// of the body are dropped.
func (h *Handler) editOrder(w http.ResponseWriter, r *http.Request) error {
	var items []order.OrderItem
	if err := decodeBody(w, r, fields{"items": orderItemsField(&items)}); err != nil {
		return err
	}
	o, err := h.orders.EditOrder(r.Context(), r.PathValue("id"), owner(r), items)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeOrder(e, *o) })
	return nil
}

func (h *Handler) cancelOrder(w http.ResponseWriter, r *http.Request) error {
	var confirmed bool
	if err := decodeBody(w, r, fields{"confirmed": boolean(&confirmed)}); err != nil {
		return err
	}
	id, vat := r.PathValue("id"), owner(r)
	if err := h.orders.Cancel(r.Context(), id, vat, confirmed); err != nil {
		return err
	}
	return h.respondOrder(w, r, id, vat)
}

func (h *Handler) completeOrder(w http.ResponseWriter, r *http.Request) error {
	id := r.PathValue("id")
	if err := h.orders.Complete(r.Context(), id); err != nil {
		return err
	}
	return h.respondOrder(w, r, id, "")
}

func (h *Handler) respondOrder(w http.ResponseWriter, r *http.Request, id, vat string) error {
	o, err := h.orders.Get(r.Context(), id, vat)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeOrder(e, *o) })
	return nil
}

// prepareOrders marks a batch of pending orders as prepared. The batch is
// chosen by day, client filter and explicit ids; it fails as a whole with
// 409 when one of them changed meanwhile.
func (h *Handler) prepareOrders(w http.ResponseWriter, r *http.Request) error {
	var (
		day, name string
		ids       []string
	)
	if err := decodeBody(w, r, fields{
		"date":   str(&day),
		"client": str(&name),
		"ids":    strs(&ids),
	}); err != nil {
		return err
	}

	f := order.Filter{Client: name, IDs: ids}
	if day != "" {
		t, err := h.parseDay(day)
		if err != nil {
			return err
		}
		d := order.Day(t)
		f.From, f.To = d.From, d.To
	}
	n, err := h.orders.MarkPrepared(r.Context(), f)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ObjStart()
		intField(e, "prepared", n)
		e.ObjEnd()
	})
	return nil
}

// orderSummary totals product quantities over the filtered orders, pending
// ones by default.
func (h *Handler) orderSummary(w http.ResponseWriter, r *http.Request) error {
	f, err := h.orderFilter(r)
	if err != nil {
		return err
	}
	if f.Status == "" {
		f.Status = order.StatusPending
	}
	pending, err := h.orders.PendingCount(r.Context())
	if err != nil {
		return err
	}
	orders, err := h.orders.List(r.Context(), f)
	if err != nil {
		return err
	}
	summary := order.SummarizeProducts(orders)
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ObjStart()
		intField(e, "pending", pending)
		intField(e, "orders", len(orders))
		arr(e, "products", summary, encodeProductSummary)
		e.ObjEnd()
	})
	return nil
}
