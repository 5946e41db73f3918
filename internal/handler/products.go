package handler

import (
	"net/http"
	"slices"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/liafood/backoffice/internal/domain/cart"
	"github.com/liafood/backoffice/internal/domain/order"
	"github.com/liafood/backoffice/internal/domain/pricing"
	"github.com/liafood/backoffice/internal/domain/product"
)

func (h *Handler) listProducts(w http.ResponseWriter, r *http.Request) error {
	q := r.URL.Query()
	products := h.catalog.Products(product.Filter{
		Query:    q.Get("q"),
		Category: q.Get("category"),
	})
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ObjStart()
		arr(e, "products", products, encodeProduct)
		e.ObjEnd()
	})
	return nil
}

func (h *Handler) getProduct(w http.ResponseWriter, r *http.Request) error {
	p, ok := h.catalog.Product(r.PathValue("id"))
	if !ok {
		return product.ErrNotFound
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeProduct(e, p) })
	return nil
}

func (h *Handler) createProduct(w http.ResponseWriter, r *http.Request) error {
	var p product.Product
	if err := decodeBody(w, r, productFields(&p)); err != nil {
		return err
	}
	if err := h.catalog.CreateProduct(r.Context(), &p); err != nil {
		return err
	}
	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) { encodeProduct(e, p) })
	return nil
}

// updateProduct merges the body into the cached product, so omitted fields
// keep their value.
func (h *Handler) updateProduct(w http.ResponseWriter, r *http.Request) error {
	id := r.PathValue("id")
	p, ok := h.catalog.Product(id)
	if !ok {
		return product.ErrNotFound
	}
	if err := decodeBody(w, r, productFields(&p)); err != nil {
		return err
	}
	p.ID = id
	if err := h.catalog.UpdateProduct(r.Context(), &p); err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeProduct(e, p) })
	return nil
}

func (h *Handler) deleteProduct(w http.ResponseWriter, r *http.Request) error {
	if err := h.catalog.DeleteProduct(r.Context(), r.PathValue("id")); err != nil {
		return err
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}

func (h *Handler) listCategories(w http.ResponseWriter, _ *http.Request) error {
	categories := h.catalog.Categories()
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ObjStart()
		arr(e, "categories", categories, encodeCategory)
		e.ObjEnd()
	})
	return nil
}

func (h *Handler) createCategory(w http.ResponseWriter, r *http.Request) error {
	var c product.Category
	if err := decodeBody(w, r, categoryFields(&c)); err != nil {
		return err
	}
	if err := h.catalog.CreateCategory(r.Context(), &c); err != nil {
		return err
	}
	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) { encodeCategory(e, c) })
	return nil
}

func (h *Handler) updateCategory(w http.ResponseWriter, r *http.Request) error {
	id := r.PathValue("id")
	categories := h.catalog.Categories()
	i := slices.IndexFunc(categories, func(c product.Category) bool { return c.ID == id })
	if i < 0 {
		return product.ErrCategoryNotFound
	}
	c := categories[i]
	if err := decodeBody(w, r, categoryFields(&c)); err != nil {
		return err
	}
	c.ID = id
	if err := h.catalog.UpdateCategory(r.Context(), &c); err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeCategory(e, c) })
	return nil
}

func (h *Handler) deleteCategory(w http.ResponseWriter, r *http.Request) error {
	if err := h.catalog.DeleteCategory(r.Context(), r.PathValue("id")); err != nil {
		return err
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}

func (h *Handler) listAlerts(w http.ResponseWriter, _ *http.Request) error {
	alerts := h.catalog.Alerts()
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ObjStart()
		arr(e, "alerts", alerts, encodeAlert)
		e.ObjEnd()
	})
	return nil
}

type quoteItem struct {
	productID string
	quantity  int
	priceHT   *decimal.Decimal
}

// quoteCart prices a draft without storing it. Only admins may override
// unit prices.
func (h *Handler) quoteCart(w http.ResponseWriter, r *http.Request) error {
	var items []quoteItem
	if err := decodeBody(w, r, fields{
		"items": objects(func() fields {
			items = append(items, quoteItem{})
			it := &items[len(items)-1]
			return fields{
				"product_id": str(&it.productID),
				"quantity":   integer(&it.quantity),
				"price_ht":   decPtr(&it.priceHT),
			}
		}),
	}); err != nil {
		return err
	}

	c := cart.New()
	for _, it := range items {
		p, ok := h.catalog.Product(it.productID)
		if !ok {
			return &order.ProductNotFoundError{ProductID: it.productID}
		}
		lineID, err := c.AddLine(p, it.quantity)
		if err != nil {
			return errors.Wrapf(err, "product %s", it.productID)
		}
		if it.priceHT != nil && isAdmin(r) {
			if err := c.SetUnitPrice(lineID, *it.priceHT); err != nil {
				return err
			}
		}
	}

	lines := c.Lines()
	totals := c.Totals().Round()
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ObjStart()
		arr(e, "items", lines, encodeLine)
		encodeTotals(e, totals)
		arr(e, "vat_breakdown", pricing.AggregateByVATRate(lines), encodeVATGroup)
		e.ObjEnd()
	})
	return nil
}
