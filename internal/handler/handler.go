// Package handler serves the back-office JSON API on net/http.
package handler

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/liafood/backoffice/internal/catalog"
	"github.com/liafood/backoffice/internal/changefeed"
	"github.com/liafood/backoffice/internal/domain/auth"
	"github.com/liafood/backoffice/internal/domain/company"
	"github.com/liafood/backoffice/internal/domain/invoice"
	"github.com/liafood/backoffice/internal/domain/order"
)

// DefaultKeepAlive is the interval between event stream comments.
const DefaultKeepAlive = 25 * time.Second

// Config holds non-dependency settings of the Handler.
type Config struct {
	// Location interprets the YYYY-MM-DD dates of query parameters.
	Location *time.Location
	// KeepAlive is the comment interval on /api/events.
	KeepAlive time.Duration
}

// Handler routes API requests to the domain services.
type Handler struct {
	auth     *auth.Service
	catalog  *catalog.Store
	orders   *order.Service
	invoices *invoice.Service
	company  company.Repository
	events   changefeed.Subscriber

	loc       *time.Location
	keepAlive time.Duration
	mux       *http.ServeMux
}

// New constructs a Handler and registers its routes.
func New(
	cfg Config,
	authService *auth.Service,
	store *catalog.Store,
	orders *order.Service,
	invoices *invoice.Service,
	settings company.Repository,
	events changefeed.Subscriber,
) *Handler {
	h := &Handler{
		auth:      authService,
		catalog:   store,
		orders:    orders,
		invoices:  invoices,
		company:   settings,
		events:    events,
		loc:       cfg.Location,
		keepAlive: cfg.KeepAlive,
		mux:       http.NewServeMux(),
	}
	if h.loc == nil {
		h.loc = time.Local
	}
	if h.keepAlive <= 0 {
		h.keepAlive = DefaultKeepAlive
	}
	h.routes()
	return h
}

// Mux exposes the router so callers can mount extra endpoints and resolve
// route patterns for logging.
func (h *Handler) Mux() *http.ServeMux {
	return h.mux
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

type access int

const (
	public access = iota
	anyRole
	adminOnly
)

type handlerFunc func(w http.ResponseWriter, r *http.Request) error

func (h *Handler) routes() {
	h.handle("POST /api/auth/admin", public, h.loginAdmin)
	h.handle("POST /api/auth/client", public, h.loginClient)
	h.handle("GET /api/me", anyRole, h.me)

	h.handle("GET /api/products", anyRole, h.listProducts)
	h.handle("POST /api/products", adminOnly, h.createProduct)
	h.handle("GET /api/products/{id}", anyRole, h.getProduct)
	h.handle("PUT /api/products/{id}", adminOnly, h.updateProduct)
	h.handle("DELETE /api/products/{id}", adminOnly, h.deleteProduct)

	h.handle("GET /api/categories", anyRole, h.listCategories)
	h.handle("POST /api/categories", adminOnly, h.createCategory)
	h.handle("PUT /api/categories/{id}", adminOnly, h.updateCategory)
	h.handle("DELETE /api/categories/{id}", adminOnly, h.deleteCategory)

	h.handle("GET /api/alerts", adminOnly, h.listAlerts)
	h.handle("POST /api/cart/quote", anyRole, h.quoteCart)

	h.handle("POST /api/clients/register", public, h.registerClient)
	h.handle("GET /api/clients", adminOnly, h.listClients)
	h.handle("POST /api/clients", adminOnly, h.createClient)
	h.handle("GET /api/clients/{id}", adminOnly, h.getClient)
	h.handle("PUT /api/clients/{id}", adminOnly, h.updateClient)
	h.handle("DELETE /api/clients/{id}", adminOnly, h.deleteClient)

	h.handle("GET /api/orders", anyRole, h.listOrders)
	h.handle("POST /api/orders", anyRole, h.placeOrder)
	h.handle("GET /api/orders/summary", adminOnly, h.orderSummary)
	h.handle("POST /api/orders/prepare", adminOnly, h.prepareOrders)
	h.handle("GET /api/orders/{id}", anyRole, h.getOrder)
	h.handle("PUT /api/orders/{id}/items", anyRole, h.editOrder)
	h.handle("POST /api/orders/{id}/cancel", anyRole, h.cancelOrder)
	h.handle("POST /api/orders/{id}/complete", adminOnly, h.completeOrder)

	h.handle("GET /api/invoices", adminOnly, h.listInvoices)
	h.handle("POST /api/invoices", adminOnly, h.createInvoice)
	h.handle("GET /api/invoices/next-number", adminOnly, h.nextInvoiceNumber)
	h.handle("GET /api/invoices/{id}", adminOnly, h.getInvoice)
	h.handle("PUT /api/invoices/{id}", adminOnly, h.updateInvoice)
	h.handle("DELETE /api/invoices/{id}", adminOnly, h.deleteInvoice)
	h.handle("PATCH /api/invoices/{id}/status", adminOnly, h.setInvoiceStatus)
	h.handle("GET /api/invoices/{id}/pdf", adminOnly, h.invoicePDF)

	h.handle("GET /api/reports/sales", adminOnly, h.salesReport)
	h.handle("GET /api/reports/sales/pdf", adminOnly, h.salesReportPDF)
	h.handle("GET /api/reports/invoices", adminOnly, h.invoiceReport)
	h.handle("GET /api/reports/invoices/pdf", adminOnly, h.invoiceReportPDF)
	h.handle("GET /api/reports/stock", adminOnly, h.stockReport)
	h.handle("GET /api/reports/stock/pdf", adminOnly, h.stockReportPDF)

	h.handle("GET /api/company", adminOnly, h.getCompany)
	h.handle("PUT /api/company", adminOnly, h.updateCompany)

	// EventSource cannot set headers, so the stream also takes the token
	// from the query string.
	h.mux.Handle("GET /api/events", queryToken(h.wrap(adminOnly, h.streamEvents)))
}

func (h *Handler) handle(pattern string, level access, fn handlerFunc) {
	h.mux.Handle(pattern, h.wrap(level, fn))
}

func (h *Handler) wrap(level access, fn handlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if level != public {
			claims, err := h.authenticate(r)
			if err != nil {
				h.fail(w, r, err)
				return
			}
			if level == adminOnly && !claims.IsAdmin() {
				h.fail(w, r, errForbidden)
				return
			}
			r = r.WithContext(auth.WithClaims(r.Context(), claims))
		}
		if err := fn(w, r); err != nil {
			h.fail(w, r, err)
		}
	})
}

func (h *Handler) authenticate(r *http.Request) (*auth.Claims, error) {
	header := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || strings.TrimSpace(token) == "" {
		return nil, errUnauthorized
	}
	return h.auth.Verify(strings.TrimSpace(token))
}

func queryToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") == "" {
			if t := r.URL.Query().Get("access_token"); t != "" {
				r = r.Clone(r.Context())
				r.Header.Set("Authorization", "Bearer "+t)
			}
		}
		next.ServeHTTP(w, r)
	})
}

// owner returns the VAT number that scopes order access: the client's own
// for client sessions, empty for admins.
func owner(r *http.Request) string {
	c, ok := auth.ClaimsFromContext(r.Context())
	if !ok || c.IsAdmin() {
		return ""
	}
	return c.VATNumber
}

func isAdmin(r *http.Request) bool {
	c, ok := auth.ClaimsFromContext(r.Context())
	return ok && c.IsAdmin()
}

// dateRange reads the from and to query parameters. Both are calendar days
// and to is inclusive, so the returned upper bound is the next midnight.
func (h *Handler) dateRange(r *http.Request) (from, to time.Time, err error) {
	q := r.URL.Query()
	if v := q.Get("from"); v != "" {
		if from, err = h.parseDay(v); err != nil {
			return from, to, err
		}
	}
	if v := q.Get("to"); v != "" {
		if to, err = h.parseDay(v); err != nil {
			return from, to, err
		}
		to = to.AddDate(0, 0, 1)
	}
	return from, to, nil
}

func (h *Handler) parseDay(v string) (time.Time, error) {
	t, err := time.ParseInLocation(time.DateOnly, v, h.loc)
	if err != nil {
		return time.Time{}, invalidInput(err)
	}
	return t, nil
}

func queryInt(r *http.Request, name string) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, invalidInput(errInvalidParam(name))
	}
	return n, nil
}
