package handler

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/liafood/backoffice/internal/domain/auth"
	"github.com/liafood/backoffice/internal/domain/client"
	"github.com/liafood/backoffice/internal/domain/company"
	"github.com/liafood/backoffice/internal/domain/invoice"
	"github.com/liafood/backoffice/internal/domain/order"
	"github.com/liafood/backoffice/internal/domain/product"
)

// In-memory repositories backing the real services in handler tests.

type memProducts struct {
	mu   sync.Mutex
	byID map[string]product.Product
}

func (m *memProducts) List(_ context.Context, f product.Filter) ([]product.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []product.Product
	for _, p := range m.byID {
		if f.Match(p) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *memProducts) GetByID(_ context.Context, id string) (*product.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.byID[id]
	if !ok {
		return nil, product.ErrNotFound
	}
	return &p, nil
}

func (m *memProducts) GetByIDs(_ context.Context, ids []string) ([]product.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []product.Product
	for _, id := range ids {
		if p, ok := m.byID[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *memProducts) Create(_ context.Context, p *product.Product) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	m.byID[p.ID] = *p
	return nil
}

func (m *memProducts) Update(_ context.Context, p *product.Product) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byID[p.ID]; !ok {
		return product.ErrNotFound
	}
	m.byID[p.ID] = *p
	return nil
}

func (m *memProducts) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.byID, id)
	return nil
}

type memCategories struct {
	mu  sync.Mutex
	all []product.Category
}

func (m *memCategories) ListCategories(context.Context) ([]product.Category, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.all), nil
}

func (m *memCategories) CreateCategory(_ context.Context, c *product.Category) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c.ID = uuid.NewString()
	m.all = append(m.all, *c)
	return nil
}

func (m *memCategories) UpdateCategory(_ context.Context, c *product.Category) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.all {
		if m.all[i].ID == c.ID {
			m.all[i] = *c
			return nil
		}
	}
	return product.ErrCategoryNotFound
}

func (m *memCategories) DeleteCategory(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.all = slices.DeleteFunc(m.all, func(c product.Category) bool { return c.ID == id })
	return nil
}

type memClients struct {
	mu   sync.Mutex
	byID map[string]client.Client
}

func (m *memClients) List(_ context.Context, _ string) ([]client.Client, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]client.Client, 0, len(m.byID))
	for _, c := range m.byID {
		out = append(out, c)
	}
	return out, nil
}

func (m *memClients) GetByID(_ context.Context, id string) (*client.Client, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.byID[id]
	if !ok {
		return nil, client.ErrNotFound
	}
	return &c, nil
}

func (m *memClients) GetByVATNumber(_ context.Context, vat string) (*client.Client, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.byID {
		if c.VATNumber == vat {
			return &c, nil
		}
	}
	return nil, client.ErrNotFound
}

func (m *memClients) Create(_ context.Context, c *client.Client) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, other := range m.byID {
		if other.VATNumber == c.VATNumber {
			return client.ErrDuplicateVAT
		}
	}
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	m.byID[c.ID] = *c
	return nil
}

func (m *memClients) Update(_ context.Context, c *client.Client) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byID[c.ID] = *c
	return nil
}

func (m *memClients) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.byID, id)
	return nil
}

type memOrders struct {
	mu   sync.Mutex
	byID map[string]order.Order
}

func (m *memOrders) Create(_ context.Context, o *order.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byID[o.ID] = *o
	return nil
}

func (m *memOrders) Get(_ context.Context, id string) (*order.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.byID[id]
	if !ok {
		return nil, order.ErrNotFound
	}
	return &o, nil
}

func (m *memOrders) List(_ context.Context, f order.Filter) ([]order.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []order.Order
	for _, o := range m.byID {
		switch {
		case f.Status != "" && o.Status != f.Status,
			len(f.IDs) > 0 && !slices.Contains(f.IDs, o.ID),
			f.ClientVATNumber != "" && o.ClientVATNumber != f.ClientVATNumber,
			f.Client != "" && !strings.Contains(strings.ToLower(o.ClientName), strings.ToLower(f.Client)),
			!f.From.IsZero() && o.CreatedAt.Before(f.From),
			!f.To.IsZero() && !o.CreatedAt.Before(f.To):
			continue
		}
		out = append(out, o)
	}
	slices.SortFunc(out, func(a, b order.Order) int { return b.CreatedAt.Compare(a.CreatedAt) })
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (m *memOrders) UpdateItems(_ context.Context, o *order.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.byID[o.ID]
	if !ok || !cur.Editable() {
		return order.ErrConflict
	}
	m.byID[o.ID] = *o
	return nil
}

func (m *memOrders) MarkPrepared(_ context.Context, ids []string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range ids {
		if o, ok := m.byID[id]; !ok || o.Status != order.StatusPending {
			return order.ErrConflict
		}
	}
	for _, id := range ids {
		o := m.byID[id]
		o.Status = order.StatusPrepared
		o.PreparedAt = &at
		m.byID[id] = o
	}
	return nil
}

func (m *memOrders) Transition(_ context.Context, id string, from, to order.Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.byID[id]
	if !ok || o.Status != from {
		return order.ErrConflict
	}
	o.Status = to
	m.byID[id] = o
	return nil
}

func (m *memOrders) CountByStatus(_ context.Context, status order.Status) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, o := range m.byID {
		if o.Status == status {
			n++
		}
	}
	return n, nil
}

type memInvoices struct {
	mu   sync.Mutex
	byID map[string]invoice.Invoice
}

func (m *memInvoices) Create(_ context.Context, inv *invoice.Invoice) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byID[inv.ID]; ok {
		return invoice.ErrDuplicateNumber
	}
	m.byID[inv.ID] = *inv
	return nil
}

func (m *memInvoices) Get(_ context.Context, id string) (*invoice.Invoice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inv, ok := m.byID[id]
	if !ok {
		return nil, invoice.ErrNotFound
	}
	return &inv, nil
}

func (m *memInvoices) List(_ context.Context, f invoice.Filter) ([]invoice.Invoice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []invoice.Invoice
	for _, inv := range m.byID {
		switch {
		case f.ClientID != "" && inv.ClientID != f.ClientID,
			f.Status != "" && inv.Status != f.Status,
			!f.From.IsZero() && inv.CreatedAt.Before(f.From),
			!f.To.IsZero() && !inv.CreatedAt.Before(f.To):
			continue
		}
		out = append(out, inv)
	}
	slices.SortFunc(out, func(a, b invoice.Invoice) int { return strings.Compare(b.ID, a.ID) })
	return out, nil
}

func (m *memInvoices) Update(_ context.Context, inv *invoice.Invoice) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byID[inv.ID] = *inv
	return nil
}

func (m *memInvoices) UpdateStatus(_ context.Context, id string, status invoice.Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	inv, ok := m.byID[id]
	if !ok {
		return invoice.ErrNotFound
	}
	inv.Status = status
	m.byID[id] = inv
	return nil
}

func (m *memInvoices) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.byID, id)
	return nil
}

func (m *memInvoices) MaxSequence(_ context.Context, yy int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	maxSeq := 0
	for id := range m.byID {
		if seq, y, ok := invoice.ParseNumber(id); ok && y == yy {
			maxSeq = max(maxSeq, seq)
		}
	}
	return maxSeq, nil
}

type memCompany struct {
	mu sync.Mutex
	s  *company.Settings
}

func (m *memCompany) Get(context.Context) (*company.Settings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.s == nil {
		d := company.Defaults
		return &d, nil
	}
	s := *m.s
	return &s, nil
}

func (m *memCompany) Save(_ context.Context, s *company.Settings) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := *s
	m.s = &c
	return nil
}

type memUsers struct {
	byEmail map[string]auth.User
}

func (m *memUsers) FindByEmail(_ context.Context, email string) (*auth.User, error) {
	u, ok := m.byEmail[email]
	if !ok {
		return nil, auth.ErrUserNotFound
	}
	return &u, nil
}

func (m *memUsers) Upsert(_ context.Context, u *auth.User) error {
	m.byEmail[u.Email] = *u
	return nil
}
