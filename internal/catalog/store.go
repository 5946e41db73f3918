// Package catalog keeps an in-memory copy of products, clients and
// categories. Reads are served from memory; writes go to the repositories
// first and only the confirmed records are applied locally.
package catalog

import (
	"cmp"
	"context"
	"iter"
	"math/rand/v2"
	"slices"
	"strings"
	"sync"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/liafood/backoffice/internal/changefeed"
	"github.com/liafood/backoffice/internal/domain/client"
	"github.com/liafood/backoffice/internal/domain/product"
)

// maxCodeAttempts bounds client code generation when codes collide.
const maxCodeAttempts = 10

// ErrCodeExhausted is returned when no free client code could be generated.
var ErrCodeExhausted = errors.New("no free client code")

// Store is the catalog cache. The zero value is not usable; use New.
type Store struct {
	products   product.Repository
	categories product.CategoryRepository
	clients    client.Repository
	rnd        *rand.Rand

	mu         sync.RWMutex
	byProduct  map[string]product.Product
	byClient   map[string]client.Client
	categoryLs []product.Category
	loaded     bool
}

// Option configures a Store.
type Option func(*Store)

// WithRand sets the random source used for client codes.
func WithRand(r *rand.Rand) Option {
	return func(s *Store) { s.rnd = r }
}

// New returns an empty Store. Call Load before serving reads.
func New(products product.Repository, categories product.CategoryRepository, clients client.Repository, opts ...Option) *Store {
	s := &Store{
		products:   products,
		categories: categories,
		clients:    clients,
		byProduct:  make(map[string]product.Product),
		byClient:   make(map[string]client.Client),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Load replaces the cache with the current repository contents.
func (s *Store) Load(ctx context.Context) error {
	products, err := s.products.List(ctx, product.Filter{})
	if err != nil {
		return errors.Wrap(err, "list products")
	}
	clients, err := s.clients.List(ctx, "")
	if err != nil {
		return errors.Wrap(err, "list clients")
	}
	categories, err := s.categories.ListCategories(ctx)
	if err != nil {
		return errors.Wrap(err, "list categories")
	}

	byProduct := make(map[string]product.Product, len(products))
	for _, p := range products {
		byProduct[p.ID] = p
	}
	byClient := make(map[string]client.Client, len(clients))
	for _, c := range clients {
		byClient[c.ID] = c
	}

	s.mu.Lock()
	s.byProduct = byProduct
	s.byClient = byClient
	s.categoryLs = slices.Clone(categories)
	s.loaded = true
	s.mu.Unlock()

	zctx.From(ctx).Info("Catalog loaded",
		zap.Int("products", len(products)),
		zap.Int("clients", len(clients)),
		zap.Int("categories", len(categories)),
	)
	return nil
}

// Loaded reports whether Load succeeded at least once.
func (s *Store) Loaded() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loaded
}

// Products returns the products matching f, sorted by name.
func (s *Store) Products(f product.Filter) []product.Product {
	s.mu.RLock()
	out := make([]product.Product, 0, len(s.byProduct))
	for _, p := range s.byProduct {
		if f.Match(p) {
			out = append(out, p)
		}
	}
	s.mu.RUnlock()

	slices.SortFunc(out, func(a, b product.Product) int {
		return cmp.Or(cmp.Compare(a.Name, b.Name), cmp.Compare(a.ID, b.ID))
	})
	return out
}

// Product returns a cached product.
func (s *Store) Product(id string) (product.Product, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.byProduct[id]
	return p, ok
}

// Clients returns clients whose name, code or VAT number contains query,
// sorted by name.
func (s *Store) Clients(query string) []client.Client {
	q := strings.ToLower(strings.TrimSpace(query))

	s.mu.RLock()
	out := make([]client.Client, 0, len(s.byClient))
	for _, c := range s.byClient {
		if q == "" ||
			strings.Contains(strings.ToLower(c.Name), q) ||
			strings.Contains(strings.ToLower(c.Code), q) ||
			strings.Contains(strings.ToLower(c.VATNumber), q) {
			out = append(out, c)
		}
	}
	s.mu.RUnlock()

	slices.SortFunc(out, func(a, b client.Client) int {
		return cmp.Or(cmp.Compare(a.Name, b.Name), cmp.Compare(a.ID, b.ID))
	})
	return out
}

// Client returns a cached client.
func (s *Store) Client(id string) (client.Client, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.byClient[id]
	return c, ok
}

// Categories returns the cached categories.
func (s *Store) Categories() []product.Category {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.categoryLs)
}

// Alerts returns stock alerts for the cached products.
func (s *Store) Alerts() []product.StockAlert {
	return product.Alerts(s.Products(product.Filter{}))
}

// CreateProduct normalizes, validates and persists p, then caches it.
func (s *Store) CreateProduct(ctx context.Context, p *product.Product) error {
	p.Normalize()
	if err := p.Validate(); err != nil {
		return err
	}
	if err := s.products.Create(ctx, p); err != nil {
		return errors.Wrap(err, "create product")
	}
	s.putProduct(*p)
	return nil
}

// UpdateProduct persists p and caches the stored version.
func (s *Store) UpdateProduct(ctx context.Context, p *product.Product) error {
	p.Normalize()
	if err := p.Validate(); err != nil {
		return err
	}
	if err := s.products.Update(ctx, p); err != nil {
		return errors.Wrap(err, "update product")
	}
	s.putProduct(*p)
	return nil
}

// DeleteProduct removes a product. Missing products are ignored.
func (s *Store) DeleteProduct(ctx context.Context, id string) error {
	if err := s.products.Delete(ctx, id); err != nil {
		return errors.Wrap(err, "delete product")
	}
	s.mu.Lock()
	delete(s.byProduct, id)
	s.mu.Unlock()
	return nil
}

// CreateClient persists c as given, code included.
func (s *Store) CreateClient(ctx context.Context, c *client.Client) error {
	c.Normalize()
	if err := c.Validate(); err != nil {
		return err
	}
	if err := s.clients.Create(ctx, c); err != nil {
		return errors.Wrap(err, "create client")
	}
	s.putClient(*c)
	return nil
}

// RegisterClient creates a client with a generated code that is not used by
// any cached client. A taken VAT number yields client.ErrDuplicateVAT.
func (s *Store) RegisterClient(ctx context.Context, c *client.Client) error {
	c.Normalize()
	if err := c.Validate(); err != nil {
		return err
	}

	code, err := s.freeCode(c.Name)
	if err != nil {
		return err
	}
	c.Code = code
	return s.CreateClient(ctx, c)
}

// freeCode holds the write lock because the random source is shared.
func (s *Store) freeCode(name string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	used := make(map[string]struct{}, len(s.byClient))
	for _, c := range s.byClient {
		used[c.Code] = struct{}{}
	}
	for range maxCodeAttempts {
		code := client.GenerateCode(name, s.rnd)
		if _, taken := used[code]; !taken {
			return code, nil
		}
	}
	return "", ErrCodeExhausted
}

// UpdateClient persists c and caches it.
func (s *Store) UpdateClient(ctx context.Context, c *client.Client) error {
	c.Normalize()
	if err := c.Validate(); err != nil {
		return err
	}
	if err := s.clients.Update(ctx, c); err != nil {
		return errors.Wrap(err, "update client")
	}
	s.putClient(*c)
	return nil
}

// DeleteClient removes a client. Missing clients are ignored.
func (s *Store) DeleteClient(ctx context.Context, id string) error {
	if err := s.clients.Delete(ctx, id); err != nil {
		return errors.Wrap(err, "delete client")
	}
	s.mu.Lock()
	delete(s.byClient, id)
	s.mu.Unlock()
	return nil
}

// CreateCategory persists and caches a category.
func (s *Store) CreateCategory(ctx context.Context, c *product.Category) error {
	c.Name = strings.TrimSpace(c.Name)
	if c.Name == "" {
		return product.ErrNameRequired
	}
	if err := s.categories.CreateCategory(ctx, c); err != nil {
		return errors.Wrap(err, "create category")
	}
	s.mu.Lock()
	s.categoryLs = append(s.categoryLs, *c)
	s.mu.Unlock()
	return nil
}

// UpdateCategory persists a category and replaces the cached copy.
func (s *Store) UpdateCategory(ctx context.Context, c *product.Category) error {
	c.Name = strings.TrimSpace(c.Name)
	if c.Name == "" {
		return product.ErrNameRequired
	}
	if err := s.categories.UpdateCategory(ctx, c); err != nil {
		return errors.Wrap(err, "update category")
	}
	s.mu.Lock()
	for i := range s.categoryLs {
		if s.categoryLs[i].ID == c.ID {
			s.categoryLs[i] = *c
		}
	}
	s.mu.Unlock()
	return nil
}

// DeleteCategory removes a category. Products keep their category name.
func (s *Store) DeleteCategory(ctx context.Context, id string) error {
	if err := s.categories.DeleteCategory(ctx, id); err != nil {
		return errors.Wrap(err, "delete category")
	}
	s.mu.Lock()
	s.categoryLs = slices.DeleteFunc(s.categoryLs, func(c product.Category) bool { return c.ID == id })
	s.mu.Unlock()
	return nil
}

func (s *Store) putProduct(p product.Product) {
	s.mu.Lock()
	s.byProduct[p.ID] = p
	s.mu.Unlock()
}

func (s *Store) putClient(c client.Client) {
	s.mu.Lock()
	s.byClient[c.ID] = c
	s.mu.Unlock()
}

// Apply patches the cache from a change event by re-reading the row.
// Events for tables the catalog does not hold are ignored.
func (s *Store) Apply(ctx context.Context, ev changefeed.Event) error {
	switch ev.Table {
	case changefeed.TableProducts:
		if ev.Op == changefeed.OpDelete {
			s.mu.Lock()
			delete(s.byProduct, ev.ID)
			s.mu.Unlock()
			return nil
		}
		p, err := s.products.GetByID(ctx, ev.ID)
		switch {
		case errors.Is(err, product.ErrNotFound):
			s.mu.Lock()
			delete(s.byProduct, ev.ID)
			s.mu.Unlock()
			return nil
		case err != nil:
			return errors.Wrapf(err, "refresh product %s", ev.ID)
		}
		s.putProduct(*p)
	case changefeed.TableClients:
		if ev.Op == changefeed.OpDelete {
			s.mu.Lock()
			delete(s.byClient, ev.ID)
			s.mu.Unlock()
			return nil
		}
		c, err := s.clients.GetByID(ctx, ev.ID)
		switch {
		case errors.Is(err, client.ErrNotFound):
			s.mu.Lock()
			delete(s.byClient, ev.ID)
			s.mu.Unlock()
			return nil
		case err != nil:
			return errors.Wrapf(err, "refresh client %s", ev.ID)
		}
		s.putClient(*c)
	}
	return nil
}

// Watch applies events from seq until the sequence ends or ctx is done.
// Failures to apply a single event are logged and skipped; a sequence error
// ends the watch and is returned.
func (s *Store) Watch(ctx context.Context, seq iter.Seq2[changefeed.Event, error]) error {
	lg := zctx.From(ctx)
	for ev, err := range seq {
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return errors.Wrap(err, "changefeed")
		}
		if err := s.Apply(ctx, ev); err != nil {
			lg.Warn("Failed to apply change",
				zap.String("table", ev.Table),
				zap.String("id", ev.ID),
				zap.Error(err),
			)
		}
		if ctx.Err() != nil {
			return nil
		}
	}
	return nil
}
