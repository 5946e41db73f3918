// Package importer reads the semicolon separated product and client exports
// of the previous point-of-sale software.
package importer

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/go-faster/errors"
	"github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"

	"github.com/liafood/backoffice/internal/domain/client"
	"github.com/liafood/backoffice/internal/domain/product"
)

// Product export headers.
const (
	colCode          = "Code"
	colLabel         = "Libellé"
	colTicketLabel   = "Libellé ticket de caisse"
	colDesignation   = "Désignation"
	colFamily        = "Famille"
	colBrand         = "Marque"
	colPurchasePrice = "Prix d'achat HT"
	colSalePrice     = "Prix de vente HT"
	colQuantity      = "Quantité"
	colWeight        = "Poids (Kg)"
	colUnit          = "Unité"
	colAlertQuantity = "Quantité d'Alerte"
)

// Client export headers.
const (
	colName       = "Nom"
	colAddress    = "Adresse"
	colPostalCode = "Code postal"
	colCity       = "Ville"
	colCountry    = "Pays"
	colMobile     = "Mobiles"
	colPhone      = "Téléphones"
	colEmail      = "E-Mail"
	colVAT        = "Tva Intra"
)

// RowError reports a skipped row. Line is the 1-based line in the file,
// the header being line 1.
type RowError struct {
	Line int
	Err  error
}

func (e RowError) Error() string {
	return fmt.Sprintf("ligne %d: %v", e.Line, e.Err)
}

// Row validation errors.
var (
	ErrMissingCodeOrLabel = errors.New("code et libellé requis")
	ErrMissingCodeOrName  = errors.New("code et nom requis")
	ErrMissingVAT         = errors.New("numéro de TVA requis")
)

// Open opens path for reading, decompressing it when it ends in .gz.
func Open(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", path)
	}
	if !strings.HasSuffix(strings.ToLower(path), ".gz") {
		return f, nil
	}
	gz, err := pgzip.NewReader(f)
	if err != nil {
		_ = f.Close()
		return nil, errors.Wrapf(err, "create gzip reader for %s", path)
	}
	return &gzipFile{Reader: gz, f: f}, nil
}

type gzipFile struct {
	*pgzip.Reader
	f *os.File
}

func (g *gzipFile) Close() error {
	gzErr := g.Reader.Close()
	if err := g.f.Close(); err != nil {
		return err
	}
	return gzErr
}

// record gives access to the fields of one row by header name.
type record struct {
	index  map[string]int
	fields []string
}

func (r record) get(col string) string {
	i, ok := r.index[col]
	if !ok || i >= len(r.fields) {
		return ""
	}
	return strings.TrimSpace(r.fields[i])
}

// amount parses a French formatted amount. Unparsable values read as zero.
func (r record) amount(col string) decimal.Decimal {
	v := strings.ReplaceAll(r.get(col), " ", "")
	v = strings.ReplaceAll(v, ",", ".")
	d, err := decimal.NewFromString(v)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func (r record) count(col string) int {
	return int(r.amount(col).IntPart())
}

// readRows calls fn for every data row of a semicolon separated file.
func readRows(r io.Reader, fn func(line int, rec record)) error {
	cr := csv.NewReader(r)
	cr.Comma = ';'
	cr.LazyQuotes = true
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return errors.Wrap(err, "read header")
	}
	index := make(map[string]int, len(header))
	for i, h := range header {
		h = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
		index[h] = i
	}

	for {
		fields, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return errors.Wrap(err, "read row")
		}
		line, _ := cr.FieldPos(0)
		if blank(fields) {
			continue
		}
		fn(line, record{index: index, fields: fields})
	}
}

func blank(fields []string) bool {
	for _, f := range fields {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}

// ParseProducts reads a product export. Rows without code or label are
// reported and skipped. VAT rate and TTC price are derived from the family;
// the file's own VAT and TTC columns are ignored.
func ParseProducts(r io.Reader) ([]product.Product, []RowError, error) {
	var (
		products []product.Product
		rowErrs  []RowError
	)
	err := readRows(r, func(line int, rec record) {
		p := product.Product{
			Code:            rec.get(colCode),
			Name:            rec.get(colLabel),
			Description:     firstNonEmpty(rec.get(colTicketLabel), rec.get(colDesignation)),
			Category:        rec.get(colFamily),
			Brand:           rec.get(colBrand),
			Unit:            rec.get(colUnit),
			PurchasePriceHT: rec.amount(colPurchasePrice),
			SalePriceHT:     rec.amount(colSalePrice),
			Stock:           rec.count(colQuantity),
			AlertQuantity:   rec.count(colAlertQuantity),
			WeightKg:        rec.amount(colWeight),
		}
		if p.Code == "" || p.Name == "" {
			rowErrs = append(rowErrs, RowError{Line: line, Err: ErrMissingCodeOrLabel})
			return
		}
		p.Normalize()
		if err := p.Validate(); err != nil {
			rowErrs = append(rowErrs, RowError{Line: line, Err: err})
			return
		}
		products = append(products, p)
	})
	return products, rowErrs, err
}

// ParseClients reads a client export. Rows without code, name or VAT
// number are reported and skipped.
func ParseClients(r io.Reader) ([]client.Client, []RowError, error) {
	var (
		clients []client.Client
		rowErrs []RowError
	)
	err := readRows(r, func(line int, rec record) {
		c := client.Client{
			Code:       rec.get(colCode),
			Name:       rec.get(colName),
			Address:    rec.get(colAddress),
			PostalCode: rec.get(colPostalCode),
			City:       rec.get(colCity),
			Country:    rec.get(colCountry),
			Mobile:     firstNonEmpty(rec.get(colMobile), rec.get(colPhone)),
			Email:      rec.get(colEmail),
			VATNumber:  rec.get(colVAT),
		}
		switch {
		case c.Code == "" || c.Name == "":
			rowErrs = append(rowErrs, RowError{Line: line, Err: ErrMissingCodeOrName})
			return
		case c.VATNumber == "":
			rowErrs = append(rowErrs, RowError{Line: line, Err: ErrMissingVAT})
			return
		}
		c.Normalize()
		clients = append(clients, c)
	})
	return clients, rowErrs, err
}

func firstNonEmpty(vs ...string) string {
	for _, v := range vs {
		if v != "" {
			return v
		}
	}
	return ""
}

// ProductWriter stores imported products keyed by code.
type ProductWriter interface {
	UpsertByCode(ctx context.Context, p *product.Product) error
}

// ClientWriter stores imported clients keyed by VAT number.
type ClientWriter interface {
	UpsertByVAT(ctx context.Context, c *client.Client) error
}

// Result counts written records and lists skipped rows.
type Result struct {
	Imported int
	Skipped  []RowError
}

// WriteProducts upserts products one by one and stops at the first storage
// error. The returned count covers the rows written before it.
func WriteProducts(ctx context.Context, w ProductWriter, products []product.Product) (int, error) {
	for i := range products {
		if err := ctx.Err(); err != nil {
			return i, err
		}
		if err := w.UpsertByCode(ctx, &products[i]); err != nil {
			return i, errors.Wrapf(err, "write product %s", products[i].Code)
		}
	}
	return len(products), nil
}

// WriteClients upserts clients one by one and stops at the first storage
// error.
func WriteClients(ctx context.Context, w ClientWriter, clients []client.Client) (int, error) {
	for i := range clients {
		if err := ctx.Err(); err != nil {
			return i, err
		}
		if err := w.UpsertByVAT(ctx, &clients[i]); err != nil {
			return i, errors.Wrapf(err, "write client %s", clients[i].VATNumber)
		}
	}
	return len(clients), nil
}

// ImportProducts parses and writes a product export.
func ImportProducts(ctx context.Context, w ProductWriter, r io.Reader) (Result, error) {
	products, skipped, err := ParseProducts(r)
	if err != nil {
		return Result{Skipped: skipped}, err
	}
	n, err := WriteProducts(ctx, w, products)
	return Result{Imported: n, Skipped: skipped}, err
}

// ImportClients parses and writes a client export.
func ImportClients(ctx context.Context, w ClientWriter, r io.Reader) (Result, error) {
	clients, skipped, err := ParseClients(r)
	if err != nil {
		return Result{Skipped: skipped}, err
	}
	n, err := WriteClients(ctx, w, clients)
	return Result{Imported: n, Skipped: skipped}, err
}
