package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/liafood/backoffice/internal/domain/auth"
	"github.com/liafood/backoffice/internal/domain/client"
	"github.com/liafood/backoffice/internal/domain/company"
	"github.com/liafood/backoffice/internal/domain/invoice"
	"github.com/liafood/backoffice/internal/domain/order"
	"github.com/liafood/backoffice/internal/domain/pricing"
	"github.com/liafood/backoffice/internal/domain/product"
	"github.com/liafood/backoffice/internal/report"
)

const maxBodyBytes = 1 << 20

func writeJSON(w http.ResponseWriter, status int, fn func(e *jx.Encoder)) {
	e := jx.GetEncoder()
	defer jx.PutEncoder(e)
	fn(e)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}

func strField(e *jx.Encoder, name, v string) {
	e.FieldStart(name)
	e.Str(v)
}

func intField(e *jx.Encoder, name string, v int) {
	e.FieldStart(name)
	e.Int(v)
}

// decField writes a decimal as a JSON number without losing precision.
func decField(e *jx.Encoder, name string, v decimal.Decimal) {
	e.FieldStart(name)
	e.Raw([]byte(v.String()))
}

func timeField(e *jx.Encoder, name string, t time.Time) {
	e.FieldStart(name)
	if t.IsZero() {
		e.Null()
		return
	}
	e.Str(t.UTC().Format(time.RFC3339))
}

func arr[T any](e *jx.Encoder, name string, items []T, fn func(*jx.Encoder, T)) {
	e.FieldStart(name)
	e.ArrStart()
	for _, it := range items {
		fn(e, it)
	}
	e.ArrEnd()
}

func encodeProduct(e *jx.Encoder, p product.Product) {
	e.ObjStart()
	strField(e, "id", p.ID)
	strField(e, "code", p.Code)
	strField(e, "name", p.Name)
	strField(e, "description", p.Description)
	strField(e, "category", p.Category)
	strField(e, "brand", p.Brand)
	strField(e, "unit", p.Unit)
	decField(e, "purchase_price_ht", p.PurchasePriceHT)
	decField(e, "sale_price_ht", p.SalePriceHT)
	decField(e, "vat_rate", p.VATRate)
	decField(e, "sale_price_ttc", p.SalePriceTTC)
	intField(e, "stock", p.Stock)
	intField(e, "alert_quantity", p.AlertQuantity)
	decField(e, "weight_kg", p.WeightKg)
	timeField(e, "created_at", p.CreatedAt)
	timeField(e, "updated_at", p.UpdatedAt)
	e.ObjEnd()
}

func encodeCategory(e *jx.Encoder, c product.Category) {
	e.ObjStart()
	strField(e, "id", c.ID)
	strField(e, "name", c.Name)
	strField(e, "description", c.Description)
	strField(e, "color", c.Color)
	decField(e, "vat_rate", pricing.VATRateForCategory(c.Name))
	e.ObjEnd()
}

func encodeAlert(e *jx.Encoder, a product.StockAlert) {
	e.ObjStart()
	strField(e, "product_id", a.ProductID)
	strField(e, "product_code", a.ProductCode)
	strField(e, "product_name", a.ProductName)
	intField(e, "current_stock", a.CurrentStock)
	intField(e, "min_stock", a.MinStock)
	strField(e, "severity", string(a.Severity))
	e.ObjEnd()
}

func encodeClient(e *jx.Encoder, c client.Client) {
	e.ObjStart()
	strField(e, "id", c.ID)
	strField(e, "code", c.Code)
	strField(e, "name", c.Name)
	strField(e, "address", c.Address)
	strField(e, "postal_code", c.PostalCode)
	strField(e, "city", c.City)
	strField(e, "country", c.Country)
	strField(e, "mobile", c.Mobile)
	strField(e, "email", c.Email)
	strField(e, "vat_number", c.VATNumber)
	timeField(e, "created_at", c.CreatedAt)
	e.ObjEnd()
}

func encodeLine(e *jx.Encoder, l pricing.Line) {
	e.ObjStart()
	strField(e, "id", l.ID)
	strField(e, "product_id", l.ProductID)
	strField(e, "product_code", l.ProductCode)
	strField(e, "product_name", l.ProductName)
	intField(e, "quantity", l.Quantity)
	decField(e, "price_ht", l.PriceHT)
	decField(e, "vat_rate", l.VATRate)
	decField(e, "price_ttc", l.PriceTTC)
	decField(e, "total_ht", l.TotalHT)
	decField(e, "total_ttc", l.TotalTTC)
	e.ObjEnd()
}

func encodeTotals(e *jx.Encoder, t pricing.Totals) {
	decField(e, "subtotal", t.Subtotal)
	decField(e, "tax", t.Tax)
	decField(e, "total", t.Total)
}

func encodeVATGroup(e *jx.Encoder, g pricing.VATGroup) {
	e.ObjStart()
	decField(e, "rate", g.Rate)
	decField(e, "total_ht", g.TotalHT)
	decField(e, "total_vat", g.TotalVAT)
	decField(e, "total_ttc", g.TotalTTC)
	e.ObjEnd()
}

func encodeOrder(e *jx.Encoder, o order.Order) {
	e.ObjStart()
	strField(e, "id", o.ID)
	strField(e, "client_vat_number", o.ClientVATNumber)
	strField(e, "client_name", o.ClientName)
	arr(e, "items", o.Items, encodeLine)
	encodeTotals(e, pricing.Totals{Subtotal: o.Subtotal, Tax: o.Tax, Total: o.Total})
	strField(e, "status", string(o.Status))
	e.FieldStart("editable")
	e.Bool(o.Editable())
	timeField(e, "created_at", o.CreatedAt)
	timeField(e, "updated_at", o.UpdatedAt)
	e.FieldStart("prepared_at")
	if o.PreparedAt != nil {
		e.Str(o.PreparedAt.UTC().Format(time.RFC3339))
	} else {
		e.Null()
	}
	e.ObjEnd()
}

func encodeProductSummary(e *jx.Encoder, s order.ProductSummary) {
	e.ObjStart()
	strField(e, "product_id", s.ProductID)
	strField(e, "product_code", s.ProductCode)
	strField(e, "product_name", s.ProductName)
	intField(e, "quantity", s.Quantity)
	intField(e, "orders", s.Orders)
	e.ObjEnd()
}

func encodeInvoice(e *jx.Encoder, inv invoice.Invoice) {
	e.ObjStart()
	strField(e, "id", inv.ID)
	strField(e, "client_id", inv.ClientID)
	strField(e, "client_name", inv.ClientName)
	arr(e, "items", inv.Items, encodeLine)
	encodeTotals(e, pricing.Totals{Subtotal: inv.Subtotal, Tax: inv.Tax, Total: inv.Total})
	arr(e, "vat_breakdown", inv.Breakdown(), encodeVATGroup)
	strField(e, "status", string(inv.Status))
	strField(e, "payment_method", string(inv.PaymentMethod))
	timeField(e, "created_at", inv.CreatedAt)
	timeField(e, "due_date", inv.DueDate)
	e.ObjEnd()
}

func encodeCompany(e *jx.Encoder, s company.Settings) {
	e.ObjStart()
	strField(e, "name", s.Name)
	strField(e, "address", s.Address)
	strField(e, "postal_code", s.PostalCode)
	strField(e, "city", s.City)
	strField(e, "country", s.Country)
	strField(e, "vat_number", s.VATNumber)
	strField(e, "iban", s.IBAN)
	strField(e, "bic", s.BIC)
	strField(e, "phone", s.Phone)
	strField(e, "email", s.Email)
	e.ObjEnd()
}

func encodeSession(e *jx.Encoder, s *auth.Session) {
	e.ObjStart()
	strField(e, "token", s.Token)
	timeField(e, "expires_at", s.ExpiresAt)
	e.FieldStart("user")
	encodeClaims(e, s.Claims)
	e.ObjEnd()
}

func encodeClaims(e *jx.Encoder, c *auth.Claims) {
	e.ObjStart()
	strField(e, "id", c.Subject)
	strField(e, "role", string(c.Role))
	strField(e, "name", c.Name)
	if c.VATNumber != "" {
		strField(e, "vat_number", c.VATNumber)
	}
	e.ObjEnd()
}

func encodeCounts[K ~string](e *jx.Encoder, name string, m map[K]int) {
	e.FieldStart(name)
	e.ObjStart()
	for k, v := range m {
		intField(e, string(k), v)
	}
	e.ObjEnd()
}

func encodeSales(e *jx.Encoder, s report.Sales) {
	e.ObjStart()
	timeField(e, "from", s.From)
	timeField(e, "to", s.To)
	intField(e, "orders", s.Orders)
	encodeCounts(e, "by_status", s.ByStatus)
	encodeTotals(e, s.Totals)
	arr(e, "vat_breakdown", s.VAT, encodeVATGroup)
	arr(e, "daily", s.Daily, func(e *jx.Encoder, d report.DailyRevenue) {
		e.ObjStart()
		strField(e, "day", d.Day.Format(time.DateOnly))
		intField(e, "orders", d.Orders)
		decField(e, "total", d.Total)
		e.ObjEnd()
	})
	arr(e, "top_products", s.TopProducts, encodeProductSummary)
	e.ObjEnd()
}

func encodeInvoiceReport(e *jx.Encoder, r report.Invoices) {
	e.ObjStart()
	intField(e, "count", r.Count)
	encodeCounts(e, "by_status", r.ByStatus)
	encodeTotals(e, r.Totals)
	arr(e, "vat_breakdown", r.VAT, encodeVATGroup)
	arr(e, "invoices", r.Invoices, encodeInvoice)
	e.ObjEnd()
}

func encodeStock(e *jx.Encoder, s report.Stock) {
	e.ObjStart()
	intField(e, "products", s.Products)
	intField(e, "units", s.Units)
	decField(e, "value_ht", s.ValueHT)
	intField(e, "low_stock", s.LowStock)
	arr(e, "alerts", s.Alerts, encodeAlert)
	e.ObjEnd()
}

// fields maps JSON keys to decoders. Unknown keys are ignored.
type fields map[string]func(d *jx.Decoder) error

// decodeBody decodes a JSON object from the request body.
func decodeBody(w http.ResponseWriter, r *http.Request, f fields) error {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := decodeObject(jx.Decode(body, 4096), f); err != nil {
		return invalidInput(errors.Wrap(err, "decode body"))
	}
	return nil
}

func decodeObject(d *jx.Decoder, f fields) error {
	return d.Obj(func(d *jx.Decoder, key string) error {
		if fn, ok := f[key]; ok {
			return fn(d)
		}
		return d.Skip()
	})
}

// null consumes a JSON null and reports whether one was present.
func null(d *jx.Decoder) (bool, error) {
	if d.Next() != jx.Null {
		return false, nil
	}
	return true, d.Null()
}

func str(dst *string) func(*jx.Decoder) error {
	return func(d *jx.Decoder) error {
		if isNull, err := null(d); isNull || err != nil {
			return err
		}
		v, err := d.Str()
		*dst = v
		return err
	}
}

func integer(dst *int) func(*jx.Decoder) error {
	return func(d *jx.Decoder) error {
		if isNull, err := null(d); isNull || err != nil {
			return err
		}
		v, err := d.Int()
		*dst = v
		return err
	}
}

func boolean(dst *bool) func(*jx.Decoder) error {
	return func(d *jx.Decoder) error {
		v, err := d.Bool()
		*dst = v
		return err
	}
}

// parseDecimal accepts numbers and strings, with a comma or a dot.
func parseDecimal(d *jx.Decoder) (decimal.Decimal, error) {
	if d.Next() == jx.String {
		s, err := d.Str()
		if err != nil {
			return decimal.Decimal{}, err
		}
		return decimal.NewFromString(strings.ReplaceAll(strings.TrimSpace(s), ",", "."))
	}
	n, err := d.Num()
	if err != nil {
		return decimal.Decimal{}, err
	}
	return decimal.NewFromString(n.String())
}

func dec(dst *decimal.Decimal) func(*jx.Decoder) error {
	return func(d *jx.Decoder) error {
		if isNull, err := null(d); isNull || err != nil {
			return err
		}
		v, err := parseDecimal(d)
		*dst = v
		return err
	}
}

func decPtr(dst **decimal.Decimal) func(*jx.Decoder) error {
	return func(d *jx.Decoder) error {
		if isNull, err := null(d); isNull || err != nil {
			*dst = nil
			return err
		}
		v, err := parseDecimal(d)
		if err != nil {
			return err
		}
		*dst = &v
		return nil
	}
}

func strs(dst *[]string) func(*jx.Decoder) error {
	return func(d *jx.Decoder) error {
		return d.Arr(func(d *jx.Decoder) error {
			v, err := d.Str()
			*dst = append(*dst, v)
			return err
		})
	}
}

func objects(each func() fields) func(*jx.Decoder) error {
	return func(d *jx.Decoder) error {
		return d.Arr(func(d *jx.Decoder) error {
			return decodeObject(d, each())
		})
	}
}

func productFields(p *product.Product) fields {
	return fields{
		"code":              str(&p.Code),
		"name":              str(&p.Name),
		"description":       str(&p.Description),
		"category":          str(&p.Category),
		"brand":             str(&p.Brand),
		"unit":              str(&p.Unit),
		"purchase_price_ht": dec(&p.PurchasePriceHT),
		"sale_price_ht":     dec(&p.SalePriceHT),
		"stock":             integer(&p.Stock),
		"alert_quantity":    integer(&p.AlertQuantity),
		"weight_kg":         dec(&p.WeightKg),
	}
}

func categoryFields(c *product.Category) fields {
	return fields{
		"name":        str(&c.Name),
		"description": str(&c.Description),
		"color":       str(&c.Color),
	}
}

func clientFields(c *client.Client) fields {
	return fields{
		"code":        str(&c.Code),
		"name":        str(&c.Name),
		"address":     str(&c.Address),
		"postal_code": str(&c.PostalCode),
		"city":        str(&c.City),
		"country":     str(&c.Country),
		"mobile":      str(&c.Mobile),
		"email":       str(&c.Email),
		"vat_number":  str(&c.VATNumber),
	}
}

func companyFields(s *company.Settings) fields {
	return fields{
		"name":        str(&s.Name),
		"address":     str(&s.Address),
		"postal_code": str(&s.PostalCode),
		"city":        str(&s.City),
		"country":     str(&s.Country),
		"vat_number":  str(&s.VATNumber),
		"iban":        str(&s.IBAN),
		"bic":         str(&s.BIC),
		"phone":       str(&s.Phone),
		"email":       str(&s.Email),
	}
}

func orderItemsField(dst *[]order.OrderItem) func(*jx.Decoder) error {
	return objects(func() fields {
		*dst = append(*dst, order.OrderItem{})
		it := &(*dst)[len(*dst)-1]
		return fields{
			"product_id": str(&it.ProductID),
			"quantity":   integer(&it.Quantity),
		}
	})
}

func invoiceItemsField(dst *[]invoice.ItemInput) func(*jx.Decoder) error {
	return objects(func() fields {
		*dst = append(*dst, invoice.ItemInput{})
		it := &(*dst)[len(*dst)-1]
		return fields{
			"product_id": str(&it.ProductID),
			"quantity":   integer(&it.Quantity),
			"price_ht":   decPtr(&it.PriceHT),
		}
	})
}
