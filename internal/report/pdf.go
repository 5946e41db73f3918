package report

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-pdf/fpdf"
	"github.com/shopspring/decimal"

	"github.com/liafood/backoffice/internal/domain/client"
	"github.com/liafood/backoffice/internal/domain/company"
	"github.com/liafood/backoffice/internal/domain/invoice"
	"github.com/liafood/backoffice/internal/domain/order"
	"github.com/liafood/backoffice/internal/domain/pricing"
)

const (
	pageMargin = 14.0
	lineHeight = 6.0
	fontFamily = "Helvetica"
)

var invoiceStatusLabels = map[invoice.Status]string{
	invoice.StatusDraft:   "Brouillon",
	invoice.StatusSent:    "Envoyée",
	invoice.StatusPaid:    "Payée",
	invoice.StatusOverdue: "Échue",
}

var orderStatusLabels = map[order.Status]string{
	order.StatusPending:   "En attente",
	order.StatusPrepared:  "Préparée",
	order.StatusCompleted: "Terminée",
	order.StatusCancelled: "Annulée",
}

// document wraps fpdf with the translator needed for the core fonts, which
// only cover cp1252.
type document struct {
	pdf *fpdf.Fpdf
	tr  func(string) string
	w   float64
}

func newDocument() *document {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(pageMargin, pageMargin, pageMargin)
	pdf.SetAutoPageBreak(true, pageMargin)
	pdf.AddPage()
	pageW, _ := pdf.GetPageSize()
	return &document{
		pdf: pdf,
		tr:  pdf.UnicodeTranslatorFromDescriptor(""),
		w:   pageW - 2*pageMargin,
	}
}

func (d *document) font(style string, size float64) {
	d.pdf.SetFont(fontFamily, style, size)
}

func (d *document) cell(w float64, text, border string, ln int, align string) {
	d.pdf.CellFormat(w, lineHeight, d.tr(text), border, ln, align, false, 0, "")
}

func (d *document) line(text string) {
	d.cell(d.w, text, "", 1, "L")
}

func (d *document) rule() {
	y := d.pdf.GetY()
	d.pdf.Line(pageMargin, y, pageMargin+d.w, y)
	d.pdf.Ln(2)
}

// table writes a header row and body rows with the given column width
// ratios and alignments.
func (d *document) table(ratios []float64, aligns []string, header []string, rows [][]string) {
	widths := make([]float64, len(ratios))
	for i, r := range ratios {
		widths[i] = d.w * r
	}

	d.font("B", 9)
	d.pdf.SetFillColor(230, 230, 230)
	for i, h := range header {
		ln := 0
		if i == len(header)-1 {
			ln = 1
		}
		d.pdf.CellFormat(widths[i], lineHeight+1, d.tr(h), "1", ln, aligns[i], true, 0, "")
	}

	d.font("", 9)
	for _, row := range rows {
		for i, v := range row {
			ln := 0
			if i == len(row)-1 {
				ln = 1
			}
			d.cell(widths[i], v, "1", ln, aligns[i])
		}
	}
}

func (d *document) companyHeader(c company.Settings) {
	d.font("B", 16)
	d.line(c.Name)
	d.font("", 9)
	d.line(c.Address)
	d.line(fmt.Sprintf("%s %s, %s", c.PostalCode, c.City, c.Country))
	if c.VATNumber != "" {
		d.line("TVA: " + c.VATNumber)
	}
	if c.IBAN != "" {
		d.line("IBAN: " + c.IBAN)
	}
	d.pdf.Ln(4)
}

func (d *document) vatTable(groups []pricing.VATGroup) {
	rows := make([][]string, 0, len(groups))
	for _, g := range groups {
		rows = append(rows, []string{
			g.Rate.String() + " %", money(g.TotalHT), money(g.TotalVAT), money(g.TotalTTC),
		})
	}
	d.table(
		[]float64{0.25, 0.25, 0.25, 0.25},
		[]string{"C", "R", "R", "R"},
		[]string{"Taux TVA", "Base HT", "Montant TVA", "Total TTC"},
		rows,
	)
}

func (d *document) totals(t pricing.Totals) {
	labelW := d.w * 0.75
	valueW := d.w * 0.25
	d.font("", 10)
	d.cell(labelW, "Total HT", "", 0, "R")
	d.cell(valueW, money(t.Subtotal), "", 1, "R")
	d.cell(labelW, "TVA", "", 0, "R")
	d.cell(valueW, money(t.Tax), "", 1, "R")
	d.font("B", 11)
	d.cell(labelW, "Total TTC", "", 0, "R")
	d.cell(valueW, money(t.Total), "", 1, "R")
}

func (d *document) output(w io.Writer) error {
	if err := d.pdf.Output(w); err != nil {
		return errors.Wrap(err, "render pdf")
	}
	return nil
}

func money(v decimal.Decimal) string {
	return v.StringFixed(2) + " €"
}

// RenderInvoice writes the PDF of one invoice. buyer may be nil when the
// client record no longer exists; the name stored on the invoice is used.
func RenderInvoice(w io.Writer, inv *invoice.Invoice, seller company.Settings, buyer *client.Client) error {
	d := newDocument()
	d.companyHeader(seller)

	d.font("B", 14)
	d.line("FACTURE " + inv.ID)
	d.font("", 10)
	d.line("Date: " + inv.CreatedAt.Format("02/01/2006"))
	d.line("Échéance: " + inv.DueDate.Format("02/01/2006"))
	d.line("Paiement: " + string(inv.PaymentMethod))
	d.pdf.Ln(2)

	d.font("B", 10)
	d.line("Client")
	d.font("", 10)
	if buyer != nil {
		d.line(buyer.Name)
		if buyer.Address != "" {
			d.line(buyer.Address)
		}
		if buyer.City != "" {
			d.line(fmt.Sprintf("%s %s", buyer.PostalCode, buyer.City))
		}
		d.line("TVA: " + buyer.VATNumber)
	} else {
		d.line(inv.ClientName)
	}
	d.pdf.Ln(4)

	rows := make([][]string, 0, len(inv.Items))
	for _, it := range inv.Items {
		rows = append(rows, []string{
			it.ProductCode, it.ProductName, fmt.Sprintf("%d", it.Quantity),
			money(it.PriceHT), it.VATRate.String() + " %", money(pricing.Round2(it.TotalHT)),
		})
	}
	d.table(
		[]float64{0.13, 0.37, 0.08, 0.14, 0.10, 0.18},
		[]string{"L", "L", "C", "R", "C", "R"},
		[]string{"Code", "Désignation", "Qté", "Prix HT", "TVA", "Total HT"},
		rows,
	)
	d.pdf.Ln(4)

	d.vatTable(inv.Breakdown())
	d.pdf.Ln(4)
	d.totals(pricing.Totals{Subtotal: inv.Subtotal, Tax: inv.Tax, Total: inv.Total})

	return d.output(w)
}

// RenderSales writes the sales report of a period.
func RenderSales(w io.Writer, s Sales, seller company.Settings) error {
	d := newDocument()
	d.companyHeader(seller)

	d.font("B", 14)
	d.line("Rapport des ventes")
	d.font("", 10)
	d.line("Période: " + period(s.From, s.To))
	d.line(fmt.Sprintf("Nombre de commandes: %d", s.Orders))
	d.rule()

	d.font("B", 11)
	d.line("Chiffre d'affaires par jour")
	rows := make([][]string, 0, len(s.Daily))
	for _, day := range s.Daily {
		rows = append(rows, []string{day.Day.Format("02/01/2006"), fmt.Sprintf("%d", day.Orders), money(day.Total)})
	}
	d.table([]float64{0.4, 0.2, 0.4}, []string{"L", "C", "R"}, []string{"Jour", "Commandes", "Total TTC"}, rows)
	d.pdf.Ln(4)

	d.font("B", 11)
	d.line("Meilleures ventes")
	rows = rows[:0]
	for _, p := range s.TopProducts {
		rows = append(rows, []string{p.ProductCode, p.ProductName, fmt.Sprintf("%d", p.Quantity), fmt.Sprintf("%d", p.Orders)})
	}
	d.table([]float64{0.18, 0.52, 0.15, 0.15}, []string{"L", "L", "C", "C"}, []string{"Code", "Produit", "Quantité", "Commandes"}, rows)
	d.pdf.Ln(4)

	d.font("B", 11)
	d.line("Détail des commandes")
	rows = rows[:0]
	for _, o := range s.Details {
		rows = append(rows, []string{
			o.CreatedAt.Format("02/01/2006 15:04"), o.ClientName, orderStatusLabels[o.Status], money(o.Total),
		})
	}
	d.table([]float64{0.22, 0.43, 0.15, 0.20}, []string{"L", "L", "C", "R"}, []string{"Date", "Client", "Statut", "Total TTC"}, rows)
	d.pdf.Ln(4)

	d.vatTable(s.VAT)
	d.pdf.Ln(4)
	d.totals(s.Totals)

	return d.output(w)
}

// RenderInvoices writes the invoice listing with its VAT summary.
func RenderInvoices(w io.Writer, r Invoices, seller company.Settings, from, to time.Time) error {
	d := newDocument()
	d.companyHeader(seller)

	d.font("B", 14)
	d.line("Rapport des factures")
	d.font("", 10)
	d.line("Période: " + period(from, to))
	d.line(fmt.Sprintf("Nombre de factures: %d", r.Count))
	statuses := make([]string, 0, len(r.ByStatus))
	for st, n := range r.ByStatus {
		statuses = append(statuses, fmt.Sprintf("%s: %d", invoiceStatusLabels[st], n))
	}
	sort.Strings(statuses)
	for _, s := range statuses {
		d.line(s)
	}
	d.rule()

	rows := make([][]string, 0, len(r.Invoices))
	for _, inv := range r.Invoices {
		rows = append(rows, []string{
			inv.ID, inv.CreatedAt.Format("02/01/2006"), inv.ClientName,
			money(inv.Subtotal), money(inv.Tax), money(inv.Total), invoiceStatusLabels[inv.Status],
		})
	}
	d.table(
		[]float64{0.13, 0.12, 0.25, 0.13, 0.11, 0.13, 0.13},
		[]string{"L", "C", "L", "R", "R", "R", "C"},
		[]string{"N°", "Date", "Client", "HT", "TVA", "TTC", "Statut"},
		rows,
	)
	d.pdf.Ln(4)

	d.vatTable(r.VAT)
	d.pdf.Ln(4)
	d.totals(r.Totals)

	return d.output(w)
}

// RenderStock writes the product stock report.
func RenderStock(w io.Writer, s Stock, seller company.Settings) error {
	d := newDocument()
	d.companyHeader(seller)

	d.font("B", 14)
	d.line("Rapport des stocks")
	d.font("", 10)
	d.line(fmt.Sprintf("Nombre de produits: %d", s.Products))
	d.line(fmt.Sprintf("Unités en stock: %d", s.Units))
	d.line("Valeur du stock HT: " + money(s.ValueHT))
	d.line(fmt.Sprintf("Produits en alerte: %d", s.LowStock))
	d.rule()

	rows := make([][]string, 0, len(s.Catalogue))
	for _, p := range s.Catalogue {
		rows = append(rows, []string{
			p.Code, p.Name, p.Category, fmt.Sprintf("%d", p.Stock), money(p.SalePriceHT), money(p.SalePriceTTC),
		})
	}
	d.table(
		[]float64{0.14, 0.36, 0.14, 0.10, 0.13, 0.13},
		[]string{"L", "L", "L", "C", "R", "R"},
		[]string{"Code", "Produit", "Catégorie", "Stock", "Prix HT", "Prix TTC"},
		rows,
	)

	return d.output(w)
}

func period(from, to time.Time) string {
	switch {
	case from.IsZero() && to.IsZero():
		return "toutes dates"
	case from.IsZero():
		return "jusqu'au " + to.AddDate(0, 0, -1).Format("02/01/2006")
	case to.IsZero():
		return "depuis le " + from.Format("02/01/2006")
	}
	return fmt.Sprintf("du %s au %s", from.Format("02/01/2006"), to.AddDate(0, 0, -1).Format("02/01/2006"))
}
