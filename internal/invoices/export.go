package invoices

import (
	"strings"

	"github.com/brightnest/cleanops/internal/export"
	"github.com/brightnest/cleanops/internal/shared"
)

// ExportColumns are the selectable invoice CSV columns.
var ExportColumns = []export.Column[Invoice]{
	{Key: "invoice_number", Value: func(i Invoice) string { return i.InvoiceNumber }},
	{Key: "client_name", Value: func(i Invoice) string { return i.ClientName }},
	{Key: "client_id", Value: func(i Invoice) string { return i.ClientID }},
	{Key: "amount", Value: func(i Invoice) string { return i.Amount.StringFixed(2) }},
	{Key: "status", Value: func(i Invoice) string { return string(i.Status) }},
	{Key: "issue_date", Value: func(i Invoice) string { return i.IssueDate.Format("2006-01-02") }},
	{Key: "due_date", Value: func(i Invoice) string { return i.DueDate.Format("2006-01-02") }},
	{Key: "services", Value: func(i Invoice) string { return strings.Join(i.Services, "; ") }},
	{Key: "notes", Value: func(i Invoice) string { return i.Notes }},
}

// Document converts an invoice into its printable form.
func Document(inv Invoice, businessName string) export.InvoiceDocument {
	doc := export.InvoiceDocument{
		BusinessName: businessName,
		Number:       inv.InvoiceNumber,
		ClientName:   inv.ClientName,
		Status:       string(inv.Status),
		IssueDate:    inv.IssueDate,
		DueDate:      inv.DueDate,
		Total:        shared.FormatMoney(inv.Amount),
		Notes:        inv.Notes,
	}
	for _, line := range inv.LineItems {
		doc.Lines = append(doc.Lines, export.InvoiceDocumentLine{
			Description: line.Description,
			Hours:       line.Hours.String(),
			Rate:        shared.FormatMoney(line.Rate),
			Amount:      shared.FormatMoney(line.Amount),
		})
	}
	return doc
}
