package export

import (
	"fmt"
	"time"

	"github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/props"
)

// InvoiceDocument is the printable view of an invoice.
type InvoiceDocument struct {
	BusinessName string
	Number       string
	ClientName   string
	Status       string
	IssueDate    time.Time
	DueDate      time.Time
	Lines        []InvoiceDocumentLine
	Total        string
	Notes        string
}

// InvoiceDocumentLine is one printable line item; amounts are pre-formatted.
type InvoiceDocumentLine struct {
	Description string
	Hours       string
	Rate        string
	Amount      string
}

// InvoicePDF renders a single invoice and returns the PDF bytes.
func InvoicePDF(doc InvoiceDocument) ([]byte, error) {
	m := maroto.New(config.NewBuilder().Build())

	m.AddRow(10,
		col.New(8).Add(
			text.New(doc.BusinessName, props.Text{Size: 16, Style: fontstyle.Bold}),
		),
		col.New(4).Add(
			text.New("INVOICE", props.Text{Size: 20, Style: fontstyle.BoldItalic, Align: align.Right}),
		),
	)
	m.AddRow(6,
		col.New(8).Add(text.New("Bill To: "+doc.ClientName, props.Text{Size: 10, Style: fontstyle.Bold})),
		col.New(4).Add(text.New("Invoice #: "+doc.Number, props.Text{Size: 10, Align: align.Right})),
	)
	m.AddRow(5,
		col.New(8).Add(text.New("Status: "+doc.Status, props.Text{Size: 9})),
		col.New(4).Add(text.New("Date: "+doc.IssueDate.Format("January 2, 2006"), props.Text{Size: 9, Align: align.Right})),
	)
	m.AddRow(5,
		col.New(8),
		col.New(4).Add(text.New("Due: "+doc.DueDate.Format("January 2, 2006"), props.Text{Size: 9, Align: align.Right})),
	)
	m.AddRow(10)

	header := props.Text{Size: 9, Style: fontstyle.Bold}
	m.AddRow(8,
		col.New(6).Add(text.New("Description", header)),
		col.New(2).Add(text.New("Hours", props.Text{Size: 9, Style: fontstyle.Bold, Align: align.Right})),
		col.New(2).Add(text.New("Rate", props.Text{Size: 9, Style: fontstyle.Bold, Align: align.Right})),
		col.New(2).Add(text.New("Amount", props.Text{Size: 9, Style: fontstyle.Bold, Align: align.Right})),
	)
	for _, line := range doc.Lines {
		m.AddRow(6,
			col.New(6).Add(text.New(line.Description, props.Text{Size: 9})),
			col.New(2).Add(text.New(line.Hours, props.Text{Size: 9, Align: align.Right})),
			col.New(2).Add(text.New(line.Rate, props.Text{Size: 9, Align: align.Right})),
			col.New(2).Add(text.New(line.Amount, props.Text{Size: 9, Align: align.Right})),
		)
	}
	m.AddRow(4)
	m.AddRow(8,
		col.New(8),
		col.New(4).Add(text.New("Total: "+doc.Total, props.Text{Size: 11, Style: fontstyle.Bold, Align: align.Right})),
	)
	if doc.Notes != "" {
		m.AddRow(8, col.New(12).Add(text.New(doc.Notes, props.Text{Size: 8})))
	}

	document, err := m.Generate()
	if err != nil {
		return nil, fmt.Errorf("export: generate invoice pdf: %w", err)
	}
	return document.GetBytes(), nil
}
