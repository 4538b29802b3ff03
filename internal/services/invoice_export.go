package services

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/juan49ers-spec/Repaart-sub012/internal/models"
)

// ExportFormat is a file format an invoice can be downloaded in
type ExportFormat string

const (
	ExportCSV  ExportFormat = "csv"
	ExportJSON ExportFormat = "json"
	ExportXML  ExportFormat = "xml"
	ExportXLSX ExportFormat = "xlsx"
)

const (
	exportJSONFormat  = "REPAART_INVOICE_JSON"
	exportJSONVersion = "1.0"
	exportXMLNS       = "http://www.repaart.com/invoice/v1"
	exportCurrency    = "EUR"
	exportDateLayout  = "2006-01-02"
)

var exportContentTypes = map[ExportFormat]string{
	ExportCSV:  "text/csv; charset=utf-8",
	ExportJSON: "application/json",
	ExportXML:  "application/xml",
	ExportXLSX: "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
}

// ParseExportFormat validates a requested format. An empty value means JSON.
func ParseExportFormat(value string) (ExportFormat, error) {
	format := ExportFormat(strings.ToLower(strings.TrimSpace(value)))
	if format == "" {
		return ExportJSON, nil
	}
	if _, ok := exportContentTypes[format]; !ok {
		return "", models.NewValidationError("ExportInvoice", "format",
			fmt.Sprintf("Formato de exportación no soportado: %s (csv, json, xml, xlsx)", value))
	}
	return format, nil
}

// InvoiceFile is a rendered invoice ready to be downloaded
type InvoiceFile struct {
	FileName    string `json:"file_name"`
	ContentType string `json:"content_type"`
	Data        []byte `json:"data"`
}

// RenderInvoice renders an invoice in the given format
func RenderInvoice(invoice *models.Invoice, format ExportFormat, now time.Time) (*InvoiceFile, error) {
	var (
		data []byte
		err  error
	)
	switch format {
	case ExportCSV:
		data, err = renderCSV(invoice)
	case ExportJSON:
		data, err = renderJSON(invoice, now)
	case ExportXML:
		data, err = renderXML(invoice)
	case ExportXLSX:
		data, err = renderXLSX(invoice)
	default:
		_, err = ParseExportFormat(string(format))
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("render %s: %w", format, err)
	}

	return &InvoiceFile{
		FileName:    exportFileName(invoice, format),
		ContentType: exportContentTypes[format],
		Data:        data,
	}, nil
}

// exportFileName names the download after the invoice number, or its ID for drafts
func exportFileName(invoice *models.Invoice, format ExportFormat) string {
	base := invoice.FullNumber
	if base == "" {
		base = "borrador-" + invoice.ID
	}
	return strings.NewReplacer("/", "_", "\\", "_").Replace(base) + "." + string(format)
}

func formatDate(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(exportDateLayout)
}

func formatAmount(v float64) string {
	return strconv.FormatFloat(models.Round2(v), 'f', 2, 64)
}

func cityLine(a models.Address) string {
	return strings.TrimSpace(a.PostalCode + " " + a.City)
}

func issuerOf(invoice *models.Invoice) models.IssuerSnapshot {
	if invoice.Issuer == nil {
		return models.IssuerSnapshot{}
	}
	return *invoice.Issuer
}

func renderCSV(invoice *models.Invoice) ([]byte, error) {
	issuer := issuerOf(invoice)
	customer := invoice.Customer

	rows := [][]string{
		{"Número de Factura", "Fecha", "Estado"},
		{invoice.FullNumber, formatDate(invoice.IssueDate), string(invoice.Status)},
		{},
		{"EMISOR"},
		{"Nombre", "CIF", "Dirección", "Ciudad", "Email"},
		{issuer.FiscalName, issuer.TaxID, issuer.Address.Street, cityLine(issuer.Address), issuer.Email},
		{},
		{"CLIENTE"},
		{"Nombre", "CIF", "Dirección", "Ciudad"},
		{customer.Name, customer.TaxID, customer.Address.Street, cityLine(customer.Address)},
		{},
		{"DESGLOSE"},
		{"Descripción", "Cantidad", "Precio Unitario", "Tasa IVA", "Total Línea"},
	}
	for _, line := range invoice.Lines {
		rows = append(rows, []string{
			line.Description,
			strconv.FormatFloat(line.Quantity, 'f', -1, 64),
			formatAmount(line.UnitPrice),
			strconv.FormatFloat(float64(line.TaxRate), 'f', -1, 64),
			formatAmount(line.Total),
		})
	}

	rows = append(rows, []string{}, []string{"RESUMEN"}, []string{"Concepto", "Importe"},
		[]string{"Subtotal", formatAmount(invoice.Subtotal)})
	for _, entry := range invoice.TaxBreakdown {
		rows = append(rows, []string{fmt.Sprintf("IVA %.0f%%", float64(entry.Rate)*100), formatAmount(entry.TaxAmount)})
	}
	rows = append(rows,
		[]string{"TOTAL", formatAmount(invoice.Total)},
		[]string{"Pagado", formatAmount(invoice.TotalPaid)},
		[]string{"Pendiente", formatAmount(invoice.RemainingAmount)},
	)

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.WriteAll(rows); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

type jsonExport struct {
	Metadata jsonExportMetadata `json:"metadata"`
	Invoice  *models.Invoice    `json:"invoice"`
	Currency string             `json:"currency"`
}

type jsonExportMetadata struct {
	ExportDate time.Time `json:"export_date"`
	Version    string    `json:"version"`
	Format     string    `json:"format"`
}

func renderJSON(invoice *models.Invoice, now time.Time) ([]byte, error) {
	return json.MarshalIndent(jsonExport{
		Metadata: jsonExportMetadata{
			ExportDate: now.UTC(),
			Version:    exportJSONVersion,
			Format:     exportJSONFormat,
		},
		Invoice:  invoice,
		Currency: exportCurrency,
	}, "", "  ")
}

type xmlInvoice struct {
	XMLName  xml.Name  `xml:"Invoice"`
	XMLNS    string    `xml:"xmlns,attr"`
	Header   xmlHeader `xml:"Header"`
	Dates    xmlDates  `xml:"Dates"`
	Issuer   xmlParty  `xml:"Issuer"`
	Customer xmlParty  `xml:"Customer"`
	Lines    []xmlLine `xml:"Lines>Line"`
	Totals   xmlTotals `xml:"Totals"`
}

type xmlHeader struct {
	ID            string `xml:"Id"`
	FullNumber    string `xml:"FullNumber"`
	Series        string `xml:"Series"`
	Number        int    `xml:"Number"`
	Type          string `xml:"Type"`
	Status        string `xml:"Status"`
	PaymentStatus string `xml:"PaymentStatus"`
	OriginalID    string `xml:"OriginalInvoiceId,omitempty"`
}

type xmlDates struct {
	IssueDate string `xml:"IssueDate"`
	DueDate   string `xml:"DueDate"`
}

type xmlParty struct {
	FiscalName string     `xml:"FiscalName"`
	Cif        string     `xml:"Cif"`
	Address    xmlAddress `xml:"Address"`
}

type xmlAddress struct {
	Street  string `xml:"Street"`
	City    string `xml:"City"`
	ZipCode string `xml:"ZipCode"`
}

type xmlLine struct {
	Description string  `xml:"Description"`
	Quantity    float64 `xml:"Quantity"`
	UnitPrice   string  `xml:"UnitPrice"`
	TaxRate     float64 `xml:"TaxRate"`
	Total       string  `xml:"Total"`
}

type xmlTaxes struct {
	Rate      float64 `xml:"rate,attr"`
	Base      string  `xml:"TaxableBase"`
	TaxAmount string  `xml:"TaxAmount"`
}

type xmlTotals struct {
	Subtotal        string     `xml:"Subtotal"`
	Taxes           []xmlTaxes `xml:"TaxBreakdown>Tax"`
	TaxTotal        string     `xml:"TaxTotal"`
	Total           string     `xml:"Total"`
	TotalPaid       string     `xml:"TotalPaid"`
	RemainingAmount string     `xml:"RemainingAmount"`
	Currency        string     `xml:"Currency"`
}

func renderXML(invoice *models.Invoice) ([]byte, error) {
	issuer := issuerOf(invoice)
	doc := xmlInvoice{
		XMLNS: exportXMLNS,
		Header: xmlHeader{
			ID:            invoice.ID,
			FullNumber:    invoice.FullNumber,
			Series:        invoice.Series,
			Number:        invoice.Number,
			Type:          string(invoice.Type),
			Status:        string(invoice.Status),
			PaymentStatus: string(invoice.PaymentStatus),
			OriginalID:    invoice.OriginalInvoiceID,
		},
		Dates: xmlDates{
			IssueDate: formatDate(invoice.IssueDate),
			DueDate:   formatDate(invoice.DueDate),
		},
		Issuer: xmlParty{
			FiscalName: issuer.FiscalName,
			Cif:        issuer.TaxID,
			Address:    xmlAddress{Street: issuer.Address.Street, City: issuer.Address.City, ZipCode: issuer.Address.PostalCode},
		},
		Customer: xmlParty{
			FiscalName: invoice.Customer.Name,
			Cif:        invoice.Customer.TaxID,
			Address: xmlAddress{
				Street:  invoice.Customer.Address.Street,
				City:    invoice.Customer.Address.City,
				ZipCode: invoice.Customer.Address.PostalCode,
			},
		},
		Totals: xmlTotals{
			Subtotal:        formatAmount(invoice.Subtotal),
			TaxTotal:        formatAmount(invoice.TaxTotal),
			Total:           formatAmount(invoice.Total),
			TotalPaid:       formatAmount(invoice.TotalPaid),
			RemainingAmount: formatAmount(invoice.RemainingAmount),
			Currency:        exportCurrency,
		},
	}
	for _, line := range invoice.Lines {
		doc.Lines = append(doc.Lines, xmlLine{
			Description: line.Description,
			Quantity:    line.Quantity,
			UnitPrice:   formatAmount(line.UnitPrice),
			TaxRate:     float64(line.TaxRate),
			Total:       formatAmount(line.Total),
		})
	}
	for _, entry := range invoice.TaxBreakdown {
		doc.Totals.Taxes = append(doc.Totals.Taxes, xmlTaxes{
			Rate:      float64(entry.Rate),
			Base:      formatAmount(entry.TaxableBase),
			TaxAmount: formatAmount(entry.TaxAmount),
		})
	}

	body, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, err
	}
	return append([]byte(xml.Header), body...), nil
}

const (
	sheetInvoice = "Factura"
	sheetSummary = "Resumen"
)

func renderXLSX(invoice *models.Invoice) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheetInvoice); err != nil {
		return nil, err
	}
	if _, err := f.NewSheet(sheetSummary); err != nil {
		return nil, err
	}

	issuer := issuerOf(invoice)
	customer := invoice.Customer
	invoiceRows := [][]interface{}{
		{"FACTURA"},
		{},
		{"Número:", invoice.FullNumber, "", "Fecha:", formatDate(invoice.IssueDate)},
		{},
		{"EMISOR", "", "", "CLIENTE"},
		{issuer.FiscalName, "", "", customer.Name},
		{issuer.TaxID, "", "", customer.TaxID},
		{issuer.Address.Street, "", "", customer.Address.Street},
		{cityLine(issuer.Address), "", "", cityLine(customer.Address)},
		{},
		{"DESGLOSE DE LÍNEAS"},
		{"Descripción", "Cantidad", "Precio Unit.", "IVA", "Total"},
	}
	for _, line := range invoice.Lines {
		invoiceRows = append(invoiceRows, []interface{}{
			line.Description, line.Quantity, line.UnitPrice, float64(line.TaxRate), line.Total,
		})
	}
	invoiceRows = append(invoiceRows, []interface{}{}, []interface{}{"", "", "", "Subtotal:", invoice.Subtotal})
	for _, entry := range invoice.TaxBreakdown {
		invoiceRows = append(invoiceRows, []interface{}{"", "", "", fmt.Sprintf("IVA (%.0f%%):", float64(entry.Rate)*100), entry.TaxAmount})
	}
	invoiceRows = append(invoiceRows, []interface{}{"", "", "", "TOTAL:", invoice.Total})

	summaryRows := [][]interface{}{
		{"RESUMEN DE FACTURA"},
		{},
		{"Campo", "Valor"},
		{"ID:", invoice.ID},
		{"Número:", invoice.FullNumber},
		{"Serie:", invoice.Series},
		{"Estado:", string(invoice.Status)},
		{"Estado de Pago:", string(invoice.PaymentStatus)},
		{"Fecha de Emisión:", formatDate(invoice.IssueDate)},
		{"Fecha de Vencimiento:", formatDate(invoice.DueDate)},
		{},
		{"Totales:"},
		{"Subtotal:", invoice.Subtotal},
		{"Total IVA:", invoice.TaxTotal},
		{"Total:", invoice.Total},
		{"Pagado:", invoice.TotalPaid},
		{"Pendiente:", invoice.RemainingAmount},
	}

	if err := writeSheet(f, sheetInvoice, invoiceRows); err != nil {
		return nil, err
	}
	if err := writeSheet(f, sheetSummary, summaryRows); err != nil {
		return nil, err
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeSheet(f *excelize.File, sheet string, rows [][]interface{}) error {
	for i, row := range rows {
		if len(row) == 0 {
			continue
		}
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		values := row
		if err := f.SetSheetRow(sheet, cell, &values); err != nil {
			return err
		}
	}
	return nil
}
