package escpos

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"PrintStation/app/models"
)

func sampleReceipt() models.CustomerReceiptData {
	return models.CustomerReceiptData{
		ReceiptType: models.ReceiptTypeSummary,
		Restaurant: models.RestaurantInfo{
			Name:    "Pizzaria do Bairro",
			Address: "Rua das Flores 123",
			Phone:   "11 98765-4321",
		},
		OrderNumber: "A1B2C3",
		OrderType:   "dine_in",
		TableNumber: "7",
		Items: []models.TicketItem{
			{Name: "Margherita", Quantity: 2, UnitPrice: 25, Total: 50},
		},
		Subtotal:       50,
		DiscountType:   "fixed",
		DiscountValue:  5,
		DiscountAmount: 5,
		ServicePercent: 10,
		ServiceAmount:  4.5,
		Total:          49.5,
		Payments: []models.ReceiptPayment{
			{Method: "cash", Amount: 30},
			{Method: "pix", Amount: 19.5},
		},
		Change:    0,
		CreatedAt: time.Date(2026, 3, 14, 21, 15, 0, 0, time.UTC),
	}
}

func receiptLines(t *testing.T, data models.CustomerReceiptData, opts Options) []string {
	t.Helper()
	return textLines(t, BuildCustomerReceipt(data, opts).Raw())
}

func lineWith(lines []string, left, right string) string {
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, left) && strings.HasSuffix(trimmed, right) {
			return line
		}
	}
	return ""
}

func TestBuildCustomerReceiptTotals(t *testing.T) {
	lines := receiptLines(t, sampleReceipt(), DefaultOptions())

	assert.NotEmpty(t, lineWith(lines, "Subtotal", "50.00"))
	assert.NotEmpty(t, lineWith(lines, "Desconto", "-5.00"))
	assert.NotEmpty(t, lineWith(lines, "Taxa de servico (10.00%)", "4.50"))
	assert.NotEmpty(t, lineWith(lines, "TOTAL", "49.50"))
	assert.NotEmpty(t, lineWith(lines, "Dinheiro", "30.00"))
	assert.NotEmpty(t, lineWith(lines, "PIX", "19.50"))

	// Change of zero must not emit a line
	assert.Empty(t, lineWith(lines, "Troco", ""))
}

func TestBuildCustomerReceiptChangeLine(t *testing.T) {
	data := sampleReceipt()
	data.Payments = []models.ReceiptPayment{{Method: "cash", Amount: 60}}
	data.Change = 10.5

	lines := receiptLines(t, data, DefaultOptions())
	assert.NotEmpty(t, lineWith(lines, "Troco", "10.50"))
}

func TestBuildCustomerReceiptPercentageDiscount(t *testing.T) {
	data := sampleReceipt()
	data.DiscountType = "percentage"
	data.DiscountValue = 10
	data.DiscountAmount = 5

	lines := receiptLines(t, data, DefaultOptions())
	assert.NotEmpty(t, lineWith(lines, "Desconto (10.00%)", "-5.00"))
}

func TestBuildCustomerReceiptSummaryWording(t *testing.T) {
	lines := receiptLines(t, sampleReceipt(), DefaultOptions())

	assert.True(t, containsLine(lines, "CONFERENCIA DE CONSUMO"))
	assert.True(t, containsLine(lines, "*** NAO E DOCUMENTO FISCAL ***"))
	assert.False(t, containsLine(lines, "COMPROVANTE DE VENDA"))
}

func TestBuildCustomerReceiptFiscalWording(t *testing.T) {
	data := sampleReceipt()
	data.ReceiptType = models.ReceiptTypeFiscal

	lines := receiptLines(t, data, DefaultOptions())
	assert.True(t, containsLine(lines, "COMPROVANTE DE VENDA"))
	assert.False(t, containsLine(lines, "CONFERENCIA DE CONSUMO"))
	assert.False(t, containsLine(lines, "*** NAO E DOCUMENTO FISCAL ***"))
}

func TestBuildCustomerReceiptFiscalHasQRSegment(t *testing.T) {
	data := sampleReceipt()
	data.ReceiptType = models.ReceiptTypeFiscal

	doc := BuildCustomerReceipt(data, DefaultOptions())
	var images int
	for _, seg := range doc.Segments {
		if seg.Type == SegmentImage {
			images++
		}
	}
	assert.Equal(t, 1, images, "fiscal receipt carries a QR bitmap")
}

func TestBuildCustomerReceiptSummaryHasNoImageSegments(t *testing.T) {
	doc := BuildCustomerReceipt(sampleReceipt(), DefaultOptions())
	for _, seg := range doc.Segments {
		assert.Equal(t, SegmentRaw, seg.Type)
	}
}

func TestBuildCustomerReceiptHeaderAndOrderInfo(t *testing.T) {
	lines := receiptLines(t, sampleReceipt(), DefaultOptions())

	assert.True(t, containsLine(lines, "Pizzaria do Bairro"))
	assert.True(t, containsLine(lines, "Rua das Flores 123"))
	assert.True(t, containsLine(lines, "Tel: 11 98765-4321"))
	assert.True(t, containsLine(lines, "Pedido #A1B2C3"))
	assert.True(t, containsLine(lines, "MESA 7"))
	assert.True(t, containsLine(lines, "Obrigado pela preferencia!"))
}

func TestBuildCustomerReceiptUnitPriceLineForMultiples(t *testing.T) {
	lines := receiptLines(t, sampleReceipt(), DefaultOptions())

	unit := findLine(t, lines, "2 x 25.00")
	assert.True(t, strings.HasPrefix(unit, "  "), "unit price line is indented")
}

func TestBuildCustomerReceiptSplitLine(t *testing.T) {
	data := sampleReceipt()
	data.Split = &models.BillSplit{Part: 2, Of: 3}

	lines := receiptLines(t, data, DefaultOptions())
	assert.True(t, containsLine(lines, "Divisao de conta: 2/3"))
}

func TestBuildCustomerReceiptInvalidLogoSkipped(t *testing.T) {
	data := sampleReceipt()
	data.Restaurant.Logo = "not-valid-base64!!!"

	doc := BuildCustomerReceipt(data, DefaultOptions())
	require.NotEmpty(t, doc.Segments)
	for _, seg := range doc.Segments {
		assert.Equal(t, SegmentRaw, seg.Type)
	}
	assert.True(t, containsLine(textLines(t, doc.Raw()), "Pizzaria do Bairro"))
}

func TestBuildCustomerReceiptDeterministic(t *testing.T) {
	data := sampleReceipt()
	opts := DefaultOptions()
	assert.Equal(t,
		BuildCustomerReceipt(data, opts).Raw(),
		BuildCustomerReceipt(data, opts).Raw())
}

func TestBuildCustomerReceiptZeroDiscountOmitted(t *testing.T) {
	data := sampleReceipt()
	data.DiscountAmount = 0
	data.ServiceAmount = 0
	data.Total = 50

	lines := receiptLines(t, data, DefaultOptions())
	assert.Empty(t, lineWith(lines, "Desconto", ""))
	assert.Empty(t, lineWith(lines, "Taxa de servico", ""))
	assert.NotEmpty(t, lineWith(lines, "TOTAL", "50.00"))
}
