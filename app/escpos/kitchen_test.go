package escpos

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"PrintStation/app/models"
)

func sampleKitchenTicket() models.KitchenTicketData {
	return models.KitchenTicketData{
		OrderNumber: "A1B2C3",
		OrderType:   "dine_in",
		TableNumber: "7",
		Items: []models.TicketItem{
			{
				Name:     "Margherita",
				Quantity: 2,
				Extras:   []string{"Borda: Catupiry"},
				Notes:    "sem cebola",
			},
		},
		CreatedAt: time.Date(2026, 3, 14, 19, 30, 0, 0, time.UTC),
	}
}

func containsLine(lines []string, want string) bool {
	for _, line := range lines {
		if strings.TrimSpace(line) == want {
			return true
		}
	}
	return false
}

func findLine(t *testing.T, lines []string, want string) string {
	t.Helper()
	for _, line := range lines {
		if strings.TrimSpace(line) == want {
			return line
		}
	}
	t.Fatalf("no line %q in %q", want, lines)
	return ""
}

func TestBuildKitchenTicketScenario(t *testing.T) {
	raw := BuildKitchenTicket(sampleKitchenTicket(), DefaultOptions())
	lines := textLines(t, raw)

	assert.True(t, containsLine(lines, "COZINHA"))
	assert.True(t, containsLine(lines, "PEDIDO #A1B2C3"))
	assert.True(t, containsLine(lines, "MESA 7"))
	assert.True(t, containsLine(lines, "2x Margherita"))

	extra := findLine(t, lines, "+ Catupiry")
	assert.True(t, strings.HasPrefix(extra, "  "), "extra line should be indented")
	note := findLine(t, lines, "OBS: sem cebola")
	assert.True(t, strings.HasPrefix(note, "  "), "note line should be indented")

	// Partial cut terminates the ticket
	assert.True(t, strings.HasSuffix(raw, string([]byte{GS, 'V', 66, 0})))
}

func TestBuildKitchenTicketDeterministic(t *testing.T) {
	data := sampleKitchenTicket()
	opts := DefaultOptions()
	assert.Equal(t, BuildKitchenTicket(data, opts), BuildKitchenTicket(data, opts))
}

func TestBuildKitchenTicketSectorHeading(t *testing.T) {
	data := sampleKitchenTicket()
	data.SectorName = "Forno"

	lines := textLines(t, BuildKitchenTicket(data, DefaultOptions()))
	assert.True(t, containsLine(lines, "FORNO"))
	assert.False(t, containsLine(lines, "COZINHA"))
}

func TestBuildKitchenTicketDuplicateMarker(t *testing.T) {
	data := sampleKitchenTicket()
	data.Duplicate = true

	lines := textLines(t, BuildKitchenTicket(data, DefaultOptions()))
	assert.True(t, containsLine(lines, "*** 2a VIA ***"))
}

func TestBuildKitchenTicketOrderTypes(t *testing.T) {
	tests := []struct {
		orderType string
		table     string
		want      string
	}{
		{"dine_in", "12", "MESA 12"},
		{"dine_in", "", "BALCAO"},
		{"takeout", "", "RETIRADA"},
		{"delivery", "", "ENTREGA"},
		{"drive_thru", "", "DRIVE_THRU"},
	}

	for _, tt := range tests {
		data := sampleKitchenTicket()
		data.OrderType = tt.orderType
		data.TableNumber = tt.table
		lines := textLines(t, BuildKitchenTicket(data, DefaultOptions()))
		assert.True(t, containsLine(lines, tt.want), "order type %s", tt.orderType)
	}
}

func TestBuildKitchenTicketSubItemsOrderedByIndex(t *testing.T) {
	data := sampleKitchenTicket()
	data.Items = []models.TicketItem{
		{
			Name:     "Pizza Meio a Meio",
			Quantity: 1,
			SubItems: []models.TicketSubItem{
				{SubItemIndex: 1, Name: "Calabresa", Notes: "bem passada"},
				{SubItemIndex: 0, Name: "Quatro Queijos", Extras: []string{"Borda recheada"}},
			},
		},
	}

	lines := textLines(t, BuildKitchenTicket(data, DefaultOptions()))

	var first, second int
	for i, line := range lines {
		if strings.TrimSpace(line) == "1) Quatro Queijos" {
			first = i
		}
		if strings.TrimSpace(line) == "2) Calabresa" {
			second = i
		}
	}
	require.NotZero(t, first)
	require.NotZero(t, second)
	assert.Less(t, first, second, "sub-items must be ordered by index")

	sub := findLine(t, lines, "+ Borda recheada")
	assert.True(t, strings.HasPrefix(sub, "    "), "sub-item extras indented deeper")
	assert.True(t, containsLine(lines, "OBS: bem passada"))
}

func TestBuildKitchenTicketOrderNotes(t *testing.T) {
	data := sampleKitchenTicket()
	data.Notes = "Entregar tudo junto"

	lines := textLines(t, BuildKitchenTicket(data, DefaultOptions()))
	assert.True(t, containsLine(lines, "OBS:"))
	assert.True(t, containsLine(lines, "Entregar tudo junto"))
}

func TestBuildKitchenTicketNarrowPaperLineWidth(t *testing.T) {
	data := sampleKitchenTicket()
	data.Items = append(data.Items, models.TicketItem{
		Name:     "Hamburguer artesanal duplo com bacon e queijo cheddar derretido",
		Quantity: 1,
		Notes:    "ponto da carne bem passado, sem maionese na montagem do lanche",
	})

	opts := Options{PaperWidth: Paper58mm, FontSize: FontNormal, AutoCut: true}
	for _, line := range textLines(t, BuildKitchenTicket(data, opts)) {
		assert.LessOrEqual(t, len([]rune(line)), 32, "line %q exceeds 58mm width", line)
	}
}

func TestBuildKitchenTicketNoCutWhenDisabled(t *testing.T) {
	opts := DefaultOptions()
	opts.AutoCut = false

	raw := BuildKitchenTicket(sampleKitchenTicket(), opts)
	assert.NotContains(t, raw, string([]byte{GS, 'V', 66, 0}))
	assert.True(t, strings.HasSuffix(raw, strings.Repeat(string(NL), 3)))
}

func TestBuildCancellationTicket(t *testing.T) {
	data := models.CancellationTicketData{
		OrderNumber: "A1B2C3",
		TableNumber: "7",
		Reason:      "Cliente desistiu",
		Items: []models.TicketItem{
			{Name: "Margherita", Quantity: 2, Variation: "Grande"},
		},
		CancelledAt: time.Date(2026, 3, 14, 20, 0, 0, 0, time.UTC),
	}

	raw := BuildCancellationTicket(data, DefaultOptions())
	lines := textLines(t, raw)

	assert.True(t, containsLine(lines, "CANCELAMENTO"))
	assert.True(t, containsLine(lines, "PEDIDO #A1B2C3"))
	assert.True(t, containsLine(lines, "MESA 7"))
	assert.True(t, containsLine(lines, "ITENS CANCELADOS"))
	assert.True(t, containsLine(lines, "2x Margherita"))
	assert.True(t, containsLine(lines, "(Grande)"))
	assert.True(t, containsLine(lines, "MOTIVO:"))
	assert.True(t, containsLine(lines, "Cliente desistiu"))
	assert.True(t, strings.HasSuffix(raw, string([]byte{GS, 'V', 66, 0})))
}
