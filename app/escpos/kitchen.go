package escpos

import (
	"fmt"
	"sort"
	"strings"

	"PrintStation/app/models"
)

// extraLabel drops the modifier-group prefix ("Borda: Catupiry" prints
// as "Catupiry"); the group name is a selection aid, not kitchen info.
func extraLabel(extra string) string {
	if idx := strings.Index(extra, ": "); idx != -1 {
		return extra[idx+2:]
	}
	return extra
}

// Order type labels printed on ticket headers.
func orderTypeLabel(orderType, tableNumber string) string {
	switch orderType {
	case "dine_in":
		if tableNumber != "" {
			return "MESA " + tableNumber
		}
		return "BALCAO"
	case "takeout":
		return "RETIRADA"
	case "delivery":
		return "ENTREGA"
	default:
		return strings.ToUpper(orderType)
	}
}

// BuildKitchenTicket renders a kitchen ticket. The heading is the
// sector name when the ticket is sector-scoped, a generic kitchen
// heading otherwise.
func BuildKitchenTicket(data models.KitchenTicketData, opts Options) string {
	b := NewBuilder(opts)

	heading := "COZINHA"
	if data.SectorName != "" {
		heading = strings.ToUpper(data.SectorName)
	}

	b.SetAlign("center")
	b.SetEmphasize(true)
	b.SetSize(2, 2)
	b.WriteLine(heading)
	b.SetSize(1, 1)
	b.SetEmphasize(false)
	if data.Duplicate {
		b.WriteLine("*** 2a VIA ***")
	}
	b.LineFeed()

	b.SetAlign("left")
	b.Separator()
	b.SetEmphasize(true)
	b.WriteLine("PEDIDO #" + data.OrderNumber)
	b.SetEmphasize(false)
	b.WriteLine("Hora: " + data.CreatedAt.Format("15:04:05"))

	b.SetEmphasize(true)
	b.SetSize(1, 2)
	b.WriteLine(orderTypeLabel(data.OrderType, data.TableNumber))
	b.SetSize(1, 1)
	b.SetEmphasize(false)
	if data.CustomerName != "" {
		b.WriteLine("Cliente: " + data.CustomerName)
	}

	b.Separator()
	for _, item := range data.Items {
		writeKitchenItem(b, item)
	}

	if data.Notes != "" {
		b.Separator()
		b.SetEmphasize(true)
		b.WriteLine("OBS:")
		b.SetEmphasize(false)
		b.WriteLine(data.Notes)
	}

	b.Finish()
	return b.String()
}

func writeKitchenItem(b *Builder, item models.TicketItem) {
	b.SetEmphasize(true)
	b.WriteLine(fmt.Sprintf("%dx %s", item.Quantity, item.Name))
	b.SetEmphasize(false)

	if item.Variation != "" {
		b.WriteIndentedLine(2, "("+item.Variation+")")
	}
	for _, extra := range item.Extras {
		b.WriteIndentedLine(2, "+ "+extraLabel(extra))
	}
	if item.Notes != "" {
		b.WriteIndentedLine(2, "OBS: "+item.Notes)
	}

	// Multi-flavor units, one indented block each, by unit index
	subItems := make([]models.TicketSubItem, len(item.SubItems))
	copy(subItems, item.SubItems)
	sort.SliceStable(subItems, func(i, j int) bool {
		return subItems[i].SubItemIndex < subItems[j].SubItemIndex
	})
	for _, sub := range subItems {
		b.WriteIndentedLine(2, fmt.Sprintf("%d) %s", sub.SubItemIndex+1, sub.Name))
		for _, extra := range sub.Extras {
			b.WriteIndentedLine(4, "+ "+extraLabel(extra))
		}
		if sub.Notes != "" {
			b.WriteIndentedLine(4, "OBS: "+sub.Notes)
		}
	}

	b.LineFeed()
}

// BuildCancellationTicket renders the cancellation notice with the
// snapshot of items removed from the kitchen.
func BuildCancellationTicket(data models.CancellationTicketData, opts Options) string {
	b := NewBuilder(opts)

	b.SetAlign("center")
	b.SetEmphasize(true)
	b.SetSize(2, 2)
	b.WriteLine("CANCELAMENTO")
	b.SetSize(1, 1)
	b.SetEmphasize(false)
	b.LineFeed()

	b.SetAlign("left")
	b.Separator()
	b.SetEmphasize(true)
	b.WriteLine("PEDIDO #" + data.OrderNumber)
	b.SetEmphasize(false)
	if data.TableNumber != "" {
		b.WriteLine("MESA " + data.TableNumber)
	}
	b.WriteLine("Hora: " + data.CancelledAt.Format("15:04:05"))

	b.Separator()
	b.SetEmphasize(true)
	b.WriteLine("ITENS CANCELADOS")
	b.SetEmphasize(false)
	for _, item := range data.Items {
		b.WriteLine(fmt.Sprintf("%dx %s", item.Quantity, item.Name))
		if item.Variation != "" {
			b.WriteIndentedLine(2, "("+item.Variation+")")
		}
	}

	if data.Reason != "" {
		b.Separator()
		b.SetEmphasize(true)
		b.WriteLine("MOTIVO:")
		b.SetEmphasize(false)
		b.WriteLine(data.Reason)
	}

	b.Finish()
	return b.String()
}
