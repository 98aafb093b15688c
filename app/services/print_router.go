package services

import (
	"context"
	"fmt"

	"PrintStation/app/agent"
	"PrintStation/app/escpos"
	"PrintStation/app/models"
)

// Transport is the session to the local print-spooling agent. Satisfied
// by agent.Client; substituted in tests.
type Transport interface {
	Connected() bool
	Submit(ctx context.Context, printerName string, doc *escpos.Document, mode agent.SubmitMode) error
	OpenDrawer(ctx context.Context, printerName string) error
}

// DispatchConfig is the configuration snapshot one print attempt runs
// under. Built once per attempt so concurrent settings changes cannot
// produce inconsistent reads halfway through a dispatch.
type DispatchConfig struct {
	KitchenPrinter      string
	CashierPrinter      string
	Options             escpos.Options
	DuplicateKitchen    bool
	OpenDrawerOnReceipt bool
	Sectors             []models.PrintSector
}

// PrintRouter decides which physical printers receive which items and
// drives the formatter plus transport per destination.
type PrintRouter struct {
	transport Transport
	logger    *LoggerService
}

// NewPrintRouter creates a router over the given transport.
func NewPrintRouter(transport Transport, logger *LoggerService) *PrintRouter {
	return &PrintRouter{transport: transport, logger: logger}
}

// PartitionItems splits items into the implicit default bucket and one
// bucket per referenced sector id. Every item lands in exactly one
// bucket; relative order inside a bucket is preserved.
func PartitionItems(items []models.TicketItem) ([]models.TicketItem, map[uint][]models.TicketItem, []uint) {
	var defaults []models.TicketItem
	sectored := make(map[uint][]models.TicketItem)
	var order []uint

	for _, item := range items {
		if item.PrintSectorID == nil {
			defaults = append(defaults, item)
			continue
		}
		id := *item.PrintSectorID
		if _, seen := sectored[id]; !seen {
			order = append(order, id)
		}
		sectored[id] = append(sectored[id], item)
	}
	return defaults, sectored, order
}

// DispatchKitchenTicket routes the ticket's items to their sector
// printers and the default kitchen printer. Buckets without a usable
// printer are skipped; a transport error aborts the remaining buckets
// and is returned to the caller.
func (r *PrintRouter) DispatchKitchenTicket(ctx context.Context, data models.KitchenTicketData, cfg DispatchConfig) error {
	defaults, sectored, order := PartitionItems(data.Items)

	type destination struct {
		printer    string
		sectorName string
		items      []models.TicketItem
	}
	var destinations []destination

	if len(defaults) > 0 {
		if cfg.KitchenPrinter == "" {
			r.logger.LogWarning("No kitchen printer configured, skipping default bucket",
				fmt.Sprintf("order=%s items=%d", data.OrderNumber, len(defaults)))
		} else {
			destinations = append(destinations, destination{printer: cfg.KitchenPrinter, items: defaults})
		}
	}

	for _, sectorID := range order {
		items := sectored[sectorID]
		sector := findSector(cfg.Sectors, sectorID)

		printer := cfg.KitchenPrinter
		sectorName := ""
		if sector != nil {
			sectorName = sector.Name
			if sector.PrinterName != "" {
				printer = sector.PrinterName
			}
		}
		if printer == "" {
			r.logger.LogWarning("No printer resolvable for sector, skipping",
				fmt.Sprintf("order=%s sector_id=%d items=%d", data.OrderNumber, sectorID, len(items)))
			continue
		}
		destinations = append(destinations, destination{printer: printer, sectorName: sectorName, items: items})
	}

	// Destinations are dispatched sequentially: a later sector is not
	// submitted until the previous submission settled.
	for _, dest := range destinations {
		ticket := data
		ticket.Items = dest.items
		ticket.SectorName = dest.sectorName

		payload := escpos.BuildKitchenTicket(ticket, cfg.Options)
		doc := &escpos.Document{Segments: []escpos.Segment{{Type: escpos.SegmentRaw, Data: payload}}}

		if err := r.transport.Submit(ctx, dest.printer, doc, agent.ModeRaw); err != nil {
			return fmt.Errorf("kitchen ticket submission to %s failed: %w", dest.printer, err)
		}
		if data.Duplicate || cfg.DuplicateKitchen {
			if err := r.transport.Submit(ctx, dest.printer, doc, agent.ModeRaw); err != nil {
				return fmt.Errorf("kitchen ticket duplicate to %s failed: %w", dest.printer, err)
			}
		}
	}

	return nil
}

func findSector(sectors []models.PrintSector, id uint) *models.PrintSector {
	for i := range sectors {
		if sectors[i].ID == id {
			return &sectors[i]
		}
	}
	return nil
}

// DispatchCancellationTicket prints the cancellation notice on the
// default kitchen printer.
func (r *PrintRouter) DispatchCancellationTicket(ctx context.Context, data models.CancellationTicketData, cfg DispatchConfig) error {
	if cfg.KitchenPrinter == "" {
		r.logger.LogWarning("No kitchen printer configured, skipping cancellation ticket",
			"order="+data.OrderNumber)
		return nil
	}

	payload := escpos.BuildCancellationTicket(data, cfg.Options)
	doc := &escpos.Document{Segments: []escpos.Segment{{Type: escpos.SegmentRaw, Data: payload}}}

	if err := r.transport.Submit(ctx, cfg.KitchenPrinter, doc, agent.ModeRaw); err != nil {
		return fmt.Errorf("cancellation ticket submission failed: %w", err)
	}
	return nil
}

// DispatchCustomerReceipt prints the receipt on the cashier printer in
// structured mode so logo and QR bitmaps reach the agent as segments.
// The drawer kick after a fiscal receipt is best-effort.
func (r *PrintRouter) DispatchCustomerReceipt(ctx context.Context, data models.CustomerReceiptData, cfg DispatchConfig) error {
	if cfg.CashierPrinter == "" {
		r.logger.LogWarning("No cashier printer configured, skipping receipt",
			"order="+data.OrderNumber)
		return nil
	}

	doc := escpos.BuildCustomerReceipt(data, cfg.Options)
	if err := r.transport.Submit(ctx, cfg.CashierPrinter, doc, agent.ModeStructured); err != nil {
		return fmt.Errorf("receipt submission failed: %w", err)
	}

	if cfg.OpenDrawerOnReceipt && data.ReceiptType == models.ReceiptTypeFiscal {
		if err := r.transport.OpenDrawer(ctx, cfg.CashierPrinter); err != nil {
			r.logger.LogError("Cash drawer kick failed", err, "order="+data.OrderNumber)
		}
	}

	return nil
}
