package models

import "time"

// TicketSubItem is one flavor/half of a configurable multi-flavor product,
// rendered as an indented block under its parent item.
type TicketSubItem struct {
	SubItemIndex int      `json:"sub_item_index"`
	Name         string   `json:"name"`
	Extras       []string `json:"extras,omitempty"`
	Notes        string   `json:"notes,omitempty"`
}

// TicketItem is one ordered line item as it appears on a ticket.
// Price fields are only populated on customer receipts.
type TicketItem struct {
	Name          string          `json:"name"`
	Quantity      int             `json:"quantity"`
	Variation     string          `json:"variation,omitempty"`
	Extras        []string        `json:"extras,omitempty"`
	Notes         string          `json:"notes,omitempty"`
	PrintSectorID *uint           `json:"print_sector_id,omitempty"`
	SubItems      []TicketSubItem `json:"sub_items,omitempty"`
	UnitPrice     float64         `json:"unit_price,omitempty"`
	Total         float64         `json:"total,omitempty"`
}

// KitchenTicketData is the payload of kitchen_ticket and kitchen_ticket_sector jobs.
type KitchenTicketData struct {
	OrderNumber  string       `json:"order_number"`
	OrderType    string       `json:"order_type"` // "dine_in", "takeout", "delivery"
	TableNumber  string       `json:"table_number,omitempty"`
	CustomerName string       `json:"customer_name,omitempty"`
	Items        []TicketItem `json:"items"`
	Notes        string       `json:"notes,omitempty"`
	SectorName   string       `json:"sector_name,omitempty"`
	Duplicate    bool         `json:"duplicate,omitempty"`
	CreatedAt    time.Time    `json:"created_at"`
}

// RestaurantInfo is the tenant identity block printed on customer receipts.
type RestaurantInfo struct {
	Name    string `json:"name"`
	Address string `json:"address,omitempty"`
	Phone   string `json:"phone,omitempty"`
	TaxID   string `json:"tax_id,omitempty"`
	Logo    string `json:"logo,omitempty"` // base64 encoded image
}

// ReceiptPayment is one payment applied to the order.
type ReceiptPayment struct {
	Method string  `json:"method"` // "cash", "card", "pix"
	Amount float64 `json:"amount"`
}

// BillSplit identifies which part of a split bill this receipt covers.
type BillSplit struct {
	Part int `json:"part"`
	Of   int `json:"of"`
}

// Receipt type discriminator: "summary" is the pre-payment conference
// copy, "fiscal" the post-payment customer receipt.
const (
	ReceiptTypeSummary = "summary"
	ReceiptTypeFiscal  = "fiscal"
)

// CustomerReceiptData is the payload of customer_receipt jobs.
type CustomerReceiptData struct {
	ReceiptType    string         `json:"receipt_type"`
	Restaurant     RestaurantInfo `json:"restaurant"`
	OrderNumber    string         `json:"order_number"`
	OrderType      string         `json:"order_type"`
	TableNumber    string         `json:"table_number,omitempty"`
	CustomerName   string         `json:"customer_name,omitempty"`
	Items          []TicketItem   `json:"items"`
	Subtotal       float64        `json:"subtotal"`
	DiscountType   string         `json:"discount_type,omitempty"` // "percentage", "fixed"
	DiscountValue  float64        `json:"discount_value,omitempty"`
	DiscountAmount float64        `json:"discount_amount,omitempty"`
	ServicePercent float64        `json:"service_percent,omitempty"`
	ServiceAmount  float64        `json:"service_amount,omitempty"`
	Total          float64        `json:"total"`
	Payments       []ReceiptPayment `json:"payments,omitempty"`
	Change         float64        `json:"change,omitempty"`
	Split          *BillSplit     `json:"split,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
}

// CancellationTicketData is the payload of cancellation_ticket jobs: the
// reason plus a snapshot of the cancelled items at cancellation time.
type CancellationTicketData struct {
	OrderNumber string       `json:"order_number"`
	TableNumber string       `json:"table_number,omitempty"`
	Reason      string       `json:"reason"`
	Items       []TicketItem `json:"items"`
	CancelledAt time.Time    `json:"cancelled_at"`
}
