package models

import "time"

// PrintSector is a named kitchen station configured by the tenant,
// mapping an item's print_sector_id to a physical printer. Read-only
// from the station's perspective.
type PrintSector struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	TenantID    string    `gorm:"index" json:"tenant_id"`
	Name        string    `gorm:"not null" json:"name"`
	PrinterName string    `json:"printer_name"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (PrintSector) TableName() string {
	return "print_sectors"
}
