package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// PrintJobStatus represents the lifecycle state of a print job
type PrintJobStatus string

const (
	PrintJobPending PrintJobStatus = "pending"
	PrintJobPrinted PrintJobStatus = "printed"
	PrintJobFailed  PrintJobStatus = "failed"
)

func (s PrintJobStatus) String() string {
	return string(s)
}

func (s *PrintJobStatus) Scan(value interface{}) error {
	switch v := value.(type) {
	case string:
		*s = PrintJobStatus(v)
	case []byte:
		*s = PrintJobStatus(v)
	default:
		return fmt.Errorf("cannot scan %T into PrintJobStatus", value)
	}
	return nil
}

func (s PrintJobStatus) Value() (driver.Value, error) {
	return string(s), nil
}

// PrintType identifies which ticket a job's payload describes
type PrintType string

const (
	PrintTypeKitchenTicket       PrintType = "kitchen_ticket"
	PrintTypeKitchenTicketSector PrintType = "kitchen_ticket_sector"
	PrintTypeCustomerReceipt     PrintType = "customer_receipt"
	PrintTypeCancellationTicket  PrintType = "cancellation_ticket"
)

// JSONB stores raw JSON in a jsonb/text column while round-tripping
// cleanly through encoding/json (a bare named []byte would base64-encode).
type JSONB json.RawMessage

func (j JSONB) Value() (driver.Value, error) {
	if len(j) == 0 {
		return nil, nil
	}
	return string(j), nil
}

func (j *JSONB) Scan(value interface{}) error {
	switch v := value.(type) {
	case []byte:
		*j = append((*j)[0:0], v...)
	case string:
		*j = JSONB(v)
	case nil:
		*j = nil
	default:
		return fmt.Errorf("cannot scan %T into JSONB", value)
	}
	return nil
}

func (j JSONB) MarshalJSON() ([]byte, error) {
	if len(j) == 0 {
		return []byte("null"), nil
	}
	return j, nil
}

func (j *JSONB) UnmarshalJSON(data []byte) error {
	if j == nil {
		return errors.New("models.JSONB: UnmarshalJSON on nil pointer")
	}
	*j = append((*j)[0:0], data...)
	return nil
}

// PrintJob is one unit of print work, inserted by the backend when a
// domain event occurs and driven to a terminal status by the station.
// The backend table is the source of truth: the station only reads
// pending rows and writes printed/failed exactly once.
type PrintJob struct {
	ID           uint           `gorm:"primaryKey" json:"id"`
	TenantID     string         `gorm:"index" json:"tenant_id"`
	PrintType    PrintType      `gorm:"index;not null" json:"print_type"`
	Data         JSONB          `gorm:"type:jsonb" json:"data"`
	Status       PrintJobStatus `gorm:"index;default:pending" json:"status"`
	DeviceID     *string        `json:"device_id,omitempty"`
	ErrorMessage string         `json:"error_message,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

func (PrintJob) TableName() string {
	return "print_queue"
}

// DecodeData unmarshals the job payload into the ticket shape matching PrintType.
func (p *PrintJob) DecodeData(dest interface{}) error {
	if len(p.Data) == 0 {
		return fmt.Errorf("print job %d has no payload", p.ID)
	}
	if err := json.Unmarshal(p.Data, dest); err != nil {
		return fmt.Errorf("failed to decode %s payload for job %d: %w", p.PrintType, p.ID, err)
	}
	return nil
}

// Age returns how long ago the job was inserted, relative to now.
func (p *PrintJob) Age(now time.Time) time.Duration {
	return now.Sub(p.CreatedAt)
}
