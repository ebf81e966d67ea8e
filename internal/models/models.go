package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// DeliveryStatus is the lifecycle status of an invoice's goods.
type DeliveryStatus string

const (
	DeliveryNotReceived DeliveryStatus = "NOT_RECEIVED"
	DeliveryPending     DeliveryStatus = "PENDING_DELIVERY"
	DeliveryInProgress  DeliveryStatus = "IN_DELIVERY"
	DeliveryDelivered   DeliveryStatus = "DELIVERED"
	DeliveryReturned    DeliveryStatus = "RETURNED"
	DeliveryCancelled   DeliveryStatus = "CANCELLED"
)

// PaymentStatus is the settlement status of an invoice.
type PaymentStatus string

const (
	PaymentUnpaid  PaymentStatus = "UNPAID"
	PaymentPartial PaymentStatus = "PARTIALLY_PAID"
	PaymentPaid    PaymentStatus = "PAID"
)

// NoteStatus is the status of a delivery note (BL).
type NoteStatus string

const (
	NoteValidated           NoteStatus = "VALIDATED"
	NotePendingConfirmation NoteStatus = "PENDING_CONFIRMATION"
	NoteDelivered           NoteStatus = "DELIVERED"
)

// Role identifies the authority a user carries.
type Role string

const (
	RoleAdmin        Role = "ADMIN"
	RoleRecouvrement Role = "RECOUVREMENT"
	RoleCommercial   Role = "COMMERCIAL"
	RoleMagasinier   Role = "MAGASINIER"
)

// Depot represents a physical distribution depot
type Depot struct {
	ID        uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
	Name      string         `gorm:"not null" json:"name"`
	Code      string         `gorm:"not null;uniqueIndex" json:"code"`
}

// User represents an application user
type User struct {
	ID        uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
	Username  string         `gorm:"not null;uniqueIndex" json:"username"`
	Role      Role           `gorm:"not null" json:"role"`
	DepotID   *uuid.UUID     `gorm:"type:uuid" json:"depot_id"`
	Depot     *Depot         `gorm:"foreignKey:DepotID" json:"-"`
}

// Invoice represents a customer invoice
type Invoice struct {
	ID             uuid.UUID              `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt      time.Time              `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time              `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt      gorm.DeletedAt         `gorm:"index" json:"-"`
	Number         string                 `gorm:"not null;uniqueIndex" json:"number"`
	AccountNumber  string                 `gorm:"not null;index" json:"account_number"`
	DeliveryStatus DeliveryStatus         `gorm:"not null;default:'NOT_RECEIVED'" json:"delivery_status"`
	PaymentStatus  PaymentStatus          `gorm:"not null;default:'UNPAID'" json:"payment_status"`
	TotalAmount    decimal.Decimal        `gorm:"type:numeric(14,2);not null" json:"total_amount"`
	DeliveredAt    *time.Time             `json:"delivered_at"`
	IsUrgent       bool                   `gorm:"not null;default:false" json:"is_urgent"`
	DepotID        *uuid.UUID             `gorm:"type:uuid;index" json:"depot_id"`
	Depot          *Depot                 `gorm:"foreignKey:DepotID" json:"-"`
	Payments       []Payment              `gorm:"foreignKey:InvoiceID" json:"payments,omitempty"`
	DeliveryNotes  []DeliveryNote         `gorm:"foreignKey:InvoiceID" json:"delivery_notes,omitempty"`
	CustomSetting  *RecoveryCustomSetting `gorm:"foreignKey:InvoiceID" json:"custom_setting,omitempty"`
}

// ValidatedNotes returns the invoice's delivery notes that have been validated.
func (i *Invoice) ValidatedNotes() []DeliveryNote {
	var notes []DeliveryNote
	for _, n := range i.DeliveryNotes {
		if n.Status == NoteValidated {
			notes = append(notes, n)
		}
	}
	return notes
}

// DeliveryNote represents a bon de livraison attached to an invoice
type DeliveryNote struct {
	ID        uuid.UUID          `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt time.Time          `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time          `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt gorm.DeletedAt     `gorm:"index" json:"-"`
	InvoiceID uuid.UUID          `gorm:"type:uuid;not null;index" json:"invoice_id"`
	Status    NoteStatus         `gorm:"not null;default:'PENDING_CONFIRMATION'" json:"status"`
	Lines     []DeliveryNoteLine `gorm:"foreignKey:DeliveryNoteID" json:"lines,omitempty"`
}

// DeliveryNoteLine is a line item on a delivery note
type DeliveryNoteLine struct {
	ID             uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt      time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt      gorm.DeletedAt `gorm:"index" json:"-"`
	DeliveryNoteID uuid.UUID      `gorm:"type:uuid;not null;index" json:"delivery_note_id"`
	ProductRef     string         `gorm:"not null" json:"product_ref"`
	DeliveredQty   int            `gorm:"not null;default:0" json:"delivered_qty"`
	RemainingQty   int            `gorm:"not null;default:0" json:"remaining_qty"`
}

// Payment represents a payment recorded against an invoice
type Payment struct {
	ID        uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt gorm.DeletedAt  `gorm:"index" json:"-"`
	InvoiceID uuid.UUID       `gorm:"type:uuid;not null;index" json:"invoice_id"`
	Amount    decimal.Decimal `gorm:"type:numeric(14,2);not null" json:"amount"`
	PaidAt    time.Time       `gorm:"not null" json:"paid_at"`
}

// Root represents a branch of the account numbering scheme. Account numbers
// for the branch start with "411" followed by the root name.
type Root struct {
	ID        uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
	Name      string         `gorm:"not null;uniqueIndex" json:"name"`
}

// RecoveryDelaySetting is a configured urgency threshold in days. A nil
// RootID marks the global default; at most one global setting is active.
type RecoveryDelaySetting struct {
	ID        uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
	Days      int            `gorm:"not null" json:"days"`
	RootID    *uuid.UUID     `gorm:"type:uuid;uniqueIndex" json:"root_id"`
	Root      *Root          `gorm:"foreignKey:RootID" json:"root,omitempty"`
}

// IsGlobal reports whether the setting is the depot-wide default.
func (s *RecoveryDelaySetting) IsGlobal() bool {
	return s.RootID == nil
}

// RecoveryCustomSetting is a per-invoice override of the urgency threshold.
type RecoveryCustomSetting struct {
	ID        uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
	InvoiceID uuid.UUID      `gorm:"type:uuid;not null;uniqueIndex" json:"invoice_id"`
	Days      int            `gorm:"not null" json:"days"`
}

// Assignment maps a recouvrement user to an account-root pattern
type Assignment struct {
	ID        uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
	UserID    uuid.UUID      `gorm:"type:uuid;not null;index" json:"user_id"`
	Pattern   string         `gorm:"not null" json:"pattern"`
	Active    bool           `gorm:"not null;default:true" json:"active"`
	User      User           `gorm:"foreignKey:UserID" json:"-"`
}

// DepotAssignment maps a recouvrement user to a depot. Takes priority over
// pattern assignments for the same user.
type DepotAssignment struct {
	ID        uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
	UserID    uuid.UUID      `gorm:"type:uuid;not null;index" json:"user_id"`
	DepotID   uuid.UUID      `gorm:"type:uuid;not null;index" json:"depot_id"`
	Active    bool           `gorm:"not null;default:true" json:"active"`
	User      User           `gorm:"foreignKey:UserID" json:"-"`
	Depot     Depot          `gorm:"foreignKey:DepotID" json:"-"`
}

// SetupModels configures GORM models and runs migrations
func SetupModels(db *gorm.DB) error {
	err := db.AutoMigrate(
		&Depot{},
		&User{},
		&Invoice{},
		&DeliveryNote{},
		&DeliveryNoteLine{},
		&Payment{},
		&Root{},
		&RecoveryDelaySetting{},
		&RecoveryCustomSetting{},
		&Assignment{},
		&DepotAssignment{},
	)

	if err != nil {
		return errors.Wrap(err, "failed to run auto migrations")
	}

	return nil
}
