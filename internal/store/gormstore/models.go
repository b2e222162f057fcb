package gormstore

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// WalletAccount anchors per-user locking for ledger appends.
type WalletAccount struct {
	UserID    string    `gorm:"primaryKey"`
	CreatedAt time.Time `gorm:"not null"`
}

func (WalletAccount) TableName() string { return "wallet_accounts" }

// LedgerEntry mirrors the ledger_entries table. Seq is the append order
// within the table; EntryID is the identifier exposed to callers.
type LedgerEntry struct {
	Seq            int64          `gorm:"primaryKey;autoIncrement"`
	EntryID        string         `gorm:"type:uuid;not null;uniqueIndex"`
	UserID         string         `gorm:"not null;index;index:uniq_entry_idem,unique,priority:1"`
	Kind           string         `gorm:"not null"`
	AmountIn       int64          `gorm:"not null"`
	AmountOut      int64          `gorm:"not null"`
	BalanceBefore  int64          `gorm:"not null"`
	BalanceAfter   int64          `gorm:"not null"`
	RefKind        *string        `gorm:""`
	RefID          *string        `gorm:"index"`
	IdempotencyKey string         `gorm:"not null;index:uniq_entry_idem,unique,priority:2"`
	Metadata       datatypes.JSON `gorm:"not null"`
	CreatedAt      time.Time      `gorm:"not null"`
}

func (LedgerEntry) TableName() string { return "ledger_entries" }

func (entry *LedgerEntry) BeforeCreate(tx *gorm.DB) error {
	if entry.EntryID == "" {
		entry.EntryID = uuid.NewString()
	}
	return nil
}

// Listing mirrors the slice of the listings table the core owns.
type Listing struct {
	ListingID string    `gorm:"type:uuid;primaryKey"`
	OwnerID   string    `gorm:"not null;index"`
	Status    string    `gorm:"not null;index"`
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

func (Listing) TableName() string { return "listings" }

func (listing *Listing) BeforeCreate(tx *gorm.DB) error {
	if listing.ListingID == "" {
		listing.ListingID = uuid.NewString()
	}
	return nil
}

// Booking mirrors the bookings table. The partial unique index enforces the
// one-active-booking-per-listing invariant at the storage layer.
type Booking struct {
	BookingID    string     `gorm:"type:uuid;primaryKey"`
	ListingID    string     `gorm:"not null;index:uniq_active_booking,unique,where:status IN ('pending'\\,'confirmed')"`
	UserID       string     `gorm:"not null;index"`
	DepositCents int64      `gorm:"not null"`
	Status       string     `gorm:"not null;index:idx_bookings_status_expires,priority:1"`
	ExpiresAt    time.Time  `gorm:"not null;index:idx_bookings_status_expires,priority:2"`
	ConfirmedAt  *time.Time `gorm:""`
	CreatedAt    time.Time  `gorm:"not null"`
	UpdatedAt    time.Time  `gorm:"not null"`
}

func (Booking) TableName() string { return "bookings" }

func (booking *Booking) BeforeCreate(tx *gorm.DB) error {
	if booking.BookingID == "" {
		booking.BookingID = uuid.NewString()
	}
	return nil
}
