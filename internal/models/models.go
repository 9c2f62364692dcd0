package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type ItemStatus string

const (
	ItemStatusAvailable   ItemStatus = "available"
	ItemStatusOnLoan      ItemStatus = "on_loan"
	ItemStatusOnHoldShelf ItemStatus = "on_hold_shelf"
	ItemStatusInTransit   ItemStatus = "in_transit"
	ItemStatusMissing     ItemStatus = "missing"
	ItemStatusDamaged     ItemStatus = "damaged"
	ItemStatusWithdrawn   ItemStatus = "withdrawn"
	ItemStatusProcessing  ItemStatus = "processing"
)

type LoanStatus string

const (
	LoanStatusActive          LoanStatus = "active"
	LoanStatusReturned        LoanStatus = "returned"
	LoanStatusOverdueReturned LoanStatus = "overdue_returned"
	LoanStatusLost            LoanStatus = "lost"
)

type HoldStatus string

const (
	HoldStatusWaiting   HoldStatus = "waiting"
	HoldStatusReady     HoldStatus = "ready"
	HoldStatusFulfilled HoldStatus = "fulfilled"
	HoldStatusCancelled HoldStatus = "cancelled"
	HoldStatusExpired   HoldStatus = "expired"
)

type RequestStatus string

const (
	RequestStatusPending   RequestStatus = "pending"
	RequestStatusApproved  RequestStatus = "approved"
	RequestStatusCompleted RequestStatus = "completed"
	RequestStatusCancelled RequestStatus = "cancelled"
	RequestStatusDenied    RequestStatus = "denied"
)

type TransitStatus string

const (
	TransitStatusInTransit TransitStatus = "in_transit"
	TransitStatusReceived  TransitStatus = "received"
)

type NotificationType string

const (
	NotificationCheckout      NotificationType = "checkout"
	NotificationCheckin       NotificationType = "checkin"
	NotificationDueSoon       NotificationType = "due_soon"
	NotificationOverdue       NotificationType = "overdue"
	NotificationHoldReady     NotificationType = "hold_ready"
	NotificationHoldPlaced    NotificationType = "hold_placed"
	NotificationHoldExpiring  NotificationType = "hold_expiring"
	NotificationHoldCancelled NotificationType = "hold_cancelled"
	NotificationRenewal       NotificationType = "renewal"
	NotificationFineAdded     NotificationType = "fine_added"
)

// Base gives every table a client-generated UUID primary key so the same
// schema works on Postgres and on the SQLite test database.
type Base struct {
	ID uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
}

func (b *Base) BeforeCreate(tx *gorm.DB) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	return nil
}

type Location struct {
	Base
	Code string `gorm:"size:20;not null;uniqueIndex" json:"code"`
	Name string `gorm:"size:100;not null" json:"name"`
}

type Publication struct {
	Base
	Title          string `gorm:"size:500;not null" json:"title"`
	ISBN           string `gorm:"size:20;index" json:"isbn"`
	NormalizedISBN string `gorm:"size:20;index" json:"normalized_isbn"`
}

// NormalizeISBN strips hyphens and spaces and upper-cases the check digit.
func NormalizeISBN(isbn string) string {
	r := strings.NewReplacer("-", "", " ", "")
	return strings.ToUpper(r.Replace(strings.TrimSpace(isbn)))
}

func (p *Publication) BeforeSave(tx *gorm.DB) error {
	p.NormalizedISBN = NormalizeISBN(p.ISBN)
	return nil
}

type Borrower struct {
	Base
	Username          string  `gorm:"size:150;not null;uniqueIndex" json:"username"`
	LibraryCardNumber *string `gorm:"size:50;uniqueIndex" json:"library_card_number"`
	Email             string  `gorm:"size:254" json:"email"`
	FullName          string  `gorm:"size:255" json:"full_name"`
	IsBlocked         bool    `gorm:"not null;default:false" json:"is_blocked"`
	BlockReason       string  `gorm:"size:255" json:"block_reason"`
	MaxItemsAllowed   int     `gorm:"not null;default:5" json:"max_items_allowed"`
}

type Item struct {
	Base
	PublicationID  uuid.UUID   `gorm:"type:uuid;not null;index" json:"publication_id"`
	Publication    Publication `gorm:"constraint:OnUpdate:CASCADE,OnDelete:RESTRICT;" json:"-"`
	LocationID     uuid.UUID   `gorm:"type:uuid;not null;index" json:"location_id"`
	Location       Location    `gorm:"constraint:OnUpdate:CASCADE,OnDelete:RESTRICT;" json:"-"`
	Barcode        string      `gorm:"size:100;not null;uniqueIndex" json:"barcode"`
	Status         ItemStatus  `gorm:"size:20;not null;index" json:"status"`
	ClaimID        *uuid.UUID  `gorm:"type:uuid;index" json:"claim_id"`
	TimesBorrowed  int         `gorm:"not null;default:0" json:"times_borrowed"`
	LastBorrowedAt *time.Time  `json:"last_borrowed_at"`
}

type Loan struct {
	Base
	ItemID          uuid.UUID  `gorm:"type:uuid;not null;index" json:"item_id"`
	Item            Item       `gorm:"constraint:OnUpdate:CASCADE,OnDelete:RESTRICT;" json:"-"`
	BorrowerID      uuid.UUID  `gorm:"type:uuid;not null;index" json:"borrower_id"`
	Borrower        Borrower   `gorm:"constraint:OnUpdate:CASCADE,OnDelete:RESTRICT;" json:"-"`
	CheckoutAt      time.Time  `gorm:"not null" json:"checkout_date"`
	DueDate         time.Time  `gorm:"not null;index" json:"due_date"`
	ReturnedAt      *time.Time `json:"returned_at"`
	RenewalCount    int        `gorm:"not null;default:0" json:"renewal_count"`
	Status          LoanStatus `gorm:"size:20;not null;index" json:"status"`
	FineAmount      int        `gorm:"not null;default:0" json:"fine_amount"`
	CheckoutStaffID *uuid.UUID `gorm:"type:uuid" json:"checkout_staff_id"`
	ReturnStaffID   *uuid.UUID `gorm:"type:uuid" json:"return_staff_id"`
	Notes           string     `json:"notes"`
}

type Hold struct {
	Base
	PublicationID    uuid.UUID   `gorm:"type:uuid;not null;index" json:"publication_id"`
	Publication      Publication `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"-"`
	BorrowerID       uuid.UUID   `gorm:"type:uuid;not null;index" json:"borrower_id"`
	Borrower         Borrower    `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"-"`
	PickupLocationID uuid.UUID   `gorm:"type:uuid;not null" json:"pickup_location_id"`
	HoldDate         time.Time   `gorm:"not null;index" json:"hold_date"`
	Status           HoldStatus  `gorm:"size:20;not null;index" json:"status"`
	ReservedItemID   *uuid.UUID  `gorm:"type:uuid" json:"reserved_item_id"`
	ReadyAt          *time.Time  `json:"ready_date"`
	ExpiresAt        *time.Time  `json:"expiry_date"`
	LoanID           *uuid.UUID  `gorm:"type:uuid" json:"loan_id"`
	Notes            string      `json:"notes"`

	// QueuePosition is derived on read and never stored.
	QueuePosition int `gorm:"-" json:"queue_position,omitempty"`
}

type CheckoutRequest struct {
	Base
	PublicationID    uuid.UUID     `gorm:"type:uuid;not null;index" json:"publication_id"`
	Publication      Publication   `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"-"`
	BorrowerID       uuid.UUID     `gorm:"type:uuid;not null;index" json:"borrower_id"`
	Borrower         Borrower      `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"-"`
	RequestDate      time.Time     `gorm:"not null" json:"request_date"`
	Status           RequestStatus `gorm:"size:20;not null;index" json:"status"`
	ReservedItemID   *uuid.UUID    `gorm:"type:uuid" json:"reserved_item_id"`
	LoanID           *uuid.UUID    `gorm:"type:uuid" json:"loan_id"`
	PickupLocationID *uuid.UUID    `gorm:"type:uuid" json:"pickup_location_id"`
	PickupBy         *time.Time    `json:"pickup_by_date"`
	ReviewedByID     *uuid.UUID    `gorm:"type:uuid" json:"reviewed_by"`
	ReviewedAt       *time.Time    `json:"review_date"`
	StaffNotes       string        `json:"staff_notes"`
	Notes            string        `json:"notes"`
}

type InTransit struct {
	Base
	ItemID         uuid.UUID     `gorm:"type:uuid;not null;index" json:"item_id"`
	Item           Item          `gorm:"constraint:OnUpdate:CASCADE,OnDelete:RESTRICT;" json:"-"`
	FromLocationID uuid.UUID     `gorm:"type:uuid;not null" json:"from_location_id"`
	ToLocationID   uuid.UUID     `gorm:"type:uuid;not null" json:"to_location_id"`
	SentAt         time.Time     `gorm:"not null" json:"send_date"`
	ReceivedAt     *time.Time    `json:"receive_date"`
	Status         TransitStatus `gorm:"size:20;not null;index" json:"status"`
	Notes          string        `json:"notes"`
}

type Notification struct {
	Base
	BorrowerID  uuid.UUID        `gorm:"type:uuid;not null;index" json:"borrower_id"`
	Borrower    Borrower         `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"-"`
	Type        NotificationType `gorm:"size:20;not null;index" json:"notification_type"`
	Title       string           `gorm:"size:200;not null" json:"title"`
	Message     string           `gorm:"not null" json:"message"`
	LoanID      *uuid.UUID       `gorm:"type:uuid;index" json:"loan_id"`
	HoldID      *uuid.UUID       `gorm:"type:uuid;index" json:"hold_id"`
	ActionURL   string           `gorm:"size:500" json:"action_url"`
	CreatedAt   time.Time        `gorm:"not null;index" json:"created_date"`
	IsRead      bool             `gorm:"not null;default:false" json:"is_read"`
	ReadAt      *time.Time       `json:"read_date"`
	EmailSent   bool             `gorm:"not null;default:false;index" json:"email_sent"`
	EmailSentAt *time.Time       `json:"email_sent_date"`
	EmailError  string           `json:"email_error"`
}

// All lists every table in dependency order for AutoMigrate.
func All() []interface{} {
	return []interface{}{
		&Location{},
		&Publication{},
		&Borrower{},
		&Item{},
		&Loan{},
		&Hold{},
		&CheckoutRequest{},
		&InTransit{},
		&Notification{},
	}
}
