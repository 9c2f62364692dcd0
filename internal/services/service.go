package services

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"circulation/internal/models"
	"circulation/internal/notify"
	"circulation/internal/repositories"
)

// Policy holds the circulation rules that vary per library.
type Policy struct {
	LoanPeriodDays    int
	RenewalLimit      int
	HoldPickupDays    int
	RequestPickupDays int
	FinePerDay        int
}

func DefaultPolicy() Policy {
	return Policy{
		LoanPeriodDays:    14,
		RenewalLimit:      2,
		HoldPickupDays:    7,
		RequestPickupDays: 3,
		FinePerDay:        10,
	}
}

// Notifier receives events after the transaction that caused them commits.
// Implementations must not block the caller on delivery.
type Notifier interface {
	Notify(ctx context.Context, ev notify.Event)
}

type Repositories struct {
	Publications repositories.PublicationRepository
	Locations    repositories.LocationRepository
	Borrowers    repositories.BorrowerRepository
	Items        repositories.ItemRepository
	Loans        repositories.LoanRepository
	Holds        repositories.HoldRepository
	Requests     repositories.CheckoutRequestRepository
	Transits     repositories.TransitRepository
}

// NewRepositories builds the default gorm-backed repositories.
func NewRepositories(db *gorm.DB) Repositories {
	return Repositories{
		Publications: repositories.NewPublicationRepository(db),
		Locations:    repositories.NewLocationRepository(db),
		Borrowers:    repositories.NewBorrowerRepository(db),
		Items:        repositories.NewItemRepository(db),
		Loans:        repositories.NewLoanRepository(db),
		Holds:        repositories.NewHoldRepository(db),
		Requests:     repositories.NewCheckoutRequestRepository(db),
		Transits:     repositories.NewTransitRepository(db),
	}
}

type Options struct {
	Policy   Policy
	Notifier Notifier
	// Clock defaults to time.Now in UTC.
	Clock func() time.Time
}

// CheckinResult reports the closed loan and, when the returned item went
// straight to the hold shelf, the hold it was reserved for.
type CheckinResult struct {
	Loan         *models.Loan `json:"loan"`
	PromotedHold *models.Hold `json:"promoted_hold,omitempty"`
}

// Availability summarises the copies of one publication.
type Availability struct {
	PublicationID uuid.UUID `json:"publication_id"`
	Total         int64     `json:"total"`
	Available     int64     `json:"available"`
	OnLoan        int64     `json:"on_loan"`
	OnHoldShelf   int64     `json:"on_hold_shelf"`
	InTransit     int64     `json:"in_transit"`
	WaitingHolds  int       `json:"waiting_holds"`
}

type CirculationService interface {
	// Loan ledger
	Checkout(ctx context.Context, identifier, borrowerRef string, staffID *uuid.UUID, notes string) (*models.Loan, error)
	Checkin(ctx context.Context, identifier string, staffID *uuid.UUID) (*CheckinResult, error)
	CheckinLoan(ctx context.Context, loanID uuid.UUID, staffID *uuid.UUID) (*CheckinResult, error)
	Renew(ctx context.Context, loanID uuid.UUID) (*models.Loan, error)
	ListBorrowerLoans(ctx context.Context, borrowerID uuid.UUID) ([]models.Loan, error)
	ListOverdueLoans(ctx context.Context) ([]models.Loan, error)

	// Hold queue
	PlaceHold(ctx context.Context, publicationID, borrowerID, pickupLocationID uuid.UUID, notes string) (*models.Hold, error)
	SetHoldReady(ctx context.Context, holdID uuid.UUID) (*models.Hold, error)
	CompleteHold(ctx context.Context, holdID uuid.UUID, itemID, staffID *uuid.UUID) (*models.Loan, error)
	CancelHold(ctx context.Context, holdID uuid.UUID) (*models.Hold, error)
	ExpireHolds(ctx context.Context) (int, error)
	QueuePosition(ctx context.Context, holdID uuid.UUID) (int, error)
	ListHolds(ctx context.Context, publicationID uuid.UUID) ([]models.Hold, error)

	// Checkout requests
	CreateRequest(ctx context.Context, publicationID, borrowerID uuid.UUID, notes string) (*models.CheckoutRequest, error)
	ApproveRequest(ctx context.Context, requestID uuid.UUID, staffID, pickupLocationID *uuid.UUID, pickupDays int) (*models.CheckoutRequest, error)
	CompleteRequest(ctx context.Context, requestID uuid.UUID, itemID, staffID *uuid.UUID) (*models.Loan, error)
	DenyRequest(ctx context.Context, requestID uuid.UUID, staffID *uuid.UUID, reason string) (*models.CheckoutRequest, error)
	CancelRequest(ctx context.Context, requestID uuid.UUID) (*models.CheckoutRequest, error)
	ExpireRequests(ctx context.Context) (int, error)
	ListRequests(ctx context.Context, status models.RequestStatus) ([]models.CheckoutRequest, error)

	// Transit
	SendInTransit(ctx context.Context, identifier string, toLocationID uuid.UUID, staffID *uuid.UUID, notes string) (*models.InTransit, error)
	ReceiveTransit(ctx context.Context, identifier string) (*models.InTransit, error)
	ListOpenTransits(ctx context.Context) ([]models.InTransit, error)

	PublicationAvailability(ctx context.Context, publicationID uuid.UUID) (*Availability, error)
}

type circulationService struct {
	db           *gorm.DB
	publications repositories.PublicationRepository
	locations    repositories.LocationRepository
	borrowers    repositories.BorrowerRepository
	items        repositories.ItemRepository
	loans        repositories.LoanRepository
	holds        repositories.HoldRepository
	requests     repositories.CheckoutRequestRepository
	transits     repositories.TransitRepository
	notifier     Notifier
	policy       Policy
	clock        func() time.Time
	tracer       trace.Tracer
}

func NewCirculationService(db *gorm.DB, repos Repositories, opts Options) CirculationService {
	policy := opts.Policy
	if policy == (Policy{}) {
		policy = DefaultPolicy()
	}
	clock := opts.Clock
	if clock == nil {
		clock = func() time.Time { return time.Now().UTC() }
	}
	return &circulationService{
		db:           db,
		publications: repos.Publications,
		locations:    repos.Locations,
		borrowers:    repos.Borrowers,
		items:        repos.Items,
		loans:        repos.Loans,
		holds:        repos.Holds,
		requests:     repos.Requests,
		transits:     repos.Transits,
		notifier:     opts.Notifier,
		policy:       policy,
		clock:        clock,
		tracer:       otel.Tracer("circulation/services"),
	}
}

func (s *circulationService) now() time.Time {
	return s.clock().UTC()
}

// inTx runs fn in a single transaction. A transaction aborted by a deadlock or
// serialization failure is run once more before the error is surfaced; fn
// must therefore be safe to call twice.
func (s *circulationService) inTx(ctx context.Context, op string, fn func(tx *gorm.DB) error) error {
	ctx, span := s.tracer.Start(ctx, "circulation."+op)
	defer span.End()

	db := s.db.WithContext(ctx)
	err := db.Transaction(fn)
	if isRetryable(err) {
		log.Printf("[WARN] %s: retrying after lock conflict: %v", op, err)
		span.AddEvent("retry", trace.WithAttributes(attribute.String("cause", err.Error())))
		err = db.Transaction(fn)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

func (s *circulationService) notify(ctx context.Context, ev notify.Event) {
	if s.notifier == nil {
		return
	}
	s.notifier.Notify(ctx, ev)
}

func (s *circulationService) readDB(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ctx)
}

func (s *circulationService) publicationTitle(ctx context.Context, id uuid.UUID) string {
	pub, err := s.publications.GetByID(s.readDB(ctx), id)
	if err != nil {
		return "your item"
	}
	return pub.Title
}

func daysFrom(t time.Time, days int) time.Time {
	return t.AddDate(0, 0, days)
}
