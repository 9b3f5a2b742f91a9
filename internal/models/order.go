package models

import "time"

// Статусы заказа. PENDING_REVIEW ставим при создании; дальше статусом
// управляет review-пайплайн (через order.reviewed).
const (
	OrderStatusPendingReview = "PENDING_REVIEW"
	OrderStatusApproved      = "APPROVED"
	OrderStatusRejected      = "REJECTED"
)

type Order struct {
	ID            uint64
	OrgID         uint64
	PackageNumber string
	CustomerName  string
	Status        string

	TrackingNumber *string
	OrderNumber    *string
	Seller         *string

	DeclaredValueCents int64
	DutyCents          int64
	VATCents           int64
	TotalFeesCents     int64

	// Non-nil when extraction failed or timed out; the order is still
	// persisted so the reviewer sees an incomplete submission instead of
	// losing it.
	ExtractionError *string

	Items       []OrderItem
	Attachments []OrderAttachment

	CreatedAt time.Time
	UpdatedAt time.Time
}

type OrderItem struct {
	ID              uint64
	OrderID         uint64
	Description     string
	HSCode          string
	Quantity        int32
	UnitValueCents  int64
	TotalValueCents int64
}

type OrderAttachment struct {
	ID          uint64
	OrderID     uint64
	StorageURL  string
	ContentType string
	CreatedAt   time.Time
}

type OrderCreateInput struct {
	OrgID         uint64
	PackageNumber string
	CustomerName  string

	TrackingNumber *string
	OrderNumber    *string
	Seller         *string

	DeclaredValueCents int64
	DutyCents          int64
	VATCents           int64
	TotalFeesCents     int64

	ExtractionError *string

	Items       []OrderItem
	Attachments []OrderAttachment
}
