package messages

import "time"

type OrderCreated struct {
	OrderID       uint64 `json:"order_id"`
	OrgID         uint64 `json:"org_id"`
	PackageNumber string `json:"package_number"`
	CustomerName  string `json:"customer_name"`

	DeclaredValueCents int64 `json:"declared_value_cents"`
	TotalFeesCents     int64 `json:"total_fees_cents"`

	AttachmentURLs []string `json:"attachment_urls,omitempty"`

	ExtractionError *string `json:"extraction_error,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

type OrderReviewed struct {
	OrderID    uint64    `json:"order_id"`
	Status     string    `json:"status"`
	Reviewer   string    `json:"reviewer,omitempty"`
	ReviewedAt time.Time `json:"reviewed_at"`
}
