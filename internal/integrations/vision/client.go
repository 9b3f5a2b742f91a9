package vision

import "context"

// Fields — структурированные поля, извлечённые из скриншота заказа.
// Поля опциональные осознанно: "нет значения" и "ноль" — разные вещи для
// расчёта пошлины и для ревьюера.
type Fields struct {
	TrackingNumber *string
	OrderNumber    *string
	Seller         *string

	DeclaredValueCents *int64

	Items []Item
}

type Item struct {
	Description     string
	HSCode          string
	Quantity        int32
	UnitValueCents  int64
	TotalValueCents int64
}

// Extractor converts order-screenshot bytes into structured fields.
// Slow and fallible; callers bound it with a timeout. A failure never drops
// the submission — the order is created with an extraction-error marker.
type Extractor interface {
	Extract(ctx context.Context, imageBytes []byte, contentType string) (Fields, error)
}
