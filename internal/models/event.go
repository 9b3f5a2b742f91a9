package models

import "time"

// InboundEvent — распарсенное webhook-событие мессенджера: отправитель,
// опциональный текст, ноль или больше media-ссылок.
type InboundEvent struct {
	DeliveryID string
	Sender     string
	OrgID      uint64
	Text       string
	Media      []MediaRef
	ReceivedAt time.Time
}

// MediaRef is a carrier-issued media reference. The underlying signed URL
// is short-lived, so bytes must be fetched as soon as the reference is seen.
type MediaRef struct {
	ID          string
	ContentType string
}

// FetchedAttachment holds downloaded media bytes before correlation.
type FetchedAttachment struct {
	Bytes       []byte
	ContentType string
}

// BufferedAttachment is a fetched attachment waiting in a sender session
// for a customer name to claim it.
type BufferedAttachment struct {
	Bytes       []byte
	ContentType string
	ArrivedAt   time.Time
}
