package messenger

import "context"

// MediaFetcher скачивает байты по media-ссылке перевозчика. Ссылки
// короткоживущие, поэтому качаем сразу, до буферизации.
type MediaFetcher interface {
	FetchMedia(ctx context.Context, mediaID string) ([]byte, string, error)
}

// Responder sends a short text reply back to the sender. Fire-and-forget:
// failures are logged by the caller, never retried synchronously.
type Responder interface {
	SendText(ctx context.Context, to, text string) error
}

// Client is a full carrier integration.
type Client interface {
	MediaFetcher
	Responder
}
