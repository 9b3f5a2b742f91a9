package fake

import (
	"context"
	"fmt"
	"sync"
)

// FakeClient — локальная заглушка мессенджера для офлайн-запуска и тестов.
// Байты медиа детерминированы по id, отправленные ответы копятся в памяти.
type FakeClient struct {
	mu   sync.Mutex
	sent []SentMessage

	FetchErr error
	SendErr  error
}

type SentMessage struct {
	To   string
	Text string
}

func New() *FakeClient { return &FakeClient{} }

func (f *FakeClient) FetchMedia(ctx context.Context, mediaID string) ([]byte, string, error) {
	if f.FetchErr != nil {
		return nil, "", f.FetchErr
	}
	return []byte(fmt.Sprintf("fake-media:%s", mediaID)), "image/jpeg", nil
}

func (f *FakeClient) SendText(ctx context.Context, to, text string) error {
	if f.SendErr != nil {
		return f.SendErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, SentMessage{To: to, Text: text})
	return nil
}

func (f *FakeClient) Sent() []SentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]SentMessage, len(f.sent))
	copy(out, f.sent)
	return out
}
