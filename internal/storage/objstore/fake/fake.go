package fake

import (
	"context"
	"fmt"
	"sync"
)

// FakeStore хранит загруженные объекты в памяти и выдаёт стабильные ссылки.
type FakeStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	seq     int

	Err error
}

func New() *FakeStore {
	return &FakeStore{objects: make(map[string][]byte)}
}

func (f *FakeStore) Upload(ctx context.Context, data []byte, contentType string) (string, error) {
	if f.Err != nil {
		return "", f.Err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	url := fmt.Sprintf("fake://objects/%d", f.seq)
	f.objects[url] = append([]byte{}, data...)
	return url, nil
}

func (f *FakeStore) Object(url string) ([]byte, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.objects[url]
	return b, ok
}

func (f *FakeStore) Count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.objects)
}
