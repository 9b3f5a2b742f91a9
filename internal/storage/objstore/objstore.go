package objstore

import "context"

// Uploader сохраняет байты вложения в долговременное хранилище и
// возвращает устойчивую ссылку. Исходные ссылки перевозчика короткоживущие,
// поэтому заказ хранит только наши ссылки.
type Uploader interface {
	Upload(ctx context.Context, bytes []byte, contentType string) (string, error)
}
