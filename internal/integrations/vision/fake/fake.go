package fake

import (
	"context"

	"github.com/BearBump/ParcelDesk/internal/integrations/vision"
)

// FakeExtractor возвращает заранее заданные поля; для офлайн-запуска и тестов.
type FakeExtractor struct {
	Fields vision.Fields
	Err    error
}

func New() *FakeExtractor {
	total := int64(120_00)
	seller := "fake-shop"
	return &FakeExtractor{
		Fields: vision.Fields{
			Seller:             &seller,
			DeclaredValueCents: &total,
			Items: []vision.Item{
				{Description: "fake item", Quantity: 1, TotalValueCents: total},
			},
		},
	}
}

func (f *FakeExtractor) Extract(ctx context.Context, imageBytes []byte, contentType string) (vision.Fields, error) {
	if f.Err != nil {
		return vision.Fields{}, f.Err
	}
	return f.Fields, nil
}
