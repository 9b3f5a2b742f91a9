package assembler

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/BearBump/ParcelDesk/internal/broker/messages"
	"github.com/BearBump/ParcelDesk/internal/duty"
	"github.com/BearBump/ParcelDesk/internal/integrations/vision"
	"github.com/BearBump/ParcelDesk/internal/metrics"
	"github.com/BearBump/ParcelDesk/internal/models"
	"github.com/BearBump/ParcelDesk/internal/storage/objstore"
	"github.com/pkg/errors"
)

type OrderCreator interface {
	AllocatePackageNumber(ctx context.Context, orgID uint64) (string, error)
	CreateOrder(ctx context.Context, in models.OrderCreateInput) (*models.Order, error)
}

type Publisher interface {
	Publish(ctx context.Context, topic string, key, value []byte) error
}

// Assembler превращает спаренную пару "имя + фото" в заказ: сохраняет
// вложения, извлекает поля из скриншота, считает сборы и пишет заказ.
type Assembler struct {
	orders    OrderCreator
	store     objstore.Uploader
	extractor vision.Extractor
	table     *duty.Table

	producer Publisher
	topic    string

	extractionTimeout time.Duration
}

func New(orders OrderCreator, store objstore.Uploader, extractor vision.Extractor, table *duty.Table) *Assembler {
	if table == nil {
		table = duty.DefaultTable()
	}
	return &Assembler{
		orders:            orders,
		store:             store,
		extractor:         extractor,
		table:             table,
		extractionTimeout: 20 * time.Second,
	}
}

func (a *Assembler) WithProducer(p Publisher, topic string) *Assembler {
	a.producer = p
	a.topic = topic
	return a
}

func (a *Assembler) WithExtractionTimeout(d time.Duration) *Assembler {
	if d > 0 {
		a.extractionTimeout = d
	}
	return a
}

// Assemble собирает заказ из имени клиента и скопившихся фото.
// Ошибка извлечения заказ не теряет: он создаётся с маркером, чтобы
// ревьюер увидел неполную заявку. Ошибка записи в БД или хранилище —
// фатальная, отдаётся наверх (там её превратят в повтор доставки).
func (a *Assembler) Assemble(ctx context.Context, orgID uint64, customerName string, atts []models.BufferedAttachment) (*models.Order, error) {
	if len(atts) == 0 {
		return nil, errors.New("no attachments to assemble")
	}
	if customerName == "" {
		return nil, errors.New("customerName is required")
	}

	uploaded := make([]models.OrderAttachment, 0, len(atts))
	for i, att := range atts {
		url, err := a.store.Upload(ctx, att.Bytes, att.ContentType)
		if err != nil {
			return nil, errors.Wrapf(err, "upload attachment %d", i)
		}
		uploaded = append(uploaded, models.OrderAttachment{
			StorageURL:  url,
			ContentType: att.ContentType,
		})
	}

	fields, extractionErr := a.extract(ctx, atts)
	if extractionErr != nil {
		metrics.ExtractionFailures.Inc()
		slog.Warn("extraction failed, creating order with marker",
			"org_id", orgID, "error", extractionErr.Error())
	}

	in := models.OrderCreateInput{
		OrgID:        orgID,
		CustomerName: customerName,
		Attachments:  uploaded,
	}

	var dutyItems []duty.Item
	if extractionErr == nil {
		in.TrackingNumber = fields.TrackingNumber
		in.OrderNumber = fields.OrderNumber
		in.Seller = fields.Seller
		for _, it := range fields.Items {
			in.Items = append(in.Items, models.OrderItem{
				Description:     it.Description,
				HSCode:          it.HSCode,
				Quantity:        it.Quantity,
				UnitValueCents:  it.UnitValueCents,
				TotalValueCents: it.TotalValueCents,
			})
			dutyItems = append(dutyItems, duty.Item{
				Description:     it.Description,
				HSCode:          it.HSCode,
				Quantity:        it.Quantity,
				UnitValueCents:  it.UnitValueCents,
				TotalValueCents: it.TotalValueCents,
			})
		}
		in.DeclaredValueCents = declaredValue(fields)
	} else {
		msg := extractionErr.Error()
		in.ExtractionError = &msg
	}

	fees := a.table.Compute(in.DeclaredValueCents, dutyItems)
	in.DutyCents = fees.DutyCents
	in.VATCents = fees.VATCents
	in.TotalFeesCents = fees.TotalFeesCents

	number, err := a.orders.AllocatePackageNumber(ctx, orgID)
	if err != nil {
		return nil, errors.Wrap(err, "allocate package number")
	}
	in.PackageNumber = number

	o, err := a.orders.CreateOrder(ctx, in)
	if err != nil {
		return nil, errors.Wrap(err, "create order")
	}
	metrics.OrdersCreated.WithLabelValues(strconv.FormatUint(orgID, 10)).Inc()

	a.publishCreated(ctx, o)

	return o, nil
}

// extract пробует вложения по порядку: первое читаемое фото выигрывает.
func (a *Assembler) extract(ctx context.Context, atts []models.BufferedAttachment) (vision.Fields, error) {
	ctx, cancel := context.WithTimeout(ctx, a.extractionTimeout)
	defer cancel()

	var lastErr error
	for _, att := range atts {
		fields, err := a.extractor.Extract(ctx, att.Bytes, att.ContentType)
		if err == nil {
			return fields, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
	}
	return vision.Fields{}, lastErr
}

func declaredValue(f vision.Fields) int64 {
	if f.DeclaredValueCents != nil && *f.DeclaredValueCents > 0 {
		return *f.DeclaredValueCents
	}
	var sum int64
	for _, it := range f.Items {
		v := it.TotalValueCents
		if v <= 0 {
			v = int64(it.Quantity) * it.UnitValueCents
		}
		if v > 0 {
			sum += v
		}
	}
	return sum
}

// publishCreated — "лучшее усилие": заказ уже в БД, потеря события не
// должна ронять доставку.
func (a *Assembler) publishCreated(ctx context.Context, o *models.Order) {
	if a.producer == nil || a.topic == "" {
		return
	}
	msg := messages.OrderCreated{
		OrderID:            o.ID,
		OrgID:              o.OrgID,
		PackageNumber:      o.PackageNumber,
		CustomerName:       o.CustomerName,
		DeclaredValueCents: o.DeclaredValueCents,
		TotalFeesCents:     o.TotalFeesCents,
		ExtractionError:    o.ExtractionError,
		CreatedAt:          o.CreatedAt,
	}
	for _, att := range o.Attachments {
		msg.AttachmentURLs = append(msg.AttachmentURLs, att.StorageURL)
	}
	b, _ := json.Marshal(msg)
	if err := a.producer.Publish(ctx, a.topic, []byte(strconv.FormatUint(o.ID, 10)), b); err != nil {
		slog.Error("publish order.created", "order_id", o.ID, "error", err.Error())
	}
}

// Summary — текст ответа отправителю после сборки заказа.
func Summary(o *models.Order) string {
	if o.ExtractionError != nil {
		return fmt.Sprintf("Посылка %s принята для %s. Скриншот не распознан, заявка уйдёт на ручную проверку.",
			o.PackageNumber, o.CustomerName)
	}
	return fmt.Sprintf("Посылка %s принята для %s. Объявленная стоимость $%s, сборы к оплате $%s.",
		o.PackageNumber, o.CustomerName, formatCents(o.DeclaredValueCents), formatCents(o.TotalFeesCents))
}

func formatCents(c int64) string {
	return fmt.Sprintf("%d.%02d", c/100, c%100)
}
