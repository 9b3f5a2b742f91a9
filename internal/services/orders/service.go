package orders

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/BearBump/ParcelDesk/internal/broker/messages"
	"github.com/BearBump/ParcelDesk/internal/cache"
	"github.com/BearBump/ParcelDesk/internal/models"
	"github.com/pkg/errors"
)

type Repository interface {
	NextPackageNumber(ctx context.Context, orgID uint64) (int64, error)
	CreateOrder(ctx context.Context, in models.OrderCreateInput) (*models.Order, error)
	GetOrderByID(ctx context.Context, id uint64) (*models.Order, error)
	ApplyReviewStatus(ctx context.Context, orderID uint64, status string) error
}

type Service struct {
	repo          Repository
	cache         cache.BytesCache
	currentTTL    time.Duration
	packagePrefix string
}

func New(repo Repository, c cache.BytesCache, currentTTL time.Duration, packagePrefix string) *Service {
	if packagePrefix == "" {
		packagePrefix = "PKG"
	}
	return &Service{repo: repo, cache: c, currentTTL: currentTTL, packagePrefix: packagePrefix}
}

// AllocatePackageNumber выдаёт следующий человекочитаемый номер посылки
// для организации. Номер монотонный; пропуски допустимы (счётчик уже
// увеличен, а запись заказа сорвалась), дубликаты — нет.
func (s *Service) AllocatePackageNumber(ctx context.Context, orgID uint64) (string, error) {
	if orgID == 0 {
		return "", errors.New("orgId is required")
	}
	n, err := s.repo.NextPackageNumber(ctx, orgID)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s-%d-%05d", s.packagePrefix, orgID, n), nil
}

func (s *Service) CreateOrder(ctx context.Context, in models.OrderCreateInput) (*models.Order, error) {
	if in.OrgID == 0 {
		return nil, errors.New("orgId is required")
	}
	if in.PackageNumber == "" {
		return nil, errors.New("packageNumber is required")
	}
	if in.CustomerName == "" {
		return nil, errors.New("customerName is required")
	}

	o, err := s.repo.CreateOrder(ctx, in)
	if err != nil {
		return nil, err
	}

	if s.cache != nil && s.currentTTL > 0 {
		b, _ := json.Marshal(o)
		_ = s.cache.Set(ctx, currentKey(o.ID), b, s.currentTTL)
	}
	return o, nil
}

func (s *Service) GetOrderByID(ctx context.Context, id uint64) (*models.Order, error) {
	if id == 0 {
		return nil, errors.New("orderId is required")
	}

	// Кэш — "лучшее усилие": промах или битая запись просто ведут в БД.
	if s.cache != nil && s.currentTTL > 0 {
		b, ok, err := s.cache.Get(ctx, currentKey(id))
		if err == nil && ok {
			var o models.Order
			if json.Unmarshal(b, &o) == nil {
				return &o, nil
			}
		}
	}

	o, err := s.repo.GetOrderByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if o == nil {
		return nil, nil
	}
	if s.cache != nil && s.currentTTL > 0 {
		b, _ := json.Marshal(o)
		_ = s.cache.Set(ctx, currentKey(o.ID), b, s.currentTTL)
	}
	return o, nil
}

func (s *Service) ApplyKafkaReview(ctx context.Context, msg messages.OrderReviewed) error {
	if msg.OrderID == 0 {
		return errors.New("order_id is required")
	}
	switch msg.Status {
	case models.OrderStatusApproved, models.OrderStatusRejected:
	default:
		return errors.Errorf("unknown review status %q", msg.Status)
	}

	if err := s.repo.ApplyReviewStatus(ctx, msg.OrderID, msg.Status); err != nil {
		return err
	}

	// Обновляем кэш текущего состояния одной перезагрузкой из БД.
	if s.cache != nil && s.currentTTL > 0 {
		o, err := s.repo.GetOrderByID(ctx, msg.OrderID)
		if err == nil && o != nil {
			b, _ := json.Marshal(o)
			_ = s.cache.Set(ctx, currentKey(msg.OrderID), b, s.currentTTL)
		}
	}
	return nil
}

func currentKey(id uint64) string {
	return fmt.Sprintf("order:%d:current", id)
}
