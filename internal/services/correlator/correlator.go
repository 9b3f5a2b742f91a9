package correlator

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/BearBump/ParcelDesk/internal/integrations/messenger"
	"github.com/BearBump/ParcelDesk/internal/metrics"
	"github.com/BearBump/ParcelDesk/internal/models"
	"github.com/BearBump/ParcelDesk/internal/services/session"
	"github.com/pkg/errors"
)

type OrderAssembler interface {
	Assemble(ctx context.Context, orgID uint64, customerName string, atts []models.BufferedAttachment) (*models.Order, error)
}

type SummaryFunc func(o *models.Order) string

// Engine сопоставляет события одного отправителя: текст несёт имя
// покупателя, фото несут скриншоты заказа. Пара "имя + фото" в пределах
// окна превращается в заказ.
type Engine struct {
	sessions *session.Store
	fetcher  messenger.MediaFetcher
	asm      OrderAssembler
	summary  SummaryFunc

	pairingWindow time.Duration
	// 0 — имя не протухает само, только по TTL сессии.
	stickyNameTTL time.Duration

	errorNoticeCooldown time.Duration

	nowFn func() time.Time
}

func NewEngine(sessions *session.Store, fetcher messenger.MediaFetcher, asm OrderAssembler, summary SummaryFunc) *Engine {
	if summary == nil {
		summary = func(o *models.Order) string { return "Посылка " + o.PackageNumber + " принята." }
	}
	return &Engine{
		sessions:            sessions,
		fetcher:             fetcher,
		asm:                 asm,
		summary:             summary,
		pairingWindow:       5 * time.Second,
		errorNoticeCooldown: time.Minute,
		nowFn:               time.Now,
	}
}

func (e *Engine) WithPairingWindow(d time.Duration) *Engine {
	if d > 0 {
		e.pairingWindow = d
	}
	return e
}

func (e *Engine) WithStickyNameTTL(d time.Duration) *Engine {
	e.stickyNameTTL = d
	return e
}

func (e *Engine) WithErrorNoticeCooldown(d time.Duration) *Engine {
	if d > 0 {
		e.errorNoticeCooldown = d
	}
	return e
}

func (e *Engine) WithNow(fn func() time.Time) *Engine {
	e.nowFn = fn
	return e
}

// Process обрабатывает одно событие и возвращает текст ответа отправителю
// (пустой — отвечать нечем). Ошибка означает, что доставку нужно повторить.
func (e *Engine) Process(ctx context.Context, ev models.InboundEvent) (string, error) {
	now := e.nowFn()
	e.sessions.MaybeSweep(now)

	// Байты скачиваем до лока: подписанные ссылки перевозчика живут
	// минуты, а под локом может идти чужая долгая обработка.
	fetched, fetchFailed := e.fetchAll(ctx, ev)

	name := strings.TrimSpace(ev.Text)

	var reply string
	var dropped int
	var toAssemble []models.BufferedAttachment
	var assembleName string

	err := e.sessions.WithLock(ctx, ev.Sender, func(s *session.Session) error {
		s.LastActivity = now

		// Протухшее липкое имя равносильно его отсутствию.
		if s.CustomerName != "" && e.stickyNameTTL > 0 && now.Sub(s.NameSetAt) > e.stickyNameTTL {
			s.CustomerName = ""
		}

		if fetchFailed {
			if now.Sub(s.LastErrorNotice) >= e.errorNoticeCooldown {
				s.LastErrorNotice = now
				reply = "Не получилось скачать фото, отправьте его ещё раз."
			}
			if len(fetched) == 0 && name == "" {
				return nil
			}
		}

		dropped = e.pruneExpired(s, now)

		switch {
		case name != "" && len(fetched) > 0:
			// Имя и фото одним сообщением: группа — только фото этого
			// события. Прежний буфер бросаем как ничейный.
			s.CustomerName = name
			s.NameSetAt = now
			s.Buffer = nil
			toAssemble = e.buffered(fetched, now)
			assembleName = name

		case name != "":
			s.CustomerName = name
			s.NameSetAt = now
			if len(s.Buffer) > 0 {
				toAssemble = s.Buffer
				s.Buffer = nil
				assembleName = name
			} else {
				reply = fmt.Sprintf("Имя %q сохранено, жду фото заказа.", name)
			}

		case len(fetched) > 0 && s.CustomerName != "":
			toAssemble = append(s.Buffer, e.buffered(fetched, now)...)
			s.Buffer = nil
			assembleName = s.CustomerName

		case len(fetched) > 0:
			s.Buffer = append(s.Buffer, e.buffered(fetched, now)...)
			reply = "Фото получено. Напишите имя покупателя, чтобы оформить посылку."

		default:
			// Ни имени, ни фото — нечего делать.
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, session.ErrLockTimeout) {
			return "Сервис перегружен, отправьте сообщение ещё раз чуть позже.", err
		}
		return "", err
	}

	if assembleName == "" || len(toAssemble) == 0 {
		return withDropNotice(reply, dropped), nil
	}

	// Сборка идёт вне лока: загрузка и распознавание медленные, а лок
	// держит только этого отправителя, но держать его всё равно незачем.
	o, aerr := e.asm.Assemble(ctx, ev.OrgID, assembleName, toAssemble)
	if aerr != nil {
		// Возвращаем фото в буфер, чтобы повтор доставки их не потерял.
		e.requeue(ctx, ev.Sender, toAssemble)
		return "", errors.Wrap(aerr, "assemble order")
	}
	return withDropNotice(e.summary(o), dropped), nil
}

// withDropNotice дописывает к ответу счётчик просроченных фото: сброс
// должен быть виден отправителю и на пути с заказом тоже.
func withDropNotice(reply string, dropped int) string {
	if dropped == 0 {
		return reply
	}
	notice := fmt.Sprintf("Фото пришли слишком давно (%d шт.) и сброшены.", dropped)
	if reply == "" {
		return notice
	}
	return notice + " " + reply
}

func (e *Engine) fetchAll(ctx context.Context, ev models.InboundEvent) ([]models.FetchedAttachment, bool) {
	var out []models.FetchedAttachment
	failed := false
	for _, m := range ev.Media {
		b, ct, err := e.fetcher.FetchMedia(ctx, m.ID)
		if err != nil {
			failed = true
			slog.Warn("fetch media", "sender", ev.Sender, "media_id", m.ID, "error", err.Error())
			continue
		}
		if ct == "" {
			ct = m.ContentType
		}
		out = append(out, models.FetchedAttachment{Bytes: b, ContentType: ct})
	}
	return out, failed
}

func (e *Engine) buffered(fetched []models.FetchedAttachment, now time.Time) []models.BufferedAttachment {
	out := make([]models.BufferedAttachment, 0, len(fetched))
	for _, f := range fetched {
		out = append(out, models.BufferedAttachment{
			Bytes:       f.Bytes,
			ContentType: f.ContentType,
			ArrivedAt:   now,
		})
	}
	return out
}

// pruneExpired выкидывает из буфера фото старше окна сопоставления.
func (e *Engine) pruneExpired(s *session.Session, now time.Time) int {
	if len(s.Buffer) == 0 {
		return 0
	}
	kept := s.Buffer[:0]
	dropped := 0
	for _, a := range s.Buffer {
		if now.Sub(a.ArrivedAt) <= e.pairingWindow {
			kept = append(kept, a)
		} else {
			dropped++
		}
	}
	s.Buffer = kept
	if dropped > 0 {
		metrics.DroppedAttachments.Add(float64(dropped))
	}
	return dropped
}

func (e *Engine) requeue(ctx context.Context, sender string, atts []models.BufferedAttachment) {
	err := e.sessions.WithLock(ctx, sender, func(s *session.Session) error {
		s.Buffer = append(atts, s.Buffer...)
		return nil
	})
	if err != nil {
		slog.Error("requeue attachments", "sender", sender, "error", err.Error())
	}
}
