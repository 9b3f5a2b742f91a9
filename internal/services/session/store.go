package session

import (
	"context"
	"sync"
	"time"

	"github.com/BearBump/ParcelDesk/internal/models"
	"github.com/pkg/errors"
)

// ErrLockTimeout — не дождались per-sender лока. Фатально только для
// текущего запроса: отвечаем "попробуйте позже".
var ErrLockTimeout = errors.New("session lock timeout")

// Session — состояние одного отправителя: текущее имя покупателя и
// вложения, которые ещё ждут имени. Мутируется только под локом этого
// отправителя.
type Session struct {
	CustomerName string
	NameSetAt    time.Time

	Buffer []models.BufferedAttachment

	LastActivity    time.Time
	LastErrorNotice time.Time
}

type entry struct {
	lock chan struct{} // cap 1, занят = в канале токен
	sess Session
}

// Store keeps per-sender sessions. Lock granularity is per sender: one slow
// sender never blocks the others. Eviction is opportunistic via MaybeSweep.
type Store struct {
	mu sync.Mutex
	m  map[string]*entry

	ttl         time.Duration
	lockTimeout time.Duration

	sweepEvery time.Duration
	lastSweep  time.Time
}

func NewStore(ttl, lockTimeout time.Duration) *Store {
	if ttl <= 0 {
		ttl = time.Hour
	}
	if lockTimeout <= 0 {
		lockTimeout = 10 * time.Second
	}
	return &Store{
		m:           make(map[string]*entry),
		ttl:         ttl,
		lockTimeout: lockTimeout,
		sweepEvery:  time.Minute,
	}
}

func (st *Store) getOrCreate(sender string) *entry {
	st.mu.Lock()
	defer st.mu.Unlock()
	e, ok := st.m[sender]
	if !ok {
		e = &entry{lock: make(chan struct{}, 1)}
		st.m[sender] = e
	}
	return e
}

// WithLock executes fn with exclusive access to the sender's session.
// Acquisition is bounded: on timeout the request fails with ErrLockTimeout
// and no session state is touched.
func (st *Store) WithLock(ctx context.Context, sender string, fn func(s *Session) error) error {
	e := st.getOrCreate(sender)

	t := time.NewTimer(st.lockTimeout)
	defer t.Stop()
	select {
	case e.lock <- struct{}{}:
	case <-t.C:
		return ErrLockTimeout
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-e.lock }()

	return fn(&e.sess)
}

// Len reports the number of live sessions (for stats/tests).
func (st *Store) Len() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	return len(st.m)
}

// MaybeSweep runs SweepExpired, но не чаще, чем раз в sweepEvery. Нагрузка
// всплесками, поэтому отдельного таймера нет — вызываем по пути обработки.
func (st *Store) MaybeSweep(now time.Time) int {
	st.mu.Lock()
	if now.Sub(st.lastSweep) < st.sweepEvery {
		st.mu.Unlock()
		return 0
	}
	st.lastSweep = now
	st.mu.Unlock()

	return st.SweepExpired(now)
}

// SweepExpired removes sessions idle past the TTL. Best-effort: a session
// whose lock is held right now is skipped, never waited on.
func (st *Store) SweepExpired(now time.Time) int {
	st.mu.Lock()
	defer st.mu.Unlock()

	removed := 0
	for sender, e := range st.m {
		select {
		case e.lock <- struct{}{}:
			if now.Sub(e.sess.LastActivity) > st.ttl {
				delete(st.m, sender)
				removed++
			}
			<-e.lock
		default:
			// Сессия сейчас занята обработчиком — пропускаем.
		}
	}
	return removed
}
