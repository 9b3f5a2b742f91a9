package pgorders

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
)

// GetSenderOrg возвращает организацию зарегистрированного отправителя.
// ok=false — номер не зарегистрирован (webhook ответит один раз за cooldown).
func (s *Storage) GetSenderOrg(ctx context.Context, phone string) (uint64, bool, error) {
	var orgID uint64
	err := s.db.QueryRow(ctx, `SELECT org_id FROM senders WHERE phone = $1`, phone).Scan(&orgID)
	if err == pgx.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, errors.Wrap(err, "select sender")
	}
	return orgID, true, nil
}

// RegisterSender upserts a phone → organization binding.
func (s *Storage) RegisterSender(ctx context.Context, phone string, orgID uint64, displayName string) error {
	_, err := s.db.Exec(ctx, `
INSERT INTO senders (phone, org_id, display_name, created_at)
VALUES ($1,$2,$3,$4)
ON CONFLICT (phone)
DO UPDATE SET org_id = EXCLUDED.org_id, display_name = EXCLUDED.display_name
`, phone, orgID, displayName, time.Now().UTC())
	return errors.Wrap(err, "register sender")
}
