package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/coinville/questd/internal/quest"
)

const defaultProfileName = "Пользователь"

// GetOrCreateProfileByDevice resolves the device-bound identity, creating
// the profile on first contact. Concurrent first contacts from the same
// device converge on one row via the unique device_id constraint.
func (s *Store) GetOrCreateProfileByDevice(ctx context.Context, deviceID string) (*quest.Profile, error) {
	p, err := s.getProfileByDevice(ctx, deviceID)
	if err != nil {
		return nil, err
	}
	if p != nil {
		return p, nil
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO profiles (id, device_id, name)
		VALUES ($1, $2, $3)
		ON CONFLICT (device_id) DO NOTHING`,
		uuid.New(), deviceID, defaultProfileName,
	)
	if err != nil {
		return nil, fmt.Errorf("create profile: %w", err)
	}

	p, err = s.getProfileByDevice(ctx, deviceID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, fmt.Errorf("profile for device %q not readable after insert", deviceID)
	}
	return p, nil
}

func (s *Store) getProfileByDevice(ctx context.Context, deviceID string) (*quest.Profile, error) {
	var p quest.Profile
	err := s.pool.QueryRow(ctx, `
		SELECT id, device_id, name, total_coins, total_xp
		FROM profiles WHERE device_id = $1`,
		deviceID,
	).Scan(&p.ID, &p.DeviceID, &p.Name, &p.TotalCoins, &p.TotalXP)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get profile: %w", err)
	}
	return &p, nil
}
