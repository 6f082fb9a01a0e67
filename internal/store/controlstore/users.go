package controlstore

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// UserExists implements internal/session.Store.
func (s *Store) UserExists(identity string) (bool, error) {
	var row UserRow
	err := s.db.Where("username = ?", identity).First(&row).Error
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return false, nil
	default:
		return false, fmt.Errorf("controlstore: check user exists: %w", err)
	}
}

// CreateUser implements internal/session.Store.
func (s *Store) CreateUser(identity string, hash, salt []byte) error {
	row := UserRow{Username: identity, PasswordHash: hash, PasswordSalt: salt, CreatedAt: time.Now()}
	if err := s.db.Create(&row).Error; err != nil {
		return fmt.Errorf("controlstore: create user: %w", err)
	}
	return nil
}

// PasswordHash implements internal/session.Store.
func (s *Store) PasswordHash(identity string) (hash, salt []byte, err error) {
	var row UserRow
	if err := s.db.Where("username = ?", identity).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, fmt.Errorf("controlstore: unknown identity %q", identity)
		}
		return nil, nil, fmt.Errorf("controlstore: load password hash: %w", err)
	}
	return row.PasswordHash, row.PasswordSalt, nil
}

// UpdatePasswordHash implements internal/session.Store.
func (s *Store) UpdatePasswordHash(identity string, hash, salt []byte) error {
	result := s.db.Model(&UserRow{}).Where("username = ?", identity).
		Updates(map[string]any{"password_hash": hash, "password_salt": salt})
	if result.Error != nil {
		return fmt.Errorf("controlstore: update password hash: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("controlstore: unknown identity %q", identity)
	}
	return nil
}

// DeleteUser implements internal/session.Store.
func (s *Store) DeleteUser(identity string) error {
	result := s.db.Where("username = ?", identity).Delete(&UserRow{})
	if result.Error != nil {
		return fmt.Errorf("controlstore: delete user: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("controlstore: unknown identity %q", identity)
	}
	return nil
}

// IsBanned implements internal/session.Store: true if any ban_logs row for
// identity has no LiftedAt.
func (s *Store) IsBanned(identity string) (bool, error) {
	var count int64
	if err := s.db.Model(&BanLogRow{}).
		Where("identity = ? AND lifted_at IS NULL", identity).
		Count(&count).Error; err != nil {
		return false, fmt.Errorf("controlstore: check ban status: %w", err)
	}
	return count > 0, nil
}

// Ban implements internal/session.Store.
func (s *Store) Ban(identity, reason, description string) error {
	row := BanLogRow{Identity: identity, Reason: reason, Description: description, BannedAt: time.Now()}
	if err := s.db.Create(&row).Error; err != nil {
		return fmt.Errorf("controlstore: insert ban log: %w", err)
	}
	return nil
}

// Unban implements internal/session.Store: lifts identity's most recent
// unlifted ban_logs row.
func (s *Store) Unban(identity string) error {
	var row BanLogRow
	err := s.db.Where("identity = ? AND lifted_at IS NULL", identity).
		Order("banned_at DESC").First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		return fmt.Errorf("controlstore: find active ban: %w", err)
	}
	now := time.Now()
	if err := s.db.Model(&row).Update("lifted_at", &now).Error; err != nil {
		return fmt.Errorf("controlstore: lift ban: %w", err)
	}
	return nil
}
