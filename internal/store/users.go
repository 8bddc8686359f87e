package store

import (
	"context"
	"time"

	"gorm.io/gorm"

	"aegisher/api/internal/model"
)

func preloadCircle(db *gorm.DB) *gorm.DB {
	return db.Order("added_at, id")
}

// CreateUser inserts a user. A taken email yields ErrDuplicate.
func (s *Store) CreateUser(ctx context.Context, user *model.User) error {
	err := s.withContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&model.User{}).Where("email = ?", user.Email).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return ErrDuplicate
		}
		return tx.Create(user).Error
	})
	return translate(err)
}

// GetUser returns a user with the trusted circle in insertion order
func (s *Store) GetUser(ctx context.Context, id string) (*model.User, error) {
	var user model.User
	err := s.withContext(ctx).
		Preload("TrustedCircle", preloadCircle).
		First(&user, "id = ?", id).Error
	if err != nil {
		return nil, translate(err)
	}
	if user.TrustedCircle == nil {
		user.TrustedCircle = []model.TrustedContact{}
	}
	return &user, nil
}

// TouchUser records user activity
func (s *Store) TouchUser(ctx context.Context, id string, at time.Time) error {
	return s.withContext(ctx).Model(&model.User{}).
		Where("id = ?", id).
		UpdateColumn("last_active", at).Error
}

func (s *Store) userExists(tx *gorm.DB, id string) error {
	var count int64
	if err := tx.Model(&model.User{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return ErrUserNotFound
	}
	return nil
}

// ListContacts returns a user's trusted circle
func (s *Store) ListContacts(ctx context.Context, userID string) ([]model.TrustedContact, error) {
	db := s.withContext(ctx)
	if err := s.userExists(db, userID); err != nil {
		return nil, err
	}
	contacts := []model.TrustedContact{}
	err := preloadCircle(db.Where("user_id = ?", userID)).Find(&contacts).Error
	return contacts, err
}

// AddContact appends a contact to a user's circle. A phone already in the circle yields ErrDuplicate.
func (s *Store) AddContact(ctx context.Context, userID string, contact *model.TrustedContact) error {
	err := s.withContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.userExists(tx, userID); err != nil {
			return err
		}
		if err := s.phoneTaken(tx, userID, contact.Phone, ""); err != nil {
			return err
		}
		contact.UserID = userID
		return tx.Create(contact).Error
	})
	return translate(err)
}

// UpdateContact loads a contact, applies patch and saves it
func (s *Store) UpdateContact(ctx context.Context, userID, contactID string, patch func(*model.TrustedContact) error) (*model.TrustedContact, error) {
	var contact model.TrustedContact
	err := s.withContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.userExists(tx, userID); err != nil {
			return err
		}
		if err := tx.First(&contact, "id = ? AND user_id = ?", contactID, userID).Error; err != nil {
			return err
		}
		if err := patch(&contact); err != nil {
			return err
		}
		if err := s.phoneTaken(tx, userID, contact.Phone, contact.ID); err != nil {
			return err
		}
		return tx.Save(&contact).Error
	})
	if err != nil {
		return nil, translate(err)
	}
	return &contact, nil
}

// DeleteContact removes a contact from a user's circle
func (s *Store) DeleteContact(ctx context.Context, userID, contactID string) error {
	err := s.withContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.userExists(tx, userID); err != nil {
			return err
		}
		res := tx.Where("id = ? AND user_id = ?", contactID, userID).Delete(&model.TrustedContact{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
	return translate(err)
}

func (s *Store) phoneTaken(tx *gorm.DB, userID, phone, exceptID string) error {
	q := tx.Model(&model.TrustedContact{}).Where("user_id = ? AND phone = ?", userID, phone)
	if exceptID != "" {
		q = q.Where("id <> ?", exceptID)
	}
	var count int64
	if err := q.Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return ErrDuplicate
	}
	return nil
}
