package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"aegisher/api/internal/apperr"
	"aegisher/api/internal/model"
	"aegisher/api/internal/store"
)

// UserService manages users and their trusted circles
type UserService struct {
	store *store.Store
	now   func() time.Time
}

// NewUserService 创建用户服务
func NewUserService(s *store.Store) *UserService {
	return &UserService{
		store: s,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// Create registers a user. Email is normalized to lower case.
func (s *UserService) Create(ctx context.Context, req *model.CreateUserRequest) (*model.User, error) {
	name := strings.TrimSpace(req.Name)
	email := strings.ToLower(strings.TrimSpace(req.Email))
	phone := strings.TrimSpace(req.Phone)
	if name == "" || email == "" || phone == "" {
		return nil, apperr.Validation("Missing required fields: name, email, phone")
	}

	now := s.now()
	user := &model.User{
		Name:          name,
		Email:         email,
		Phone:         phone,
		TrustedCircle: []model.TrustedContact{},
		CreatedAt:     now,
		LastActive:    now,
	}
	err := s.store.CreateUser(ctx, user)
	if errors.Is(err, store.ErrDuplicate) {
		return nil, apperr.Validation("Email already registered")
	}
	if err != nil {
		return nil, apperr.Internal(err, "Failed to create user")
	}
	return user, nil
}

// Get returns a user with the trusted circle
func (s *UserService) Get(ctx context.Context, id string) (*model.User, error) {
	user, err := s.store.GetUser(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.NotFound("User not found")
	}
	if err != nil {
		return nil, apperr.Internal(err, "Failed to fetch user")
	}
	return user, nil
}

// Contacts 获取信任圈联系人
func (s *UserService) Contacts(ctx context.Context, userID string) ([]model.TrustedContact, error) {
	contacts, err := s.store.ListContacts(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.NotFound("User not found")
	}
	if err != nil {
		return nil, apperr.Internal(err, "Failed to fetch trusted contacts")
	}
	return contacts, nil
}

// AddContact 添加信任圈联系人
func (s *UserService) AddContact(ctx context.Context, userID string, req *model.AddContactRequest) (*model.TrustedContact, error) {
	name := strings.TrimSpace(req.Name)
	phone := strings.TrimSpace(req.Phone)
	if name == "" || phone == "" {
		return nil, apperr.Validation("Missing required fields: name, phone")
	}
	relationship, err := parseRelationship(req.Relationship, model.RelationshipOther)
	if err != nil {
		return nil, err
	}

	contact := &model.TrustedContact{
		Name:         name,
		Phone:        phone,
		Relationship: relationship,
		IsPrimary:    req.IsPrimary,
		AddedAt:      s.now(),
	}
	if err := s.store.AddContact(ctx, userID, contact); err != nil {
		return nil, contactError(err, "Failed to add trusted contact")
	}
	return contact, nil
}

// UpdateContact patches the provided fields of a contact
func (s *UserService) UpdateContact(ctx context.Context, userID, contactID string, req *model.UpdateContactRequest) (*model.TrustedContact, error) {
	contact, err := s.store.UpdateContact(ctx, userID, contactID, func(c *model.TrustedContact) error {
		if req.Name != nil {
			name := strings.TrimSpace(*req.Name)
			if name == "" {
				return apperr.Validation("Name cannot be empty")
			}
			c.Name = name
		}
		if req.Phone != nil {
			phone := strings.TrimSpace(*req.Phone)
			if phone == "" {
				return apperr.Validation("Phone cannot be empty")
			}
			c.Phone = phone
		}
		if req.Relationship != nil {
			r, err := parseRelationship(*req.Relationship, c.Relationship)
			if err != nil {
				return err
			}
			c.Relationship = r
		}
		if req.IsPrimary != nil {
			c.IsPrimary = *req.IsPrimary
		}
		return nil
	})
	if err != nil {
		return nil, contactError(err, "Failed to update trusted contact")
	}
	return contact, nil
}

// RemoveContact 删除信任圈联系人
func (s *UserService) RemoveContact(ctx context.Context, userID, contactID string) error {
	if err := s.store.DeleteContact(ctx, userID, contactID); err != nil {
		return contactError(err, "Failed to remove trusted contact")
	}
	return nil
}

func parseRelationship(value string, fallback model.Relationship) (model.Relationship, error) {
	v := strings.TrimSpace(value)
	if v == "" {
		return fallback, nil
	}
	r := model.Relationship(strings.ToLower(v))
	if !r.Valid() {
		return "", apperr.Validation("Invalid relationship: %s", v)
	}
	return r, nil
}

func contactError(err error, message string) error {
	var appErr *apperr.Error
	switch {
	case errors.As(err, &appErr):
		return appErr
	case errors.Is(err, store.ErrUserNotFound):
		return apperr.NotFound("User not found")
	case errors.Is(err, store.ErrNotFound):
		return apperr.NotFound("Contact not found")
	case errors.Is(err, store.ErrDuplicate):
		return apperr.Validation("Phone number already in trusted circle")
	}
	return apperr.Internal(err, message)
}
