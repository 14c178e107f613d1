package service

import (
	"context"
	"errors"

	"fleetwatch/internal/models"
	"fleetwatch/internal/repository"

	"github.com/rs/zerolog/log"
)

type ChangeRoleRequest struct {
	Role string `json:"role" binding:"required,oneof=viewer operator admin"`
}

type UserService interface {
	Me(ctx context.Context, id uint) (*models.User, error)
	List(ctx context.Context) ([]models.User, error)
	ChangeRole(ctx context.Context, actorID, targetID uint, req ChangeRoleRequest) (*models.User, error)
}

type userService struct {
	users repository.UserRepository
}

func NewUserService(users repository.UserRepository) UserService {
	return &userService{users: users}
}

func (s *userService) Me(ctx context.Context, id uint) (*models.User, error) {
	user, err := s.users.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrNotFound
	}
	return user, err
}

func (s *userService) List(ctx context.Context) ([]models.User, error) {
	return s.users.List(ctx)
}

// ChangeRole sets another user's role. Admins cannot change their own role.
func (s *userService) ChangeRole(ctx context.Context, actorID, targetID uint, req ChangeRoleRequest) (*models.User, error) {
	if err := validateStruct(&req); err != nil {
		return nil, err
	}
	if actorID == targetID {
		return nil, ErrForbidden
	}

	if err := s.users.UpdateRole(ctx, targetID, req.Role); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	log.Info().
		Uint("actor_id", actorID).
		Uint("user_id", targetID).
		Str("role", req.Role).
		Msg("user role changed")
	return s.Me(ctx, targetID)
}
