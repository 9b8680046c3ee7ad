package session

import (
	"context"
	"net/url"
	"strconv"

	"github.com/rryowa/sessiongate/internal/models"
)

const (
	EndpointProfile        = "/users/profile"
	EndpointUsers          = "/users/"
	EndpointChangePassword = "/users/change-password"
	EndpointDeactivate     = "/users/deactivate"
	EndpointAdminUsers     = "/users/admin/"
	EndpointAdminAllUsers  = "/users/admin/all"
)

// UserService is the typed client of the user directory. Every call goes
// through the gateway, so it refreshes and retries like any authenticated request.
type UserService struct {
	gw *Gateway
}

func NewUserService(gw *Gateway) *UserService {
	return &UserService{gw: gw}
}

func (s *UserService) CurrentProfile(ctx context.Context) (*models.User, error) {
	var u models.User
	if err := s.gw.Get(ctx, EndpointProfile, nil, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *UserService) UserProfile(ctx context.Context, id string) (*models.User, error) {
	var u models.User
	if err := s.gw.Get(ctx, EndpointUsers+url.PathEscape(id), nil, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *UserService) UpdateProfile(ctx context.Context, req models.UpdateProfileRequest) (*models.User, error) {
	var u models.User
	if err := s.gw.Put(ctx, EndpointProfile, nil, req, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *UserService) ChangePassword(ctx context.Context, req models.ChangePasswordRequest) error {
	return s.gw.Put(ctx, EndpointChangePassword, nil, req, nil)
}

func (s *UserService) DeactivateAccount(ctx context.Context) error {
	return s.gw.Delete(ctx, EndpointDeactivate, nil)
}

// ListUsers returns one page of the directory. Admin only.
func (s *UserService) ListUsers(ctx context.Context, params models.ListUsersParams) (*models.UserPage, error) {
	query := url.Values{}
	if params.Page != nil {
		query.Set("page", strconv.Itoa(*params.Page))
	}
	if params.Size != nil {
		query.Set("size", strconv.Itoa(*params.Size))
	}
	if params.Sort != "" {
		query.Set("sort", params.Sort)
	}

	var page models.UserPage
	if err := s.gw.Get(ctx, EndpointAdminAllUsers, query, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

func (s *UserService) ToggleUserStatus(ctx context.Context, id string) (*models.User, error) {
	var u models.User
	if err := s.gw.Put(ctx, EndpointAdminUsers+url.PathEscape(id)+"/toggle-status", nil, nil, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *UserService) UpdateUserRole(ctx context.Context, id string, role models.Role) (*models.User, error) {
	query := url.Values{"roleName": {string(role)}}
	var u models.User
	if err := s.gw.Put(ctx, EndpointAdminUsers+url.PathEscape(id)+"/update-role", query, nil, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *UserService) DeleteUser(ctx context.Context, id string) error {
	return s.gw.Delete(ctx, EndpointAdminUsers+url.PathEscape(id), nil)
}
