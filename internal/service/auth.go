package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/mail"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/rryowa/sessiongate/internal/models"
	"github.com/rryowa/sessiongate/internal/storage"
	"github.com/rryowa/sessiongate/internal/util"
)

const (
	minUsernameLength = 3
	maxUsernameLength = 50
	minPasswordLength = 6

	defaultPageSize = 10
	maxPageSize     = 100
)

var (
	ErrInvalidCredentials = util.NewResponseError(http.StatusUnauthorized, "Invalid username or password")
	ErrAccountDisabled    = util.NewResponseError(http.StatusForbidden, "Account is disabled")
	ErrUserNotFound       = util.NewResponseError(http.StatusNotFound, "User not found")
	ErrUsernameTaken      = util.NewResponseError(http.StatusConflict, "Username is already taken")
	ErrWrongPassword      = util.NewResponseError(http.StatusBadRequest, "Current password is incorrect")
)

// ClientMeta describes the client a refresh token is issued to.
type ClientMeta struct {
	UserAgent string
	IPAddress string
}

// Account is a seeded user.
type Account struct {
	Username string
	Email    string
	Password string
	Roles    []models.Role
}

// DefaultAccounts are seeded into a fresh stub.
var DefaultAccounts = []Account{
	{Username: "admin", Email: "admin@example.com", Password: "admin123", Roles: []models.Role{models.RoleAdmin, models.RoleUser}},
	{Username: "user", Email: "user@example.com", Password: "user123", Roles: []models.Role{models.RoleUser}},
}

type AuthService struct {
	users    storage.UserRepository
	tokens   *TokenService
	log      *zap.SugaredLogger
	hashCost int
	now      func() time.Time
}

type AuthOption func(*AuthService)

// WithHashCost sets the bcrypt cost for new password hashes.
func WithHashCost(cost int) AuthOption {
	return func(s *AuthService) { s.hashCost = cost }
}

func NewAuthService(users storage.UserRepository, tokens *TokenService, log *zap.SugaredLogger, opts ...AuthOption) *AuthService {
	s := &AuthService{
		users:    users,
		tokens:   tokens,
		log:      log,
		hashCost: bcrypt.DefaultCost,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Seed creates accounts that do not exist yet.
func (s *AuthService) Seed(ctx context.Context, accounts ...Account) error {
	for _, a := range accounts {
		_, err := s.createUser(ctx, models.RegisterRequest{Username: a.Username, Email: a.Email, Password: a.Password}, a.Roles)
		if err != nil && !errors.Is(err, ErrUsernameTaken) {
			return fmt.Errorf("seed %s: %w", a.Username, err)
		}
	}
	return nil
}

func (s *AuthService) Login(ctx context.Context, req models.LoginRequest, meta ClientMeta) (*models.TokenPairResponse, error) {
	user, err := s.users.GetUserByUsername(ctx, req.Username)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	if !user.Active {
		return nil, ErrAccountDisabled
	}

	pair, err := s.tokens.IssuePair(ctx, *user, meta, s.now())
	if err != nil {
		return nil, err
	}
	s.log.Infow("user logged in", "userID", user.ID, "username", user.Username)
	return pair, nil
}

func (s *AuthService) Register(ctx context.Context, req models.RegisterRequest) (*models.User, error) {
	if err := validateRegistration(req); err != nil {
		return nil, err
	}
	user, err := s.createUser(ctx, req, []models.Role{models.RoleUser})
	if err != nil {
		return nil, err
	}
	s.log.Infow("user registered", "userID", user.ID, "username", user.Username)
	return user, nil
}

// Refresh rotates a refresh token: the presented token is consumed and a new pair issued.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string, meta ClientMeta) (*models.TokenPairResponse, error) {
	session, err := s.tokens.ConsumeRefreshToken(ctx, refreshToken)
	if err != nil {
		return nil, err
	}

	user, err := s.users.GetUserByID(ctx, session.UserID)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			return nil, ErrRefreshTokenNotFoundOrUsed
		}
		return nil, err
	}
	if !user.Active {
		return nil, ErrRefreshTokenNotFoundOrUsed
	}

	return s.tokens.IssuePair(ctx, *user, meta, s.now())
}

// Logout revokes the refresh token and, when given, the access token it was used with.
func (s *AuthService) Logout(ctx context.Context, refreshToken string, access *AccessClaims) error {
	if refreshToken != "" {
		if err := s.tokens.RevokeRefreshToken(ctx, refreshToken); err != nil && !errors.Is(err, ErrTokenMalformed) {
			return err
		}
	}
	if access != nil {
		if err := s.tokens.InvalidateAccessToken(ctx, access); err != nil {
			return err
		}
	}
	return nil
}

// Authenticate resolves a bearer token to its claims. Tokens of disabled users are rejected.
func (s *AuthService) Authenticate(ctx context.Context, accessToken string) (*AccessClaims, error) {
	claims, err := s.tokens.ValidateAccessToken(ctx, accessToken)
	if err != nil {
		return nil, err
	}
	user, err := s.users.GetUserByID(ctx, claims.Subject)
	if err != nil || !user.Active {
		return nil, ErrTokenRevoked
	}
	return claims, nil
}

func (s *AuthService) GetUser(ctx context.Context, id string) (*models.User, error) {
	user, err := s.users.GetUserByID(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return user, nil
}

func (s *AuthService) UpdateProfile(ctx context.Context, id string, req models.UpdateProfileRequest) (*models.User, error) {
	user, err := s.GetUser(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.Email != "" {
		if _, err := mail.ParseAddress(req.Email); err != nil {
			return nil, util.NewResponseError(http.StatusBadRequest, "Invalid email address")
		}
		user.Email = req.Email
	}
	if req.FirstName != "" {
		user.FirstName = req.FirstName
	}
	if req.LastName != "" {
		user.LastName = req.LastName
	}
	if err := s.users.UpdateUser(ctx, *user); err != nil {
		return nil, err
	}
	return user, nil
}

// ChangePassword also revokes every refresh token of the user.
func (s *AuthService) ChangePassword(ctx context.Context, id string, req models.ChangePasswordRequest) error {
	user, err := s.GetUser(ctx, id)
	if err != nil {
		return err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.CurrentPassword)); err != nil {
		return ErrWrongPassword
	}
	if len(req.NewPassword) < minPasswordLength {
		return util.NewResponseError(http.StatusBadRequest, "Password must be at least %d characters", minPasswordLength)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), s.hashCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	user.PasswordHash = string(hash)
	if err := s.users.UpdateUser(ctx, *user); err != nil {
		return err
	}
	return s.tokens.RevokeAllRefreshTokens(ctx, user.ID)
}

func (s *AuthService) Deactivate(ctx context.Context, id string) error {
	_, err := s.setActive(ctx, id, false)
	return err
}

// ListUsers pages the directory. sort is "field" or "field,desc" over username, email or createdAt.
func (s *AuthService) ListUsers(ctx context.Context, page, size int, sortBy string) (*models.UserPage, error) {
	if page < 0 {
		page = 0
	}
	if size <= 0 {
		size = defaultPageSize
	}
	size = min(size, maxPageSize)

	users, err := s.users.ListUsers(ctx)
	if err != nil {
		return nil, err
	}
	sortUsers(users, sortBy)

	total := len(users)
	from := min(page*size, total)
	to := min(from+size, total)
	return &models.UserPage{
		Content:       users[from:to],
		Page:          page,
		Size:          size,
		TotalElements: total,
		TotalPages:    (total + size - 1) / size,
	}, nil
}

func (s *AuthService) ToggleStatus(ctx context.Context, id string) (*models.User, error) {
	user, err := s.GetUser(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.setActive(ctx, id, !user.Active)
}

func (s *AuthService) UpdateRole(ctx context.Context, id string, role models.Role) (*models.User, error) {
	if role != models.RoleUser && role != models.RoleAdmin {
		return nil, util.NewResponseError(http.StatusBadRequest, "Unknown role %q", role)
	}
	user, err := s.GetUser(ctx, id)
	if err != nil {
		return nil, err
	}

	user.Roles = []models.Role{models.RoleUser}
	if role == models.RoleAdmin {
		user.Roles = []models.Role{models.RoleAdmin, models.RoleUser}
	}
	if err := s.users.UpdateUser(ctx, *user); err != nil {
		return nil, err
	}
	s.log.Infow("user role updated", "userID", id, "role", role)
	return user, nil
}

func (s *AuthService) DeleteUser(ctx context.Context, id string) error {
	if err := s.users.DeleteUser(ctx, id); err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			return ErrUserNotFound
		}
		return err
	}
	return s.tokens.RevokeAllRefreshTokens(ctx, id)
}

func (s *AuthService) setActive(ctx context.Context, id string, active bool) (*models.User, error) {
	user, err := s.GetUser(ctx, id)
	if err != nil {
		return nil, err
	}
	user.Active = active
	if err := s.users.UpdateUser(ctx, *user); err != nil {
		return nil, err
	}
	if !active {
		if err := s.tokens.RevokeAllRefreshTokens(ctx, id); err != nil {
			return nil, err
		}
	}
	s.log.Infow("user status changed", "userID", id, "active", active)
	return user, nil
}

func (s *AuthService) createUser(ctx context.Context, req models.RegisterRequest, roles []models.Role) (*models.User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.hashCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user, err := s.users.CreateUser(ctx, models.User{
		ID:           uuid.NewString(),
		Username:     req.Username,
		Email:        req.Email,
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		PasswordHash: string(hash),
		Roles:        slices.Clone(roles),
		Active:       true,
		CreatedAt:    s.now().UTC(),
	})
	if err != nil {
		if errors.Is(err, storage.ErrUserExists) {
			return nil, ErrUsernameTaken
		}
		return nil, err
	}
	return user, nil
}

func validateRegistration(req models.RegisterRequest) error {
	if n := len(req.Username); n < minUsernameLength || n > maxUsernameLength {
		return util.NewResponseError(http.StatusBadRequest, "Username must be between %d and %d characters", minUsernameLength, maxUsernameLength)
	}
	if _, err := mail.ParseAddress(req.Email); err != nil {
		return util.NewResponseError(http.StatusBadRequest, "Invalid email address")
	}
	if len(req.Password) < minPasswordLength {
		return util.NewResponseError(http.StatusBadRequest, "Password must be at least %d characters", minPasswordLength)
	}
	return nil
}

func sortUsers(users []models.User, sortBy string) {
	field, dir, _ := strings.Cut(sortBy, ",")
	desc := strings.EqualFold(dir, "desc")

	var less func(a, b models.User) bool
	switch field {
	case "username":
		less = func(a, b models.User) bool { return a.Username < b.Username }
	case "email":
		less = func(a, b models.User) bool { return a.Email < b.Email }
	case "createdAt":
		less = func(a, b models.User) bool { return a.CreatedAt.Before(b.CreatedAt) }
	default:
		return
	}

	sort.SliceStable(users, func(i, j int) bool {
		if desc {
			return less(users[j], users[i])
		}
		return less(users[i], users[j])
	})
}
