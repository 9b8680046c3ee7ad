package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/rryowa/sessiongate/internal/models"
	"github.com/rryowa/sessiongate/internal/storage"
	"github.com/rryowa/sessiongate/internal/util"
)

var (
	ErrTokenExpired               = errors.New("token expired")
	ErrTokenInvalid               = errors.New("token invalid")
	ErrTokenMalformed             = errors.New("token is malformed")
	ErrTokenRevoked               = errors.New("token revoked")
	ErrInvalidSigningMethod       = errors.New("invalid signing method")
	ErrRefreshTokenNotFoundOrUsed = errors.New("refresh token not found or already used")
)

type TokenService struct {
	JwtSecretKey []byte
	accessTTL    time.Duration
	refreshTTL   time.Duration
	sessions     storage.SessionRepository
	blocklist    storage.TokenBlocklist
}

func NewTokenService(cfg *util.TokenConfig, sessions storage.SessionRepository, blocklist storage.TokenBlocklist) *TokenService {
	return &TokenService{
		JwtSecretKey: cfg.JwtSecretKey,
		accessTTL:    cfg.AccessTTL,
		refreshTTL:   cfg.RefreshTTL,
		sessions:     sessions,
		blocklist:    blocklist,
	}
}

type AccessClaims struct {
	Username string        `json:"username"`
	Roles    []models.Role `json:"roles"`
	jwt.RegisteredClaims
}

// CreateAccessToken creates an HS512 signed access token with a new JTI.
func (ts *TokenService) CreateAccessToken(user models.User, now time.Time) (string, string, error) {
	jti := uuid.NewString()
	claims := &AccessClaims{
		Username: user.Username,
		Roles:    user.Roles,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ts.accessTTL)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS512, claims)
	signedToken, err := token.SignedString(ts.JwtSecretKey)
	if err != nil {
		return "", "", fmt.Errorf("signed string: %w", err)
	}

	return signedToken, jti, nil
}

func (ts *TokenService) CreateRefreshToken() (token, selector, verifierHash string, err error) {
	rawToken := make([]byte, util.RawTokenLength)
	if _, err = rand.Read(rawToken); err != nil {
		return "", "", "", fmt.Errorf("failed to read random bytes: %w", err)
	}

	selector = base64.RawURLEncoding.EncodeToString(rawToken[:16])
	verifier := base64.RawURLEncoding.EncodeToString(rawToken[16:])

	hashedVerifierBytes := sha256.Sum256([]byte(verifier))
	verifierHash = hex.EncodeToString(hashedVerifierBytes[:])

	token = selector + "." + verifier

	return token, selector, verifierHash, nil
}

func (ts *TokenService) ValidateRefreshToken(token, verifierHash string) error {
	_, verifier, err := splitRefreshToken(token)
	if err != nil {
		return err
	}

	hashedVerifierBytes, err := hex.DecodeString(verifierHash)
	if err != nil {
		return fmt.Errorf("failed to decode stored hash: %w", err)
	}

	newHashBytes := sha256.Sum256([]byte(verifier))

	if subtle.ConstantTimeCompare(newHashBytes[:], hashedVerifierBytes) != 1 {
		return ErrTokenInvalid
	}

	return nil
}

// IssuePair creates an access token and a refresh token for user and records the refresh session.
func (ts *TokenService) IssuePair(ctx context.Context, user models.User, meta ClientMeta, now time.Time) (*models.TokenPairResponse, error) {
	accessToken, jti, err := ts.CreateAccessToken(user, now)
	if err != nil {
		return nil, err
	}

	refreshToken, selector, verifierHash, err := ts.CreateRefreshToken()
	if err != nil {
		return nil, err
	}

	err = ts.sessions.CreateSession(ctx, models.RefreshSession{
		Selector:       selector,
		VerifierHash:   verifierHash,
		UserID:         user.ID,
		AccessTokenJTI: jti,
		UserAgent:      meta.UserAgent,
		IPAddress:      meta.IPAddress,
		ExpiresAt:      now.Add(ts.refreshTTL),
		CreatedAt:      now,
	})
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	return &models.TokenPairResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		Username:     user.Username,
		Email:        user.Email,
		Roles:        append([]models.Role(nil), user.Roles...),
	}, nil
}

// ConsumeRefreshToken redeems token once and returns the session it belonged to.
func (ts *TokenService) ConsumeRefreshToken(ctx context.Context, token string) (*models.RefreshSession, error) {
	selector, _, err := splitRefreshToken(token)
	if err != nil {
		return nil, err
	}

	session, err := ts.sessions.ConsumeSession(ctx, selector)
	if err != nil {
		if errors.Is(err, storage.ErrSessionNotFound) {
			return nil, ErrRefreshTokenNotFoundOrUsed
		}
		return nil, fmt.Errorf("consume session: %w", err)
	}

	if err := ts.ValidateRefreshToken(token, session.VerifierHash); err != nil {
		return nil, err
	}
	return session, nil
}

// RevokeRefreshToken deletes the session behind token. Unknown tokens are ignored.
func (ts *TokenService) RevokeRefreshToken(ctx context.Context, token string) error {
	selector, _, err := splitRefreshToken(token)
	if err != nil {
		return err
	}
	if err := ts.sessions.DeleteSession(ctx, selector); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

func (ts *TokenService) RevokeAllRefreshTokens(ctx context.Context, userID string) error {
	if err := ts.sessions.DeleteAllUserSessions(ctx, userID); err != nil {
		return fmt.Errorf("delete user sessions: %w", err)
	}
	return nil
}

// ValidateAccessToken checks signature, expiry and the blocklist, in that order.
func (ts *TokenService) ValidateAccessToken(ctx context.Context, token string) (*AccessClaims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS512.Alg()}),
		jwt.WithLeeway(util.JWTLeeWay),
		jwt.WithExpirationRequired(),
	}

	parsedToken, err := jwt.ParseWithClaims(
		token,
		&AccessClaims{},
		func(t *jwt.Token) (interface{}, error) {
			if t.Method.Alg() != jwt.SigningMethodHS512.Alg() {
				return nil, ErrInvalidSigningMethod
			}
			return ts.JwtSecretKey, nil
		},
		opts...,
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %w", ErrTokenInvalid, err)
	}

	claims, ok := parsedToken.Claims.(*AccessClaims)
	if !ok || !parsedToken.Valid || claims.Subject == "" || claims.ID == "" {
		return nil, ErrTokenInvalid
	}

	revoked, err := ts.blocklist.IsTokenInvalidated(ctx, claims.ID)
	if err != nil {
		return nil, fmt.Errorf("is token invalidated: %w", err)
	}
	if revoked {
		return nil, ErrTokenRevoked
	}

	return claims, nil
}

// InvalidateAccessToken blocks a validated token until it would have expired.
func (ts *TokenService) InvalidateAccessToken(ctx context.Context, claims *AccessClaims) error {
	if claims.ExpiresAt == nil {
		return ErrTokenInvalid
	}
	if err := ts.blocklist.InvalidateToken(ctx, claims.ID, time.Until(claims.ExpiresAt.Time)); err != nil {
		return fmt.Errorf("invalidate token: %w", err)
	}
	return nil
}

func splitRefreshToken(token string) (selector, verifier string, err error) {
	parts := strings.Split(token, ".")
	if len(parts) != util.TokenPartsExpected || parts[0] == "" || parts[1] == "" {
		return "", "", ErrTokenMalformed
	}
	return parts[0], parts[1], nil
}
