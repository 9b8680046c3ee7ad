package controller

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/oapi-codegen/runtime"
	"go.uber.org/zap"

	"github.com/rryowa/sessiongate/internal/models"
	"github.com/rryowa/sessiongate/internal/service"
	"github.com/rryowa/sessiongate/internal/util"
)

type Controller struct {
	zapLogger   *zap.SugaredLogger
	authService *service.AuthService
}

func NewController(logger *zap.SugaredLogger, authService *service.AuthService) *Controller {
	return &Controller{
		zapLogger:   logger,
		authService: authService,
	}
}

type ListUsersParams struct {
	Page *int    `form:"page"`
	Size *int    `form:"size"`
	Sort *string `form:"sort"`
}

// (GET /api/v1/health).
func (c *Controller) Health(ctx echo.Context) error {
	return ok(ctx, http.StatusOK, "", map[string]string{"status": "UP"})
}

// (POST /api/v1/auth/login).
func (c *Controller) Login(ctx echo.Context) error {
	var req models.LoginRequest
	if err := ctx.Bind(&req); err != nil {
		return util.NewResponseError(http.StatusBadRequest, "Invalid request body")
	}

	pair, err := c.authService.Login(ctx.Request().Context(), req, clientMeta(ctx))
	if err != nil {
		return err
	}
	return ok(ctx, http.StatusOK, "Login successful", pair)
}

// (POST /api/v1/auth/register).
func (c *Controller) Register(ctx echo.Context) error {
	var req models.RegisterRequest
	if err := ctx.Bind(&req); err != nil {
		return util.NewResponseError(http.StatusBadRequest, "Invalid request body")
	}

	user, err := c.authService.Register(ctx.Request().Context(), req)
	if err != nil {
		return err
	}
	return ok(ctx, http.StatusCreated, "User registered successfully", user)
}

// (POST /api/v1/auth/refresh).
func (c *Controller) Refresh(ctx echo.Context) error {
	var req models.RefreshRequest
	if err := ctx.Bind(&req); err != nil {
		return util.NewResponseError(http.StatusBadRequest, "Invalid request body")
	}

	pair, err := c.authService.Refresh(ctx.Request().Context(), req.RefreshToken, clientMeta(ctx))
	if err != nil {
		return err
	}
	return ok(ctx, http.StatusOK, "Token refreshed", pair)
}

// (POST /api/v1/auth/logout).
// A valid bearer token presented with the request is revoked as well.
func (c *Controller) Logout(ctx echo.Context) error {
	var req models.LogoutRequest
	if err := ctx.Bind(&req); err != nil {
		return util.NewResponseError(http.StatusBadRequest, "Invalid request body")
	}

	var access *service.AccessClaims
	if token := BearerToken(ctx.Request()); token != "" {
		claims, err := c.authService.Authenticate(ctx.Request().Context(), token)
		if err == nil {
			access = claims
		}
	}

	if err := c.authService.Logout(ctx.Request().Context(), req.RefreshToken, access); err != nil {
		return err
	}
	return ok(ctx, http.StatusOK, "Logged out", nil)
}

// (GET /api/v1/users/profile).
func (c *Controller) GetProfile(ctx echo.Context) error {
	user, err := c.authService.GetUser(ctx.Request().Context(), currentUserID(ctx))
	if err != nil {
		return err
	}
	return ok(ctx, http.StatusOK, "", user)
}

// (PUT /api/v1/users/profile).
func (c *Controller) UpdateProfile(ctx echo.Context) error {
	var req models.UpdateProfileRequest
	if err := ctx.Bind(&req); err != nil {
		return util.NewResponseError(http.StatusBadRequest, "Invalid request body")
	}

	user, err := c.authService.UpdateProfile(ctx.Request().Context(), currentUserID(ctx), req)
	if err != nil {
		return err
	}
	return ok(ctx, http.StatusOK, "Profile updated", user)
}

// (PUT /api/v1/users/change-password).
func (c *Controller) ChangePassword(ctx echo.Context) error {
	var req models.ChangePasswordRequest
	if err := ctx.Bind(&req); err != nil {
		return util.NewResponseError(http.StatusBadRequest, "Invalid request body")
	}

	if err := c.authService.ChangePassword(ctx.Request().Context(), currentUserID(ctx), req); err != nil {
		return err
	}
	return ok(ctx, http.StatusOK, "Password changed", nil)
}

// (DELETE /api/v1/users/deactivate).
func (c *Controller) DeactivateAccount(ctx echo.Context) error {
	if err := c.authService.Deactivate(ctx.Request().Context(), currentUserID(ctx)); err != nil {
		return err
	}
	return ok(ctx, http.StatusOK, "Account deactivated", nil)
}

// (GET /api/v1/users/{id}).
func (c *Controller) GetUser(ctx echo.Context) error {
	id, err := pathID(ctx)
	if err != nil {
		return err
	}
	user, err := c.authService.GetUser(ctx.Request().Context(), id)
	if err != nil {
		return err
	}
	return ok(ctx, http.StatusOK, "", user)
}

// (GET /api/v1/users/admin/all).
func (c *Controller) ListUsers(ctx echo.Context) error {
	var params ListUsersParams
	if err := runtime.BindQueryParameter("form", true, false, "page", ctx.QueryParams(), &params.Page); err != nil {
		return util.NewResponseError(http.StatusBadRequest, "Invalid format for parameter page: %s", err)
	}
	if err := runtime.BindQueryParameter("form", true, false, "size", ctx.QueryParams(), &params.Size); err != nil {
		return util.NewResponseError(http.StatusBadRequest, "Invalid format for parameter size: %s", err)
	}
	if err := runtime.BindQueryParameter("form", true, false, "sort", ctx.QueryParams(), &params.Sort); err != nil {
		return util.NewResponseError(http.StatusBadRequest, "Invalid format for parameter sort: %s", err)
	}

	page, size, sortBy := 0, 0, ""
	if params.Page != nil {
		page = *params.Page
	}
	if params.Size != nil {
		size = *params.Size
	}
	if params.Sort != nil {
		sortBy = *params.Sort
	}

	users, err := c.authService.ListUsers(ctx.Request().Context(), page, size, sortBy)
	if err != nil {
		return err
	}
	return ok(ctx, http.StatusOK, "", users)
}

// (PUT /api/v1/users/admin/{id}/toggle-status).
func (c *Controller) ToggleUserStatus(ctx echo.Context) error {
	id, err := pathID(ctx)
	if err != nil {
		return err
	}
	user, err := c.authService.ToggleStatus(ctx.Request().Context(), id)
	if err != nil {
		return err
	}
	return ok(ctx, http.StatusOK, "User status updated", user)
}

// (PUT /api/v1/users/admin/{id}/update-role).
func (c *Controller) UpdateUserRole(ctx echo.Context) error {
	id, err := pathID(ctx)
	if err != nil {
		return err
	}

	var roleName string
	if err := runtime.BindQueryParameter("form", true, true, "roleName", ctx.QueryParams(), &roleName); err != nil {
		return util.NewResponseError(http.StatusBadRequest, "Invalid format for parameter roleName: %s", err)
	}

	user, err := c.authService.UpdateRole(ctx.Request().Context(), id, models.Role(roleName))
	if err != nil {
		return err
	}
	return ok(ctx, http.StatusOK, "User role updated", user)
}

// (DELETE /api/v1/users/admin/{id}).
func (c *Controller) DeleteUser(ctx echo.Context) error {
	id, err := pathID(ctx)
	if err != nil {
		return err
	}
	if err := c.authService.DeleteUser(ctx.Request().Context(), id); err != nil {
		return err
	}
	return ok(ctx, http.StatusOK, "User deleted", nil)
}

// BearerToken extracts the token from an "Authorization: Bearer" header.
func BearerToken(r *http.Request) string {
	const prefix = "Bearer "
	header := r.Header.Get(echo.HeaderAuthorization)
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}

func ok(ctx echo.Context, status int, message string, data any) error {
	return ctx.JSON(status, models.Envelope{Success: true, Message: message, Data: data})
}

func pathID(ctx echo.Context) (string, error) {
	var id string
	err := runtime.BindStyledParameterWithOptions("simple", "id", ctx.Param("id"), &id, runtime.BindStyledParameterOptions{
		ParamLocation: runtime.ParamLocationPath,
		Explode:       false,
		Required:      true,
	})
	if err != nil {
		return "", util.NewResponseError(http.StatusBadRequest, "Invalid format for parameter id: %s", err)
	}
	return id, nil
}

func currentUserID(ctx echo.Context) string {
	id, _ := ctx.Get(models.MwUserIDKey).(string)
	return id
}

func clientMeta(ctx echo.Context) service.ClientMeta {
	return service.ClientMeta{
		UserAgent: ctx.Request().UserAgent(),
		IPAddress: ctx.RealIP(),
	}
}

// InternalError maps err to a status through util.MyResponseError.
func InternalError(err error) (int, string) {
	var customErr util.MyResponseError
	if errors.As(err, &customErr) {
		return customErr.Status, customErr.Msg
	}
	return http.StatusInternalServerError, "internal server error"
}
