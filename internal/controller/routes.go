package controller

import "github.com/labstack/echo/v4"

// EchoRouter is implemented by both *echo.Echo and *echo.Group.
type EchoRouter interface {
	GET(path string, h echo.HandlerFunc, m ...echo.MiddlewareFunc) *echo.Route
	POST(path string, h echo.HandlerFunc, m ...echo.MiddlewareFunc) *echo.Route
	PUT(path string, h echo.HandlerFunc, m ...echo.MiddlewareFunc) *echo.Route
	DELETE(path string, h echo.HandlerFunc, m ...echo.MiddlewareFunc) *echo.Route
}

// RegisterHandlers mounts every route. authenticated guards the /users
// routes; admin additionally guards /users/admin.
func RegisterHandlers(router EchoRouter, c *Controller, authenticated, admin echo.MiddlewareFunc) {
	router.GET("/health", c.Health)

	router.POST("/auth/login", c.Login)
	router.POST("/auth/register", c.Register)
	router.POST("/auth/refresh", c.Refresh)
	router.POST("/auth/logout", c.Logout)

	router.GET("/users/profile", c.GetProfile, authenticated)
	router.PUT("/users/profile", c.UpdateProfile, authenticated)
	router.PUT("/users/change-password", c.ChangePassword, authenticated)
	router.DELETE("/users/deactivate", c.DeactivateAccount, authenticated)
	router.GET("/users/:id", c.GetUser, authenticated)

	router.GET("/users/admin/all", c.ListUsers, authenticated, admin)
	router.PUT("/users/admin/:id/toggle-status", c.ToggleUserStatus, authenticated, admin)
	router.PUT("/users/admin/:id/update-role", c.UpdateUserRole, authenticated, admin)
	router.DELETE("/users/admin/:id", c.DeleteUser, authenticated, admin)
}
