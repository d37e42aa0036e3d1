package echoServer

import (
	"net/http"

	"github.com/golang-jwt/jwt/v5"
	echojwt "github.com/labstack/echo-jwt/v4"
	"github.com/labstack/echo/v4"

	"github.com/Liliyakhu/library-service-project/app/echoServer/controller/auth"
	"github.com/Liliyakhu/library-service-project/app/echoServer/controller/book"
	"github.com/Liliyakhu/library-service-project/app/echoServer/controller/borrowing"
	"github.com/Liliyakhu/library-service-project/app/echoServer/controller/payment"
	"github.com/Liliyakhu/library-service-project/app/echoServer/controller/sweep"
)

type C struct {
	Auth      *auth.Controller
	Book      *book.Controller
	Borrowing *borrowing.Controller
	Payment   *payment.Controller
	Sweep     *sweep.Controller
	JWTSecret string
}

func Register(e *echo.Echo, c C) {
	// Public
	pub := e.Group("/v1")
	pub.POST("/users/register", c.Auth.Register)
	pub.POST("/users/login", c.Auth.Login)

	// Provider-facing, no auth: the webhook authenticates itself via
	// its signature, the redirect pages via the session id.
	pub.POST("/payments/webhook", c.Payment.HandleStripeWebhook)
	pub.GET("/payments/success", c.Payment.Success)
	pub.GET("/payments/cancel", c.Payment.Cancel)

	// Auth
	authed := e.Group("/v1")
	authed.Use(echojwt.WithConfig(echojwt.Config{
		SigningKey:    []byte(c.JWTSecret),
		NewClaimsFunc: func(c echo.Context) jwt.Claims { return jwt.MapClaims{} },
		TokenLookup:   "header:Authorization",
	}))
	authed.Use(extractUserID)

	// Books
	authed.GET("/books", c.Book.List)
	authed.GET("/books/:id", c.Book.Detail)
	// Admin endpoints
	authed.POST("/books", c.Book.Create)
	authed.POST("/books/:id/inventory", c.Book.AddInventory)

	// Borrowings
	authed.POST("/borrowings", c.Borrowing.Create)
	authed.GET("/borrowings", c.Borrowing.List)
	authed.GET("/borrowings/:id", c.Borrowing.Detail)
	authed.POST("/borrowings/:id/return", c.Borrowing.Return)

	// Payments
	authed.POST("/payments", c.Payment.Create)
	authed.GET("/payments", c.Payment.List)
	authed.GET("/payments/:id", c.Payment.Detail)
	authed.POST("/payments/:id/renew", c.Payment.Renew)

	// Sweeps (admin, on demand)
	authed.POST("/admin/sweeps/expiration", c.Sweep.RunExpiration)
	authed.POST("/admin/sweeps/overdue", c.Sweep.RunOverdue)
	authed.POST("/admin/sweeps/fines", c.Sweep.RunFines)
}

func extractUserID(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		tokenObj := ctx.Get("user")
		if tokenObj == nil {
			return ctx.JSON(http.StatusUnauthorized, echo.Map{"message": "unauthorized"})
		}
		token, ok := tokenObj.(*jwt.Token)
		if !ok {
			return ctx.JSON(http.StatusUnauthorized, echo.Map{"message": "unauthorized"})
		}
		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			return ctx.JSON(http.StatusUnauthorized, echo.Map{"message": "unauthorized"})
		}
		sub, ok := claims["sub"].(float64)
		if !ok {
			return ctx.JSON(http.StatusUnauthorized, echo.Map{"message": "unauthorized"})
		}
		ctx.Set("user_id", int64(sub))
		return next(ctx)
	}
}
