package payment

import (
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/Liliyakhu/library-service-project/model"
	ps "github.com/Liliyakhu/library-service-project/service/payment"
	"github.com/Liliyakhu/library-service-project/util/apperr"
)

type Controller struct {
	Svc ps.Service
	V   *validator.Validate
	Log *slog.Logger
}

// POST /v1/payments
func (h *Controller) Create(c echo.Context) error {
	var req CreatePaymentReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"message": "invalid JSON"})
	}
	if err := h.V.Struct(req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{
			"message": "validation error",
			"errors":  err.Error(),
		})
	}

	p, err := h.Svc.CreateForBorrowing(c.Request().Context(), req.BorrowingID, model.PaymentType(req.Type))
	if err != nil {
		switch apperr.CodeOf(err) {
		case ps.ErrNotFound:
			return c.JSON(http.StatusNotFound, echo.Map{"message": "borrowing not found"})
		case ps.ErrNotLate:
			return c.JSON(http.StatusBadRequest, echo.Map{"message": "borrowing was not returned late"})
		case ps.ErrNonPositiveFine:
			return c.JSON(http.StatusBadRequest, echo.Map{"message": "fine amount must be positive"})
		case ps.ErrDuplicatePayment:
			return c.JSON(http.StatusConflict, echo.Map{"message": "active payment already exists"})
		case ps.ErrRemoteSessionFailure:
			return c.JSON(http.StatusBadGateway, echo.Map{"message": "payment provider unavailable"})
		default:
			h.Log.Error("payment create", "err", err)
			return c.JSON(http.StatusInternalServerError, echo.Map{"message": "internal error"})
		}
	}
	return c.JSON(http.StatusCreated, p)
}

// POST /v1/payments/:id/renew
func (h *Controller) Renew(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"message": "invalid id"})
	}
	uid, _ := c.Get("user_id").(int64)

	p, err := h.Svc.Renew(c.Request().Context(), uid, id)
	if err != nil {
		switch apperr.CodeOf(err) {
		case ps.ErrNotFound:
			return c.JSON(http.StatusNotFound, echo.Map{"message": "payment not found"})
		case ps.ErrNotOwner:
			return c.JSON(http.StatusForbidden, echo.Map{"message": "forbidden"})
		case ps.ErrNotRenewable:
			return c.JSON(http.StatusConflict, echo.Map{"message": "payment is not renewable"})
		case ps.ErrRemoteSessionFailure:
			return c.JSON(http.StatusBadGateway, echo.Map{"message": "payment provider unavailable"})
		default:
			h.Log.Error("payment renew", "err", err)
			return c.JSON(http.StatusInternalServerError, echo.Map{"message": "internal error"})
		}
	}
	return c.JSON(http.StatusOK, p)
}

// GET /v1/payments
func (h *Controller) List(c echo.Context) error {
	uid, _ := c.Get("user_id").(int64)
	rows, err := h.Svc.List(c.Request().Context(), uid)
	if err != nil {
		h.Log.Error("payment list", "err", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"message": "internal error"})
	}
	return c.JSON(http.StatusOK, echo.Map{"data": rows})
}

// GET /v1/payments/:id
func (h *Controller) Detail(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"message": "invalid id"})
	}
	uid, _ := c.Get("user_id").(int64)

	p, err := h.Svc.Detail(c.Request().Context(), uid, id)
	if err != nil {
		switch apperr.CodeOf(err) {
		case ps.ErrNotFound:
			return c.JSON(http.StatusNotFound, echo.Map{"message": "payment not found"})
		case ps.ErrNotOwner:
			return c.JSON(http.StatusForbidden, echo.Map{"message": "forbidden"})
		default:
			h.Log.Error("payment detail", "err", err)
			return c.JSON(http.StatusInternalServerError, echo.Map{"message": "internal error"})
		}
	}
	return c.JSON(http.StatusOK, p)
}

// POST /v1/payments/webhook
func (h *Controller) HandleStripeWebhook(c echo.Context) error {
	sig := c.Request().Header.Get("Stripe-Signature")
	raw, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"message": "unreadable body"})
	}

	if err := h.Svc.HandleStripeWebhook(c.Request().Context(), sig, raw); err != nil {
		if apperr.CodeOf(err) == ps.ErrSignatureInvalid {
			return c.JSON(http.StatusBadRequest, echo.Map{"message": "invalid signature"})
		}
		h.Log.Error("webhook", "err", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"message": "internal error"})
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "ok"})
}

// GET /v1/payments/success
func (h *Controller) Success(c echo.Context) error {
	return h.sessionState(c, "payment completed")
}

// GET /v1/payments/cancel
func (h *Controller) Cancel(c echo.Context) error {
	return h.sessionState(c, "payment canceled, the session stays open for 24 hours")
}

func (h *Controller) sessionState(c echo.Context, note string) error {
	sessionID := c.QueryParam("session_id")
	if sessionID == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"message": "missing session_id"})
	}
	sess, err := h.Svc.SessionState(c.Request().Context(), sessionID)
	if err != nil {
		if apperr.CodeOf(err) == ps.ErrNotFound {
			return c.JSON(http.StatusNotFound, echo.Map{"message": "session not found"})
		}
		h.Log.Error("session state", "err", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"message": "internal error"})
	}
	return c.JSON(http.StatusOK, echo.Map{
		"message":        note,
		"session_id":     sess.ID,
		"status":         sess.Status,
		"payment_status": sess.PaymentStatus,
	})
}
