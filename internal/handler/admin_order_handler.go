// internal/handler/admin_order_handler.go
package handler

import (
	"net/http"
	"strconv"

	"neurostore-be/internal/config"
	"neurostore-be/internal/middleware"
	repo "neurostore-be/internal/repository"
	"neurostore-be/internal/usecase"

	"github.com/labstack/echo/v4"
)

type AdminOrderHandler struct {
	uc *usecase.AdminOrderUsecase
}

func NewAdminOrderHandler(uc *usecase.AdminOrderUsecase) *AdminOrderHandler {
	return &AdminOrderHandler{uc: uc}
}

type AdminUpdateStatusRequest struct {
	Status string `json:"status"`
	Reason string `json:"reason"`
}

type AdminUpdateTrackingRequest struct {
	TrackingNumber string `json:"tracking_number"`
	TrackingLink   string `json:"tracking_link"`
}

type AdminOrderListResponse struct {
	Items []usecase.OrderOutput `json:"items"`
	Total int64                 `json:"total"`
	Page  int                   `json:"page"`
	Limit int                   `json:"limit"`
}

func (h *AdminOrderHandler) RegisterRoutes(e *echo.Echo, cfg config.Config, revocation middleware.RevocationStore) {
	admin := e.Group("/admin")
	admin.Use(middleware.AuthJWT(cfg))
	admin.Use(middleware.TokenRevocationGuard(revocation))
	admin.Use(middleware.AdminRoleGuard())

	admin.GET("/orders", h.list)
	admin.GET("/orders/:id", h.detail)
	admin.PUT("/orders/:id/status", h.updateStatus)
	admin.PUT("/orders/:id/tracking", h.updateTracking)
	admin.GET("/audit-logs", h.listAuditLogs)
}

func (h *AdminOrderHandler) list(c echo.Context) error {
	page := 1
	if v := c.QueryParam("page"); v != "" {
		p, err := strconv.Atoi(v)
		if err != nil {
			return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid page", Code: usecase.CodeValidation})
		}
		page = p
	}

	limit := 20
	if v := c.QueryParam("limit"); v != "" {
		l, err := strconv.Atoi(v)
		if err != nil {
			return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid limit", Code: usecase.CodeValidation})
		}
		limit = l
	}

	f := repo.AdminOrderListFilter{
		Page:   page,
		Limit:  limit,
		Status: c.QueryParam("status"),
	}

	if v := c.QueryParam("user_id"); v != "" {
		uid, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid user_id", Code: usecase.CodeValidation})
		}
		f.UserID = &uid
	}
	if t, ok := usecase.ParseDateTimeRFC3339(c.QueryParam("from")); ok {
		f.From = t
	}
	if t, ok := usecase.ParseDateTimeRFC3339(c.QueryParam("to")); ok {
		f.To = t
	}

	items, total, err := h.uc.List(c.Request().Context(), f)
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusOK, AdminOrderListResponse{
		Items: items,
		Total: total,
		Page:  page,
		Limit: limit,
	})
}

func (h *AdminOrderHandler) detail(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid id", Code: usecase.CodeValidation})
	}

	out, err := h.uc.Get(c.Request().Context(), id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *AdminOrderHandler) updateStatus(c echo.Context) error {
	adminID, ok := getUserIDFromContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized", Code: usecase.CodeUnauthorized})
	}

	orderID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid id", Code: usecase.CodeValidation})
	}

	var req AdminUpdateStatusRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid body", Code: usecase.CodeValidation})
	}

	if err := h.uc.UpdateStatus(
		c.Request().Context(),
		adminID,
		orderID,
		usecase.AdminUpdateOrderStatusInput{Status: req.Status, Reason: req.Reason},
	); err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (h *AdminOrderHandler) updateTracking(c echo.Context) error {
	adminID, ok := getUserIDFromContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized", Code: usecase.CodeUnauthorized})
	}

	orderID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid id", Code: usecase.CodeValidation})
	}

	var req AdminUpdateTrackingRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid body", Code: usecase.CodeValidation})
	}

	if err := h.uc.UpdateTracking(
		c.Request().Context(),
		adminID,
		orderID,
		usecase.AdminUpdateTrackingInput{
			TrackingNumber: req.TrackingNumber,
			TrackingLink:   req.TrackingLink,
		},
	); err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (h *AdminOrderHandler) listAuditLogs(c echo.Context) error {
	f := repo.AuditLogFilter{Limit: 50}

	if v := c.QueryParam("limit"); v != "" {
		l, err := strconv.Atoi(v)
		if err != nil {
			return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid limit", Code: usecase.CodeValidation})
		}
		f.Limit = l
	}
	if v := c.QueryParam("offset"); v != "" {
		o, err := strconv.Atoi(v)
		if err != nil {
			return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid offset", Code: usecase.CodeValidation})
		}
		f.Offset = o
	}
	if v := c.QueryParam("resource_id"); v != "" {
		rid, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid resource_id", Code: usecase.CodeValidation})
		}
		f.ResourceID = &rid
	}

	out, err := h.uc.ListAuditLogs(c.Request().Context(), f)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}
