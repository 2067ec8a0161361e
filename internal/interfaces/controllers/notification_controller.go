package controllers

import (
	"net/http"

	"github.com/fitlife/fitlife-sync/internal/domain/entities"
	"github.com/fitlife/fitlife-sync/internal/interfaces/presenters"
	"github.com/fitlife/fitlife-sync/internal/usecases/notification"
	"github.com/labstack/echo/v4"
)

// NotificationController handles a member's notification inbox
type NotificationController struct {
	sendNotificationUC *notification.SendNotificationUseCase
	readStateUC        *notification.ReadStateUseCase
}

// NewNotificationController creates a new NotificationController
func NewNotificationController(
	sendNotificationUC *notification.SendNotificationUseCase,
	readStateUC *notification.ReadStateUseCase,
) *NotificationController {
	return &NotificationController{
		sendNotificationUC: sendNotificationUC,
		readStateUC:        readStateUC,
	}
}

type MarkReadRequest struct {
	IDs []string `json:"ids" validate:"required,min=1,dive,required"`
}

type SendTestRequest struct {
	Title   string `json:"title" validate:"max=200"`
	Message string `json:"message" validate:"max=2000"`
}

// List handles GET /notifications
func (h *NotificationController) List(c echo.Context) error {
	memberID, err := memberFrom(c)
	if err != nil {
		return err
	}
	page, err := queryInt(c, "page")
	if err != nil {
		return err
	}
	limit, err := queryInt(c, "limit")
	if err != nil {
		return err
	}
	unreadOnly, err := queryBool(c, "unreadOnly")
	if err != nil {
		return err
	}

	resp, err := h.readStateUC.List(c.Request().Context(), &notification.ListRequest{
		MemberID:   memberID,
		Page:       page,
		Limit:      limit,
		UnreadOnly: unreadOnly,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, presenters.PresentList(resp))
}

// MarkRead handles POST /notifications/mark-read
func (h *NotificationController) MarkRead(c echo.Context) error {
	memberID, err := memberFrom(c)
	if err != nil {
		return err
	}
	var req MarkReadRequest
	if err := decodeJSONBody(c, &req, false); err != nil {
		return err
	}

	ids := make([]entities.NotificationID, len(req.IDs))
	for i, id := range req.IDs {
		ids[i] = entities.NotificationID(id)
	}
	updated, err := h.readStateUC.MarkRead(c.Request().Context(), memberID, ids)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]int64{"updated": updated})
}

// MarkAllRead handles POST /notifications/mark-all-read
func (h *NotificationController) MarkAllRead(c echo.Context) error {
	memberID, err := memberFrom(c)
	if err != nil {
		return err
	}
	updated, err := h.readStateUC.MarkAllRead(c.Request().Context(), memberID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]int64{"updated": updated})
}

// UnreadCount handles GET /notifications/unread-count
func (h *NotificationController) UnreadCount(c echo.Context) error {
	memberID, err := memberFrom(c)
	if err != nil {
		return err
	}
	count, err := h.readStateUC.UnreadCount(c.Request().Context(), memberID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]int64{"count": count})
}

// SendTest handles POST /notifications/test
func (h *NotificationController) SendTest(c echo.Context) error {
	memberID, err := memberFrom(c)
	if err != nil {
		return err
	}
	var req SendTestRequest
	if err := decodeJSONBody(c, &req, true); err != nil {
		return err
	}

	resp, err := h.sendNotificationUC.SendTest(c.Request().Context(), memberID, req.Title, req.Message)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, presenters.PresentDelivery(resp))
}
