package controllers

import (
	"net/http"
	"time"

	"github.com/fitlife/fitlife-sync/internal/domain/entities"
	"github.com/fitlife/fitlife-sync/internal/interfaces/presenters"
	"github.com/fitlife/fitlife-sync/internal/usecases/notification"
	pkgerrors "github.com/fitlife/fitlife-sync/pkg/errors"
	"github.com/labstack/echo/v4"
)

// AdminController exposes staff-only delivery operations
type AdminController struct {
	sendNotificationUC *notification.SendNotificationUseCase
	now                func() time.Time
}

func NewAdminController(sendNotificationUC *notification.SendNotificationUseCase) *AdminController {
	return &AdminController{sendNotificationUC: sendNotificationUC, now: time.Now}
}

type AdminSendRequest struct {
	MemberIDs   []string       `json:"memberIds" validate:"required,min=1,dive,required"`
	Title       string         `json:"title" validate:"required,max=200"`
	Message     string         `json:"message" validate:"required,max=2000"`
	Type        string         `json:"type" validate:"omitempty,oneof=membership appointment promotion workout generic"`
	Data        map[string]any `json:"data,omitempty"`
	ScheduledAt *time.Time     `json:"scheduledAt,omitempty"`
}

// Send handles POST /admin/notifications/send
func (h *AdminController) Send(c echo.Context) error {
	var req AdminSendRequest
	if err := decodeJSONBody(c, &req, false); err != nil {
		return err
	}

	kind, err := entities.ParseNotificationKind(req.Type)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid notification type")
	}
	payload, err := entities.DecodePayload(kind, req.Data)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid notification data")
	}

	members := make([]entities.MemberID, len(req.MemberIDs))
	for i, id := range req.MemberIDs {
		members[i] = entities.MemberID(id)
	}

	resp, err := h.sendNotificationUC.SendBulk(c.Request().Context(), &notification.SendBulkRequest{
		MemberIDs:   members,
		Title:       req.Title,
		Message:     req.Message,
		Payload:     payload,
		ScheduledAt: req.ScheduledAt,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, presenters.PresentBulk(resp))
}

// DeliverDue handles POST /admin/notifications/deliver-due
func (h *AdminController) DeliverDue(c echo.Context) error {
	resp, err := h.sendNotificationUC.DeliverDue(c.Request().Context(), h.now())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, presenters.PresentDeliverDue(resp))
}
