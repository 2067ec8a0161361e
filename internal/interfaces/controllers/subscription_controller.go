package controllers

import (
	"net/http"

	"github.com/fitlife/fitlife-sync/internal/domain/entities"
	"github.com/fitlife/fitlife-sync/internal/interfaces/presenters"
	"github.com/fitlife/fitlife-sync/internal/usecases/notification"
	"github.com/fitlife/fitlife-sync/pkg/auth"
	pkgerrors "github.com/fitlife/fitlife-sync/pkg/errors"
	"github.com/labstack/echo/v4"
)

// SubscriptionController handles push subscription endpoints
type SubscriptionController struct {
	manageSubscriptionUC *notification.ManageSubscriptionUseCase
}

func NewSubscriptionController(manageSubscriptionUC *notification.ManageSubscriptionUseCase) *SubscriptionController {
	return &SubscriptionController{manageSubscriptionUC: manageSubscriptionUC}
}

type pushKeysRequest struct {
	P256dh string `json:"p256dh" validate:"required"`
	Auth   string `json:"auth" validate:"required"`
}

// SubscribeRequest mirrors PushSubscription.toJSON() plus device details.
type SubscribeRequest struct {
	Endpoint       string               `json:"endpoint" validate:"required,url"`
	ExpirationTime *int64               `json:"expirationTime,omitempty"`
	Keys           pushKeysRequest      `json:"keys"`
	DeviceInfo     *entities.DeviceInfo `json:"deviceInfo,omitempty"`
}

type UnsubscribeRequest struct {
	Endpoint string `json:"endpoint" validate:"required"`
}

// GetVAPIDPublicKey handles GET /vapid-public-key
func (h *SubscriptionController) GetVAPIDPublicKey(c echo.Context) error {
	key, err := h.manageSubscriptionUC.PublicKey()
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]string{"publicKey": key})
}

// Subscribe handles POST /push/subscribe
func (h *SubscriptionController) Subscribe(c echo.Context) error {
	memberID, err := memberFrom(c)
	if err != nil {
		return err
	}

	var req SubscribeRequest
	if err := decodeJSONBody(c, &req, false); err != nil {
		return err
	}

	device := req.DeviceInfo.Merge(entities.DeviceInfoFromUserAgent(c.Request().UserAgent()))
	resp, err := h.manageSubscriptionUC.Subscribe(c.Request().Context(), &notification.SubscribeRequest{
		MemberID:   memberID,
		Endpoint:   req.Endpoint,
		Keys:       entities.PushKeys{P256dh: req.Keys.P256dh, Auth: req.Keys.Auth},
		DeviceInfo: device,
	})
	if err != nil {
		return err
	}

	status := http.StatusOK
	if resp.Created {
		status = http.StatusCreated
	}
	return c.JSON(status, presenters.PresentSubscribe(resp))
}

// Unsubscribe handles POST /push/unsubscribe
func (h *SubscriptionController) Unsubscribe(c echo.Context) error {
	memberID, err := memberFrom(c)
	if err != nil {
		return err
	}

	var req UnsubscribeRequest
	if err := decodeJSONBody(c, &req, false); err != nil {
		return err
	}

	found, err := h.manageSubscriptionUC.Unsubscribe(c.Request().Context(), memberID, req.Endpoint)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]bool{"success": found})
}

func memberFrom(c echo.Context) (entities.MemberID, error) {
	claims := auth.ClaimsFrom(c)
	if claims == nil || claims.MemberID == "" {
		return "", pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	}
	return entities.MemberID(claims.MemberID), nil
}
