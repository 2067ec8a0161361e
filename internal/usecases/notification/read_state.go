package notification

import (
	"context"
	"fmt"
	"time"

	"github.com/fitlife/fitlife-sync/internal/domain/entities"
	"github.com/fitlife/fitlife-sync/internal/usecases/ports/repositories"
	pkgerrors "github.com/fitlife/fitlife-sync/pkg/errors"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// ReadStateUseCase lists notifications and tracks what a member has read.
// Unread counts are always derived from storage.
type ReadStateUseCase struct {
	notificationRepo repositories.NotificationRepository
	now              func() time.Time
}

func NewReadStateUseCase(notificationRepo repositories.NotificationRepository) *ReadStateUseCase {
	return &ReadStateUseCase{notificationRepo: notificationRepo, now: time.Now}
}

type ListRequest struct {
	MemberID   entities.MemberID
	Page       int
	Limit      int
	UnreadOnly bool
}

type ListResponse struct {
	Notifications []*entities.Notification
	Page          int
	Limit         int
	Total         int64
}

// List returns a page of the member's notifications, newest first.
func (uc *ReadStateUseCase) List(ctx context.Context, req *ListRequest) (*ListResponse, error) {
	if req == nil || req.MemberID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "member ID cannot be empty")
	}
	page := req.Page
	if page < 1 {
		page = 1
	}
	limit := req.Limit
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}

	items, total, err := uc.notificationRepo.FindByMember(ctx, req.MemberID, repositories.NotificationFilters{
		UnreadOnly: req.UnreadOnly,
		Limit:      limit,
		Offset:     (page - 1) * limit,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	return &ListResponse{Notifications: items, Page: page, Limit: limit, Total: total}, nil
}

// MarkRead marks the given notifications read. Already-read or foreign ids
// are ignored, so repeating the call changes nothing.
func (uc *ReadStateUseCase) MarkRead(ctx context.Context, memberID entities.MemberID, ids []entities.NotificationID) (int64, error) {
	if memberID == "" {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "member ID cannot be empty")
	}
	unique := dedupeIDs(ids)
	if len(unique) == 0 {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "at least one notification ID is required")
	}
	updated, err := uc.notificationRepo.MarkRead(ctx, memberID, unique, uc.now())
	if err != nil {
		return 0, fmt.Errorf("failed to mark notifications read: %w", err)
	}
	return updated, nil
}

func (uc *ReadStateUseCase) MarkAllRead(ctx context.Context, memberID entities.MemberID) (int64, error) {
	if memberID == "" {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "member ID cannot be empty")
	}
	updated, err := uc.notificationRepo.MarkAllRead(ctx, memberID, uc.now())
	if err != nil {
		return 0, fmt.Errorf("failed to mark all notifications read: %w", err)
	}
	return updated, nil
}

func (uc *ReadStateUseCase) UnreadCount(ctx context.Context, memberID entities.MemberID) (int64, error) {
	if memberID == "" {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "member ID cannot be empty")
	}
	count, err := uc.notificationRepo.CountUnread(ctx, memberID)
	if err != nil {
		return 0, fmt.Errorf("failed to count unread notifications: %w", err)
	}
	return count, nil
}

func dedupeIDs(ids []entities.NotificationID) []entities.NotificationID {
	seen := make(map[entities.NotificationID]struct{}, len(ids))
	out := make([]entities.NotificationID, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
