package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/saparbekov/pingpong-system/models"
	"github.com/saparbekov/pingpong-system/repositories"
)

type NotificationService interface {
	Notify(ctx context.Context, nType models.NotificationType, title, message string)
	List(ctx context.Context, unreadOnly bool, limit int) ([]*models.Notification, error)
	MarkRead(ctx context.Context, id int) error
	MarkAllRead(ctx context.Context) error
}

type notificationService struct {
	notificationRepo repositories.NotificationRepository
	logger           *slog.Logger
}

func NewNotificationService(notificationRepo repositories.NotificationRepository, logger *slog.Logger) NotificationService {
	return &notificationService{
		notificationRepo: notificationRepo,
		logger:           logger,
	}
}

// Notify сохраняет уведомление. Ошибка записи не должна ломать
// основную операцию, поэтому она только логируется.
func (s *notificationService) Notify(ctx context.Context, nType models.NotificationType, title, message string) {
	n := &models.Notification{
		Type:    nType,
		Title:   title,
		Message: message,
	}
	if err := s.notificationRepo.Create(ctx, n); err != nil {
		s.logger.ErrorContext(ctx, "failed to store notification",
			slog.String("title", title), slog.Any("error", err))
	}
}

func (s *notificationService) List(ctx context.Context, unreadOnly bool, limit int) ([]*models.Notification, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	list, err := s.notificationRepo.List(ctx, unreadOnly, limit)
	if err != nil {
		return nil, fmt.Errorf("listing notifications: %w", err)
	}
	return list, nil
}

func (s *notificationService) MarkRead(ctx context.Context, id int) error {
	err := s.notificationRepo.MarkRead(ctx, id)
	if errors.Is(err, repositories.ErrNotificationNotFound) {
		return ErrNotFound
	}
	return err
}

func (s *notificationService) MarkAllRead(ctx context.Context) error {
	return s.notificationRepo.MarkAllRead(ctx)
}
