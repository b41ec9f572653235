package service

import (
	"context"
	"errors"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/SergeiKhy/minilinks/internal/models"
	"github.com/SergeiKhy/minilinks/internal/repository"
	"go.uber.org/zap"
)

// Ошибки сервиса
var (
	ErrInvalidURL = errors.New("невалидный URL")
	ErrInvalidID  = errors.New("невалидный идентификатор ссылки")
)

// Константы сервиса
const (
	maxIDLength   = 64
	defaultScheme = "http://"
)

var (
	// Идентификатор используется как сегмент пути без экранирования
	idPattern     = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)
	schemePattern = regexp.MustCompile(`^\w+://`)
)

// Зарезервированные сегменты, занятые маршрутами API
var reservedIDs = map[string]bool{
	"api": true,
}

// LinkService интерфейс сервиса ссылок
type LinkService interface {
	Resolve(ctx context.Context, id string) (*models.Link, error)
	GetLink(ctx context.Context, id string) (*models.Link, error)
	CreateLink(ctx context.Context, input *models.CreateLinkInput) (*models.Link, error)
	UpdateLink(ctx context.Context, input *models.UpdateLinkInput) (*models.Link, error)
	DeleteLink(ctx context.Context, id string) error
}

// LinkServiceConfig необязательные параметры сервиса
type LinkServiceConfig struct {
	Now func() time.Time
}

// linkService реализация сервиса ссылок
type linkService struct {
	linkRepo repository.LinkRepository
	logger   *zap.Logger
	now      func() time.Time
}

// NewLinkService создаёт новый экземпляр сервиса
func NewLinkService(linkRepo repository.LinkRepository, logger *zap.Logger, cfg *LinkServiceConfig) LinkService {
	if cfg == nil {
		cfg = &LinkServiceConfig{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &linkService{
		linkRepo: linkRepo,
		logger:   logger,
		now:      now,
	}
}

// Resolve находит ссылку для редиректа и засчитывает переход
func (s *linkService) Resolve(ctx context.Context, id string) (*models.Link, error) {
	return s.linkRepo.IncrementClicks(ctx, id)
}

// GetLink возвращает запись без изменения счётчика
func (s *linkService) GetLink(ctx context.Context, id string) (*models.Link, error) {
	return s.linkRepo.GetByID(ctx, id)
}

// CreateLink создаёт новую короткую ссылку
func (s *linkService) CreateLink(ctx context.Context, input *models.CreateLinkInput) (*models.Link, error) {
	if err := validateID(input.ID); err != nil {
		return nil, err
	}

	target, err := normalizeURL(input.URL)
	if err != nil {
		return nil, err
	}

	now := s.now().Unix()
	link := &models.Link{
		ID:        input.ID,
		URL:       target,
		Note:      input.Note,
		CreatedAt: now,
		UpdatedAt: now,
		Clicks:    0,
	}

	if err := s.linkRepo.Create(ctx, link); err != nil {
		return nil, err
	}

	s.logger.Info("Link created", zap.String("id", link.ID), zap.String("url", link.URL))
	return link, nil
}

// UpdateLink применяет только переданные поля и всегда обновляет updated_at
func (s *linkService) UpdateLink(ctx context.Context, input *models.UpdateLinkInput) (*models.Link, error) {
	update := &models.LinkUpdate{
		Note:      input.Note,
		UpdatedAt: s.now().Unix(),
	}

	if input.URL != nil {
		target, err := normalizeURL(*input.URL)
		if err != nil {
			return nil, err
		}
		update.URL = &target
	}

	link, err := s.linkRepo.Update(ctx, input.ID, update)
	if err != nil {
		return nil, err
	}

	s.logger.Info("Link updated", zap.String("id", link.ID))
	return link, nil
}

// DeleteLink удаляет ссылку по идентификатору
func (s *linkService) DeleteLink(ctx context.Context, id string) error {
	if err := s.linkRepo.Delete(ctx, id); err != nil {
		return err
	}

	s.logger.Info("Link deleted", zap.String("id", id))
	return nil
}

// validateID проверяет, что идентификатор безопасен как сегмент URL-пути
func validateID(id string) error {
	if len(id) == 0 || len(id) > maxIDLength {
		return ErrInvalidID
	}
	if !idPattern.MatchString(id) || reservedIDs[strings.ToLower(id)] {
		return ErrInvalidID
	}
	return nil
}

// normalizeURL добавляет http://, если схема не указана, и проверяет результат
func normalizeURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.ContainsAny(raw, " \t\r\n") {
		return "", ErrInvalidURL
	}

	if !schemePattern.MatchString(raw) {
		raw = defaultScheme + raw
	}

	parsed, err := url.Parse(raw)
	if err != nil || parsed.Host == "" {
		return "", ErrInvalidURL
	}
	return raw, nil
}
