package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/SergeiKhy/minilinks/internal/middleware"
	"github.com/SergeiKhy/minilinks/internal/models"
	"github.com/SergeiKhy/minilinks/internal/repository"
	"github.com/SergeiKhy/minilinks/internal/service"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type LinkHandler struct {
	service service.LinkService
	baseURL string
	logger  *zap.Logger
}

// NewLinkHandler создаёт обработчик; пустой baseURL означает origin текущего запроса
func NewLinkHandler(service service.LinkService, baseURL string, logger *zap.Logger) *LinkHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LinkHandler{
		service: service,
		baseURL: strings.TrimRight(baseURL, "/"),
		logger:  logger,
	}
}

// LinkResponse запись ссылки: url это короткая ссылка, orig_url цель редиректа
type LinkResponse struct {
	ID        string  `json:"id"`
	URL       string  `json:"url"`
	OrigURL   string  `json:"orig_url"`
	Note      *string `json:"note"`
	CreatedAt int64   `json:"created_at"`
	UpdatedAt int64   `json:"updated_at"`
	Clicks    int64   `json:"clicks"`
}

// LinkQuery параметры /api; nil означает, что параметр не передан
type LinkQuery struct {
	ID   string  `form:"id" binding:"required"`
	URL  *string `form:"url"`
	Note *string `form:"note"`
}

type DeleteLinkResponse struct {
	DeletedID string `json:"deleted_id"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// Redirect godoc
// @Summary Redirect to the stored URL
// @Description Increments the click counter and answers 301
// @Tags links
// @Param id path string true "Short ID"
// @Success 301
// @Failure 404 {string} string "Link not found"
// @Router /{id} [get]
func (h *LinkHandler) Redirect(c *gin.Context) {
	id := c.Param("id")

	link, err := h.service.Resolve(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrLinkNotFound) {
			c.String(http.StatusNotFound, "Link not found")
			return
		}
		h.logger.Error("Failed to resolve link", zap.String("id", id), zap.Error(err), h.requestID(c))
		c.String(http.StatusInternalServerError, "Internal error")
		return
	}

	c.Redirect(http.StatusMovedPermanently, link.URL)
}

// GetLink godoc
// @Summary Get a link record
// @Description Returns the record without counting a click
// @Tags links
// @Produce json
// @Param id query string true "Short ID"
// @Success 200 {object} LinkResponse
// @Failure 400,401,404 {object} ErrorResponse
// @Router /api [get]
func (h *LinkHandler) GetLink(c *gin.Context) {
	query, ok := h.bindQuery(c)
	if !ok {
		return
	}

	link, err := h.service.GetLink(c.Request.Context(), query.ID)
	if err != nil {
		h.writeError(c, "get", err)
		return
	}

	c.JSON(http.StatusOK, h.toResponse(c, link))
}

// CreateLink godoc
// @Summary Create a short link
// @Tags links
// @Produce json
// @Param id query string true "Short ID"
// @Param url query string true "Target URL"
// @Param note query string false "Note"
// @Success 200 {object} LinkResponse
// @Failure 400,401,409 {object} ErrorResponse
// @Router /api [post]
func (h *LinkHandler) CreateLink(c *gin.Context) {
	query, ok := h.bindQuery(c)
	if !ok {
		return
	}

	input := &models.CreateLinkInput{
		ID:   query.ID,
		Note: query.Note,
	}
	if query.URL != nil {
		input.URL = *query.URL
	}

	link, err := h.service.CreateLink(c.Request.Context(), input)
	if err != nil {
		h.writeError(c, "create", err)
		return
	}

	c.JSON(http.StatusOK, h.toResponse(c, link))
}

// UpdateLink godoc
// @Summary Update a short link
// @Description Only supplied fields change; updated_at always refreshes
// @Tags links
// @Produce json
// @Param id query string true "Short ID"
// @Param url query string false "Target URL"
// @Param note query string false "Note"
// @Success 200 {object} LinkResponse
// @Failure 400,401,404 {object} ErrorResponse
// @Router /api [patch]
func (h *LinkHandler) UpdateLink(c *gin.Context) {
	query, ok := h.bindQuery(c)
	if !ok {
		return
	}

	input := &models.UpdateLinkInput{
		ID:   query.ID,
		URL:  query.URL,
		Note: query.Note,
	}

	link, err := h.service.UpdateLink(c.Request.Context(), input)
	if err != nil {
		h.writeError(c, "update", err)
		return
	}

	c.JSON(http.StatusOK, h.toResponse(c, link))
}

// DeleteLink godoc
// @Summary Delete a short link
// @Tags links
// @Produce json
// @Param id query string true "Short ID"
// @Success 200 {object} DeleteLinkResponse
// @Failure 400,401,404 {object} ErrorResponse
// @Router /api [delete]
func (h *LinkHandler) DeleteLink(c *gin.Context) {
	query, ok := h.bindQuery(c)
	if !ok {
		return
	}

	if err := h.service.DeleteLink(c.Request.Context(), query.ID); err != nil {
		h.writeError(c, "delete", err)
		return
	}

	c.JSON(http.StatusOK, DeleteLinkResponse{DeletedID: query.ID})
}

func (h *LinkHandler) bindQuery(c *gin.Context) (*LinkQuery, bool) {
	var query LinkQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "missing_id",
			Message: "Query parameter id is required",
		})
		return nil, false
	}
	return &query, true
}

// writeError переводит ошибки сервиса в HTTP-ответы
func (h *LinkHandler) writeError(c *gin.Context, op string, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidID):
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_id",
			Message: "ID may contain only letters, digits, '-' and '_' (max 64) and must not be reserved",
		})
	case errors.Is(err, service.ErrInvalidURL):
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_url",
			Message: "Invalid URL format",
		})
	case errors.Is(err, repository.ErrIDExists):
		c.JSON(http.StatusConflict, ErrorResponse{
			Error:   "conflict",
			Message: "Link with this id already exists",
		})
	case errors.Is(err, repository.ErrLinkNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error:   "not_found",
			Message: "Link not found",
		})
	default:
		h.logger.Error("Failed to "+op+" link", zap.Error(err), h.requestID(c))
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "internal_error",
			Message: "Failed to " + op + " link",
		})
	}
}

func (h *LinkHandler) toResponse(c *gin.Context, link *models.Link) LinkResponse {
	return LinkResponse{
		ID:        link.ID,
		URL:       h.origin(c) + "/" + link.ID,
		OrigURL:   link.URL,
		Note:      link.Note,
		CreatedAt: link.CreatedAt,
		UpdatedAt: link.UpdatedAt,
		Clicks:    link.Clicks,
	}
}

// origin возвращает базовый адрес сервиса без завершающего слеша
func (h *LinkHandler) origin(c *gin.Context) string {
	if h.baseURL != "" {
		return h.baseURL
	}

	scheme := "http"
	if c.Request.TLS != nil {
		scheme = "https"
	}
	if proto, ok := forwardedProto(c.GetHeader("X-Forwarded-Proto")); ok {
		scheme = proto
	}
	return scheme + "://" + c.Request.Host
}

// forwardedProto берёт первый элемент списка X-Forwarded-Proto (ближайший к клиенту
// прокси), принимаются только http и https
func forwardedProto(header string) (string, bool) {
	first, _, _ := strings.Cut(header, ",")
	proto := strings.ToLower(strings.TrimSpace(first))
	if proto == "http" || proto == "https" {
		return proto, true
	}
	return "", false
}

func (h *LinkHandler) requestID(c *gin.Context) zap.Field {
	return zap.String("request_id", middleware.GetRequestID(c))
}
