package service_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/SergeiKhy/minilinks/internal/models"
	"github.com/SergeiKhy/minilinks/internal/repository"
	"github.com/SergeiKhy/minilinks/internal/service"
	"github.com/SergeiKhy/minilinks/internal/service/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock управляемые часы для проверки временных меток
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// setupTestService создаёт тестовое окружение с моковым репозиторием
func setupTestService(t *testing.T) (service.LinkService, *mocks.MockLinkRepository, *fakeClock) {
	linkRepo := mocks.NewMockLinkRepository()
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	linkService := service.NewLinkService(linkRepo, zaptest.NewLogger(t), &service.LinkServiceConfig{
		Now: clock.Now,
	})
	return linkService, linkRepo, clock
}

func strPtr(s string) *string {
	return &s
}

// TestLinkService_CreateLink_Success проверяет успешное создание ссылки
func TestLinkService_CreateLink_Success(t *testing.T) {
	linkService, _, clock := setupTestService(t)

	link, err := linkService.CreateLink(context.Background(), &models.CreateLinkInput{
		ID:   "docs",
		URL:  "https://example.com/docs",
		Note: strPtr("documentation"),
	})

	require.NoError(t, err)
	assert.Equal(t, "docs", link.ID)
	assert.Equal(t, "https://example.com/docs", link.URL)
	require.NotNil(t, link.Note)
	assert.Equal(t, "documentation", *link.Note)
	assert.Equal(t, clock.Now().Unix(), link.CreatedAt)
	assert.Equal(t, link.CreatedAt, link.UpdatedAt)
	assert.Zero(t, link.Clicks)
}

// TestLinkService_CreateThenResolve проверяет редирект и счётчик переходов
func TestLinkService_CreateThenResolve(t *testing.T) {
	linkService, _, _ := setupTestService(t)
	ctx := context.Background()

	created, err := linkService.CreateLink(ctx, &models.CreateLinkInput{ID: "gh", URL: "https://github.com"})
	require.NoError(t, err)
	assert.Zero(t, created.Clicks)

	resolved, err := linkService.Resolve(ctx, "gh")
	require.NoError(t, err)
	assert.Equal(t, created.URL, resolved.URL)
	assert.Equal(t, int64(1), resolved.Clicks)
}

// TestLinkService_CreateLink_Duplicate проверяет конфликт идентификаторов
func TestLinkService_CreateLink_Duplicate(t *testing.T) {
	linkService, _, clock := setupTestService(t)
	ctx := context.Background()

	original, err := linkService.CreateLink(ctx, &models.CreateLinkInput{ID: "dup", URL: "https://first.example"})
	require.NoError(t, err)

	clock.Advance(time.Minute)
	link, err := linkService.CreateLink(ctx, &models.CreateLinkInput{ID: "dup", URL: "https://second.example"})
	assert.ErrorIs(t, err, repository.ErrIDExists)
	assert.Nil(t, link)

	// Существующая запись не изменилась
	stored, err := linkService.GetLink(ctx, "dup")
	require.NoError(t, err)
	assert.Equal(t, original, stored)
}

// TestLinkService_CreateLink_NormalizesURL проверяет добавление схемы
func TestLinkService_CreateLink_NormalizesURL(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "без схемы", input: "example.com", expected: "http://example.com"},
		{name: "https", input: "https://example.com", expected: "https://example.com"},
		{name: "http с путём", input: "http://example.com/a?b=c", expected: "http://example.com/a?b=c"},
		{name: "другая схема", input: "ftp://files.example.com", expected: "ftp://files.example.com"},
		{name: "пробелы по краям", input: "  example.com/path ", expected: "http://example.com/path"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			linkService, _, _ := setupTestService(t)
			link, err := linkService.CreateLink(context.Background(), &models.CreateLinkInput{ID: "x", URL: tt.input})
			require.NoError(t, err)
			assert.Equal(t, tt.expected, link.URL)
		})
	}
}

// TestLinkService_CreateLink_InvalidURL проверяет отклонение невалидного URL
func TestLinkService_CreateLink_InvalidURL(t *testing.T) {
	invalidURLs := []string{"", "   ", "exa mple.com", "http://", "http://bad host"}

	for _, raw := range invalidURLs {
		linkService, linkRepo, _ := setupTestService(t)
		link, err := linkService.CreateLink(context.Background(), &models.CreateLinkInput{ID: "x", URL: raw})
		assert.ErrorIs(t, err, service.ErrInvalidURL, "URL должен быть невалидным: %q", raw)
		assert.Nil(t, link)
		assert.Zero(t, linkRepo.Len())
	}
}

// TestLinkService_CreateLink_InvalidID проверяет валидацию идентификатора
func TestLinkService_CreateLink_InvalidID(t *testing.T) {
	invalidIDs := []string{
		"",
		"with space",
		"slash/inside",
		"query?x",
		"hash#tag",
		"percent%20",
		"ünïcode",
		"api",
		"API",
		string(make([]byte, 65)),
	}

	for _, id := range invalidIDs {
		linkService, linkRepo, _ := setupTestService(t)
		link, err := linkService.CreateLink(context.Background(), &models.CreateLinkInput{ID: id, URL: "example.com"})
		assert.ErrorIs(t, err, service.ErrInvalidID, "ID должен быть невалидным: %q", id)
		assert.Nil(t, link)
		assert.Zero(t, linkRepo.Len())
	}

	validIDs := []string{"a", "abc-123", "Under_score", "MiXeD42"}
	for _, id := range validIDs {
		linkService, _, _ := setupTestService(t)
		_, err := linkService.CreateLink(context.Background(), &models.CreateLinkInput{ID: id, URL: "example.com"})
		assert.NoError(t, err, "ID должен быть валидным: %q", id)
	}
}

// TestLinkService_UpdateLink_NoteOnly проверяет частичное обновление
func TestLinkService_UpdateLink_NoteOnly(t *testing.T) {
	linkService, _, clock := setupTestService(t)
	ctx := context.Background()

	created, err := linkService.CreateLink(ctx, &models.CreateLinkInput{ID: "n", URL: "example.com"})
	require.NoError(t, err)

	clock.Advance(90 * time.Second)
	updated, err := linkService.UpdateLink(ctx, &models.UpdateLinkInput{ID: "n", Note: strPtr("hello")})
	require.NoError(t, err)

	assert.Equal(t, created.URL, updated.URL)
	assert.Equal(t, created.CreatedAt, updated.CreatedAt)
	assert.Equal(t, created.UpdatedAt+90, updated.UpdatedAt)
	require.NotNil(t, updated.Note)
	assert.Equal(t, "hello", *updated.Note)
}

// TestLinkService_UpdateLink_URL проверяет нормализацию при обновлении URL
func TestLinkService_UpdateLink_URL(t *testing.T) {
	linkService, _, clock := setupTestService(t)
	ctx := context.Background()

	_, err := linkService.CreateLink(ctx, &models.CreateLinkInput{ID: "u", URL: "example.com", Note: strPtr("keep")})
	require.NoError(t, err)

	clock.Advance(time.Second)
	updated, err := linkService.UpdateLink(ctx, &models.UpdateLinkInput{ID: "u", URL: strPtr("example.org/new")})
	require.NoError(t, err)
	assert.Equal(t, "http://example.org/new", updated.URL)
	require.NotNil(t, updated.Note)
	assert.Equal(t, "keep", *updated.Note)

	_, err = linkService.UpdateLink(ctx, &models.UpdateLinkInput{ID: "u", URL: strPtr("")})
	assert.ErrorIs(t, err, service.ErrInvalidURL)
}

// TestLinkService_UpdateLink_NoFields проверяет, что без полей обновляется только updated_at
func TestLinkService_UpdateLink_NoFields(t *testing.T) {
	linkService, _, clock := setupTestService(t)
	ctx := context.Background()

	created, err := linkService.CreateLink(ctx, &models.CreateLinkInput{ID: "t", URL: "example.com"})
	require.NoError(t, err)

	clock.Advance(5 * time.Second)
	updated, err := linkService.UpdateLink(ctx, &models.UpdateLinkInput{ID: "t"})
	require.NoError(t, err)
	assert.Equal(t, created.URL, updated.URL)
	assert.Nil(t, updated.Note)
	assert.Greater(t, updated.UpdatedAt, created.UpdatedAt)
}

// TestLinkService_UpdateLink_NotFound проверяет ошибку для несуществующей ссылки
func TestLinkService_UpdateLink_NotFound(t *testing.T) {
	linkService, linkRepo, _ := setupTestService(t)

	link, err := linkService.UpdateLink(context.Background(), &models.UpdateLinkInput{ID: "missing", Note: strPtr("x")})
	assert.ErrorIs(t, err, repository.ErrLinkNotFound)
	assert.Nil(t, link)
	assert.Zero(t, linkRepo.Len())
}

// TestLinkService_UpdateLink_ClockSkew проверяет инвариант created_at <= updated_at
func TestLinkService_UpdateLink_ClockSkew(t *testing.T) {
	linkService, _, clock := setupTestService(t)
	ctx := context.Background()

	created, err := linkService.CreateLink(ctx, &models.CreateLinkInput{ID: "skew", URL: "example.com"})
	require.NoError(t, err)

	clock.Advance(-time.Hour)
	updated, err := linkService.UpdateLink(ctx, &models.UpdateLinkInput{ID: "skew", Note: strPtr("x")})
	require.NoError(t, err)
	assert.LessOrEqual(t, created.CreatedAt, updated.UpdatedAt)
}

// TestLinkService_DeleteThenResolve проверяет удаление ссылки
func TestLinkService_DeleteThenResolve(t *testing.T) {
	linkService, _, _ := setupTestService(t)
	ctx := context.Background()

	_, err := linkService.CreateLink(ctx, &models.CreateLinkInput{ID: "gone", URL: "example.com"})
	require.NoError(t, err)

	require.NoError(t, linkService.DeleteLink(ctx, "gone"))

	_, err = linkService.Resolve(ctx, "gone")
	assert.ErrorIs(t, err, repository.ErrLinkNotFound)

	err = linkService.DeleteLink(ctx, "gone")
	assert.ErrorIs(t, err, repository.ErrLinkNotFound)
}

// TestLinkService_Resolve_NotFound проверяет обработку несуществующей ссылки
func TestLinkService_Resolve_NotFound(t *testing.T) {
	linkService, _, _ := setupTestService(t)

	link, err := linkService.Resolve(context.Background(), "nonexistent")
	assert.ErrorIs(t, err, repository.ErrLinkNotFound)
	assert.Nil(t, link)
}

// TestLinkService_GetLink_DoesNotCount проверяет, что чтение не увеличивает счётчик
func TestLinkService_GetLink_DoesNotCount(t *testing.T) {
	linkService, _, _ := setupTestService(t)
	ctx := context.Background()

	_, err := linkService.CreateLink(ctx, &models.CreateLinkInput{ID: "peek", URL: "example.com"})
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		link, err := linkService.GetLink(ctx, "peek")
		require.NoError(t, err)
		assert.Zero(t, link.Clicks)
	}
}

// TestLinkService_StoreError проверяет проброс ошибок хранилища
func TestLinkService_StoreError(t *testing.T) {
	linkService, linkRepo, _ := setupTestService(t)
	storeErr := errors.New("connection refused")
	linkRepo.FailWith(storeErr)

	_, err := linkService.CreateLink(context.Background(), &models.CreateLinkInput{ID: "x", URL: "example.com"})
	assert.ErrorIs(t, err, storeErr)

	_, err = linkService.Resolve(context.Background(), "x")
	assert.ErrorIs(t, err, storeErr)
}

// TestLinkService_ConcurrentResolve проверяет, что N параллельных переходов дают ровно N кликов
func TestLinkService_ConcurrentResolve(t *testing.T) {
	linkService, _, _ := setupTestService(t)
	ctx := context.Background()

	_, err := linkService.CreateLink(ctx, &models.CreateLinkInput{ID: "hot", URL: "example.com"})
	require.NoError(t, err)

	const n = 200
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := linkService.Resolve(ctx, "hot")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	link, err := linkService.GetLink(ctx, "hot")
	require.NoError(t, err)
	assert.Equal(t, int64(n), link.Clicks)
}

// TestLinkService_ConcurrentCreate проверяет, что из параллельных созданий побеждает одно
func TestLinkService_ConcurrentCreate(t *testing.T) {
	linkService, linkRepo, _ := setupTestService(t)
	ctx := context.Background()

	const n = 20
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		conflicts int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := linkService.CreateLink(ctx, &models.CreateLinkInput{ID: "race", URL: "example.com"})
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				succeeded++
			} else if errors.Is(err, repository.ErrIDExists) {
				conflicts++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, succeeded)
	assert.Equal(t, n-1, conflicts)
	assert.Equal(t, 1, linkRepo.Len())
}

// TestLinkService_ClicksNeverDecrease проверяет монотонность счётчика при смешанных операциях
func TestLinkService_ClicksNeverDecrease(t *testing.T) {
	linkService, _, clock := setupTestService(t)
	ctx := context.Background()

	_, err := linkService.CreateLink(ctx, &models.CreateLinkInput{ID: "mono", URL: "example.com"})
	require.NoError(t, err)

	var last int64
	for i := 0; i < 10; i++ {
		link, err := linkService.Resolve(ctx, "mono")
		require.NoError(t, err)
		assert.GreaterOrEqual(t, link.Clicks, last)
		last = link.Clicks

		clock.Advance(time.Second)
		link, err = linkService.UpdateLink(ctx, &models.UpdateLinkInput{ID: "mono", Note: strPtr("n")})
		require.NoError(t, err)
		assert.Equal(t, last, link.Clicks)
	}
}
