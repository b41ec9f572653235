package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/SergeiKhy/minilinks/internal/models"
	"github.com/redis/go-redis/v9"
)

// Каждая ссылка хранится хешем link:<id>. Проверка существования и запись
// выполняются одним Lua-скриптом, поэтому операции атомарны.

var createLinkScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
	return 0
end
redis.call('HSET', KEYS[1], unpack(ARGV))
return 1
`)

var incrementClicksScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
	return false
end
redis.call('HINCRBY', KEYS[1], 'clicks', 1)
return redis.call('HGETALL', KEYS[1])
`)

// ARGV: updated_at, флаг url, url, флаг note, note
var updateLinkScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
	return false
end
if ARGV[2] == '1' then
	redis.call('HSET', KEYS[1], 'url', ARGV[3])
end
if ARGV[4] == '1' then
	redis.call('HSET', KEYS[1], 'note', ARGV[5])
end
local updated = tonumber(ARGV[1])
local created = tonumber(redis.call('HGET', KEYS[1], 'created_at'))
if updated < created then
	updated = created
end
redis.call('HSET', KEYS[1], 'updated_at', updated)
return redis.call('HGETALL', KEYS[1])
`)

type redisLinkRepository struct {
	redis *RedisDB
}

func NewRedisLinkRepository(redis *RedisDB) LinkRepository {
	return &redisLinkRepository{redis: redis}
}

func (r *redisLinkRepository) Create(ctx context.Context, link *models.Link) error {
	args := []interface{}{
		"id", link.ID,
		"url", link.URL,
		"created_at", link.CreatedAt,
		"updated_at", link.UpdatedAt,
		"clicks", link.Clicks,
	}
	if link.Note != nil {
		args = append(args, "note", *link.Note)
	}

	created, err := createLinkScript.Run(ctx, r.redis.Client, []string{r.key(link.ID)}, args...).Int()
	if err != nil {
		return fmt.Errorf("failed to create link: %w", err)
	}
	if created == 0 {
		return ErrIDExists
	}
	return nil
}

func (r *redisLinkRepository) GetByID(ctx context.Context, id string) (*models.Link, error) {
	fields, err := r.redis.Client.HGetAll(ctx, r.key(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get link: %w", err)
	}
	if len(fields) == 0 {
		return nil, ErrLinkNotFound
	}
	return linkFromHash(fields)
}

func (r *redisLinkRepository) Update(ctx context.Context, id string, update *models.LinkUpdate) (*models.Link, error) {
	urlFlag, url := optionalArg(update.URL)
	noteFlag, note := optionalArg(update.Note)

	res, err := updateLinkScript.Run(ctx, r.redis.Client, []string{r.key(id)},
		update.UpdatedAt, urlFlag, url, noteFlag, note,
	).StringSlice()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrLinkNotFound
		}
		return nil, fmt.Errorf("failed to update link: %w", err)
	}
	return linkFromPairs(res)
}

func (r *redisLinkRepository) Delete(ctx context.Context, id string) error {
	deleted, err := r.redis.Client.Del(ctx, r.key(id)).Result()
	if err != nil {
		return fmt.Errorf("failed to delete link: %w", err)
	}
	if deleted == 0 {
		return ErrLinkNotFound
	}
	return nil
}

func (r *redisLinkRepository) IncrementClicks(ctx context.Context, id string) (*models.Link, error) {
	res, err := incrementClicksScript.Run(ctx, r.redis.Client, []string{r.key(id)}).StringSlice()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrLinkNotFound
		}
		return nil, fmt.Errorf("failed to increment clicks: %w", err)
	}
	return linkFromPairs(res)
}

func (r *redisLinkRepository) key(id string) string {
	return "link:" + id
}

func optionalArg(v *string) (string, string) {
	if v == nil {
		return "0", ""
	}
	return "1", *v
}

// linkFromPairs разбирает ответ HGETALL из скрипта: field, value, field, value...
func linkFromPairs(pairs []string) (*models.Link, error) {
	if len(pairs)%2 != 0 {
		return nil, fmt.Errorf("malformed link hash: %d elements", len(pairs))
	}
	fields := make(map[string]string, len(pairs)/2)
	for i := 0; i < len(pairs); i += 2 {
		fields[pairs[i]] = pairs[i+1]
	}
	return linkFromHash(fields)
}

func linkFromHash(fields map[string]string) (*models.Link, error) {
	link := &models.Link{
		ID:  fields["id"],
		URL: fields["url"],
	}
	if note, ok := fields["note"]; ok {
		link.Note = &note
	}

	var err error
	if link.CreatedAt, err = strconv.ParseInt(fields["created_at"], 10, 64); err != nil {
		return nil, fmt.Errorf("malformed created_at: %w", err)
	}
	if link.UpdatedAt, err = strconv.ParseInt(fields["updated_at"], 10, 64); err != nil {
		return nil, fmt.Errorf("malformed updated_at: %w", err)
	}
	if link.Clicks, err = strconv.ParseInt(fields["clicks"], 10, 64); err != nil {
		return nil, fmt.Errorf("malformed clicks: %w", err)
	}
	return link, nil
}
