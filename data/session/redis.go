package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/KotFed0t/paper_trading_web/config"
	"github.com/KotFed0t/paper_trading_web/utils"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var ErrNotFound = errors.New("session not found")

// RedisSession maps opaque cookie tokens to user ids with a TTL.
type RedisSession struct {
	redis *redis.Client
	cfg   *config.Config
}

func NewRedisSession(redisClient *redis.Client, cfg *config.Config) *RedisSession {
	return &RedisSession{redis: redisClient, cfg: cfg}
}

func sessionKey(token string) string {
	return fmt.Sprintf("session:%s", token)
}

func (s *RedisSession) Create(ctx context.Context, userID int64) (token string, err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)

	token = uuid.NewString()

	err = s.redis.Set(ctx, sessionKey(token), userID, s.cfg.SessionExpiration).Err()
	if err != nil {
		slog.Error("failed on redis.Set in session.Create", slog.String("rqID", rqID), slog.String("err", err.Error()))
		return "", err
	}

	return token, nil
}

func (s *RedisSession) GetUserID(ctx context.Context, token string) (int64, error) {
	rqID := utils.GetRequestIDFromCtx(ctx)

	res, err := s.redis.Get(ctx, sessionKey(token)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, ErrNotFound
		}
		slog.Error("failed on redis.Get in session.GetUserID", slog.String("rqID", rqID), slog.String("err", err.Error()))
		return 0, err
	}

	userID, err := strconv.ParseInt(res, 10, 64)
	if err != nil {
		slog.Error("can't parse user id from session value", slog.String("rqID", rqID), slog.String("value", res))
		return 0, err
	}

	return userID, nil
}

func (s *RedisSession) Delete(ctx context.Context, token string) error {
	rqID := utils.GetRequestIDFromCtx(ctx)

	err := s.redis.Del(ctx, sessionKey(token)).Err()
	if err != nil {
		slog.Error("failed on redis.Del in session.Delete", slog.String("rqID", rqID), slog.String("err", err.Error()))
		return err
	}

	return nil
}
