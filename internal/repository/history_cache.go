package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// HistoryCache 缓存每个会话最近一次的用户提问，供追问流程快速取用。
// 缓存未命中时调用方回退到消息表查询，缓存本身不保证存在。
type HistoryCache interface {
	GetLastQuestion(ctx context.Context, conversationID string) (string, bool)
	SetLastQuestion(ctx context.Context, conversationID, question string)
}

const lastQuestionTTL = 7 * 24 * time.Hour

type redisHistoryCache struct {
	redisClient *redis.Client
}

// NewHistoryCache 创建一个新的 HistoryCache 实例。
func NewHistoryCache(redisClient *redis.Client) HistoryCache {
	return &redisHistoryCache{redisClient: redisClient}
}

// GetLastQuestion 返回会话最近一次的用户提问。第二个返回值表示是否命中。
func (c *redisHistoryCache) GetLastQuestion(ctx context.Context, conversationID string) (string, bool) {
	key := fmt.Sprintf("conversation:%s:last_question", conversationID)
	question, err := c.redisClient.Get(ctx, key).Result()
	if err != nil {
		// redis.Nil 与连接错误一视同仁：未命中，走存储回退
		return "", false
	}
	return question, true
}

// SetLastQuestion 记录会话最近一次的用户提问，写入失败静默忽略。
func (c *redisHistoryCache) SetLastQuestion(ctx context.Context, conversationID, question string) {
	key := fmt.Sprintf("conversation:%s:last_question", conversationID)
	_ = c.redisClient.Set(ctx, key, question, lastQuestionTTL).Err()
}
