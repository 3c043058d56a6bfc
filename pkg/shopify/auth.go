package shopify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
)

// ==================== 凭证来源 ====================

// TokenSource 提供 Admin API 访问令牌
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken 固定令牌（自定义 App 的 Admin token）
func StaticToken(token string) TokenSource {
	return staticToken(token)
}

type staticToken string

func (s staticToken) Token(context.Context) (string, error) {
	if s == "" {
		return "", fmt.Errorf("访问令牌为空")
	}
	return string(s), nil
}

// ==================== client_credentials 轮换 ====================

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

// clientCredentials 通过 client_credentials 交换短期令牌，
// 缓存到过期前 5 分钟自动换新
type clientCredentials struct {
	clientID     string
	clientSecret string
	tokenURL     string
	http         *resty.Client

	mu        sync.Mutex
	token     string
	expiresAt time.Time
}

func NewClientCredentials(storeDomain, clientID, clientSecret string) TokenSource {
	return &clientCredentials{
		clientID:     clientID,
		clientSecret: clientSecret,
		tokenURL:     fmt.Sprintf("https://%s/admin/oauth/access_token", storeDomain),
		http:         resty.New().SetTimeout(30 * time.Second),
	}
}

func (c *clientCredentials) Token(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	// 提前 5 分钟换新，避免在途请求撞上过期边界
	if c.token != "" && time.Until(c.expiresAt) > 5*time.Minute {
		return c.token, nil
	}

	var tr tokenResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetFormData(map[string]string{
			"grant_type":    "client_credentials",
			"client_id":     c.clientID,
			"client_secret": c.clientSecret,
		}).
		SetResult(&tr).
		Post(c.tokenURL)
	if err != nil {
		return "", fmt.Errorf("令牌交换失败: %w", err)
	}
	if resp.StatusCode() != 200 || tr.AccessToken == "" {
		return "", fmt.Errorf("令牌交换失败: 状态 %d: %s", resp.StatusCode(), resp.String())
	}

	c.token = tr.AccessToken
	c.expiresAt = time.Now().Add(time.Duration(tr.ExpiresIn) * time.Second)
	return c.token, nil
}
