package shopify

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	retry "github.com/avast/retry-go/v4"
	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// ==================== 传输层常量 ====================

const (
	defaultMaxInflight    = 10
	defaultRequestTimeout = 60 * time.Second
	defaultUploadTimeout  = 900 * time.Second

	defaultRateLimitWait  = 2 * time.Second
	maxRateLimitRetries   = 10
	defaultServerWait     = 3 * time.Second
	defaultServerRetries  = 3
	defaultNetworkRetries = 5
	defaultNetworkBase    = 2 * time.Second
	defaultNetworkCap     = 30 * time.Second
	defaultUploadRetries  = 5

	// 令牌桶安全余量：剩余额度低于该值时主动降速
	callLimitHeadroom = 10
)

// RequestEvent 每次请求尝试产出一条事件（含重试）
type RequestEvent struct {
	Path      string `json:"path"`
	Status    int    `json:"status"`
	Attempt   int    `json:"attempt"`
	ElapsedMS int64  `json:"elapsed_ms"`
}

// RequestSink 事件出口，nil 表示不观测
type RequestSink func(RequestEvent)

// Options 传输层可调参数，零值取默认
// 重试间隔做成字段，测试里可以缩到毫秒级
type Options struct {
	StoreDomain string
	APIVersion  string
	BaseURL     string // 覆盖默认拼接的地址，测试用
	Tokens      TokenSource
	Logger      zerolog.Logger
	Sink        RequestSink

	MaxInflight    int64
	RequestTimeout time.Duration
	UploadTimeout  time.Duration

	RateLimitWait  time.Duration
	ServerWait     time.Duration
	ServerRetries  int
	NetworkRetries int
	NetworkBase    time.Duration
	NetworkCap     time.Duration
	UploadRetries  int
}

func (o *Options) fill() {
	if o.MaxInflight <= 0 {
		o.MaxInflight = defaultMaxInflight
	}
	if o.RequestTimeout <= 0 {
		o.RequestTimeout = defaultRequestTimeout
	}
	if o.UploadTimeout <= 0 {
		o.UploadTimeout = defaultUploadTimeout
	}
	if o.RateLimitWait <= 0 {
		o.RateLimitWait = defaultRateLimitWait
	}
	if o.ServerWait <= 0 {
		o.ServerWait = defaultServerWait
	}
	if o.ServerRetries <= 0 {
		o.ServerRetries = defaultServerRetries
	}
	if o.NetworkRetries <= 0 {
		o.NetworkRetries = defaultNetworkRetries
	}
	if o.NetworkBase <= 0 {
		o.NetworkBase = defaultNetworkBase
	}
	if o.NetworkCap <= 0 {
		o.NetworkCap = defaultNetworkCap
	}
	if o.UploadRetries <= 0 {
		o.UploadRetries = defaultUploadRetries
	}
}

// ==================== 客户端 ====================

// Client Shopify Admin API 传输层
// 所有瞬态故障（429、502/503、网络超时）在此层吸收，
// 上层服务只会看到成功或终态 APIError
type Client struct {
	rest   *resty.Client
	upload *resty.Client
	tokens TokenSource
	sem    *semaphore.Weighted
	bucket *rate.Limiter
	opts   Options
	log    zerolog.Logger
	sink   RequestSink

	coolMu    sync.Mutex
	coolUntil time.Time
}

func NewClient(opts Options) *Client {
	opts.fill()
	base := opts.BaseURL
	if base == "" {
		base = fmt.Sprintf("https://%s/admin/api/%s", opts.StoreDomain, opts.APIVersion)
	}
	return &Client{
		rest: resty.New().
			SetBaseURL(base).
			SetTimeout(opts.RequestTimeout).
			SetHeader("Accept", "application/json"),
		upload: resty.New().SetTimeout(opts.UploadTimeout),
		tokens: opts.Tokens,
		sem:    semaphore.NewWeighted(opts.MaxInflight),
		// REST 令牌桶恢复速率 2/s，预留 4 个突发
		bucket: rate.NewLimiter(rate.Limit(2), 4),
		opts:   opts,
		log:    opts.Logger,
		sink:   opts.Sink,
	}
}

// CoolDownUntil 当前全局冷却截止时间（零值表示未冷却）
func (c *Client) CoolDownUntil() time.Time {
	c.coolMu.Lock()
	defer c.coolMu.Unlock()
	return c.coolUntil
}

func (c *Client) setCoolDown(until time.Time) {
	c.coolMu.Lock()
	defer c.coolMu.Unlock()
	if until.After(c.coolUntil) {
		c.coolUntil = until
	}
}

func (c *Client) waitCoolDown(ctx context.Context) error {
	until := c.CoolDownUntil()
	if d := time.Until(until); d > 0 {
		if err := sleepCtx(ctx, d); err != nil {
			return err
		}
	}
	return c.bucket.Wait(ctx)
}

// noteCallLimit 解析 X-Shopify-Shop-Api-Call-Limit ("32/40")，
// 余量不足时设置短冷却，让后续请求主动让出
func (c *Client) noteCallLimit(header string) {
	if header == "" {
		return
	}
	parts := strings.SplitN(header, "/", 2)
	if len(parts) != 2 {
		return
	}
	used, err1 := strconv.Atoi(strings.TrimSpace(parts[0]))
	max, err2 := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err1 != nil || err2 != nil || max <= 0 {
		return
	}
	if max-used < callLimitHeadroom {
		deficit := callLimitHeadroom - (max - used)
		c.setCoolDown(time.Now().Add(time.Duration(deficit) * 500 * time.Millisecond))
	}
}

// ==================== REST ====================

func (c *Client) Get(ctx context.Context, path string, out any) error {
	return c.do(ctx, http.MethodGet, path, nil, out)
}

func (c *Client) Post(ctx context.Context, path string, body, out any) error {
	return c.do(ctx, http.MethodPost, path, body, out)
}

func (c *Client) Put(ctx context.Context, path string, body, out any) error {
	return c.do(ctx, http.MethodPut, path, body, out)
}

func (c *Client) Delete(ctx context.Context, path string) error {
	return c.do(ctx, http.MethodDelete, path, nil, nil)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var netAttempts, serverAttempts, rateRetries, attempt int

	for {
		attempt++
		if err := c.waitCoolDown(ctx); err != nil {
			return err
		}
		if err := c.sem.Acquire(ctx, 1); err != nil {
			return err
		}
		token, err := c.tokens.Token(ctx)
		if err != nil {
			c.sem.Release(1)
			return err
		}

		req := c.rest.R().
			SetContext(ctx).
			SetHeader("X-Shopify-Access-Token", token)
		if body != nil {
			req.SetHeader("Content-Type", "application/json").SetBody(body)
		}

		start := time.Now()
		resp, err := req.Execute(method, path)
		c.sem.Release(1)

		status := 0
		if err == nil {
			status = resp.StatusCode()
		}
		c.emit(RequestEvent{Path: path, Status: status, Attempt: attempt, ElapsedMS: time.Since(start).Milliseconds()})

		if err != nil {
			// 网络/超时：指数退避加抖动
			netAttempts++
			if netAttempts > c.opts.NetworkRetries {
				return fmt.Errorf("请求 %s %s 网络重试耗尽: %w", method, path, err)
			}
			delay := backoff(netAttempts, c.opts.NetworkBase, c.opts.NetworkCap)
			c.log.Warn().Str("path", path).Int("attempt", netAttempts).Dur("delay", delay).Err(err).Msg("网络错误，准备重试")
			if serr := sleepCtx(ctx, delay); serr != nil {
				return serr
			}
			continue
		}

		c.noteCallLimit(resp.Header().Get("X-Shopify-Shop-Api-Call-Limit"))

		switch {
		case status == http.StatusTooManyRequests:
			rateRetries++
			if rateRetries > maxRateLimitRetries {
				return &APIError{Status: status, Message: "限流重试耗尽"}
			}
			wait := retryAfter(resp, c.opts.RateLimitWait)
			c.setCoolDown(time.Now().Add(wait))
			c.log.Warn().Str("path", path).Dur("wait", wait).Msg("命中限流，全局冷却")
			if serr := sleepCtx(ctx, wait); serr != nil {
				return serr
			}
			continue

		case status >= 500:
			serverAttempts++
			if serverAttempts >= c.opts.ServerRetries {
				return fmt.Errorf("请求 %s %s 服务端错误 %d（重试耗尽）", method, path, status)
			}
			if serr := sleepCtx(ctx, c.opts.ServerWait); serr != nil {
				return serr
			}
			continue

		case status >= 200 && status < 300:
			if out != nil && len(resp.Body()) > 0 {
				if uerr := json.Unmarshal(resp.Body(), out); uerr != nil {
					return fmt.Errorf("解析 %s 响应失败: %w", path, uerr)
				}
			}
			return nil

		default:
			return &APIError{Status: status, Message: restErrorMessage(resp.Body())}
		}
	}
}

// restErrorMessage 提取 {"errors": ...} 报文，保留原文便于回写资产
func restErrorMessage(body []byte) string {
	var envelope struct {
		Errors json.RawMessage `json:"errors"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil && len(envelope.Errors) > 0 {
		return string(envelope.Errors)
	}
	return string(body)
}

func retryAfter(resp *resty.Response, fallback time.Duration) time.Duration {
	if v := resp.Header().Get("Retry-After"); v != "" {
		if secs, err := strconv.ParseFloat(v, 64); err == nil && secs > 0 {
			return time.Duration(secs * float64(time.Second))
		}
	}
	return fallback
}

func backoff(attempt int, base, ceiling time.Duration) time.Duration {
	d := base << uint(attempt-1)
	if d > ceiling || d <= 0 {
		d = ceiling
	}
	return d + time.Duration(rand.Int63n(int64(time.Second)))
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (c *Client) emit(ev RequestEvent) {
	if c.sink != nil {
		c.sink(ev)
	}
}

// ==================== GraphQL ====================

type graphQLRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

type graphQLEnvelope struct {
	Data   json.RawMessage `json:"data"`
	Errors []struct {
		Message    string `json:"message"`
		Extensions struct {
			Code string `json:"code"`
		} `json:"extensions"`
	} `json:"errors"`
}

// GraphQL 发起 Admin GraphQL 调用，data 解析进 out
// THROTTLED 顶层错误按限流处理，复用 429 节奏
func (c *Client) GraphQL(ctx context.Context, query string, variables map[string]any, out any) error {
	var throttled int
	for {
		var envelope graphQLEnvelope
		if err := c.do(ctx, http.MethodPost, "graphql.json", graphQLRequest{Query: query, Variables: variables}, &envelope); err != nil {
			return err
		}
		if len(envelope.Errors) > 0 {
			if envelope.Errors[0].Extensions.Code == "THROTTLED" {
				throttled++
				if throttled > maxRateLimitRetries {
					return &APIError{Status: http.StatusTooManyRequests, Code: "THROTTLED", Message: envelope.Errors[0].Message}
				}
				c.setCoolDown(time.Now().Add(c.opts.RateLimitWait))
				if serr := sleepCtx(ctx, c.opts.RateLimitWait); serr != nil {
					return serr
				}
				continue
			}
			msgs := make([]string, 0, len(envelope.Errors))
			for _, e := range envelope.Errors {
				msgs = append(msgs, e.Message)
			}
			return &APIError{Status: http.StatusBadRequest, Code: envelope.Errors[0].Extensions.Code, Message: strings.Join(msgs, "; ")}
		}
		if out != nil && len(envelope.Data) > 0 {
			if err := json.Unmarshal(envelope.Data, out); err != nil {
				return fmt.Errorf("解析 graphql data 失败: %w", err)
			}
		}
		return nil
	}
}

// ==================== 分段上传 ====================

// UploadStagedFile 把本地文件按预签名参数推到暂存桶
// 表单字段按远端给定顺序写入，文件部分放最后
func (c *Client) UploadStagedFile(ctx context.Context, target *StagedTarget, filePath string) error {
	return retry.Do(
		func() error {
			f, err := os.Open(filePath)
			if err != nil {
				return retry.Unrecoverable(err)
			}
			defer f.Close()

			req := c.upload.R().SetContext(ctx)
			fields := make(map[string]string, len(target.Parameters))
			for _, p := range target.Parameters {
				fields[p.Name] = p.Value
			}
			req.SetMultipartFormData(fields)
			req.SetMultipartField("file", filepath.Base(filePath), "text/jsonl", f)

			resp, err := req.Post(target.URL)
			if err != nil {
				return err
			}
			if resp.StatusCode() >= 300 {
				return fmt.Errorf("分段上传失败: 状态 %d: %s", resp.StatusCode(), truncateBody(resp.String()))
			}
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(uint(c.opts.UploadRetries)),
		retry.Delay(c.opts.NetworkBase),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
	)
}

func truncateBody(s string) string {
	if len(s) > 500 {
		return s[:500]
	}
	return s
}
