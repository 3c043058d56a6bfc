package shopify

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ==================== 错误分类 ====================

// APIError 远端明确拒绝的终态错误（4xx，不含 429）
// 瞬态错误（网络、5xx、限流）在传输层内部重试，不会以此类型浮出
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("shopify api error [%d %s]: %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("shopify api error [%d]: %s", e.Status, e.Message)
}

// ErrDailyVariantQuota 当日变体创建配额耗尽
// 日历日内不可恢复：调用方必须停止后续提交，资产保持 pending
var ErrDailyVariantQuota = errors.New("shopify: 当日变体创建配额已耗尽")

// IsUserInput 终态输入错误（远端校验拒绝）
func IsUserInput(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr)
}

// IsNotFound 此前同步过的远端 id 已失效（404）
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound
}

// IsVariantQuota 逐条同步路径的配额命中信号：422 且报文含 "variant"
func IsVariantQuota(err error) bool {
	if errors.Is(err, ErrDailyVariantQuota) {
		return true
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.Status == http.StatusUnprocessableEntity &&
		strings.Contains(strings.ToLower(apiErr.Message), "variant")
}

// IsThrottleMessage 批量结果行级别的配额信号
func IsThrottleMessage(code, message string) bool {
	return code == "VARIANT_THROTTLE_EXCEEDED" ||
		strings.Contains(message, "Daily variant creation limit")
}
