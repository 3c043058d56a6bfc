package shopify

import (
	"context"
	"fmt"
	"io"
	"strings"
)

// ==================== 批量变更协议 ====================

// 批量操作状态（远端枚举）
const (
	BulkStatusCreated   = "CREATED"
	BulkStatusRunning   = "RUNNING"
	BulkStatusCompleted = "COMPLETED"
	BulkStatusFailed    = "FAILED"
	BulkStatusCanceled  = "CANCELED"
	BulkStatusExpired   = "EXPIRED"
)

// BulkOperation 远端批量操作句柄
type BulkOperation struct {
	ID             string `json:"id"`
	Status         string `json:"status"`
	ErrorCode      string `json:"errorCode"`
	ObjectCount    string `json:"objectCount"`
	URL            string `json:"url"`
	PartialDataURL string `json:"partialDataUrl"`
}

// Done 是否到达终态
func (b *BulkOperation) Done() bool {
	switch b.Status {
	case BulkStatusCompleted, BulkStatusFailed, BulkStatusCanceled, BulkStatusExpired:
		return true
	}
	return false
}

// ResultURL 结果 JSONL 下载地址，FAILED 时可能只有部分数据
func (b *BulkOperation) ResultURL() string {
	if b.URL != "" {
		return b.URL
	}
	return b.PartialDataURL
}

// StagedTarget 预签名上传目标
type StagedTarget struct {
	URL         string            `json:"url"`
	ResourceURL string            `json:"resourceUrl"`
	Parameters  []StagedParameter `json:"parameters"`
}

type StagedParameter struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// StagedPath 暂存路径（"key" 参数），交给 bulkOperationRunMutation
func (t *StagedTarget) StagedPath() string {
	for _, p := range t.Parameters {
		if p.Name == "key" {
			return p.Value
		}
	}
	return ""
}

// BulkUserError 行级校验错误
type BulkUserError struct {
	Field   []string `json:"field"`
	Code    string   `json:"code"`
	Message string   `json:"message"`
}

func (e BulkUserError) String() string {
	if len(e.Field) > 0 {
		return fmt.Sprintf("%s: %s", strings.Join(e.Field, "."), e.Message)
	}
	return e.Message
}

// ==================== GraphQL 文本 ====================

const stagedUploadsCreateMutation = `
mutation stagedUploadsCreate($input: [StagedUploadInput!]!) {
  stagedUploadsCreate(input: $input) {
    stagedTargets {
      url
      resourceUrl
      parameters { name value }
    }
    userErrors { field message }
  }
}`

const bulkRunMutation = `
mutation bulkRun($mutation: String!, $path: String!) {
  bulkOperationRunMutation(mutation: $mutation, stagedUploadPath: $path) {
    bulkOperation { id status }
    userErrors { field message }
  }
}`

// productSetMutation 每行 JSONL 输入套用的变更模板
// 只取回与本地映射所需的最小字段集
const productSetMutation = `
mutation call($input: ProductSetInput!) {
  productSet(input: $input) {
    product {
      id
      title
      variants(first: 50) { nodes { id title sku } }
    }
    userErrors { field code message }
  }
}`

const currentBulkOperationQuery = `
query {
  currentBulkOperation(type: MUTATION) {
    id
    status
    errorCode
    objectCount
    url
    partialDataUrl
  }
}`

// ==================== 协议操作 ====================

// StagedUploadCreate 申请 JSONL 暂存目标
func (c *Client) StagedUploadCreate(ctx context.Context, filename string) (*StagedTarget, error) {
	var out struct {
		StagedUploadsCreate struct {
			StagedTargets []StagedTarget  `json:"stagedTargets"`
			UserErrors    []BulkUserError `json:"userErrors"`
		} `json:"stagedUploadsCreate"`
	}
	vars := map[string]any{
		"input": []map[string]any{{
			"resource":   "BULK_MUTATION_VARIABLES",
			"filename":   filename,
			"mimeType":   "text/jsonl",
			"httpMethod": "POST",
		}},
	}
	if err := c.GraphQL(ctx, stagedUploadsCreateMutation, vars, &out); err != nil {
		return nil, err
	}
	if len(out.StagedUploadsCreate.UserErrors) > 0 {
		return nil, &APIError{Status: 422, Message: out.StagedUploadsCreate.UserErrors[0].String()}
	}
	if len(out.StagedUploadsCreate.StagedTargets) == 0 {
		return nil, fmt.Errorf("stagedUploadsCreate 未返回上传目标")
	}
	target := out.StagedUploadsCreate.StagedTargets[0]
	if target.StagedPath() == "" {
		return nil, fmt.Errorf("上传目标缺少 key 参数")
	}
	return &target, nil
}

// RunProductSetBulk 以暂存路径启动 productSet 批量变更
func (c *Client) RunProductSetBulk(ctx context.Context, stagedPath string) (*BulkOperation, error) {
	var out struct {
		BulkOperationRunMutation struct {
			BulkOperation *BulkOperation  `json:"bulkOperation"`
			UserErrors    []BulkUserError `json:"userErrors"`
		} `json:"bulkOperationRunMutation"`
	}
	vars := map[string]any{
		"mutation": productSetMutation,
		"path":     stagedPath,
	}
	if err := c.GraphQL(ctx, bulkRunMutation, vars, &out); err != nil {
		return nil, err
	}
	if len(out.BulkOperationRunMutation.UserErrors) > 0 {
		return nil, &APIError{Status: 422, Message: out.BulkOperationRunMutation.UserErrors[0].String()}
	}
	if out.BulkOperationRunMutation.BulkOperation == nil {
		return nil, fmt.Errorf("bulkOperationRunMutation 未返回操作句柄")
	}
	return out.BulkOperationRunMutation.BulkOperation, nil
}

// CurrentBulkOperation 查询当前（或最近一次）MUTATION 类型批量操作
// 店铺同一时刻只允许一个批量变更在跑，启动前必须确认上一个已终态
func (c *Client) CurrentBulkOperation(ctx context.Context) (*BulkOperation, error) {
	var out struct {
		CurrentBulkOperation *BulkOperation `json:"currentBulkOperation"`
	}
	if err := c.GraphQL(ctx, currentBulkOperationQuery, nil, &out); err != nil {
		return nil, err
	}
	return out.CurrentBulkOperation, nil
}

// DownloadBulkResults 流式拉取结果 JSONL（预签名地址，不带鉴权头）
// 结果文件可能到百 MB 级别，绝不整包读入内存
func (c *Client) DownloadBulkResults(ctx context.Context, url string, w io.Writer) (int64, error) {
	resp, err := c.upload.R().
		SetContext(ctx).
		SetDoNotParseResponse(true).
		Get(url)
	if err != nil {
		return 0, fmt.Errorf("下载批量结果失败: %w", err)
	}
	body := resp.RawBody()
	defer body.Close()
	if resp.StatusCode() >= 300 {
		return 0, fmt.Errorf("下载批量结果失败: 状态 %d", resp.StatusCode())
	}
	return io.Copy(w, body)
}
