package shopify

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"sort"
)

// ==================== 批量结果解析 ====================

// 单行可能超过 bufio 默认上限（长报错报文），放宽到 4MB
const maxResultLineBytes = 4 * 1024 * 1024

// BulkVariant 结果里的变体快照
type BulkVariant struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	SKU   string `json:"sku"`
}

// BulkProductResult 一行 productSet 的落点
// LineNumber 是源 JSONL 的 0 基行号，即第 k 个投影资产
type BulkProductResult struct {
	LineNumber int
	ProductID  string
	Title      string
	Variants   []BulkVariant
	UserErrors []BulkUserError
	Throttled  bool
}

// Succeeded 远端接受且产出了商品
func (r *BulkProductResult) Succeeded() bool {
	return r.ProductID != "" && len(r.UserErrors) == 0
}

// ErrorText 拼接行级错误报文
func (r *BulkProductResult) ErrorText() string {
	if len(r.UserErrors) == 0 {
		return ""
	}
	text := r.UserErrors[0].String()
	for _, e := range r.UserErrors[1:] {
		text += "; " + e.String()
	}
	return text
}

// BulkResultSet 一个批次的全部结果
type BulkResultSet struct {
	Products  []BulkProductResult
	Succeeded int
	Failed    int
	Throttled int

	// 变体溢出行按父商品 gid 归组
	childVariants map[string][]BulkVariant
}

// VariantsFor 商品的变体列表：有内联节点用内联，
// 内联为空才回退到按 __parentId 归组的子行
func (s *BulkResultSet) VariantsFor(r *BulkProductResult) []BulkVariant {
	if len(r.Variants) > 0 {
		return r.Variants
	}
	return s.childVariants[r.ProductID]
}

// 结果行的联合形态：productSet 落点、带 __parentId 的子行，
// 或顶层 errors 数组（限流行就长这样，没有 productSet 包体）
type bulkResultLine struct {
	Data struct {
		ProductSet *productSetPayload `json:"productSet"`
	} `json:"data"`
	ProductSet *productSetPayload `json:"productSet"`

	Errors []bulkLineError `json:"errors"`

	ID       string `json:"id"`
	Title    string `json:"title"`
	SKU      string `json:"sku"`
	ParentID string `json:"__parentId"`

	LineNumber *int `json:"__lineNumber"`
}

type bulkLineError struct {
	Message    string `json:"message"`
	Extensions struct {
		Code string `json:"code"`
	} `json:"extensions"`
}

type productSetPayload struct {
	Product *struct {
		ID       string `json:"id"`
		Title    string `json:"title"`
		Variants struct {
			Nodes []BulkVariant `json:"nodes"`
		} `json:"variants"`
	} `json:"product"`
	UserErrors []BulkUserError `json:"userErrors"`
}

// ParseBulkResults 流式解析结果 JSONL
// 空行跳过；畸形行算一条失败而不中断整个批次
func ParseBulkResults(r io.Reader) (*BulkResultSet, error) {
	set := &BulkResultSet{childVariants: make(map[string][]BulkVariant)}
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxResultLineBytes)

	productIndex := 0
	for scanner.Scan() {
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}
		var line bulkResultLine
		if err := json.Unmarshal(raw, &line); err != nil {
			set.Failed++
			continue
		}

		// 子行：挂到父商品名下
		if line.ParentID != "" {
			set.childVariants[line.ParentID] = append(set.childVariants[line.ParentID],
				BulkVariant{ID: line.ID, Title: line.Title, SKU: line.SKU})
			continue
		}

		payload := line.ProductSet
		if payload == nil {
			payload = line.Data.ProductSet
		}
		if payload == nil && len(line.Errors) == 0 {
			continue
		}

		var result BulkProductResult
		if line.LineNumber != nil {
			result.LineNumber = *line.LineNumber
		} else {
			result.LineNumber = productIndex
		}
		productIndex++

		if payload != nil {
			result.UserErrors = payload.UserErrors
			if payload.Product != nil {
				result.ProductID = payload.Product.ID
				result.Title = payload.Product.Title
				result.Variants = payload.Product.Variants.Nodes
			}
			for _, e := range payload.UserErrors {
				if IsThrottleMessage(e.Code, e.Message) {
					result.Throttled = true
					break
				}
			}
		} else {
			// 整行被顶层 errors 拒绝，限流配额耗尽时远端用的就是这个形态
			for _, e := range line.Errors {
				result.UserErrors = append(result.UserErrors,
					BulkUserError{Code: e.Extensions.Code, Message: e.Message})
				if IsThrottleMessage(e.Extensions.Code, e.Message) {
					result.Throttled = true
				}
			}
		}

		switch {
		case result.Throttled:
			set.Throttled++
		case result.Succeeded():
			set.Succeeded++
		default:
			set.Failed++
		}
		set.Products = append(set.Products, result)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("读取批量结果失败: %w", err)
	}

	sort.Slice(set.Products, func(i, j int) bool {
		return set.Products[i].LineNumber < set.Products[j].LineNumber
	})
	return set, nil
}
