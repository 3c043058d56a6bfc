package shopify

import (
	"strings"
	"testing"
)

// ==================== 结果解析测试 ====================

const sampleResults = `{"data":{"productSet":{"product":{"id":"gid://shopify/Product/100","title":"P0","variants":{"nodes":[{"id":"gid://shopify/ProductVariant/1000","title":"30x40 cm","sku":"NP-aaaa-30x40cm"}]}},"userErrors":[]}},"__lineNumber":0}
{"data":{"productSet":{"product":null,"userErrors":[{"field":["input","title"],"code":"INVALID","message":"Title can't be blank"}]}},"__lineNumber":1}
{"data":{"productSet":{"product":null,"userErrors":[{"field":[],"code":"VARIANT_THROTTLE_EXCEEDED","message":"Daily variant creation limit reached"}]}},"__lineNumber":2}
{"data":{"productSet":{"product":{"id":"gid://shopify/Product/103","title":"P3","variants":{"nodes":[]}},"userErrors":[]}},"__lineNumber":3}
{"id":"gid://shopify/ProductVariant/2000","title":"30x40 cm","sku":"NP-bbbb-30x40cm","__parentId":"gid://shopify/Product/103"}
{"id":"gid://shopify/ProductVariant/2001","title":"50x70 cm","sku":"NP-bbbb-50x70cm","__parentId":"gid://shopify/Product/103"}`

func TestParseBulkResults_Taxonomy(t *testing.T) {
	set, err := ParseBulkResults(strings.NewReader(sampleResults))
	if err != nil {
		t.Fatalf("解析失败: %v", err)
	}

	if len(set.Products) != 4 {
		t.Fatalf("products = %d, want 4", len(set.Products))
	}
	if set.Succeeded != 2 || set.Failed != 1 || set.Throttled != 1 {
		t.Errorf("计数 = %d/%d/%d, want 2/1/1", set.Succeeded, set.Failed, set.Throttled)
	}

	// 行号即源文件位置
	for i, p := range set.Products {
		if p.LineNumber != i {
			t.Errorf("products[%d].LineNumber = %d", i, p.LineNumber)
		}
	}

	if !set.Products[0].Succeeded() {
		t.Error("第 0 行应判成功")
	}
	if set.Products[1].Succeeded() || set.Products[1].Throttled {
		t.Error("第 1 行应是普通失败")
	}
	if !strings.Contains(set.Products[1].ErrorText(), "Title can't be blank") {
		t.Errorf("错误报文丢失: %s", set.Products[1].ErrorText())
	}
	if !set.Products[2].Throttled {
		t.Error("第 2 行应判限流")
	}
}

func TestParseBulkResults_VariantsFor(t *testing.T) {
	set, err := ParseBulkResults(strings.NewReader(sampleResults))
	if err != nil {
		t.Fatalf("解析失败: %v", err)
	}

	// 内联节点路径
	inline := set.VariantsFor(&set.Products[0])
	if len(inline) != 1 || inline[0].SKU != "NP-aaaa-30x40cm" {
		t.Errorf("内联变体 = %+v", inline)
	}

	// 子行路径：内联为空时以 __parentId 归组的子行为准
	children := set.VariantsFor(&set.Products[3])
	if len(children) != 2 {
		t.Fatalf("子行变体 = %d, want 2", len(children))
	}
	if children[0].ID != "gid://shopify/ProductVariant/2000" {
		t.Errorf("子行顺序错乱: %+v", children)
	}
}

// 两边都有时内联优先
func TestParseBulkResults_InlinePrecedence(t *testing.T) {
	input := `{"data":{"productSet":{"product":{"id":"gid://shopify/Product/9","title":"P","variants":{"nodes":[{"id":"gid://shopify/ProductVariant/90","title":"30x40 cm","sku":"NP-cccc-30x40cm"}]}},"userErrors":[]}},"__lineNumber":0}
{"id":"gid://shopify/ProductVariant/91","title":"50x70 cm","sku":"NP-cccc-50x70cm","__parentId":"gid://shopify/Product/9"}`

	set, err := ParseBulkResults(strings.NewReader(input))
	if err != nil {
		t.Fatalf("解析失败: %v", err)
	}
	got := set.VariantsFor(&set.Products[0])
	if len(got) != 1 || got[0].ID != "gid://shopify/ProductVariant/90" {
		t.Errorf("内联节点应优先于子行: %+v", got)
	}
}

// 限流时远端不给 productSet 包体，整行只剩顶层 errors 数组
func TestParseBulkResults_TopLevelErrorLines(t *testing.T) {
	input := `{"data":{"productSet":{"product":{"id":"gid://shopify/Product/100","title":"P0","variants":{"nodes":[]}},"userErrors":[]}},"__lineNumber":0}
{"errors":[{"message":"Daily variant creation limit reached","extensions":{"code":"VARIANT_THROTTLE_EXCEEDED"}}],"data":null,"__lineNumber":1}
{"errors":[{"message":"Daily variant creation limit reached","extensions":{"code":"VARIANT_THROTTLE_EXCEEDED"}}],"data":null,"__lineNumber":2}
{"errors":[{"message":"Internal error","extensions":{"code":"INTERNAL_SERVER_ERROR"}}],"data":null,"__lineNumber":3}`

	set, err := ParseBulkResults(strings.NewReader(input))
	if err != nil {
		t.Fatalf("解析失败: %v", err)
	}
	if len(set.Products) != 4 {
		t.Fatalf("products = %d, want 4", len(set.Products))
	}
	if set.Succeeded != 1 || set.Throttled != 2 || set.Failed != 1 {
		t.Errorf("计数 = %d/%d/%d, want 1/2/1", set.Succeeded, set.Throttled, set.Failed)
	}
	if !set.Products[1].Throttled || !set.Products[2].Throttled {
		t.Error("顶层 errors 的限流行应判限流")
	}
	if set.Products[2].LineNumber != 2 {
		t.Errorf("限流行应保留行号, got %d", set.Products[2].LineNumber)
	}
	if set.Products[3].Throttled {
		t.Error("非限流的顶层错误应是普通失败")
	}
	if !strings.Contains(set.Products[3].ErrorText(), "Internal error") {
		t.Errorf("顶层错误报文丢失: %s", set.Products[3].ErrorText())
	}
}

func TestParseBulkResults_MalformedAndEmptyLines(t *testing.T) {
	input := "\n{not json}\n" + `{"data":{"productSet":{"product":{"id":"gid://shopify/Product/1","title":"X","variants":{"nodes":[]}},"userErrors":[]}},"__lineNumber":0}` + "\n"
	set, err := ParseBulkResults(strings.NewReader(input))
	if err != nil {
		t.Fatalf("解析失败: %v", err)
	}
	if set.Failed != 1 {
		t.Errorf("畸形行应计一条失败, failed = %d", set.Failed)
	}
	if set.Succeeded != 1 {
		t.Errorf("succeeded = %d, want 1", set.Succeeded)
	}
}

func TestIsThrottleMessage(t *testing.T) {
	if !IsThrottleMessage("VARIANT_THROTTLE_EXCEEDED", "") {
		t.Error("错误码应命中限流")
	}
	if !IsThrottleMessage("", "Daily variant creation limit reached for shop") {
		t.Error("报文应命中限流")
	}
	if IsThrottleMessage("INVALID", "Title can't be blank") {
		t.Error("普通校验错误不应命中限流")
	}
}

func TestGIDToID(t *testing.T) {
	if got := GIDToID("gid://shopify/Product/123456"); got != 123456 {
		t.Errorf("GIDToID = %d", got)
	}
	if got := GIDToID("garbage"); got != 0 {
		t.Errorf("无法解析时应返回 0, got %d", got)
	}
}
