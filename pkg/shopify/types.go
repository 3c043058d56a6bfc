package shopify

import (
	"strconv"
	"strings"
)

// ==========================================
// 平台中立的投影输入结构
// 两种执行模式（逐条 REST / 批量 productSet）共用同一份 ProductInput，
// 字段顺序即 JSON 序列化顺序，保证同一输入产生逐字节一致的输出
// ==========================================

// ProductInput 投影器输出
type ProductInput struct {
	Title           string          `json:"title"`
	DescriptionHTML string          `json:"descriptionHtml"`
	Vendor          string          `json:"vendor"`
	ProductType     string          `json:"productType"`
	Tags            []string        `json:"tags"`
	Status          string          `json:"status"` // ACTIVE / DRAFT
	ProductOptions  []ProductOption `json:"productOptions"`
	Variants        []VariantInput  `json:"variants"`
	Metafields      []Metafield     `json:"metafields"`
}

// ProductOption 选项定义（本系统只有 Size 一个选项）
type ProductOption struct {
	Name   string        `json:"name"`
	Values []OptionValue `json:"values"`
}

type OptionValue struct {
	Name string `json:"name"`
}

// VariantInput 单个变体输入
type VariantInput struct {
	OptionValues     []VariantOptionValue `json:"optionValues"`
	Price            string               `json:"price"`
	CompareAtPrice   string               `json:"compareAtPrice,omitempty"`
	SKU              string               `json:"sku"`
	GramsWeight      int                  `json:"weight"`
	RequiresShipping bool                 `json:"requiresShipping"`
	Taxable          bool                 `json:"taxable"`
	InventoryPolicy  string               `json:"inventoryPolicy"` // CONTINUE：按需打印不跟踪库存
}

type VariantOptionValue struct {
	OptionName string `json:"optionName"`
	Name       string `json:"name"`
}

// Metafield 元字段；drive_file_id 元字段是漂移恢复的稳定键
type Metafield struct {
	Namespace string `json:"namespace"`
	Key       string `json:"key"`
	Value     string `json:"value"`
	Type      string `json:"type"`
}

// ==========================================
// REST Admin API 载荷（逐条同步路径）
// ==========================================

// RESTProduct POST /products 的 product 载荷
type RESTProduct struct {
	Title       string          `json:"title"`
	BodyHTML    string          `json:"body_html"`
	Vendor      string          `json:"vendor"`
	ProductType string          `json:"product_type"`
	Tags        string          `json:"tags"` // 逗号拼接
	Status      string          `json:"status"`
	Options     []RESTOption    `json:"options"`
	Variants    []RESTVariant   `json:"variants"`
	Metafields  []RESTMetafield `json:"metafields"`
}

type RESTOption struct {
	Name   string   `json:"name"`
	Values []string `json:"values"`
}

type RESTVariant struct {
	Option1          string `json:"option1"`
	Price            string `json:"price"`
	CompareAtPrice   string `json:"compare_at_price,omitempty"`
	SKU              string `json:"sku"`
	Grams            int    `json:"grams"`
	Taxable          bool   `json:"taxable"`
	RequiresShipping bool   `json:"requires_shipping"`
	InventoryPolicy  string `json:"inventory_policy"`
}

type RESTMetafield struct {
	Namespace string `json:"namespace"`
	Key       string `json:"key"`
	Value     string `json:"value"`
	Type      string `json:"type"`
}

// ToREST 把平台中立输入降级为 REST 载荷，语义保持一致
func (p *ProductInput) ToREST() *RESTProduct {
	rest := &RESTProduct{
		Title:       p.Title,
		BodyHTML:    p.DescriptionHTML,
		Vendor:      p.Vendor,
		ProductType: p.ProductType,
		Tags:        strings.Join(p.Tags, ", "),
		Status:      strings.ToLower(p.Status),
	}

	for _, opt := range p.ProductOptions {
		values := make([]string, 0, len(opt.Values))
		for _, v := range opt.Values {
			values = append(values, v.Name)
		}
		rest.Options = append(rest.Options, RESTOption{Name: opt.Name, Values: values})
	}

	for _, v := range p.Variants {
		option1 := ""
		if len(v.OptionValues) > 0 {
			option1 = v.OptionValues[0].Name
		}
		rest.Variants = append(rest.Variants, RESTVariant{
			Option1:          option1,
			Price:            v.Price,
			CompareAtPrice:   v.CompareAtPrice,
			SKU:              v.SKU,
			Grams:            v.GramsWeight,
			Taxable:          v.Taxable,
			RequiresShipping: v.RequiresShipping,
			InventoryPolicy:  strings.ToLower(v.InventoryPolicy),
		})
	}

	for _, m := range p.Metafields {
		rest.Metafields = append(rest.Metafields, RESTMetafield(m))
	}

	return rest
}

// ==========================================
// REST 响应 DTO
// ==========================================

// RESTProductResp 创建/更新商品的响应
type RESTProductResp struct {
	Product struct {
		ID       int64  `json:"id"`
		AdminGID string `json:"admin_graphql_api_id"`
		Title    string `json:"title"`
		Variants []struct {
			ID       int64  `json:"id"`
			AdminGID string `json:"admin_graphql_api_id"`
			Title    string `json:"title"`
			SKU      string `json:"sku"`
		} `json:"variants"`
	} `json:"product"`
}

// ==========================================
// 集合（smart / custom collection）载荷
// ==========================================

// SmartCollection 规则集合：按 vendor 自动聚合同一画家的商品
type SmartCollection struct {
	Title string               `json:"title"`
	Rules []SmartCollectionRule `json:"rules"`
}

type SmartCollectionRule struct {
	Column    string `json:"column"`
	Relation  string `json:"relation"`
	Condition string `json:"condition"`
}

// CustomCollection 手选集合
type CustomCollection struct {
	Title string `json:"title"`
}

// Collect 商品与手选集合的关联
type Collect struct {
	ProductID    int64 `json:"product_id"`
	CollectionID int64 `json:"collection_id"`
}

// ==========================================
// GID 工具
// ==========================================

// GIDToID 解析 "gid://shopify/Product/123456" 末段数字
func GIDToID(gid string) int64 {
	idx := strings.LastIndex(gid, "/")
	if idx < 0 {
		return 0
	}
	n, err := strconv.ParseInt(gid[idx+1:], 10, 64)
	if err != nil {
		return 0
	}
	return n
}
