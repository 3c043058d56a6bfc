package service

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"shopify_sync_v1_202608/internal/model"
	"shopify_sync_v1_202608/pkg/shopify"
)

// ==================== 商品投影 ====================

const (
	defaultVendor      = "Nouveau Prints"
	defaultProductType = "Art Print"
	untitledTitle      = "Untitled Print"
	sizeOptionName     = "Size"
	metafieldNamespace = "nouveau"
	maxAITags          = 10
)

// 基础标签，任何资产都带
var seedTags = []string{"art print", "fine art", "wall art"}

// 文件名尾部的像素尺寸后缀，如 _3000x4000
var dimensionSuffix = regexp.MustCompile(`_\d+x\d+$`)

// ProjectProduct 把资产及其规格投影成远端商品输入
// 纯函数：同一输入永远产出同一报文，批间重试才能幂等
// 没有任何规格的资产不可售，返回 false 表示跳过
func ProjectProduct(asset *model.Asset, variants []model.Variant, active bool) (*shopify.ProductInput, bool) {
	if len(variants) == 0 {
		return nil, false
	}

	status := "DRAFT"
	if active {
		status = "ACTIVE"
	}
	vendor := asset.Artist
	if vendor == "" {
		vendor = defaultVendor
	}

	input := &shopify.ProductInput{
		Title:           titleFor(asset),
		DescriptionHTML: bodyHTML(asset, variants),
		Vendor:          vendor,
		ProductType:     defaultProductType,
		Tags:            tagsFor(asset),
		Status:          status,
		ProductOptions: []shopify.ProductOption{{
			Name:   sizeOptionName,
			Values: optionValues(variants),
		}},
		Metafields: metafieldsFor(asset),
	}

	for i := range variants {
		v := &variants[i]
		price, compareAt := PriceFor(v)
		input.Variants = append(input.Variants, shopify.VariantInput{
			OptionValues:     []shopify.VariantOptionValue{{OptionName: sizeOptionName, Name: v.Label}},
			Price:            FormatMoney(price),
			CompareAtPrice:   FormatMoney(compareAt),
			SKU:              SKUFor(asset.ID, v.Label),
			GramsWeight:      EstimatedWeightGrams(v),
			RequiresShipping: true,
			Taxable:          true,
			InventoryPolicy:  "CONTINUE",
		})
	}

	return input, true
}

// titleFor 标题三级回退：录入标题 → 清洗后的文件名 → 兜底文案
func titleFor(asset *model.Asset) string {
	if t := strings.TrimSpace(asset.Title); t != "" {
		return t
	}
	name := asset.Filename
	name = strings.TrimSuffix(name, filepath.Ext(name))
	name = dimensionSuffix.ReplaceAllString(name, "")
	name = strings.NewReplacer("_", " ", "-", " ").Replace(name)
	name = strings.Join(strings.Fields(name), " ")
	if name == "" {
		return untitledTitle
	}
	return name
}

// tagsFor 标签并集，保持插入顺序去重
// 种子 + 画质档 + 风格维度 + 色板 + 前 10 个 AI 标签
func tagsFor(asset *model.Asset) []string {
	tags := make([]string, 0, len(seedTags)+maxAITags+6)
	seen := make(map[string]struct{})
	add := func(tag string) {
		tag = strings.TrimSpace(tag)
		if tag == "" {
			return
		}
		key := strings.ToLower(tag)
		if _, ok := seen[key]; ok {
			return
		}
		seen[key] = struct{}{}
		tags = append(tags, tag)
	}

	for _, t := range seedTags {
		add(t)
	}
	if asset.QualityTier == model.QualityTierHigh {
		add("museum grade")
	} else {
		add("gallery grade")
	}
	add(asset.Style)
	add(asset.Era)
	add(asset.Mood)
	add(asset.Subject)
	for _, c := range asset.Palette {
		add(c)
	}
	for i, t := range asset.AITags {
		if i >= maxAITags {
			break
		}
		add(t)
	}
	return tags
}

func optionValues(variants []model.Variant) []shopify.OptionValue {
	values := make([]shopify.OptionValue, 0, len(variants))
	for _, v := range variants {
		values = append(values, shopify.OptionValue{Name: v.Label})
	}
	return values
}

func bodyHTML(asset *model.Asset, variants []model.Variant) string {
	var b strings.Builder
	if asset.Artist != "" {
		fmt.Fprintf(&b, "<p>By %s</p>", asset.Artist)
	}
	b.WriteString("<p>Museum-quality giclée print on archival matte paper. Shipped rolled in a protective tube.</p>")
	b.WriteString("<p>Available sizes:</p><ul>")
	for _, v := range variants {
		fmt.Fprintf(&b, "<li>%s (%.0f × %.0f cm)</li>", v.Label, v.WidthCM, v.HeightCM)
	}
	b.WriteString("</ul>")
	return b.String()
}

// metafieldsFor 把溯源字段随商品写到远端
// drive_file_id 是漂移恢复的唯一锚点，缺了文件级对账就瘫了
func metafieldsFor(asset *model.Asset) []shopify.Metafield {
	fields := []shopify.Metafield{{
		Namespace: metafieldNamespace,
		Key:       "drive_file_id",
		Type:      "single_line_text_field",
		Value:     asset.DriveFileID,
	}}
	if asset.RatioClass != "" {
		fields = append(fields, shopify.Metafield{
			Namespace: metafieldNamespace,
			Key:       "ratio_class",
			Type:      "single_line_text_field",
			Value:     asset.RatioClass,
		})
	}
	if asset.QualityTier != "" {
		fields = append(fields, shopify.Metafield{
			Namespace: metafieldNamespace,
			Key:       "quality_tier",
			Type:      "single_line_text_field",
			Value:     asset.QualityTier,
		})
	}
	if asset.AspectRatio != 0 {
		fields = append(fields, shopify.Metafield{
			Namespace: metafieldNamespace,
			Key:       "aspect_ratio",
			Type:      "number_decimal",
			Value:     fmt.Sprintf("%.4f", asset.AspectRatio),
		})
	}
	// 以长边计，打印可放大的物理上限
	if maxCM := asset.MaxPrintWidthCM; maxCM > 0 || asset.MaxPrintHeightCM > 0 {
		if asset.MaxPrintHeightCM > maxCM {
			maxCM = asset.MaxPrintHeightCM
		}
		fields = append(fields, shopify.Metafield{
			Namespace: metafieldNamespace,
			Key:       "max_print_cm",
			Type:      "number_decimal",
			Value:     fmt.Sprintf("%.1f", maxCM),
		})
	}
	return fields
}
