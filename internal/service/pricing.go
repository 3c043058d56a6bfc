package service

import (
	"fmt"
	"math"
	"strings"

	"shopify_sync_v1_202608/internal/model"
)

// ==================== 定价策略 ====================

// PriceTier 按打印面积分档的价格档位
// 档位表是数据不是逻辑，调价只改表
type PriceTier struct {
	MaxAreaCM2     float64 // 含上界；最后一档用 +Inf
	Price          float64
	CompareAtPrice float64
}

var priceTiers = []PriceTier{
	{MaxAreaCM2: 600, Price: 29.99, CompareAtPrice: 39.99},
	{MaxAreaCM2: 1800, Price: 49.99, CompareAtPrice: 64.99},
	{MaxAreaCM2: 4000, Price: 79.99, CompareAtPrice: 99.99},
	{MaxAreaCM2: math.Inf(1), Price: 119.99, CompareAtPrice: 149.99},
}

// TierFor 面积落在哪一档
func TierFor(areaCM2 float64) PriceTier {
	for _, tier := range priceTiers {
		if areaCM2 <= tier.MaxAreaCM2 {
			return tier
		}
	}
	return priceTiers[len(priceTiers)-1]
}

// PriceFor 变体售价与对比价
func PriceFor(v *model.Variant) (price, compareAt float64) {
	tier := TierFor(v.AreaCM2())
	return tier.Price, tier.CompareAtPrice
}

// EstimatedWeightGrams 运费估重：面积 × 0.15 + 50，四舍五入到整克
func EstimatedWeightGrams(v *model.Variant) int {
	return int(math.Round(v.AreaCM2()*0.15 + 50))
}

// SKUFor 确定性 SKU：NP-<资产 id 前 8 位>-<规格标签压缩小写>
// 同一资产同一规格任何时候生成的 SKU 都一致，对账靠它兜底
func SKUFor(assetID, label string) string {
	return fmt.Sprintf("NP-%s-%s", shortID(assetID), compactLabel(label))
}

func shortID(id string) string {
	hex := strings.ReplaceAll(id, "-", "")
	if len(hex) > 8 {
		hex = hex[:8]
	}
	return hex
}

func compactLabel(label string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(label) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// FormatMoney 金额统一两位小数字符串，杜绝浮点尾巴进报文
func FormatMoney(amount float64) string {
	return fmt.Sprintf("%.2f", amount)
}
