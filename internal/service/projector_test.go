package service

import (
	"encoding/json"
	"reflect"
	"strings"
	"testing"

	"shopify_sync_v1_202608/internal/model"
)

// ==================== 投影测试 ====================

func testAsset() *model.Asset {
	return &model.Asset{
		ID:          "a1b2c3d4-e5f6-7890-abcd-ef1234567890",
		DriveFileID: "drive-001",
		Filename:    "sunset_over_lake_3000x4000.jpg",
		Title:       "Sunset Over Lake",
		Artist:      "Jane Moreau",
		QualityTier: model.QualityTierHigh,
		AspectRatio: 0.75,
		Style:       "impressionism",
		Era:         "1890s",
		Mood:        "serene",
		Subject:     "landscape",
		AITags:      []string{"lake", "sunset", "orange", "water"},
	}
}

func testVariants() []model.Variant {
	return []model.Variant{
		{ID: "v1", Label: "30x40 cm", WidthCM: 30, HeightCM: 40},
		{ID: "v2", Label: "50x70 cm", WidthCM: 50, HeightCM: 70},
	}
}

func TestProjectProduct_Deterministic(t *testing.T) {
	asset := testAsset()
	variants := testVariants()

	in1, ok1 := ProjectProduct(asset, variants, false)
	in2, ok2 := ProjectProduct(asset, variants, false)
	if !ok1 || !ok2 {
		t.Fatal("投影被意外跳过")
	}

	b1, _ := json.Marshal(in1)
	b2, _ := json.Marshal(in2)
	if string(b1) != string(b2) {
		t.Errorf("同一输入产出了不同报文:\n%s\n%s", b1, b2)
	}
}

func TestProjectProduct_ZeroVariants(t *testing.T) {
	if _, ok := ProjectProduct(testAsset(), nil, false); ok {
		t.Error("零规格资产不应产出商品")
	}
}

func TestProjectProduct_Fields(t *testing.T) {
	input, ok := ProjectProduct(testAsset(), testVariants(), true)
	if !ok {
		t.Fatal("投影被意外跳过")
	}

	if input.Title != "Sunset Over Lake" {
		t.Errorf("title = %s", input.Title)
	}
	if input.Vendor != "Jane Moreau" {
		t.Errorf("vendor = %s", input.Vendor)
	}
	if input.Status != "ACTIVE" {
		t.Errorf("status = %s, want ACTIVE", input.Status)
	}
	if len(input.Variants) != 2 {
		t.Fatalf("variants = %d, want 2", len(input.Variants))
	}
	// 30x40 = 1200 cm² 落第二档
	if input.Variants[0].Price != "49.99" {
		t.Errorf("variant price = %s, want 49.99", input.Variants[0].Price)
	}
	if input.Variants[0].SKU != "NP-a1b2c3d4-30x40cm" {
		t.Errorf("variant sku = %s", input.Variants[0].SKU)
	}
	if input.Variants[0].InventoryPolicy != "CONTINUE" {
		t.Errorf("inventoryPolicy = %s", input.Variants[0].InventoryPolicy)
	}
	if len(input.ProductOptions) != 1 || input.ProductOptions[0].Name != "Size" {
		t.Errorf("选项必须且只有 Size")
	}
}

func TestProjectProduct_Tags(t *testing.T) {
	input, _ := ProjectProduct(testAsset(), testVariants(), false)

	// 种子在最前，保持插入顺序
	want := []string{"art print", "fine art", "wall art", "museum grade",
		"impressionism", "1890s", "serene", "landscape",
		"lake", "sunset", "orange", "water"}
	if !reflect.DeepEqual(input.Tags, want) {
		t.Errorf("tags = %v\nwant %v", input.Tags, want)
	}
}

func TestProjectProduct_TagsIncludePalette(t *testing.T) {
	asset := testAsset()
	asset.Palette = []string{"burnt orange", "teal", "serene"} // serene 与 mood 重复

	input, _ := ProjectProduct(asset, testVariants(), false)
	joined := strings.Join(input.Tags, ",")
	if !strings.Contains(joined, "burnt orange") || !strings.Contains(joined, "teal") {
		t.Errorf("色板词条未进标签: %v", input.Tags)
	}
	seen := 0
	for _, tag := range input.Tags {
		if strings.ToLower(tag) == "serene" {
			seen++
		}
	}
	if seen != 1 {
		t.Errorf("serene 出现 %d 次", seen)
	}
}

func TestProjectProduct_TagsStandardTierAndCap(t *testing.T) {
	asset := testAsset()
	asset.QualityTier = model.QualityTierStandard
	asset.AITags = []string{"t1", "t2", "t3", "t4", "t5", "t6", "t7", "t8", "t9", "t10", "t11", "t12"}

	input, _ := ProjectProduct(asset, testVariants(), false)

	joined := strings.Join(input.Tags, ",")
	if !strings.Contains(joined, "gallery grade") {
		t.Error("标准画质应打 gallery grade")
	}
	if strings.Contains(joined, "museum grade") {
		t.Error("标准画质不应打 museum grade")
	}
	if strings.Contains(joined, "t11") {
		t.Error("AI 标签应截断到前 10 个")
	}
	if !strings.Contains(joined, "t10") {
		t.Error("第 10 个 AI 标签应保留")
	}
}

func TestProjectProduct_TagDedup(t *testing.T) {
	asset := testAsset()
	asset.Style = "wall art" // 与种子重复
	asset.AITags = []string{"Fine Art"} // 大小写不敏感去重

	input, _ := ProjectProduct(asset, testVariants(), false)
	seen := map[string]int{}
	for _, tag := range input.Tags {
		seen[strings.ToLower(tag)]++
	}
	if seen["wall art"] != 1 {
		t.Errorf("wall art 出现 %d 次", seen["wall art"])
	}
	if seen["fine art"] != 1 {
		t.Errorf("fine art 出现 %d 次", seen["fine art"])
	}
}

func TestProjectProduct_Metafields(t *testing.T) {
	asset := testAsset()
	asset.RatioClass = "portrait"
	asset.MaxPrintWidthCM = 60
	asset.MaxPrintHeightCM = 80

	input, _ := ProjectProduct(asset, testVariants(), false)
	byKey := map[string]string{}
	for _, m := range input.Metafields {
		byKey[m.Key] = m.Value
	}

	if byKey["ratio_class"] != "portrait" {
		t.Errorf("ratio_class = %q", byKey["ratio_class"])
	}
	if byKey["quality_tier"] != "high" {
		t.Errorf("quality_tier = %q, want high", byKey["quality_tier"])
	}
	if byKey["aspect_ratio"] != "0.7500" {
		t.Errorf("aspect_ratio = %q", byKey["aspect_ratio"])
	}
	// 取长边
	if byKey["max_print_cm"] != "80.0" {
		t.Errorf("max_print_cm = %q, want 80.0", byKey["max_print_cm"])
	}
}

func TestTitleFallbacks(t *testing.T) {
	asset := testAsset()
	asset.Title = ""

	input, _ := ProjectProduct(asset, testVariants(), false)
	if input.Title != "sunset over lake" {
		t.Errorf("文件名回退 title = %q, want %q", input.Title, "sunset over lake")
	}

	asset.Filename = "_1200x1600.png"
	input, _ = ProjectProduct(asset, testVariants(), false)
	if input.Title != "Untitled Print" {
		t.Errorf("兜底 title = %q, want Untitled Print", input.Title)
	}
}

func TestProjectProduct_VendorFallbackAndDriveID(t *testing.T) {
	asset := testAsset()
	asset.Artist = ""

	input, _ := ProjectProduct(asset, testVariants(), false)
	if input.Vendor != "Nouveau Prints" {
		t.Errorf("vendor = %s, want Nouveau Prints", input.Vendor)
	}

	found := false
	for _, m := range input.Metafields {
		if m.Key == "drive_file_id" && m.Value == "drive-001" {
			found = true
		}
	}
	if !found {
		t.Error("商品缺少 drive_file_id 元字段")
	}
}
