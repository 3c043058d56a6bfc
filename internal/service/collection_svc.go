package service

import (
	"context"
	"fmt"
	"net/url"
	"sync"

	"github.com/rs/zerolog"

	"shopify_sync_v1_202608/pkg/shopify"
)

// ==================== 集合维护 ====================

// CollectionService 画家集合与人工策展集合
// 画家集合用 smart collection 的 vendor 规则，商品创建后自动归位，
// 不需要逐个 collect 关联
type CollectionService struct {
	client *shopify.Client
	log    zerolog.Logger

	mu      sync.Mutex
	ensured map[string]struct{} // 进程内已确认过的画家
}

func NewCollectionService(client *shopify.Client, log zerolog.Logger) *CollectionService {
	return &CollectionService{
		client:  client,
		log:     log,
		ensured: make(map[string]struct{}),
	}
}

// EnsureArtistCollection 画家集合存在即跳过，不存在就建
func (s *CollectionService) EnsureArtistCollection(ctx context.Context, artist string) error {
	if artist == "" {
		return nil
	}
	s.mu.Lock()
	if _, ok := s.ensured[artist]; ok {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	var existing struct {
		SmartCollections []struct {
			ID int64 `json:"id"`
		} `json:"smart_collections"`
	}
	path := fmt.Sprintf("smart_collections.json?title=%s", url.QueryEscape(artist))
	if err := s.client.Get(ctx, path, &existing); err != nil {
		return fmt.Errorf("查询画家集合失败: %w", err)
	}

	if len(existing.SmartCollections) == 0 {
		payload := map[string]any{"smart_collection": shopify.SmartCollection{
			Title: artist,
			Rules: []shopify.SmartCollectionRule{{
				Column:    "vendor",
				Relation:  "equals",
				Condition: artist,
			}},
		}}
		if err := s.client.Post(ctx, "smart_collections.json", payload, nil); err != nil {
			return fmt.Errorf("创建画家集合失败: %w", err)
		}
		s.log.Info().Str("artist", artist).Msg("画家集合已创建")
	}

	s.mu.Lock()
	s.ensured[artist] = struct{}{}
	s.mu.Unlock()
	return nil
}

// EnsureArtistCollections 批量提交前把本批涉及的画家集合一口气备齐
func (s *CollectionService) EnsureArtistCollections(ctx context.Context, artists []string) error {
	seen := make(map[string]struct{}, len(artists))
	for _, artist := range artists {
		if artist == "" {
			continue
		}
		if _, ok := seen[artist]; ok {
			continue
		}
		seen[artist] = struct{}{}
		if err := s.EnsureArtistCollection(ctx, artist); err != nil {
			return err
		}
	}
	return nil
}

// EnsureCustomCollection 人工策展集合，返回集合 id
func (s *CollectionService) EnsureCustomCollection(ctx context.Context, title string) (int64, error) {
	var existing struct {
		CustomCollections []struct {
			ID int64 `json:"id"`
		} `json:"custom_collections"`
	}
	path := fmt.Sprintf("custom_collections.json?title=%s", url.QueryEscape(title))
	if err := s.client.Get(ctx, path, &existing); err != nil {
		return 0, err
	}
	if len(existing.CustomCollections) > 0 {
		return existing.CustomCollections[0].ID, nil
	}

	var created struct {
		CustomCollection struct {
			ID int64 `json:"id"`
		} `json:"custom_collection"`
	}
	payload := map[string]any{"custom_collection": shopify.CustomCollection{Title: title}}
	if err := s.client.Post(ctx, "custom_collections.json", payload, &created); err != nil {
		return 0, err
	}
	return created.CustomCollection.ID, nil
}

// AddToCollection 把商品挂进人工策展集合
func (s *CollectionService) AddToCollection(ctx context.Context, productID, collectionID int64) error {
	payload := map[string]any{"collect": shopify.Collect{
		ProductID:    productID,
		CollectionID: collectionID,
	}}
	return s.client.Post(ctx, "collects.json", payload, nil)
}
