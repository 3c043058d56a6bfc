package service

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"

	"shopify_sync_v1_202608/pkg/shopify"
)

// ==================== 批次文件 ====================

// 批次文件命名固定，编号全局递增，既是审计记录也是漂移恢复的回放源
var batchFileRe = regexp.MustCompile(`^bulk-sync-batch-(\d+)\.jsonl$`)

// ArtifactArchiver 批次文件的异地归档出口（可空）
type ArtifactArchiver interface {
	Upload(ctx context.Context, data []byte, filename string, contentType string) (url string, err error)
}

// ArtifactStore 本地批次 JSONL 的读写与编号管理
type ArtifactStore struct {
	dir      string
	archiver ArtifactArchiver
	log      zerolog.Logger
}

func NewArtifactStore(dir string, archiver ArtifactArchiver, log zerolog.Logger) *ArtifactStore {
	return &ArtifactStore{dir: dir, archiver: archiver, log: log}
}

func BatchFileName(n int) string {
	return fmt.Sprintf("bulk-sync-batch-%d.jsonl", n)
}

func (s *ArtifactStore) BatchPath(n int) string {
	return filepath.Join(s.dir, BatchFileName(n))
}

// NextBatchNumber 扫描目录取最大编号 +1，空目录从 1 起
func (s *ArtifactStore) NextBatchNumber() (int, error) {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return 0, fmt.Errorf("创建批次目录失败: %w", err)
	}
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return 0, err
	}
	max := 0
	for _, e := range entries {
		m := batchFileRe.FindStringSubmatch(e.Name())
		if m == nil {
			continue
		}
		if n, err := strconv.Atoi(m[1]); err == nil && n > max {
			max = n
		}
	}
	return max + 1, nil
}

// LatestBatchPath 最近一个批次文件，对账命令缺省回放它
func (s *ArtifactStore) LatestBatchPath() (string, error) {
	next, err := s.NextBatchNumber()
	if err != nil {
		return "", err
	}
	if next <= 1 {
		return "", fmt.Errorf("目录 %s 下没有批次文件", s.dir)
	}
	return s.BatchPath(next - 1), nil
}

type batchLine struct {
	Input *shopify.ProductInput `json:"input"`
}

// WriteBatch 把投影结果按行写成 JSONL
// 行序即提交序：第 k 行对应本批第 k 个投影资产，对账全靠这个不变量
func (s *ArtifactStore) WriteBatch(n int, inputs []*shopify.ProductInput) (string, error) {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", fmt.Errorf("创建批次目录失败: %w", err)
	}
	path := s.BatchPath(n)
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("创建批次文件失败: %w", err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	enc := json.NewEncoder(w)
	for _, input := range inputs {
		if err := enc.Encode(batchLine{Input: input}); err != nil {
			return "", fmt.Errorf("写批次行失败: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		return "", err
	}
	return path, nil
}

// ReadBatchDriveIDs 回放批次文件，逐行取 drive_file_id 元字段
// 返回切片下标 = 源行号，解析不出的行留空串占位
func (s *ArtifactStore) ReadBatchDriveIDs(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("打开批次文件失败: %w", err)
	}
	defer f.Close()

	var ids []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), maxArtifactLineBytes)
	for scanner.Scan() {
		if len(scanner.Bytes()) == 0 {
			continue
		}
		var line batchLine
		driveID := ""
		if err := json.Unmarshal(scanner.Bytes(), &line); err == nil && line.Input != nil {
			for _, m := range line.Input.Metafields {
				if m.Key == "drive_file_id" {
					driveID = m.Value
					break
				}
			}
		}
		ids = append(ids, driveID)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("读批次文件失败: %w", err)
	}
	return ids, nil
}

const maxArtifactLineBytes = 4 * 1024 * 1024

// Archive 把批次文件归档到对象存储，失败只告警不影响主流程
func (s *ArtifactStore) Archive(ctx context.Context, path string) {
	if s.archiver == nil {
		return
	}
	data, err := os.ReadFile(path)
	if err != nil {
		s.log.Warn().Err(err).Str("path", path).Msg("读取批次文件失败，跳过归档")
		return
	}
	url, err := s.archiver.Upload(ctx, data, filepath.Base(path), "text/jsonl")
	if err != nil {
		s.log.Warn().Err(err).Str("path", path).Msg("批次文件归档失败")
		return
	}
	s.log.Info().Str("url", url).Msg("批次文件已归档")
}

// ==================== S3 归档实现 ====================

type S3Archiver struct {
	client   *s3.Client
	bucket   string
	region   string
	basePath string
}

func NewS3Archiver(region, bucket, accessKey, secretKey, basePath string) (*S3Archiver, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(),
		awsconfig.WithRegion(region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			accessKey,
			secretKey,
			"",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("加载AWS配置失败: %v", err)
	}

	return &S3Archiver{
		client:   s3.NewFromConfig(awsCfg),
		bucket:   bucket,
		region:   region,
		basePath: basePath,
	}, nil
}

func (s *S3Archiver) Upload(ctx context.Context, data []byte, filename string, contentType string) (string, error) {
	key := s.generateKey(filename)

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("上传S3失败: %v", err)
	}

	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", s.bucket, s.region, key), nil
}

// generateKey 按日期分目录，同名批次文件跨天不会互相覆盖
func (s *S3Archiver) generateKey(filename string) string {
	datePath := time.Now().UTC().Format("2006/01/02")
	if s.basePath != "" {
		return fmt.Sprintf("%s/%s/%s", s.basePath, datePath, filename)
	}
	return fmt.Sprintf("%s/%s", datePath, filename)
}
