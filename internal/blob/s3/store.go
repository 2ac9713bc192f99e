package s3

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	"tempinbox/backend/internal/blob"
)

// Config S3 对象存储配置
type Config struct {
	Bucket          string
	Region          string
	Prefix          string // 对象 key 前缀，如 "attachments/"
	AccessKeyID     string // 留空时走默认凭证链
	SecretAccessKey string
	PublicBaseURL   string // CDN 或桶的公开访问地址
}

// PutDeleteAPI S3 上传/删除操作接口，便于测试注入。
type PutDeleteAPI interface {
	PutObject(ctx context.Context, params *awss3.PutObjectInput, optFns ...func(*awss3.Options)) (*awss3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, params *awss3.DeleteObjectInput, optFns ...func(*awss3.Options)) (*awss3.DeleteObjectOutput, error)
}

// Store 基于 S3 的附件对象存储。
type Store struct {
	client  PutDeleteAPI
	bucket  string
	prefix  string
	baseURL string
}

// New 创建 S3 存储客户端。
func New(ctx context.Context, cfg Config) (*Store, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return &Store{
		client:  awss3.NewFromConfig(awsCfg),
		bucket:  cfg.Bucket,
		prefix:  strings.TrimLeft(cfg.Prefix, "/"),
		baseURL: strings.TrimRight(cfg.PublicBaseURL, "/"),
	}, nil
}

// NewWithClient 注入自定义客户端，用于测试。
func NewWithClient(client PutDeleteAPI, bucket, prefix, baseURL string) *Store {
	return &Store{
		client:  client,
		bucket:  bucket,
		prefix:  strings.TrimLeft(prefix, "/"),
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

// Upload 上传附件到 S3，对象 key 即删除句柄。
func (s *Store) Upload(ctx context.Context, name, contentType string, data []byte) (*blob.StoredObject, error) {
	key := s.prefix + uuid.NewString() + "/" + sanitizeKey(name)

	_, err := s.client.PutObject(ctx, &awss3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return nil, fmt.Errorf("s3 put object: %w", err)
	}

	url := s.baseURL + "/" + key
	if s.baseURL == "" {
		url = fmt.Sprintf("https://%s.s3.amazonaws.com/%s", s.bucket, key)
	}

	return &blob.StoredObject{URL: url, DeleteHandle: key}, nil
}

// Delete 删除 S3 对象。
func (s *Store) Delete(ctx context.Context, deleteHandle string) error {
	_, err := s.client.DeleteObject(ctx, &awss3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(deleteHandle),
	})
	if err != nil {
		return fmt.Errorf("s3 delete object: %w", err)
	}
	return nil
}

// sanitizeKey 清洗对象 key 中的非法字符。
func sanitizeKey(name string) string {
	name = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '.' || r == '-' || r == '_':
			return r
		default:
			return '_'
		}
	}, name)
	if name == "" {
		return "unnamed"
	}
	return name
}
