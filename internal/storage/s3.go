package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"photoframe/internal/logging"
	"photoframe/internal/mediatypes"
)

const s3CallTimeout = 30 * time.Second

// s3Provider talks to any S3-compatible object store through the MinIO SDK.
type s3Provider struct {
	client   *minio.Client
	bucket   string
	region   string
	endpoint string
	prefix   string
	cdnURL   string
}

func newS3Provider(cfg *S3Config) (*s3Provider, error) {
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = "https://s3.amazonaws.com"
		if cfg.Region != "" {
			endpoint = fmt.Sprintf("https://s3.%s.amazonaws.com", cfg.Region)
		}
	}

	host, secure, err := splitEndpoint(endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid s3 endpoint %q: %w", cfg.Endpoint, err)
	}

	lookup := minio.BucketLookupAuto
	if cfg.ForcePathStyle {
		lookup = minio.BucketLookupPath
	}

	client, err := minio.New(host, &minio.Options{
		Creds:        credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure:       secure,
		Region:       cfg.Region,
		BucketLookup: lookup,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create s3 client: %w", err)
	}

	logging.Info("S3 storage ready: bucket=%s endpoint=%s", cfg.Bucket, host)

	return &s3Provider{
		client:   client,
		bucket:   cfg.Bucket,
		region:   cfg.Region,
		endpoint: strings.TrimRight(endpoint, "/"),
		prefix:   NormalizeRoot(cfg.Prefix),
		cdnURL:   strings.TrimRight(cfg.CDNURL, "/"),
	}, nil
}

// splitEndpoint separates an endpoint URL into the host form the MinIO SDK
// expects and a TLS flag. Bare hosts default to TLS.
func splitEndpoint(endpoint string) (host string, secure bool, err error) {
	if !strings.Contains(endpoint, "://") {
		return endpoint, true, nil
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", false, err
	}
	if u.Host == "" {
		return "", false, fmt.Errorf("endpoint has no host")
	}
	return u.Host, u.Scheme != "http", nil
}

func (p *s3Provider) Kind() Kind {
	return KindS3
}

func (p *s3Provider) Create(ctx context.Context, key string, data []byte, contentType string) (*Object, error) {
	start := time.Now()
	var err error
	defer func() { record(KindS3, "create", start, err) }()

	ctx, cancel := withCallTimeout(ctx, s3CallTimeout)
	defer cancel()

	rooted := WithRoot(p.prefix, key)
	info, err := p.client.PutObject(ctx, p.bucket, rooted, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return nil, fmt.Errorf("failed to upload %s: %w", rooted, err)
	}

	return &Object{
		Key:          rooted,
		Size:         info.Size,
		ETag:         info.ETag,
		LastModified: info.LastModified,
	}, nil
}

func (p *s3Provider) Get(ctx context.Context, key string) ([]byte, error) {
	start := time.Now()
	var err error
	defer func() { record(KindS3, "get", start, err) }()

	ctx, cancel := withCallTimeout(ctx, s3CallTimeout)
	defer cancel()

	rooted := WithRoot(p.prefix, key)
	obj, err := p.client.GetObject(ctx, p.bucket, rooted, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", rooted, err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if isNoSuchKey(err) {
		err = nil
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", rooted, err)
	}
	return data, nil
}

func (p *s3Provider) Delete(ctx context.Context, key string) error {
	start := time.Now()
	var err error
	defer func() { record(KindS3, "delete", start, err) }()

	ctx, cancel := withCallTimeout(ctx, s3CallTimeout)
	defer cancel()

	rooted := WithRoot(p.prefix, key)
	err = p.client.RemoveObject(ctx, p.bucket, rooted, minio.RemoveObjectOptions{})
	if err != nil {
		return fmt.Errorf("failed to delete %s: %w", rooted, err)
	}
	return nil
}

func (p *s3Provider) FileMeta(ctx context.Context, key string) (*Object, error) {
	start := time.Now()
	var err error
	defer func() { record(KindS3, "meta", start, err) }()

	ctx, cancel := withCallTimeout(ctx, s3CallTimeout)
	defer cancel()

	rooted := WithRoot(p.prefix, key)
	info, err := p.client.StatObject(ctx, p.bucket, rooted, minio.StatObjectOptions{})
	if isNoSuchKey(err) {
		err = nil
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", rooted, err)
	}

	return &Object{
		Key:          rooted,
		Size:         info.Size,
		ETag:         info.ETag,
		LastModified: info.LastModified,
	}, nil
}

func (p *s3Provider) ListAll(ctx context.Context) ([]Object, error) {
	start := time.Now()
	var err error
	defer func() { record(KindS3, "list", start, err) }()

	var objects []Object
	opts := minio.ListObjectsOptions{Prefix: p.prefix, Recursive: true}
	for info := range p.client.ListObjects(ctx, p.bucket, opts) {
		if info.Err != nil {
			err = info.Err
			return nil, fmt.Errorf("failed to list bucket %s: %w", p.bucket, info.Err)
		}
		if strings.HasSuffix(info.Key, "/") {
			continue
		}
		objects = append(objects, Object{
			Key:          info.Key,
			Size:         info.Size,
			ETag:         info.ETag,
			LastModified: info.LastModified,
		})
	}
	return objects, nil
}

func (p *s3Provider) ListImages(ctx context.Context) ([]Object, error) {
	all, err := p.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	images := all[:0:0]
	for _, obj := range all {
		if mediatypes.IsImageKey(obj.Key) {
			images = append(images, obj)
		}
	}
	return images, nil
}

// PublicURL derives a stable URL without touching the network. Precedence:
// CDN base, AWS virtual-hosted style, Aliyun virtual-hosted style, then a
// path-style URL on any custom endpoint.
func (p *s3Provider) PublicURL(key string) string {
	rooted := WithRoot(p.prefix, key)

	if p.cdnURL != "" {
		return p.cdnURL + "/" + rooted
	}

	switch {
	case strings.Contains(p.endpoint, "amazonaws"):
		region := p.region
		if region == "" {
			region = "us-east-1"
		}
		return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", p.bucket, region, rooted)
	case strings.Contains(p.endpoint, "aliyuncs"):
		host := p.endpoint
		if i := strings.Index(host, "://"); i >= 0 {
			host = host[i+3:]
		}
		return fmt.Sprintf("https://%s.%s/%s", p.bucket, host, rooted)
	default:
		return fmt.Sprintf("%s/%s/%s", p.endpoint, p.bucket, rooted)
	}
}

// SignedUploadURL returns a presigned PUT URL for direct client uploads.
func (p *s3Provider) SignedUploadURL(ctx context.Context, key string, expiry time.Duration, contentType string) (string, error) {
	start := time.Now()
	var err error
	defer func() { record(KindS3, "sign", start, err) }()

	rooted := WithRoot(p.prefix, key)
	u, err := p.client.PresignedPutObject(ctx, p.bucket, rooted, expiry)
	if err != nil {
		return "", fmt.Errorf("failed to presign upload for %s: %w", rooted, err)
	}
	return u.String(), nil
}

func isNoSuchKey(err error) bool {
	if err == nil {
		return false
	}
	resp := minio.ToErrorResponse(err)
	return resp.Code == "NoSuchKey" || resp.StatusCode == 404
}
