package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/hal2001/kubeface/internal/naming"
)

// MinioConfig holds connection settings for an S3-compatible endpoint.
type MinioConfig struct {
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
	UseSSL    bool
}

// MinioDriver implements Driver against any S3-compatible store
// (AWS S3, MinIO, GCS interop endpoints). The bucket is taken from each
// path, so one driver serves every bucket reachable at the endpoint.
type MinioDriver struct {
	client *minio.Client
}

// NewMinioDriver creates a driver for the configured endpoint.
func NewMinioDriver(cfg MinioConfig) (*MinioDriver, error) {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		return nil, fmt.Errorf("storage endpoint is required")
	}
	region := strings.TrimSpace(cfg.Region)
	if region == "" {
		region = "us-east-1"
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: region,
	})
	if err != nil {
		return nil, fmt.Errorf("init storage client: %w", err)
	}
	return &MinioDriver{client: client}, nil
}

// Put creates or overwrites the object. ACL entries are forwarded as
// x-amz-grant headers; stores without per-object grant support ignore
// them, which is the documented best-effort behavior.
func (d *MinioDriver) Put(ctx context.Context, path naming.Path, data []byte, opts PutOptions) error {
	putOpts := minio.PutObjectOptions{
		ContentType:  "application/octet-stream",
		UserMetadata: grantHeaders(opts),
	}
	_, err := d.client.PutObject(ctx, path.Bucket, path.Key,
		bytes.NewReader(data), int64(len(data)), putOpts)
	return err
}

func grantHeaders(opts PutOptions) map[string]string {
	if len(opts.Readers) == 0 && len(opts.Owners) == 0 {
		return nil
	}
	headers := make(map[string]string, 2)
	if len(opts.Readers) > 0 {
		headers["X-Amz-Grant-Read"] = grantees(opts.Readers)
	}
	if len(opts.Owners) > 0 {
		headers["X-Amz-Grant-Full-Control"] = grantees(opts.Owners)
	}
	return headers
}

func grantees(ids []string) string {
	quoted := make([]string, len(ids))
	for i, id := range ids {
		if strings.Contains(id, "@") {
			quoted[i] = fmt.Sprintf("emailAddress=%q", id)
		} else {
			quoted[i] = fmt.Sprintf("id=%q", id)
		}
	}
	return strings.Join(quoted, ", ")
}

func (d *MinioDriver) Get(ctx context.Context, path naming.Path) ([]byte, error) {
	obj, err := d.client.GetObject(ctx, path.Bucket, path.Key, minio.GetObjectOptions{})
	if err != nil {
		return nil, err
	}
	defer obj.Close()
	return io.ReadAll(obj)
}

func (d *MinioDriver) Delete(ctx context.Context, path naming.Path) error {
	return d.client.RemoveObject(ctx, path.Bucket, path.Key, minio.RemoveObjectOptions{})
}

// Copy performs a server-side copy.
func (d *MinioDriver) Copy(ctx context.Context, src, dst naming.Path) error {
	_, err := d.client.CopyObject(ctx,
		minio.CopyDestOptions{Bucket: dst.Bucket, Object: dst.Key},
		minio.CopySrcOptions{Bucket: src.Bucket, Object: src.Key},
	)
	return err
}

// List returns every object key under the prefix. The SDK follows
// store-side pagination internally, so the result is always complete.
func (d *MinioDriver) List(ctx context.Context, prefix naming.Path) ([]string, error) {
	keys := make([]string, 0, 32)
	for obj := range d.client.ListObjects(ctx, prefix.Bucket, minio.ListObjectsOptions{
		Prefix:    prefix.Key,
		Recursive: true,
	}) {
		if obj.Err != nil {
			return nil, obj.Err
		}
		if obj.Key == "" {
			continue
		}
		keys = append(keys, obj.Key)
	}
	return keys, nil
}

var _ Driver = (*MinioDriver)(nil)
