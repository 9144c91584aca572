// Package gcs uploads finished run archives to Google Cloud Storage.
package gcs

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

// Config captures the parameters required to connect to GCS.
type Config struct {
	Bucket   string
	Prefix   string
	Endpoint string
}

// Uploader writes archives to a configured GCS bucket.
type Uploader struct {
	client *storage.Client
	bucket string
	prefix string
	owned  bool
}

// New creates an uploader around an existing client.
func New(client *storage.Client, cfg Config) (*Uploader, error) {
	if client == nil {
		return nil, fmt.Errorf("storage client is required")
	}
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, fmt.Errorf("bucket name is required")
	}
	return &Uploader{
		client: client,
		bucket: cfg.Bucket,
		prefix: strings.Trim(cfg.Prefix, "/"),
	}, nil
}

// Dial builds a client from application default credentials, or against
// cfg.Endpoint without authentication when one is set (emulators).
func Dial(ctx context.Context, cfg Config) (*Uploader, error) {
	var opts []option.ClientOption
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.Endpoint), option.WithoutAuthentication())
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}
	u, err := New(client, cfg)
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	u.owned = true
	return u, nil
}

// ObjectName returns the object key used for a local file.
func (u *Uploader) ObjectName(localPath string) string {
	name := filepath.Base(localPath)
	if u.prefix == "" {
		return name
	}
	return path.Join(u.prefix, name)
}

// UploadFile copies the file at localPath into the bucket and returns a gs:// URI.
func (u *Uploader) UploadFile(ctx context.Context, localPath string) (string, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", localPath, err)
	}
	defer func() { _ = f.Close() }()
	return u.PutObject(ctx, u.ObjectName(localPath), "application/zip", f)
}

// PutObject uploads data to the configured bucket and returns a gs:// URI.
func (u *Uploader) PutObject(ctx context.Context, name, contentType string, r io.Reader) (string, error) {
	if strings.TrimSpace(name) == "" {
		return "", fmt.Errorf("object name is required")
	}
	writer := u.client.Bucket(u.bucket).Object(name).NewWriter(ctx)
	if contentType != "" {
		writer.ContentType = contentType
	}
	if _, err := io.Copy(writer, r); err != nil {
		closeErr := writer.Close()
		if closeErr != nil {
			return "", fmt.Errorf("copy object: %w (close writer: %v)", err, closeErr)
		}
		return "", fmt.Errorf("copy object: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("close writer: %w", err)
	}
	return fmt.Sprintf("gs://%s/%s", u.bucket, name), nil
}

// Close releases the client when the uploader created it.
func (u *Uploader) Close() error {
	if u == nil || !u.owned {
		return nil
	}
	return u.client.Close()
}
