// Package backup uploads point-in-time snapshots of the shared document to
// object storage.
package backup

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/relaybots/relay/backend/go-services/internal/store"
)

// ObjectStore is the subset of an S3-style client the uploader uses.
type ObjectStore interface {
	PutObject(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
}

// Uploader writes snapshots under prefix/<name>-<UTC time>.json.
type Uploader struct {
	objects ObjectStore
	prefix  string
	name    string
	now     func() time.Time
}

// NewUploader names snapshots after the store file (without extension).
func NewUploader(objects ObjectStore, storePath string) *Uploader {
	name := strings.TrimSuffix(path.Base(storePath), path.Ext(storePath))
	if name == "" || name == "." || name == "/" {
		name = "db"
	}
	return &Uploader{objects: objects, prefix: "snapshots", name: name, now: time.Now}
}

// Upload serializes doc exactly as the store would and uploads it.
func (u *Uploader) Upload(ctx context.Context, doc *store.Document) (string, error) {
	data, err := json.MarshalIndent(doc, "", "    ")
	if err != nil {
		return "", fmt.Errorf("encode snapshot: %w", err)
	}
	key := fmt.Sprintf("%s/%s-%s.json", u.prefix, u.name, u.now().UTC().Format("20060102T150405.000Z"))
	if err := u.objects.PutObject(ctx, key, bytes.NewReader(data), int64(len(data)), "application/json"); err != nil {
		return "", err
	}
	return key, nil
}
