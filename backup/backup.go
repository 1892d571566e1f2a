// Package backup mirrors the record table and the attachments tree to
// S3-compatible storage.
//
// Table snapshots are zstd-compressed and never overwritten:
//
//	snapshots/2025-03-01_101112/database.xlsx.zst
//	attachments/APP-001/report.pdf
package backup

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/kjk/testdesk/atomicfile"
	"github.com/kjk/testdesk/attachments"
	"github.com/kjk/testdesk/config"
	"github.com/kjk/testdesk/log"
	"github.com/kjk/testdesk/u"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

const (
	snapshotsPrefix   = "snapshots/"
	attachmentsPrefix = "attachments/"
	snapshotTimeFmt   = "2006-01-02_150405"
	zstdExt           = ".zst"
)

type Client struct {
	Client *minio.Client
	Bucket string
}

func checkConfig(c *config.BackupConfig) error {
	if c == nil {
		return errors.New("must provide config")
	}
	if c.Access == "" || c.Secret == "" || c.Bucket == "" || c.Endpoint == "" {
		return errors.New("must provide endpoint, bucket, access and secret")
	}
	return nil
}

// New connects to storage described by c and checks that the bucket exists
func New(ctx context.Context, c *config.BackupConfig) (*Client, error) {
	if err := checkConfig(c); err != nil {
		return nil, err
	}
	mc, err := minio.New(c.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(c.Access, c.Secret, ""),
		Region: c.Region,
		Secure: !c.Insecure,
	})
	if err != nil {
		return nil, err
	}
	found, err := mc.BucketExists(ctx, c.Bucket)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("bucket '%s' doesn't exist", c.Bucket)
	}
	return &Client{
		Client: mc,
		Bucket: c.Bucket,
	}, nil
}

// SnapshotKey returns key of snapshot of file name taken at t
func SnapshotKey(name string, t time.Time) string {
	return snapshotsPrefix + t.UTC().Format(snapshotTimeFmt) + "/" + name + zstdExt
}

// AttachmentKey returns key of mirrored attachment
func AttachmentKey(appNo, name string) string {
	return path.Join(attachmentsPrefix, appNo, name)
}

func (c *Client) Exists(ctx context.Context, key string) bool {
	_, err := c.Client.StatObject(ctx, c.Bucket, key, minio.StatObjectOptions{})
	return err == nil
}

func (c *Client) uploadData(ctx context.Context, key string, d []byte, contentType string) error {
	opts := minio.PutObjectOptions{
		ContentType: contentType,
	}
	r := bytes.NewReader(d)
	_, err := c.Client.PutObject(ctx, c.Bucket, key, r, int64(len(d)), opts)
	return err
}

// SnapshotTable uploads compressed copy of the table file. Returns its key.
func (c *Client) SnapshotTable(ctx context.Context, tablePath string, now time.Time) (string, error) {
	d, err := os.ReadFile(tablePath)
	if err != nil {
		return "", err
	}
	zd, err := u.ZstdCompressData(d)
	if err != nil {
		return "", err
	}
	key := SnapshotKey(filepath.Base(tablePath), now)
	if err = c.uploadData(ctx, key, zd, "application/zstd"); err != nil {
		return "", fmt.Errorf("upload of '%s' as '%s' failed: %w", tablePath, key, err)
	}
	log.Event("backup.snapshot", "key", key, "size", len(d), "compressed", len(zd))
	return key, nil
}

// MirrorAttachments uploads attachments that are not yet in the bucket.
// Stored attachments are never modified so existing keys are skipped.
// Returns number of uploaded files.
func (c *Client) MirrorAttachments(ctx context.Context, store *attachments.Store) (int, error) {
	folders, err := store.Folders()
	if err != nil {
		return 0, err
	}
	n := 0
	for _, appNo := range folders {
		names, err := store.List(appNo)
		if err != nil {
			return n, err
		}
		for _, name := range names {
			if err := ctx.Err(); err != nil {
				return n, err
			}
			key := AttachmentKey(appNo, name)
			if c.Exists(ctx, key) {
				continue
			}
			pathLocal, err := store.Path(appNo, name)
			if err != nil {
				return n, err
			}
			opts := minio.PutObjectOptions{
				ContentType: attachments.ContentType(name),
			}
			if _, err = c.Client.FPutObject(ctx, c.Bucket, key, pathLocal, opts); err != nil {
				return n, fmt.Errorf("upload of '%s' as '%s' failed: %w", pathLocal, key, err)
			}
			n++
		}
	}
	log.Event("backup.attachments", "uploaded", n)
	return n, nil
}

// ListSnapshots returns keys of table snapshots, oldest first
func (c *Client) ListSnapshots(ctx context.Context) ([]string, error) {
	opts := minio.ListObjectsOptions{
		Prefix:    snapshotsPrefix,
		Recursive: true,
	}
	var keys []string
	for obj := range c.Client.ListObjects(ctx, c.Bucket, opts) {
		if obj.Err != nil {
			return nil, obj.Err
		}
		if strings.HasSuffix(obj.Key, zstdExt) {
			keys = append(keys, obj.Key)
		}
	}
	// the timestamp in the key sorts chronologically
	slices.Sort(keys)
	return keys, nil
}

// RestoreTable downloads snapshot key and replaces dstPath with it.
// If key is "", the latest snapshot is restored. Returns restored key.
func (c *Client) RestoreTable(ctx context.Context, key string, dstPath string) (string, error) {
	if key == "" {
		keys, err := c.ListSnapshots(ctx)
		if err != nil {
			return "", err
		}
		if len(keys) == 0 {
			return "", errors.New("no snapshots")
		}
		key = keys[len(keys)-1]
	}
	obj, err := c.Client.GetObject(ctx, c.Bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return "", err
	}
	defer u.CloseNoError(obj)
	zd, err := io.ReadAll(obj)
	if err != nil {
		return "", err
	}
	d, err := u.ZstdDecompressData(zd)
	if err != nil {
		return "", fmt.Errorf("decompress '%s': %w", key, err)
	}
	if err = os.MkdirAll(filepath.Dir(dstPath), 0755); err != nil {
		return "", err
	}
	if err = atomicfile.WriteFile(dstPath, d); err != nil {
		return "", err
	}
	log.Event("backup.restore", "key", key, "path", dstPath)
	return key, nil
}

// Run snapshots the table and mirrors attachments
func Run(ctx context.Context, c *Client, cfg *config.Config, now time.Time) error {
	if u.FileExists(cfg.TablePath()) {
		if _, err := c.SnapshotTable(ctx, cfg.TablePath(), now); err != nil {
			return err
		}
	}
	_, err := c.MirrorAttachments(ctx, attachments.New(cfg))
	return err
}
