package blob

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
)

func backends(t *testing.T) map[string]Store {
	t.Helper()
	fsStore, err := NewFilesystem(t.TempDir())
	if err != nil {
		t.Fatalf("fs: %v", err)
	}
	return map[string]Store{
		"memory": NewMemory(),
		"fs":     fsStore,
		"s3":     NewMockS3(),
	}
}

func TestStoreContract(t *testing.T) {
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			png := []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 1, 2}
			info, err := store.Put(ctx, "reports/a/chart.png", bytes.NewReader(png), PutOptions{
				ContentType: "image/png",
				Metadata:    map[string]string{"scenario": "a"},
			})
			if err != nil {
				t.Fatalf("put: %v", err)
			}
			if info.Size != int64(len(png)) || info.ContentType != "image/png" || info.ETag == "" {
				t.Fatalf("unexpected info %+v", info)
			}
			if _, err := store.Put(ctx, "reports/a/chart.png", strings.NewReader("x"), PutOptions{}); !errors.Is(err, ErrExists) {
				t.Fatalf("expected ErrExists, got %v", err)
			}

			got, rc, err := store.Get(ctx, "reports/a/chart.png")
			if err != nil {
				t.Fatalf("get: %v", err)
			}
			body, _ := io.ReadAll(rc)
			_ = rc.Close()
			if !bytes.Equal(body, png) {
				t.Fatalf("binary payload altered: %v", body)
			}
			if got.Metadata["scenario"] != "a" {
				t.Fatalf("metadata lost: %+v", got.Metadata)
			}

			if _, err := store.Put(ctx, "reports/a/data.csv", strings.NewReader("day\n0\n"), PutOptions{ContentType: "text/csv"}); err != nil {
				t.Fatalf("put csv: %v", err)
			}
			if _, err := store.Put(ctx, "reports/b/data.csv", strings.NewReader("day\n"), PutOptions{}); err != nil {
				t.Fatalf("put other: %v", err)
			}
			list, err := store.List(ctx, "reports/a/")
			if err != nil {
				t.Fatalf("list: %v", err)
			}
			if len(list) != 2 || list[0].Key != "reports/a/chart.png" || list[1].Key != "reports/a/data.csv" {
				t.Fatalf("unexpected listing %+v", list)
			}

			if _, err := store.Head(ctx, "reports/missing"); !errors.Is(err, ErrNotFound) {
				t.Fatalf("expected ErrNotFound from head, got %v", err)
			}
			if _, _, err := store.Get(ctx, "reports/missing"); !errors.Is(err, ErrNotFound) {
				t.Fatalf("expected ErrNotFound from get, got %v", err)
			}
			ok, err := store.Delete(ctx, "reports/a/data.csv")
			if err != nil || !ok {
				t.Fatalf("delete existing: %v %v", ok, err)
			}
			ok, err = store.Delete(ctx, "reports/a/data.csv")
			if err != nil || ok {
				t.Fatalf("delete missing: %v %v", ok, err)
			}

			if _, err := store.PresignURL(ctx, "reports/a/chart.png", SignedURLOptions{Method: "PUT"}); !errors.Is(err, ErrUnsupported) {
				t.Fatalf("PUT presign should be unsupported, got %v", err)
			}
		})
	}
}

func TestPresignURL(t *testing.T) {
	ctx := context.Background()
	stores := backends(t)
	if _, err := stores["memory"].PresignURL(ctx, "k", SignedURLOptions{}); !errors.Is(err, ErrUnsupported) {
		t.Fatalf("memory presign should be unsupported")
	}
	u, err := stores["fs"].PresignURL(ctx, "reports/x.csv", SignedURLOptions{})
	if err != nil || !strings.HasPrefix(u, "file://") || !strings.HasSuffix(u, "/reports/x.csv") {
		t.Fatalf("unexpected fs url %q %v", u, err)
	}
	u, err = stores["s3"].PresignURL(ctx, "reports/x.csv", SignedURLOptions{})
	if err != nil || !strings.Contains(u, "X-Amz-Signature") || !strings.Contains(u, "reports/x.csv") {
		t.Fatalf("unexpected s3 url %q %v", u, err)
	}
}

func TestOpenFromEnv(t *testing.T) {
	ctx := context.Background()
	t.Setenv(EnvDriver, "memory")
	store, err := Open(ctx)
	if err != nil || store.Driver() != DriverMemory {
		t.Fatalf("memory driver: %v %v", store, err)
	}

	t.Setenv(EnvDriver, "")
	t.Setenv(EnvFSRoot, t.TempDir())
	store, err = Open(ctx)
	if err != nil || store.Driver() != DriverFilesystem {
		t.Fatalf("default driver should be fs: %v", err)
	}

	t.Setenv(EnvDriver, "s3")
	t.Setenv("SIMPIDEMIC_BLOB_S3_BUCKET", "")
	if _, err := Open(ctx); err == nil {
		t.Fatalf("s3 without bucket should fail")
	}
	t.Setenv("SIMPIDEMIC_BLOB_S3_BUCKET", "reports")
	t.Setenv("SIMPIDEMIC_BLOB_S3_ACCESS_KEY_ID", "id")
	t.Setenv("SIMPIDEMIC_BLOB_S3_SECRET_ACCESS_KEY", "secret")
	store, err = Open(ctx)
	if err != nil || store.Driver() != DriverS3 {
		t.Fatalf("s3 driver: %v", err)
	}

	t.Setenv(EnvDriver, "gcs")
	if _, err := Open(ctx); err == nil {
		t.Fatalf("unknown driver should fail")
	}
}
