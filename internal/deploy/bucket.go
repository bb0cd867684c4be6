package deploy

import (
	"context"
	"fmt"
	"io/fs"
	"mime"
	"path/filepath"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	sferrors "git.home.luguber.info/inful/siteforge/internal/errors"
)

// bucketPublisher pushes artifacts to an S3-compatible bucket. Promote uses
// server-side copies so artifact bytes never round-trip through the client.
type bucketPublisher struct {
	env    Environment
	client *minio.Client
}

func newBucketPublisher(env Environment) (*bucketPublisher, error) {
	client, err := minio.New(env.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(env.AccessKey, env.SecretKey, ""),
		Secure: env.Secure,
	})
	if err != nil {
		return nil, fmt.Errorf("bucket client for %s: %w", env.Name, err)
	}
	return &bucketPublisher{env: env, client: client}, nil
}

func (p *bucketPublisher) Publish(ctx context.Context, artifactDir string) (int, error) {
	if err := p.ensureBucket(ctx, p.env.Target); err != nil {
		return 0, err
	}

	count := 0
	err := filepath.WalkDir(artifactDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(artifactDir, path)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		contentType := mime.TypeByExtension(filepath.Ext(path))
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		if _, err := p.client.FPutObject(ctx, p.env.Target, key, path,
			minio.PutObjectOptions{ContentType: contentType}); err != nil {
			return sferrors.PublishNetworkError(p.env.Target, fmt.Errorf("upload %s: %w", key, err))
		}
		count++
		return nil
	})
	return count, err
}

func (p *bucketPublisher) PromoteFrom(ctx context.Context, source Environment) (int, error) {
	if err := p.ensureBucket(ctx, p.env.Target); err != nil {
		return 0, err
	}

	count := 0
	for obj := range p.client.ListObjects(ctx, source.Target, minio.ListObjectsOptions{Recursive: true}) {
		if obj.Err != nil {
			return count, sferrors.PublishNetworkError(source.Target, fmt.Errorf("list %s: %w", source.Target, obj.Err))
		}
		_, err := p.client.CopyObject(ctx,
			minio.CopyDestOptions{Bucket: p.env.Target, Object: obj.Key},
			minio.CopySrcOptions{Bucket: source.Target, Object: obj.Key})
		if err != nil {
			return count, sferrors.PublishNetworkError(p.env.Target, fmt.Errorf("copy %s: %w", obj.Key, err))
		}
		count++
	}
	return count, nil
}

func (p *bucketPublisher) ensureBucket(ctx context.Context, bucket string) error {
	exists, err := p.client.BucketExists(ctx, bucket)
	if err != nil {
		return sferrors.PublishNetworkError(bucket, fmt.Errorf("bucket exists %s: %w", bucket, err))
	}
	if exists {
		return nil
	}
	if err := p.client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("make bucket %s: %w", bucket, err)
	}
	return nil
}
