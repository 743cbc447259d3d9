package biometric

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/sethvargo/go-retry"
)

// S3Config locates the reference-image bucket. Keys are expected to follow
// <Prefix><userID>/<object>; anything else in the bucket is ignored.
type S3Config struct {
	RootUser     string
	RootPassword string
	Bucket       string
	Region       string
	BaseEndpoint string
	Prefix       string
}

// s3API is the subset of the S3 client the gallery uses.
type s3API interface {
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Source serves the gallery from an S3-compatible bucket. Embeddings are
// cached per object and invalidated by ETag, so a re-uploaded profile image
// is re-embedded on the next match.
type S3Source struct {
	client     s3API
	bucket     string
	prefix     string
	embedder   Embedder
	scratchDir string

	mu    sync.Mutex
	cache map[string]s3CacheEntry
}

type s3CacheEntry struct {
	etag      string
	embedding []float64
}

// NewS3Source builds an S3 client from static credentials and an optional
// custom endpoint (minio et al.), then wraps it as a gallery source.
func NewS3Source(ctx context.Context, cfg S3Config, embedder Embedder, scratchDir string) (*S3Source, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.RootUser,
			cfg.RootPassword,
			"",
		)))
	if err != nil {
		return nil, fmt.Errorf("aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.BaseEndpoint != "" {
			o.BaseEndpoint = aws.String(cfg.BaseEndpoint)
		}
		o.UsePathStyle = true
	})

	return newS3SourceWithClient(client, cfg, embedder, scratchDir), nil
}

func newS3SourceWithClient(client s3API, cfg S3Config, embedder Embedder, scratchDir string) *S3Source {
	return &S3Source{
		client:     client,
		bucket:     cfg.Bucket,
		prefix:     cfg.Prefix,
		embedder:   embedder,
		scratchDir: scratchDir,
		cache:      make(map[string]s3CacheEntry),
	}
}

func (s *S3Source) References(ctx context.Context) ([]Reference, error) {
	var refs []Reference

	var continuation *string
	for {
		out, err := s.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            aws.String(s.bucket),
			Prefix:            aws.String(s.prefix),
			ContinuationToken: continuation,
		})
		if err != nil {
			return nil, fmt.Errorf("listing gallery bucket: %w", err)
		}

		for _, obj := range out.Contents {
			key := aws.ToString(obj.Key)
			userID, ok := s.userIDFromKey(key)
			if !ok {
				continue
			}

			embedding, err := s.embed(ctx, key, aws.ToString(obj.ETag))
			if err != nil {
				return nil, err
			}
			refs = append(refs, Reference{UserID: userID, Key: key, Embedding: embedding})
		}

		if out.IsTruncated == nil || !*out.IsTruncated {
			break
		}
		continuation = out.NextContinuationToken
	}

	return refs, nil
}

// userIDFromKey extracts the user from "<prefix><userID>/<object>".
func (s *S3Source) userIDFromKey(key string) (string, bool) {
	rest, ok := strings.CutPrefix(key, s.prefix)
	if !ok {
		return "", false
	}
	userID, object, found := strings.Cut(rest, "/")
	if !found || userID == "" || object == "" {
		return "", false
	}
	return userID, true
}

func (s *S3Source) embed(ctx context.Context, key, etag string) ([]float64, error) {
	s.mu.Lock()
	entry, ok := s.cache[key]
	s.mu.Unlock()
	if ok && entry.etag == etag {
		return entry.embedding, nil
	}

	path, cleanup, err := s.fetch(ctx, key)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	embedding, err := s.embedder.EmbedFile(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("embedding gallery object %s: %w", key, err)
	}

	s.mu.Lock()
	s.cache[key] = s3CacheEntry{etag: etag, embedding: embedding}
	s.mu.Unlock()

	return embedding, nil
}

// fetch downloads the object to a private scratch file, retrying transient
// failures with exponential backoff.
func (s *S3Source) fetch(ctx context.Context, key string) (string, func(), error) {
	f, err := os.CreateTemp(s.scratchDir, "gallery-*.img")
	if err != nil {
		return "", nil, fmt.Errorf("creating scratch file: %w", err)
	}
	path := f.Name()
	cleanup := func() { _ = os.Remove(path) }

	backoff := retry.WithMaxRetries(3, retry.NewExponential(200*time.Millisecond))
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(key),
		})
		if err != nil {
			return retry.RetryableError(err)
		}
		defer out.Body.Close()

		if err := f.Truncate(0); err != nil {
			return err
		}
		if _, err := f.Seek(0, io.SeekStart); err != nil {
			return err
		}
		_, err = io.Copy(f, out.Body)
		return err
	})

	closeErr := f.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		cleanup()
		return "", nil, fmt.Errorf("fetching gallery object %s: %w", key, err)
	}

	return path, cleanup, nil
}
