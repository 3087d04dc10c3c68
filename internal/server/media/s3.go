package media

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

var loadDefaultAWSConfig = config.LoadDefaultConfig

type objectGetter interface {
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

type presigner interface {
	PresignGetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
	PresignPutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// S3Options configures the S3-compatible media bucket.
type S3Options struct {
	Region       string
	AccessKey    string
	SecretKey    string
	BaseEndpoint string
	Bucket       string
	PresignTTL   time.Duration
	HTTPClient   *http.Client
}

// S3Store serves media from an S3-compatible bucket and passes third-party
// URLs through.
type S3Store struct {
	objects   objectGetter
	presigner presigner
	bucket    string
	ttl       time.Duration
	http      *http.Client
}

// NewS3Store builds the S3 client with static credentials and a
// path-style custom endpoint (MinIO in development).
func NewS3Store(ctx context.Context, opts S3Options) (*S3Store, error) {
	cfg, err := loadDefaultAWSConfig(ctx,
		config.WithRegion(opts.Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(opts.AccessKey, opts.SecretKey, "")),
	)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.BaseEndpoint != "" {
			o.BaseEndpoint = aws.String(opts.BaseEndpoint)
			o.UsePathStyle = true
		}
	})

	return newS3Store(client, s3.NewPresignClient(client), opts), nil
}

func newS3Store(objects objectGetter, p presigner, opts S3Options) *S3Store {
	ttl := opts.PresignTTL
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: 60 * time.Second}
	}
	return &S3Store{objects: objects, presigner: p, bucket: opts.Bucket, ttl: ttl, http: hc}
}

// locate splits a reference into bucket and key.
func (s *S3Store) locate(ref string) (bucket, key string, err error) {
	if rest, ok := strings.CutPrefix(ref, "s3://"); ok {
		bucket, key, _ = strings.Cut(rest, "/")
	} else {
		bucket, key = s.bucket, strings.TrimPrefix(ref, "/")
	}
	if bucket == "" || key == "" {
		return "", "", fmt.Errorf("invalid media reference %q", ref)
	}
	return bucket, key, nil
}

func (s *S3Store) URL(ctx context.Context, ref string) (string, error) {
	if IsRemote(ref) {
		return ref, nil
	}
	bucket, key, err := s.locate(ref)
	if err != nil {
		return "", err
	}

	req, err := s.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: &bucket,
		Key:    &key,
	}, s3.WithPresignExpires(s.ttl))
	if err != nil {
		return "", fmt.Errorf("presign media: %w", err)
	}
	return req.URL, nil
}

func (s *S3Store) Fetch(ctx context.Context, ref string) (*Object, error) {
	if IsRemote(ref) {
		return fetchRemote(ctx, s.http, ref)
	}
	bucket, key, err := s.locate(ref)
	if err != nil {
		return nil, err
	}

	out, err := s.objects.GetObject(ctx, &s3.GetObjectInput{Bucket: &bucket, Key: &key})
	if err != nil {
		return nil, fmt.Errorf("get media object: %w", err)
	}
	defer out.Body.Close()

	if out.ContentLength != nil && *out.ContentLength > MaxObjectSize {
		return nil, fmt.Errorf("media object larger than %d bytes", MaxObjectSize)
	}
	data, err := io.ReadAll(io.LimitReader(out.Body, MaxObjectSize+1))
	if err != nil {
		return nil, fmt.Errorf("read media object: %w", err)
	}
	if len(data) > MaxObjectSize {
		return nil, fmt.Errorf("media object larger than %d bytes", MaxObjectSize)
	}

	ct := aws.ToString(out.ContentType)
	if ct == "" || ct == "application/octet-stream" {
		ct = ContentTypeFor(key)
	}
	return &Object{Data: data, ContentType: ct, Name: path.Base(key)}, nil
}

// PresignUpload hands the authoring UI a one-off PUT URL for a new object
// and returns the reference to store on the post.
func (s *S3Store) PresignUpload(ctx context.Context, userID, filename string) (ref, url string, err error) {
	key := NewStorageKey(userID, strings.ToLower(path.Ext(filename)))
	bucket := s.bucket

	req, err := s.presigner.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket: &bucket,
		Key:    &key,
	}, s3.WithPresignExpires(s.ttl))
	if err != nil {
		return "", "", fmt.Errorf("presign upload: %w", err)
	}
	return "s3://" + bucket + "/" + key, req.URL, nil
}
