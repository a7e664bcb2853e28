// Package blobstore keeps accepted eSIM images in an S3-compatible bucket.
// Stored records keep the permanent object URL; time-limited links are
// presigned when an image is read.
package blobstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
)

var (
	loadDefaultAWSConfig = config.LoadDefaultConfig

	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		return s3.NewFromConfig(cfg, optFns...)
	}

	presignGetObject = func(pc *s3.PresignClient, ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
		return pc.PresignGetObject(ctx, in, optFns...)
	}
)

// objectAPI is the subset of *s3.Client the store calls.
type objectAPI interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// Options configures the bucket connection. User and Password are optional;
// without them the default AWS credential chain applies. Endpoint switches
// to path-style addressing for MinIO and similar servers.
type Options struct {
	Region   string
	User     string
	Password string
	Endpoint string
	Bucket   string
	Expiry   time.Duration
}

type Store struct {
	api     objectAPI
	presign *s3.PresignClient
	bucket   string
	region   string
	endpoint string
	expiry   time.Duration
}

func New(ctx context.Context, o Options) (*Store, error) {
	opts := []func(*config.LoadOptions) error{config.WithRegion(o.Region)}
	if o.User != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(o.User, o.Password, "")))
	}
	cfg, err := loadDefaultAWSConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := newS3ClientFromConfig(cfg, func(so *s3.Options) {
		if o.Endpoint != "" {
			so.BaseEndpoint = aws.String(o.Endpoint)
			so.UsePathStyle = true
		}
	})

	expiry := o.Expiry
	if expiry <= 0 {
		expiry = 15 * time.Minute
	}
	return &Store{
		api:      client,
		presign:  s3.NewPresignClient(client),
		bucket:   o.Bucket,
		region:   o.Region,
		endpoint: o.Endpoint,
		expiry:   expiry,
	}, nil
}

// StorageKey returns a fresh object key under inventory/<provider>/y/m/d.
func StorageKey(provider string, now time.Time) string {
	p := strings.Map(func(r rune) rune {
		if r == '/' || r == ' ' {
			return '_'
		}
		return r
	}, strings.TrimSpace(provider))
	if p == "" {
		p = "unknown"
	}
	return fmt.Sprintf("inventory/%s/%d/%d/%d/%v.png", p, now.Year(), now.Month(), now.Day(), uuid.New())
}

// Put stores data under key.
func (s *Store) Put(ctx context.Context, key string, data []byte) error {
	_, err := s.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(http.DetectContentType(data)),
	})
	if err != nil {
		return fmt.Errorf("put object %s: %w", key, err)
	}
	return nil
}

// Get reads the object at key.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	out, err := s.api.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("get object %s: %w", key, err)
	}
	defer out.Body.Close()
	return io.ReadAll(out.Body)
}

// URL returns a presigned GET link for key.
func (s *Store) URL(ctx context.Context, key string) (string, error) {
	req, err := presignGetObject(s.presign, ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(s.expiry))
	if err != nil {
		return "", fmt.Errorf("presign %s: %w", key, err)
	}
	return req.URL, nil
}

// ObjectURL returns the unsigned URL of key. It does not expire; reading
// it needs bucket access, so use URL for a link to hand out.
func (s *Store) ObjectURL(key string) string {
	if s.endpoint != "" {
		if u, err := url.Parse(s.endpoint); err == nil && u.Host != "" {
			u.Path = path.Join("/", u.Path, s.bucket, key)
			return u.String()
		}
	}
	host := s.bucket + ".s3.amazonaws.com"
	if s.region != "" {
		host = s.bucket + ".s3." + s.region + ".amazonaws.com"
	}
	return (&url.URL{Scheme: "https", Host: host, Path: "/" + key}).String()
}

// Upload stores data under key and returns its permanent object URL.
func (s *Store) Upload(ctx context.Context, key string, data []byte) (string, error) {
	if err := s.Put(ctx, key, data); err != nil {
		return "", err
	}
	return s.ObjectURL(key), nil
}
