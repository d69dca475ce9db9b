package storage

import (
	"context"
	"fmt"
	"io"
	"mime"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/vango-dev/chatsync/pkg/chat"
)

// S3API is the subset of *s3.Client used by S3Files.
type S3API interface {
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Presigner creates presigned GET requests. *s3.PresignClient implements it.
type Presigner interface {
	PresignGetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// S3Config configures an S3 client for S3Files.
type S3Config struct {
	Region string
	// Endpoint overrides the AWS endpoint for S3-compatible services.
	Endpoint string
	// PathStyle addresses buckets as <endpoint>/<bucket>. Most S3-compatible
	// services need it.
	PathStyle bool

	AccessKeyID     string
	SecretAccessKey string
}

// NewS3Client builds an S3 client from cfg. Without an access key the
// client sends anonymous requests.
func NewS3Client(cfg S3Config) *s3.Client {
	opts := s3.Options{
		Region:       cfg.Region,
		UsePathStyle: cfg.PathStyle,
	}
	if cfg.Endpoint != "" {
		opts.BaseEndpoint = aws.String(cfg.Endpoint)
	}
	if cfg.AccessKeyID != "" {
		creds := aws.Credentials{
			AccessKeyID:     cfg.AccessKeyID,
			SecretAccessKey: cfg.SecretAccessKey,
			Source:          "chatsync",
		}
		opts.Credentials = aws.CredentialsProviderFunc(func(context.Context) (aws.Credentials, error) {
			return creds, nil
		})
	}
	return s3.New(opts)
}

// S3Files lists the files attached to a chat from objects stored under
// <prefix><chatID>/ in a bucket.
//
// Example usage:
//
//	client := storage.NewS3Client(storage.S3Config{Region: "us-east-1"})
//	files := storage.NewS3Files(client, "my-bucket", "chats/").
//		WithPresigner(s3.NewPresignClient(client))
//	store := storage.WithFiles(sqlEngine, files)
type S3Files struct {
	client    S3API
	presigner Presigner
	bucket    string
	prefix    string
	urlExpiry time.Duration
}

// NewS3Files creates an S3 file source.
func NewS3Files(client S3API, bucket, prefix string) *S3Files {
	return &S3Files{
		client:    client,
		bucket:    bucket,
		prefix:    prefix,
		urlExpiry: 15 * time.Minute,
	}
}

// WithPresigner enables presigned download URLs on listed files.
func (s *S3Files) WithPresigner(p Presigner) *S3Files {
	s.presigner = p
	return s
}

// WithURLExpiry sets how long presigned URLs are valid.
func (s *S3Files) WithURLExpiry(d time.Duration) *S3Files {
	s.urlExpiry = d
	return s
}

func (s *S3Files) chatPrefix(chatID string) string {
	return s.prefix + chatID + "/"
}

// GetSessionFiles implements FileSource. Nested keys and directory markers
// are skipped.
func (s *S3Files) GetSessionFiles(ctx context.Context, chatID string) ([]chat.File, error) {
	prefix := s.chatPrefix(chatID)
	p := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(prefix),
	})

	files := []chat.File{}
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("storage: list s3 files for %s: %w", chatID, err)
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			name := strings.TrimPrefix(key, prefix)
			if name == "" || strings.Contains(name, "/") {
				continue
			}
			f := chat.File{
				ID:          name,
				Name:        name,
				Size:        aws.ToInt64(obj.Size),
				ContentType: mime.TypeByExtension(path.Ext(name)),
			}
			if s.presigner != nil {
				req, err := s.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
					Bucket: aws.String(s.bucket),
					Key:    aws.String(key),
				}, func(o *s3.PresignOptions) {
					o.Expires = s.urlExpiry
				})
				if err != nil {
					return nil, fmt.Errorf("storage: presign %s: %w", key, err)
				}
				f.URL = req.URL
			}
			files = append(files, f)
		}
	}
	return files, nil
}

// Put uploads a file under the chat's prefix and returns its record.
func (s *S3Files) Put(ctx context.Context, chatID, name, contentType string, size int64, body io.Reader) (chat.File, error) {
	if name == "" || strings.Contains(name, "/") {
		return chat.File{}, fmt.Errorf("storage: invalid file name %q", name)
	}
	if contentType == "" {
		contentType = mime.TypeByExtension(path.Ext(name))
	}
	input := &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(s.chatPrefix(chatID) + name),
		Body:          body,
		ContentLength: aws.Int64(size),
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}
	if _, err := s.client.PutObject(ctx, input); err != nil {
		return chat.File{}, fmt.Errorf("storage: s3 upload %s: %w", name, err)
	}
	return chat.File{ID: name, Name: name, Size: size, ContentType: contentType}, nil
}

var _ FileSource = (*S3Files)(nil)
