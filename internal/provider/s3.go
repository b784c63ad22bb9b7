package provider

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/kursadbilgin/outreach-engine/internal/render"
)

// S3API is the subset of the S3 client used for archival.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

type S3Config struct {
	Bucket string
	Prefix string
	// Endpoint and PathStyle target S3-compatible stores such as MinIO.
	Endpoint  string
	PathStyle bool
}

var _ Archiver = (*S3Archiver)(nil)

// S3Archiver stores each sent message as <prefix>/YYYY/MM/DD/<message-id>.eml.
type S3Archiver struct {
	client S3API
	bucket string
	prefix string
}

func NewS3Archiver(awsCfg aws.Config, cfg S3Config) (*S3Archiver, error) {
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.PathStyle
	})
	return NewS3ArchiverWithClient(client, cfg.Bucket, cfg.Prefix)
}

func NewS3ArchiverWithClient(client S3API, bucket, prefix string) (*S3Archiver, error) {
	if strings.TrimSpace(bucket) == "" {
		return nil, fmt.Errorf("archive bucket is required")
	}
	if client == nil {
		return nil, fmt.Errorf("s3 client is required")
	}
	return &S3Archiver{
		client: client,
		bucket: bucket,
		prefix: strings.Trim(prefix, "/"),
	}, nil
}

func (a *S3Archiver) Name() string {
	return "s3"
}

func (a *S3Archiver) Archive(ctx context.Context, msg *render.Message) error {
	if msg == nil {
		return &ProviderError{Message: "message is required"}
	}

	key := a.objectKey(msg)
	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(msg.Raw),
		ContentType: aws.String("message/rfc822"),
		Metadata: map[string]string{
			"recipient": msg.To,
		},
	})
	if err != nil {
		return &ProviderError{
			Message:   fmt.Sprintf("s3 put %s failed", key),
			Transient: true,
			Cause:     err,
		}
	}
	return nil
}

func (a *S3Archiver) objectKey(msg *render.Message) string {
	id := strings.Trim(msg.MessageID, "<>")
	id = strings.NewReplacer("/", "_", "@", "_at_").Replace(id)
	if id == "" {
		id = "unknown"
	}
	return path.Join(a.prefix, msg.Date.UTC().Format("2006/01/02"), id+".eml")
}
