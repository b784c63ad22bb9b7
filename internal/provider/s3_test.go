package provider

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

type fakeS3 struct {
	putFn func(ctx context.Context, in *s3.PutObjectInput) (*s3.PutObjectOutput, error)
}

func (f *fakeS3) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	return f.putFn(ctx, in)
}

func TestS3ArchiverPutsObject(t *testing.T) {
	t.Parallel()

	var (
		gotKey  string
		gotBody []byte
	)
	archiver, err := NewS3ArchiverWithClient(&fakeS3{
		putFn: func(_ context.Context, in *s3.PutObjectInput) (*s3.PutObjectOutput, error) {
			gotKey = aws.ToString(in.Key)
			body, err := io.ReadAll(in.Body)
			if err != nil {
				return nil, err
			}
			gotBody = body
			return &s3.PutObjectOutput{}, nil
		},
	}, "archive", "/sent/")
	if err != nil {
		t.Fatalf("NewS3ArchiverWithClient() error = %v", err)
	}

	msg := testMessage("ann@acme.com")
	if err := archiver.Archive(context.Background(), msg); err != nil {
		t.Fatalf("Archive() error = %v", err)
	}

	if gotKey != "sent/2024/03/01/id_at_expo.example.eml" {
		t.Fatalf("key = %q", gotKey)
	}
	if string(gotBody) != string(msg.Raw) {
		t.Fatal("archived body does not match raw message")
	}
}

func TestS3ArchiverErrorIsTransient(t *testing.T) {
	t.Parallel()

	archiver, err := NewS3ArchiverWithClient(&fakeS3{
		putFn: func(context.Context, *s3.PutObjectInput) (*s3.PutObjectOutput, error) {
			return nil, errors.New("slow down")
		},
	}, "archive", "")
	if err != nil {
		t.Fatalf("NewS3ArchiverWithClient() error = %v", err)
	}

	err = archiver.Archive(context.Background(), testMessage("ann@acme.com"))
	if !IsTransient(err) {
		t.Fatalf("IsTransient() = false, want true (err=%v)", err)
	}
}

func TestNewS3ArchiverRequiresBucket(t *testing.T) {
	t.Parallel()

	if _, err := NewS3ArchiverWithClient(&fakeS3{}, " ", ""); err == nil {
		t.Fatal("expected error for empty bucket")
	}
}
