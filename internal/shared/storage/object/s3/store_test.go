package s3

import (
	"context"
	"errors"
	"io"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"docvault/internal/shared/storage/object"
)

func TestApplyPrefix(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		prefix string
		key    string
		want   string
	}{
		{name: "no prefix", prefix: "", key: "documents/user/file.pdf", want: "documents/user/file.pdf"},
		{name: "simple prefix", prefix: "root", key: "documents/user/file.pdf", want: "root/documents/user/file.pdf"},
		{name: "prefix trailing slash", prefix: "root/", key: "documents/user/file.pdf", want: "root/documents/user/file.pdf"},
		{name: "prefix and key slashes", prefix: "/root/", key: "/documents/user/file.pdf", want: "root/documents/user/file.pdf"},
		{name: "nested prefix", prefix: "root/sub", key: "documents/user/file.pdf", want: "root/sub/documents/user/file.pdf"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := applyPrefix(tt.prefix, tt.key); got != tt.want {
				t.Fatalf("applyPrefix(%q, %q) = %q, want %q", tt.prefix, tt.key, got, tt.want)
			}
		})
	}
}

type fakeAPI struct {
	objects map[string][]byte
	puts    []*s3.PutObjectInput
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{objects: map[string][]byte{}}
}

func (f *fakeAPI) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.puts = append(f.puts, in)
	key := aws.ToString(in.Key)
	if _, ok := f.objects[key]; ok && aws.ToString(in.IfNoneMatch) == "*" {
		return nil, &smithy.GenericAPIError{Code: "PreconditionFailed", Message: "At least one of the pre-conditions you specified did not hold"}
	}
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.objects[key] = data
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeAPI) DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	delete(f.objects, aws.ToString(in.Key))
	return &s3.DeleteObjectOutput{}, nil
}

func (f *fakeAPI) HeadObject(ctx context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	if _, ok := f.objects[aws.ToString(in.Key)]; !ok {
		return nil, &s3types.NotFound{}
	}
	return &s3.HeadObjectOutput{}, nil
}

func testPresigner() *s3.PresignClient {
	cfg := aws.Config{
		Region:      "us-east-1",
		Credentials: aws.NewCredentialsCache(credentials.NewStaticCredentialsProvider("AKID", "SECRET", "")),
	}
	return s3.NewPresignClient(s3.NewFromConfig(cfg))
}

func TestPutUsesConditionalWriteAndPrefix(t *testing.T) {
	api := newFakeAPI()
	store := NewWithClient(api, testPresigner(), "phys-bucket", "env/dev", "")
	ctx := context.Background()

	n, err := store.Put(ctx, "documents", "u1/a.pdf", "application/pdf", strings.NewReader("hello"))
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if n != 5 {
		t.Fatalf("expected 5 bytes, got %d", n)
	}
	if _, ok := api.objects["env/dev/documents/u1/a.pdf"]; !ok {
		t.Fatalf("expected object under prefix, got %v", api.objects)
	}
	in := api.puts[0]
	if aws.ToString(in.IfNoneMatch) != "*" {
		t.Fatalf("expected IfNoneMatch *")
	}
	if in.ServerSideEncryption != s3types.ServerSideEncryptionAes256 {
		t.Fatalf("expected AES256 encryption, got %s", in.ServerSideEncryption)
	}

	_, err = store.Put(ctx, "documents", "u1/a.pdf", "application/pdf", strings.NewReader("again"))
	if !errors.Is(err, object.ErrObjectExists) {
		t.Fatalf("expected ErrObjectExists, got %v", err)
	}
}

func TestSignedURLAfterDelete(t *testing.T) {
	api := newFakeAPI()
	store := NewWithClient(api, testPresigner(), "phys-bucket", "", "")
	ctx := context.Background()

	if _, err := store.Put(ctx, "documents", "u1/a.pdf", "application/pdf", strings.NewReader("x")); err != nil {
		t.Fatalf("put: %v", err)
	}
	signed, err := store.SignedURL(ctx, "documents", "u1/a.pdf", object.SignOptions{Expiry: 10 * time.Minute, DownloadName: "Report.pdf"})
	if err != nil {
		t.Fatalf("signed url: %v", err)
	}
	parsed, err := url.Parse(signed)
	if err != nil {
		t.Fatalf("parse url: %v", err)
	}
	if parsed.Query().Get("X-Amz-Expires") != "600" {
		t.Fatalf("expected 600s expiry, got %s", parsed.Query().Get("X-Amz-Expires"))
	}
	if !strings.Contains(parsed.Query().Get("response-content-disposition"), "Report.pdf") {
		t.Fatalf("expected content disposition in url: %s", signed)
	}

	if err := store.Delete(ctx, "documents", "u1/a.pdf"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := store.Delete(ctx, "documents", "u1/a.pdf"); err != nil {
		t.Fatalf("second delete: %v", err)
	}
	if _, err := store.SignedURL(ctx, "documents", "u1/a.pdf", object.SignOptions{}); !errors.Is(err, object.ErrObjectNotFound) {
		t.Fatalf("expected ErrObjectNotFound, got %v", err)
	}
}
