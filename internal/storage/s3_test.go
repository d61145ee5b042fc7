package storage

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePutter struct {
	input *s3.PutObjectInput
	body  string
	err   error
}

func (f *fakePutter) PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.input = params
	b, _ := io.ReadAll(params.Body)
	f.body = string(b)
	return &s3.PutObjectOutput{}, nil
}

func TestPublicURL(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		want string
	}{
		{
			name: "explicit public url",
			cfg:  Config{Bucket: "covers", PublicURL: "https://cdn.example.com/"},
			want: "https://cdn.example.com/covers/b1/x.png",
		},
		{
			name: "path style endpoint",
			cfg:  Config{Bucket: "assets", Endpoint: "http://localhost:9000", UsePathStyle: true},
			want: "http://localhost:9000/assets/covers/b1/x.png",
		},
		{
			name: "virtual host endpoint",
			cfg:  Config{Bucket: "assets", Endpoint: "https://storage.example.com"},
			want: "https://assets.storage.example.com/covers/b1/x.png",
		},
		{
			name: "aws default",
			cfg:  Config{Bucket: "assets", Region: "ap-south-1"},
			want: "https://assets.s3.ap-south-1.amazonaws.com/covers/b1/x.png",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u := newS3Uploader(&fakePutter{}, tt.cfg)
			assert.Equal(t, tt.want, u.PublicURL("/covers/b1/x.png"))
		})
	}
}

func TestUpload(t *testing.T) {
	putter := &fakePutter{}
	u := newS3Uploader(putter, Config{Bucket: "assets", PublicURL: "https://cdn.example.com"})

	got, err := u.Upload(context.Background(), "covers/b1/x.png", "image/png", strings.NewReader("png"))
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/covers/b1/x.png", got)
	assert.Equal(t, "assets", aws.ToString(putter.input.Bucket))
	assert.Equal(t, "covers/b1/x.png", aws.ToString(putter.input.Key))
	assert.Equal(t, "image/png", aws.ToString(putter.input.ContentType))
	assert.Equal(t, "png", putter.body)

	failing := newS3Uploader(&fakePutter{err: errors.New("denied")}, Config{Bucket: "assets"})
	_, err = failing.Upload(context.Background(), "k", "image/png", strings.NewReader(""))
	assert.Error(t, err)
}

func TestNewS3UploaderRequiresBucket(t *testing.T) {
	_, err := NewS3Uploader(context.Background(), Config{})
	assert.Error(t, err)
}
