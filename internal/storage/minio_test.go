package storage

import (
	"context"
	"errors"
	"net/url"
	"testing"

	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockMinio struct {
	mock.Mock
}

func (m *mockMinio) BucketExists(ctx context.Context, bucket string) (bool, error) {
	args := m.Called(ctx, bucket)
	return args.Bool(0), args.Error(1)
}

func (m *mockMinio) MakeBucket(ctx context.Context, bucket string, opts minio.MakeBucketOptions) error {
	args := m.Called(ctx, bucket, opts)
	return args.Error(0)
}

func (m *mockMinio) FPutObject(ctx context.Context, bucket, object, path string, opts minio.PutObjectOptions) (minio.UploadInfo, error) {
	args := m.Called(ctx, bucket, object, path, opts)
	return args.Get(0).(minio.UploadInfo), args.Error(1)
}

func (m *mockMinio) EndpointURL() *url.URL {
	return &url.URL{Scheme: "https", Host: "minio.example.com:9000"}
}

func TestMinioPublisher_CreateBucket(t *testing.T) {
	ctx := context.Background()

	t.Run("existing bucket is left alone", func(t *testing.T) {
		m := new(mockMinio)
		m.On("BucketExists", ctx, "thumbs").Return(true, nil)

		require.NoError(t, NewMinioPublisherWithClient(m, "thumbs").CreateBucket(ctx))
		m.AssertNotCalled(t, "MakeBucket", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("missing bucket is created", func(t *testing.T) {
		m := new(mockMinio)
		m.On("BucketExists", ctx, "thumbs").Return(false, nil)
		m.On("MakeBucket", ctx, "thumbs", minio.MakeBucketOptions{}).Return(nil)

		require.NoError(t, NewMinioPublisherWithClient(m, "thumbs").CreateBucket(ctx))
		m.AssertExpectations(t)
	})

	t.Run("lookup error", func(t *testing.T) {
		m := new(mockMinio)
		m.On("BucketExists", ctx, "thumbs").Return(false, errors.New("access denied"))

		err := NewMinioPublisherWithClient(m, "thumbs").CreateBucket(ctx)
		assert.ErrorContains(t, err, "access denied")
	})
}

func TestMinioPublisher_Publish(t *testing.T) {
	ctx := context.Background()
	m := new(mockMinio)
	m.On("FPutObject", ctx, "thumbs", "job-1/middle.jpg", "/tmp/thumbnailer/middle-x.jpg",
		minio.PutObjectOptions{ContentType: "image/jpeg"}).
		Return(minio.UploadInfo{Bucket: "thumbs", Key: "job-1/middle.jpg"}, nil)

	got, err := NewMinioPublisherWithClient(m, "thumbs").Publish(ctx, "job-1/middle.jpg", "/tmp/thumbnailer/middle-x.jpg")

	require.NoError(t, err)
	assert.Equal(t, "https://minio.example.com:9000/thumbs/job-1/middle.jpg", got)
	m.AssertExpectations(t)
}

func TestMinioPublisher_Publish_Error(t *testing.T) {
	m := new(mockMinio)
	m.On("FPutObject", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(minio.UploadInfo{}, errors.New("connection refused"))

	_, err := NewMinioPublisherWithClient(m, "thumbs").Publish(context.Background(), "k.jpg", "/tmp/k.jpg")

	assert.ErrorContains(t, err, "connection refused")
}
