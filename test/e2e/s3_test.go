package e2e

import (
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestS3ObjectLifecycle(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	_, err := e.S3.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: aws.String("test-bucket")})
	require.NoError(t, err)

	put, err := e.S3.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String("test-bucket"),
		Key:         aws.String("greeting.txt"),
		Body:        bytes.NewReader([]byte("hello")),
		ContentType: aws.String("text/plain"),
		Metadata:    map[string]string{"owner": "tests"},
	})
	require.NoError(t, err)
	assert.Equal(t, `"5d41402abc4b2a76b9719d911017c592"`, *put.ETag)

	head, err := e.S3.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String("test-bucket"),
		Key:    aws.String("greeting.txt"),
	})
	require.NoError(t, err)
	assert.Equal(t, int64(5), *head.ContentLength)
	assert.Equal(t, "tests", head.Metadata["owner"])

	got, err := e.S3.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String("test-bucket"),
		Key:    aws.String("greeting.txt"),
	})
	require.NoError(t, err)
	body, err := io.ReadAll(got.Body)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(body))

	_, err = e.S3.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String("test-bucket"),
		Key:    aws.String("greeting.txt"),
	})
	require.NoError(t, err)

	_, err = e.S3.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String("test-bucket"),
		Key:    aws.String("greeting.txt"),
	})
	assert.Error(t, err)
}

func TestS3RangeReads(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	_, err := e.S3.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: aws.String("ranges")})
	require.NoError(t, err)
	_, err = e.S3.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String("ranges"),
		Key:    aws.String("data"),
		Body:   bytes.NewReader([]byte("0123456789")),
	})
	require.NoError(t, err)

	got, err := e.S3.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String("ranges"),
		Key:    aws.String("data"),
		Range:  aws.String("bytes=2-4"),
	})
	require.NoError(t, err)
	body, err := io.ReadAll(got.Body)
	require.NoError(t, err)
	assert.Equal(t, "234", string(body))
	assert.Equal(t, "bytes 2-4/10", *got.ContentRange)

	// Suffix form reads the last n bytes.
	got, err = e.S3.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String("ranges"),
		Key:    aws.String("data"),
		Range:  aws.String("bytes=-3"),
	})
	require.NoError(t, err)
	body, err = io.ReadAll(got.Body)
	require.NoError(t, err)
	assert.Equal(t, "789", string(body))
}

func TestS3ListObjectsV2(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	_, err := e.S3.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: aws.String("listing")})
	require.NoError(t, err)
	for _, key := range []string{"a.txt", "dir/one.txt", "dir/two.txt", "z.txt"} {
		_, err = e.S3.PutObject(ctx, &s3.PutObjectInput{
			Bucket: aws.String("listing"),
			Key:    aws.String(key),
			Body:   bytes.NewReader([]byte("x")),
		})
		require.NoError(t, err)
	}

	list, err := e.S3.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket:    aws.String("listing"),
		Delimiter: aws.String("/"),
	})
	require.NoError(t, err)
	require.Len(t, list.Contents, 2)
	require.Len(t, list.CommonPrefixes, 1)
	assert.Equal(t, "dir/", *list.CommonPrefixes[0].Prefix)

	paged, err := e.S3.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket:  aws.String("listing"),
		MaxKeys: aws.Int32(2),
	})
	require.NoError(t, err)
	require.Len(t, paged.Contents, 2)
	require.True(t, *paged.IsTruncated)

	rest, err := e.S3.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket:            aws.String("listing"),
		ContinuationToken: paged.NextContinuationToken,
	})
	require.NoError(t, err)
	assert.Len(t, rest.Contents, 2)
}

func TestS3MultipartUpload(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	_, err := e.S3.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: aws.String("mpu")})
	require.NoError(t, err)

	initiated, err := e.S3.CreateMultipartUpload(ctx, &s3.CreateMultipartUploadInput{
		Bucket: aws.String("mpu"),
		Key:    aws.String("assembled"),
	})
	require.NoError(t, err)

	var completed []types.CompletedPart
	for i, part := range []string{"AAA", "BBB", "CCC"} {
		uploaded, err := e.S3.UploadPart(ctx, &s3.UploadPartInput{
			Bucket:     aws.String("mpu"),
			Key:        aws.String("assembled"),
			UploadId:   initiated.UploadId,
			PartNumber: aws.Int32(int32(i + 1)),
			Body:       bytes.NewReader([]byte(part)),
		})
		require.NoError(t, err)
		completed = append(completed, types.CompletedPart{
			PartNumber: aws.Int32(int32(i + 1)),
			ETag:       uploaded.ETag,
		})
	}

	result, err := e.S3.CompleteMultipartUpload(ctx, &s3.CompleteMultipartUploadInput{
		Bucket:          aws.String("mpu"),
		Key:             aws.String("assembled"),
		UploadId:        initiated.UploadId,
		MultipartUpload: &types.CompletedMultipartUpload{Parts: completed},
	})
	require.NoError(t, err)
	assert.Contains(t, *result.ETag, "-3")

	got, err := e.S3.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String("mpu"),
		Key:    aws.String("assembled"),
	})
	require.NoError(t, err)
	body, err := io.ReadAll(got.Body)
	require.NoError(t, err)
	assert.Equal(t, "AAABBBCCC", string(body))
}

func TestS3CopyObject(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	_, err := e.S3.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: aws.String("copies")})
	require.NoError(t, err)
	_, err = e.S3.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String("copies"),
		Key:    aws.String("src"),
		Body:   bytes.NewReader([]byte("payload")),
	})
	require.NoError(t, err)

	copied, err := e.S3.CopyObject(ctx, &s3.CopyObjectInput{
		Bucket:     aws.String("copies"),
		Key:        aws.String("dst"),
		CopySource: aws.String("/copies/src"),
	})
	require.NoError(t, err)
	require.NotNil(t, copied.CopyObjectResult)
	assert.NotEmpty(t, *copied.CopyObjectResult.ETag)

	got, err := e.S3.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String("copies"),
		Key:    aws.String("dst"),
	})
	require.NoError(t, err)
	body, err := io.ReadAll(got.Body)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(body))
}

func TestS3BucketTagging(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	_, err := e.S3.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: aws.String("tagged")})
	require.NoError(t, err)

	_, err = e.S3.GetBucketTagging(ctx, &s3.GetBucketTaggingInput{Bucket: aws.String("tagged")})
	assert.Error(t, err, "empty tag set")

	_, err = e.S3.PutBucketTagging(ctx, &s3.PutBucketTaggingInput{
		Bucket: aws.String("tagged"),
		Tagging: &types.Tagging{TagSet: []types.Tag{
			{Key: aws.String("env"), Value: aws.String("dev")},
		}},
	})
	require.NoError(t, err)

	tags, err := e.S3.GetBucketTagging(ctx, &s3.GetBucketTaggingInput{Bucket: aws.String("tagged")})
	require.NoError(t, err)
	require.Len(t, tags.TagSet, 1)
	assert.Equal(t, "env", *tags.TagSet[0].Key)
}
