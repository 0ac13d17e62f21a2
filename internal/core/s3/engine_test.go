package s3

import (
	"fmt"
	"testing"

	"github.com/nimbuslocal/nimbus/internal/ident"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	e := NewEngine("000000000000", "us-east-1")
	require.NoError(t, e.CreateBucket("bucket"))
	return e
}

func TestCreateBucketValidation(t *testing.T) {
	e := NewEngine("000000000000", "us-east-1")

	assert.Error(t, e.CreateBucket("ab"), "too short")
	assert.Error(t, e.CreateBucket(string(make([]byte, 64))), "too long")

	require.NoError(t, e.CreateBucket("bucket"))
	assert.Error(t, e.CreateBucket("bucket"), "already owned")
}

func TestDeleteBucketRequiresEmpty(t *testing.T) {
	e := newTestEngine(t)

	_, err := e.PutObject("bucket", "k", []byte("v"), "", nil)
	require.NoError(t, err)
	assert.Error(t, e.DeleteBucket("bucket"))

	require.NoError(t, e.DeleteObject("bucket", "k"))
	assert.NoError(t, e.DeleteBucket("bucket"))
}

func TestPutObjectETagIsBodyMD5(t *testing.T) {
	e := newTestEngine(t)

	etag, err := e.PutObject("bucket", "k", []byte("hello"), "text/plain", map[string]string{"owner": "me"})
	require.NoError(t, err)
	assert.Equal(t, "5d41402abc4b2a76b9719d911017c592", etag)

	obj, err := e.HeadObject("bucket", "k")
	require.NoError(t, err)
	assert.Equal(t, etag, obj.ETag)
	assert.Equal(t, 5, len(obj.Data))
	assert.Equal(t, "text/plain", obj.ContentType)
	assert.Equal(t, "me", obj.Metadata["owner"])
}

func TestGetObjectRanges(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.PutObject("bucket", "k", []byte("0123456789"), "", nil)
	require.NoError(t, err)

	end := int64(4)
	obj, info, err := e.GetObject("bucket", "k", 2, &end, true)
	require.NoError(t, err)
	require.NotNil(t, info)
	assert.Equal(t, "234", string(obj.Data[info.Start:info.End+1]))
	assert.Equal(t, int64(10), info.Total)

	// End past the object size clamps.
	end = 99
	_, info, err = e.GetObject("bucket", "k", 8, &end, true)
	require.NoError(t, err)
	assert.Equal(t, int64(9), info.End)

	// Start at or past the size is unsatisfiable.
	_, _, err = e.GetObject("bucket", "k", 10, nil, true)
	assert.Error(t, err)

	_, _, err = e.GetObject("bucket", "missing", 0, nil, false)
	assert.Error(t, err)
}

func TestListObjectsV2(t *testing.T) {
	e := newTestEngine(t)
	for _, key := range []string{"a.txt", "dir/one.txt", "dir/two.txt", "dir/sub/three.txt", "z.txt"} {
		_, err := e.PutObject("bucket", key, []byte("x"), "", nil)
		require.NoError(t, err)
	}

	t.Run("flat listing is sorted", func(t *testing.T) {
		result, err := e.ListObjectsV2("bucket", "", "", 1000, "", "")
		require.NoError(t, err)
		require.Len(t, result.Contents, 5)
		assert.Equal(t, "a.txt", result.Contents[0].Key)
		assert.Equal(t, "z.txt", result.Contents[4].Key)
		assert.False(t, result.IsTruncated)
	})

	t.Run("delimiter collapses common prefixes", func(t *testing.T) {
		result, err := e.ListObjectsV2("bucket", "", "/", 1000, "", "")
		require.NoError(t, err)
		require.Len(t, result.Contents, 2)
		require.Len(t, result.CommonPrefixes, 1)
		assert.Equal(t, "dir/", result.CommonPrefixes[0].Prefix)
		assert.Equal(t, 3, result.KeyCount)
	})

	t.Run("prefix plus delimiter", func(t *testing.T) {
		result, err := e.ListObjectsV2("bucket", "dir/", "/", 1000, "", "")
		require.NoError(t, err)
		require.Len(t, result.Contents, 2)
		require.Len(t, result.CommonPrefixes, 1)
		assert.Equal(t, "dir/sub/", result.CommonPrefixes[0].Prefix)
	})

	t.Run("continuation", func(t *testing.T) {
		first, err := e.ListObjectsV2("bucket", "", "", 2, "", "")
		require.NoError(t, err)
		require.Len(t, first.Contents, 2)
		require.True(t, first.IsTruncated)
		require.Equal(t, first.Contents[1].Key, first.NextContinuationToken)

		second, err := e.ListObjectsV2("bucket", "", "", 1000, first.NextContinuationToken, "")
		require.NoError(t, err)
		assert.Len(t, second.Contents, 3)
		assert.False(t, second.IsTruncated)
	})

	t.Run("start-after", func(t *testing.T) {
		result, err := e.ListObjectsV2("bucket", "", "", 1000, "", "dir/two.txt")
		require.NoError(t, err)
		require.Len(t, result.Contents, 1)
		assert.Equal(t, "z.txt", result.Contents[0].Key)
	})
}

func TestDeleteObjects(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.PutObject("bucket", "a", []byte("x"), "", nil)
	require.NoError(t, err)

	result, err := e.DeleteObjects("bucket", []string{"a", "missing"}, false)
	require.NoError(t, err)
	assert.Len(t, result.Deleted, 2)

	quiet, err := e.DeleteObjects("bucket", []string{"a"}, true)
	require.NoError(t, err)
	assert.Empty(t, quiet.Deleted)
}

func TestCopyObject(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.PutObject("bucket", "src", []byte("data"), "text/plain", map[string]string{"k": "v"})
	require.NoError(t, err)

	t.Run("copy directive preserves metadata", func(t *testing.T) {
		result, err := e.CopyObject("bucket", "dst", "bucket", "src", "COPY", "application/json",
			map[string]string{"other": "x"})
		require.NoError(t, err)
		assert.NotEmpty(t, result.ETag)

		obj, err := e.HeadObject("bucket", "dst")
		require.NoError(t, err)
		assert.Equal(t, "text/plain", obj.ContentType)
		assert.Equal(t, "v", obj.Metadata["k"])
	})

	t.Run("replace directive takes request metadata", func(t *testing.T) {
		_, err := e.CopyObject("bucket", "dst2", "bucket", "src", "REPLACE", "application/json",
			map[string]string{"other": "x"})
		require.NoError(t, err)

		obj, err := e.HeadObject("bucket", "dst2")
		require.NoError(t, err)
		assert.Equal(t, "application/json", obj.ContentType)
		assert.Equal(t, "x", obj.Metadata["other"])
		assert.NotContains(t, obj.Metadata, "k")
	})
}

func TestMultipartAssembly(t *testing.T) {
	e := newTestEngine(t)

	initiated, err := e.CreateMultipartUpload("bucket", "k", "text/plain", nil)
	require.NoError(t, err)

	parts := [][]byte{[]byte("AAA"), []byte("BBB"), []byte("CCC")}
	var completed []CompletePart
	var digests []byte
	for i, data := range parts {
		etag, err := e.UploadPart("bucket", "k", initiated.UploadID, i+1, data)
		require.NoError(t, err)
		completed = append(completed, CompletePart{PartNumber: i + 1, ETag: etag})
		digests = append(digests, ident.MD5Raw(data)...)
	}

	result, err := e.CompleteMultipartUpload("bucket", "k", initiated.UploadID, completed)
	require.NoError(t, err)

	wantETag := fmt.Sprintf("%s-3", ident.MD5Hex(digests))
	assert.Equal(t, `"`+wantETag+`"`, result.ETag)

	obj, err := e.HeadObject("bucket", "k")
	require.NoError(t, err)
	assert.Equal(t, "AAABBBCCC", string(obj.Data))
	assert.Equal(t, wantETag, obj.ETag)
	assert.Equal(t, "text/plain", obj.ContentType)

	// The upload record is gone.
	_, err = e.ListParts("bucket", "k", initiated.UploadID)
	assert.Error(t, err)
}

func TestCompleteMultipartValidation(t *testing.T) {
	e := newTestEngine(t)

	initiated, err := e.CreateMultipartUpload("bucket", "k", "", nil)
	require.NoError(t, err)
	etag, err := e.UploadPart("bucket", "k", initiated.UploadID, 1, []byte("a"))
	require.NoError(t, err)

	_, err = e.CompleteMultipartUpload("bucket", "k", initiated.UploadID, []CompletePart{
		{PartNumber: 2, ETag: etag}, {PartNumber: 1, ETag: etag},
	})
	assert.Error(t, err, "descending order")

	_, err = e.CompleteMultipartUpload("bucket", "k", initiated.UploadID, []CompletePart{
		{PartNumber: 1, ETag: etag}, {PartNumber: 3, ETag: etag},
	})
	assert.Error(t, err, "missing part")
}

func TestAbortMultipartUpload(t *testing.T) {
	e := newTestEngine(t)

	initiated, err := e.CreateMultipartUpload("bucket", "k", "", nil)
	require.NoError(t, err)

	require.NoError(t, e.AbortMultipartUpload("bucket", initiated.UploadID))
	assert.Error(t, e.AbortMultipartUpload("bucket", initiated.UploadID))
}

func TestListUploadsAndParts(t *testing.T) {
	e := newTestEngine(t)

	second, err := e.CreateMultipartUpload("bucket", "zzz", "", nil)
	require.NoError(t, err)
	first, err := e.CreateMultipartUpload("bucket", "aaa", "", nil)
	require.NoError(t, err)

	uploads, err := e.ListMultipartUploads("bucket")
	require.NoError(t, err)
	require.Len(t, uploads.Uploads, 2)
	assert.Equal(t, "aaa", uploads.Uploads[0].Key)
	assert.Equal(t, "zzz", uploads.Uploads[1].Key)

	_, err = e.UploadPart("bucket", "aaa", first.UploadID, 2, []byte("b"))
	require.NoError(t, err)
	_, err = e.UploadPart("bucket", "aaa", first.UploadID, 1, []byte("a"))
	require.NoError(t, err)

	parts, err := e.ListParts("bucket", "aaa", first.UploadID)
	require.NoError(t, err)
	require.Len(t, parts.Parts, 2)
	assert.Equal(t, 1, parts.Parts[0].PartNumber)
	assert.Equal(t, 2, parts.Parts[1].PartNumber)

	_ = second
}

func TestBucketTagging(t *testing.T) {
	e := newTestEngine(t)

	// Reading an empty set fails.
	_, err := e.GetBucketTagging("bucket")
	assert.Error(t, err)

	require.NoError(t, e.PutBucketTagging("bucket", map[string]string{"env": "dev"}))
	tags, err := e.GetBucketTagging("bucket")
	require.NoError(t, err)
	assert.Equal(t, "dev", tags["env"])

	require.NoError(t, e.DeleteBucketTagging("bucket"))
	_, err = e.GetBucketTagging("bucket")
	assert.Error(t, err)
}

func TestObjectTagging(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.PutObject("bucket", "k", []byte("x"), "", nil)
	require.NoError(t, err)

	// Reading an absent set returns empty, not an error.
	tags, err := e.GetObjectTagging("bucket", "k")
	require.NoError(t, err)
	assert.Empty(t, tags)

	require.NoError(t, e.PutObjectTagging("bucket", "k", map[string]string{"a": "1"}))
	tags, err = e.GetObjectTagging("bucket", "k")
	require.NoError(t, err)
	assert.Equal(t, "1", tags["a"])

	require.NoError(t, e.DeleteObjectTagging("bucket", "k"))
	tags, err = e.GetObjectTagging("bucket", "k")
	require.NoError(t, err)
	assert.Empty(t, tags)
}

func TestVersioningFlag(t *testing.T) {
	e := newTestEngine(t)

	status, err := e.GetBucketVersioning("bucket")
	require.NoError(t, err)
	assert.Empty(t, status)

	require.NoError(t, e.PutBucketVersioning("bucket", "Enabled"))
	status, err = e.GetBucketVersioning("bucket")
	require.NoError(t, err)
	assert.Equal(t, "Enabled", status)

	require.NoError(t, e.PutBucketVersioning("bucket", "Suspended"))
	status, err = e.GetBucketVersioning("bucket")
	require.NoError(t, err)
	assert.Equal(t, "Suspended", status)
}
