package s3

import (
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/nimbuslocal/nimbus/internal/ident"
)

// Engine is the object store: the bucket collection behind one exclusive
// lock. All operations are synchronous within the lock.
type Engine struct {
	mu        sync.Mutex
	buckets   map[string]*Bucket
	accountID string
	region    string
}

func NewEngine(accountID, region string) *Engine {
	return &Engine{
		buckets:   make(map[string]*Bucket),
		accountID: accountID,
		region:    region,
	}
}

func (e *Engine) bucket(name string) (*Bucket, error) {
	b, ok := e.buckets[name]
	if !ok {
		return nil, errNoSuchBucket(fmt.Sprintf("The specified bucket does not exist: %s", name))
	}
	return b, nil
}

// --- Bucket operations ---

func (e *Engine) CreateBucket(name string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if len(name) < 3 || len(name) > 63 {
		return errInvalidBucketName("Bucket name must be between 3 and 63 characters")
	}
	if _, exists := e.buckets[name]; exists {
		return errBucketAlreadyOwnedByYou(
			"Your previous request to create the named bucket succeeded and you already own it.")
	}

	e.buckets[name] = newBucket(name, e.region)
	return nil
}

func (e *Engine) DeleteBucket(name string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	b, err := e.bucket(name)
	if err != nil {
		return err
	}
	if len(b.Objects) > 0 {
		return errBucketNotEmpty("The bucket you tried to delete is not empty")
	}
	delete(e.buckets, name)
	return nil
}

// HeadBucket returns the bucket's region.
func (e *Engine) HeadBucket(name string) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	b, err := e.bucket(name)
	if err != nil {
		return "", err
	}
	return b.Region, nil
}

func (e *Engine) ListBuckets() *ListAllMyBucketsResult {
	e.mu.Lock()
	defer e.mu.Unlock()

	entries := make([]BucketEntry, 0, len(e.buckets))
	for _, b := range e.buckets {
		entries = append(entries, BucketEntry{Name: b.Name, CreationDate: b.CreatedAt})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })

	return &ListAllMyBucketsResult{
		Xmlns:   xmlns,
		Owner:   Owner{ID: e.accountID, DisplayName: e.accountID},
		Buckets: entries,
	}
}

func (e *Engine) GetBucketLocation(name string) (string, error) {
	return e.HeadBucket(name)
}

func (e *Engine) GetBucketVersioning(name string) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	b, err := e.bucket(name)
	if err != nil {
		return "", err
	}
	if b.Versioning == VersioningDisabled {
		return "", nil
	}
	return string(b.Versioning), nil
}

func (e *Engine) PutBucketVersioning(name, status string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	b, err := e.bucket(name)
	if err != nil {
		return err
	}
	switch status {
	case "Enabled":
		b.Versioning = VersioningEnabled
	case "Suspended":
		b.Versioning = VersioningSuspended
	default:
		b.Versioning = VersioningDisabled
	}
	return nil
}

// GetBucketTagging fails when the tag set is empty, matching the provider.
func (e *Engine) GetBucketTagging(name string) (map[string]string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	b, err := e.bucket(name)
	if err != nil {
		return nil, err
	}
	if len(b.Tags) == 0 {
		return nil, errNoSuchTagSet("The TagSet does not exist")
	}
	return copyTags(b.Tags), nil
}

func (e *Engine) PutBucketTagging(name string, tags map[string]string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	b, err := e.bucket(name)
	if err != nil {
		return err
	}
	b.Tags = copyTags(tags)
	return nil
}

func (e *Engine) DeleteBucketTagging(name string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	b, err := e.bucket(name)
	if err != nil {
		return err
	}
	b.Tags = make(map[string]string)
	return nil
}

// --- Object operations ---

// PutObject stores an object, replacing any existing value, and returns
// its entity tag.
func (e *Engine) PutObject(bucketName, key string, data []byte, contentType string, metadata map[string]string) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	b, err := e.bucket(bucketName)
	if err != nil {
		return "", err
	}
	obj := newObject(key, data, contentType, metadata)
	b.Objects[key] = obj
	return obj.ETag, nil
}

// RangeInfo describes the satisfied byte range of a ranged read.
type RangeInfo struct {
	Start int64
	End   int64
	Total int64
}

// GetObject returns the object and, when a range is requested, the
// satisfied slice bounds. End is clamped to the object size; a start at or
// past the size is unsatisfiable.
func (e *Engine) GetObject(bucketName, key string, rangeStart int64, rangeEnd *int64, ranged bool) (*Object, *RangeInfo, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	b, err := e.bucket(bucketName)
	if err != nil {
		return nil, nil, err
	}
	obj, ok := b.Objects[key]
	if !ok {
		return nil, nil, errNoSuchKey(fmt.Sprintf("The specified key does not exist: %s", key))
	}
	if !ranged {
		return obj, nil, nil
	}

	total := int64(len(obj.Data))
	if rangeStart >= total {
		return nil, nil, errInvalidRange("Range not satisfiable")
	}
	end := total - 1
	if rangeEnd != nil && *rangeEnd < end {
		end = *rangeEnd
	}
	return obj, &RangeInfo{Start: rangeStart, End: end, Total: total}, nil
}

func (e *Engine) HeadObject(bucketName, key string) (*Object, error) {
	obj, _, err := e.GetObject(bucketName, key, 0, nil, false)
	return obj, err
}

func (e *Engine) DeleteObject(bucketName, key string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	b, err := e.bucket(bucketName)
	if err != nil {
		return err
	}
	delete(b.Objects, key)
	return nil
}

func (e *Engine) DeleteObjects(bucketName string, keys []string, quiet bool) (*DeleteResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	b, err := e.bucket(bucketName)
	if err != nil {
		return nil, err
	}

	result := &DeleteResult{Xmlns: xmlns, Deleted: []DeletedEntry{}, Errors: []DeleteError{}}
	for _, key := range keys {
		delete(b.Objects, key)
		if !quiet {
			result.Deleted = append(result.Deleted, DeletedEntry{Key: key})
		}
	}
	return result, nil
}

// CopyObject copies the source object's value. With the REPLACE metadata
// directive, content type and metadata come from the request; otherwise
// both are copied from the source.
func (e *Engine) CopyObject(destBucket, destKey, sourceBucket, sourceKey, metadataDirective, contentType string, metadata map[string]string) (*CopyObjectResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	src, err := e.bucket(sourceBucket)
	if err != nil {
		return nil, err
	}
	srcObj, ok := src.Objects[sourceKey]
	if !ok {
		return nil, errNoSuchKey(fmt.Sprintf("The specified key does not exist: %s", sourceKey))
	}

	newCT := srcObj.ContentType
	newMeta := copyTags(srcObj.Metadata)
	if metadataDirective == "REPLACE" {
		if contentType != "" {
			newCT = contentType
		}
		newMeta = copyTags(metadata)
	}

	data := make([]byte, len(srcObj.Data))
	copy(data, srcObj.Data)
	obj := newObject(destKey, data, newCT, newMeta)

	dest, err := e.bucket(destBucket)
	if err != nil {
		return nil, err
	}
	dest.Objects[destKey] = obj

	return &CopyObjectResult{Xmlns: xmlns, ETag: quote(obj.ETag), LastModified: obj.LastModified}, nil
}

// ListObjectsV2 lists keys under a prefix in lexicographic order. With a
// delimiter, keys sharing a segment collapse into deduplicated common
// prefixes; entries and prefixes count together against max-keys.
func (e *Engine) ListObjectsV2(bucketName, prefix, delimiter string, maxKeys int, continuationToken, startAfter string) (*ListBucketResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	b, err := e.bucket(bucketName)
	if err != nil {
		return nil, err
	}

	var keys []string
	for k := range b.Objects {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	startKey := continuationToken
	if startKey == "" {
		startKey = startAfter
	}
	if startKey != "" {
		filtered := keys[:0]
		for _, k := range keys {
			if k > startKey {
				filtered = append(filtered, k)
			}
		}
		keys = filtered
	}

	if maxKeys <= 0 || maxKeys > 1000 {
		maxKeys = 1000
	}

	result := &ListBucketResult{
		Xmlns:             xmlns,
		Name:              bucketName,
		Prefix:            prefix,
		Delimiter:         delimiter,
		MaxKeys:           maxKeys,
		Contents:          []ObjectEntry{},
		CommonPrefixes:    []CommonPrefix{},
		ContinuationToken: continuationToken,
		StartAfter:        startAfter,
	}

	seenPrefixes := make(map[string]struct{})
	count := 0
	consumed := 0
	for _, key := range keys {
		if count >= maxKeys {
			break
		}
		consumed++

		if delimiter != "" {
			afterPrefix := key[len(prefix):]
			if pos := strings.Index(afterPrefix, delimiter); pos >= 0 {
				cp := prefix + afterPrefix[:pos+len(delimiter)]
				if _, seen := seenPrefixes[cp]; !seen {
					seenPrefixes[cp] = struct{}{}
					result.CommonPrefixes = append(result.CommonPrefixes, CommonPrefix{Prefix: cp})
					count++
				}
				continue
			}
		}

		obj := b.Objects[key]
		result.Contents = append(result.Contents, ObjectEntry{
			Key:          obj.Key,
			LastModified: obj.LastModified,
			ETag:         quote(obj.ETag),
			Size:         int64(len(obj.Data)),
			StorageClass: obj.StorageClass,
		})
		count++
	}

	result.KeyCount = len(result.Contents) + len(result.CommonPrefixes)
	result.IsTruncated = count >= maxKeys && consumed < len(keys)
	if result.IsTruncated && len(result.Contents) > 0 {
		result.NextContinuationToken = result.Contents[len(result.Contents)-1].Key
	}
	return result, nil
}

// --- Object tagging ---

// GetObjectTagging returns an empty set when the object carries no tags.
func (e *Engine) GetObjectTagging(bucketName, key string) (map[string]string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	obj, err := e.object(bucketName, key)
	if err != nil {
		return nil, err
	}
	return copyTags(obj.Tags), nil
}

func (e *Engine) PutObjectTagging(bucketName, key string, tags map[string]string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	obj, err := e.object(bucketName, key)
	if err != nil {
		return err
	}
	obj.Tags = copyTags(tags)
	return nil
}

func (e *Engine) DeleteObjectTagging(bucketName, key string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	obj, err := e.object(bucketName, key)
	if err != nil {
		return err
	}
	obj.Tags = make(map[string]string)
	return nil
}

func (e *Engine) object(bucketName, key string) (*Object, error) {
	b, err := e.bucket(bucketName)
	if err != nil {
		return nil, err
	}
	obj, ok := b.Objects[key]
	if !ok {
		return nil, errNoSuchKey(fmt.Sprintf("The specified key does not exist: %s", key))
	}
	return obj, nil
}

// --- Multipart upload ---

func (e *Engine) CreateMultipartUpload(bucketName, key, contentType string, metadata map[string]string) (*InitiateMultipartUploadResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	b, err := e.bucket(bucketName)
	if err != nil {
		return nil, err
	}

	uploadID := ident.New()
	b.MultipartUploads[uploadID] = &MultipartUpload{
		UploadID:    uploadID,
		Bucket:      bucketName,
		Key:         key,
		Parts:       make(map[int]*Part),
		Initiated:   ident.Timestamp(time.Now()),
		ContentType: contentType,
		Metadata:    copyTags(metadata),
	}

	return &InitiateMultipartUploadResult{
		Xmlns:    xmlns,
		Bucket:   bucketName,
		Key:      key,
		UploadID: uploadID,
	}, nil
}

func (e *Engine) UploadPart(bucketName, key, uploadID string, partNumber int, data []byte) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	b, err := e.bucket(bucketName)
	if err != nil {
		return "", err
	}
	upload, ok := b.MultipartUploads[uploadID]
	if !ok {
		return "", errNoSuchUpload(fmt.Sprintf("The specified upload does not exist: %s", uploadID))
	}
	if upload.Key != key {
		return "", errInvalidArgument("Key does not match upload")
	}
	if partNumber < 1 || partNumber > 10000 {
		return "", errInvalidArgument("Part number must be an integer between 1 and 10000")
	}

	etag := quote(ident.MD5Hex(data))
	upload.Parts[partNumber] = &Part{
		PartNumber:   partNumber,
		Data:         data,
		ETag:         etag,
		Size:         len(data),
		LastModified: ident.Timestamp(time.Now()),
	}
	return etag, nil
}

// CompleteMultipartUpload assembles the referenced parts into the final
// object. The composite entity tag hashes the concatenation of the raw
// 16-byte part digests, not their hex forms.
func (e *Engine) CompleteMultipartUpload(bucketName, key, uploadID string, parts []CompletePart) (*CompleteMultipartUploadResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	b, err := e.bucket(bucketName)
	if err != nil {
		return nil, err
	}
	upload, ok := b.MultipartUploads[uploadID]
	if !ok {
		return nil, errNoSuchUpload(fmt.Sprintf("The specified upload does not exist: %s", uploadID))
	}

	prev := 0
	var combined []byte
	var digests []byte
	for _, cp := range parts {
		if cp.PartNumber <= prev {
			return nil, errInvalidPartOrder("Parts must be in ascending order")
		}
		prev = cp.PartNumber

		part, ok := upload.Parts[cp.PartNumber]
		if !ok {
			return nil, errInvalidPart(fmt.Sprintf("Part %d not found", cp.PartNumber))
		}

		combined = append(combined, part.Data...)
		if raw, err := hex.DecodeString(strings.Trim(part.ETag, `"`)); err == nil {
			digests = append(digests, raw...)
		} else {
			digests = append(digests, ident.MD5Raw(part.Data)...)
		}
	}

	etag := fmt.Sprintf("%s-%d", ident.MD5Hex(digests), len(parts))

	obj := newObject(key, combined, upload.ContentType, upload.Metadata)
	obj.ETag = etag
	b.Objects[key] = obj
	delete(b.MultipartUploads, uploadID)

	return &CompleteMultipartUploadResult{
		Xmlns:    xmlns,
		Location: fmt.Sprintf("/%s/%s", bucketName, key),
		Bucket:   bucketName,
		Key:      key,
		ETag:     quote(etag),
	}, nil
}

func (e *Engine) AbortMultipartUpload(bucketName, uploadID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	b, err := e.bucket(bucketName)
	if err != nil {
		return err
	}
	if _, ok := b.MultipartUploads[uploadID]; !ok {
		return errNoSuchUpload(fmt.Sprintf("The specified upload does not exist: %s", uploadID))
	}
	delete(b.MultipartUploads, uploadID)
	return nil
}

func (e *Engine) ListMultipartUploads(bucketName string) (*ListMultipartUploadsResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	b, err := e.bucket(bucketName)
	if err != nil {
		return nil, err
	}

	uploads := make([]UploadEntry, 0, len(b.MultipartUploads))
	for _, u := range b.MultipartUploads {
		uploads = append(uploads, UploadEntry{
			Key:          u.Key,
			UploadID:     u.UploadID,
			Initiated:    u.Initiated,
			StorageClass: "STANDARD",
		})
	}
	sort.Slice(uploads, func(i, j int) bool { return uploads[i].Key < uploads[j].Key })

	return &ListMultipartUploadsResult{
		Xmlns:      xmlns,
		Bucket:     bucketName,
		MaxUploads: 1000,
		Uploads:    uploads,
	}, nil
}

func (e *Engine) ListParts(bucketName, key, uploadID string) (*ListPartsResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	b, err := e.bucket(bucketName)
	if err != nil {
		return nil, err
	}
	upload, ok := b.MultipartUploads[uploadID]
	if !ok {
		return nil, errNoSuchUpload(fmt.Sprintf("The specified upload does not exist: %s", uploadID))
	}

	parts := make([]PartEntry, 0, len(upload.Parts))
	for _, p := range upload.Parts {
		parts = append(parts, PartEntry{
			PartNumber:   p.PartNumber,
			LastModified: p.LastModified,
			ETag:         p.ETag,
			Size:         p.Size,
		})
	}
	sort.Slice(parts, func(i, j int) bool { return parts[i].PartNumber < parts[j].PartNumber })

	return &ListPartsResult{
		Xmlns:    xmlns,
		Bucket:   bucketName,
		Key:      key,
		UploadID: uploadID,
		MaxParts: 1000,
		Parts:    parts,
	}, nil
}

func copyTags(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func quote(etag string) string {
	if strings.HasPrefix(etag, `"`) {
		return etag
	}
	return `"` + etag + `"`
}
