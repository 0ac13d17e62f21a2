package s3

import (
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/nimbuslocal/nimbus/internal/api/common"
	"github.com/nimbuslocal/nimbus/internal/awserr"
	s3core "github.com/nimbuslocal/nimbus/internal/core/s3"
)

// Handler serves the object store's REST protocol: paths /, /{bucket} and
// /{bucket}/{key...}, with query-string flags selecting sub-resources.
type Handler struct {
	engine *s3core.Engine
}

func NewHandler(engine *s3core.Engine) *Handler {
	return &Handler{engine: engine}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	bucket, key := splitPath(r.URL.Path)

	switch {
	case bucket == "":
		h.serviceRequest(w, r)
	case key == "":
		h.bucketRequest(w, r, bucket)
	default:
		h.objectRequest(w, r, bucket, key)
	}
}

func splitPath(path string) (bucket, key string) {
	path = strings.TrimPrefix(path, "/")
	if path == "" {
		return "", ""
	}
	parts := strings.SplitN(path, "/", 2)
	bucket = parts[0]
	if len(parts) == 2 {
		key = parts[1]
	}
	return bucket, key
}

func (h *Handler) serviceRequest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		common.RespondXMLError(w, errMethodNotAllowed())
		return
	}
	common.RespondXML(w, http.StatusOK, h.engine.ListBuckets())
}

func errMethodNotAllowed() error {
	return awserr.New("MethodNotAllowed", http.StatusMethodNotAllowed, "The specified method is not allowed against this resource.")
}

func (h *Handler) bucketRequest(w http.ResponseWriter, r *http.Request, bucket string) {
	query := r.URL.Query()

	switch r.Method {
	case http.MethodGet:
		h.bucketGet(w, r, bucket, query)
	case http.MethodPut:
		h.bucketPut(w, r, bucket, query)
	case http.MethodDelete:
		h.bucketDelete(w, bucket, query)
	case http.MethodHead:
		region, err := h.engine.HeadBucket(bucket)
		if err != nil {
			// HEAD responses carry no body; surface the status only.
			w.WriteHeader(common.AsError(err).Status)
			return
		}
		w.Header().Set("x-amz-bucket-region", region)
		w.WriteHeader(http.StatusOK)
	case http.MethodPost:
		h.bucketPost(w, r, bucket, query)
	default:
		common.RespondXMLError(w, errMethodNotAllowed())
	}
}

func (h *Handler) bucketGet(w http.ResponseWriter, r *http.Request, bucket string, query url.Values) {
	switch {
	case query.Has("location"):
		region, err := h.engine.GetBucketLocation(bucket)
		if err != nil {
			common.RespondXMLError(w, err)
			return
		}
		common.RespondXML(w, http.StatusOK, s3core.LocationConstraint{Location: region})
	case query.Has("versioning"):
		status, err := h.engine.GetBucketVersioning(bucket)
		if err != nil {
			common.RespondXMLError(w, err)
			return
		}
		common.RespondXML(w, http.StatusOK, s3core.VersioningConfiguration{Status: status})
	case query.Has("tagging"):
		tags, err := h.engine.GetBucketTagging(bucket)
		if err != nil {
			common.RespondXMLError(w, err)
			return
		}
		common.RespondXML(w, http.StatusOK, tagging(tags))
	case query.Has("uploads"):
		result, err := h.engine.ListMultipartUploads(bucket)
		if err != nil {
			common.RespondXMLError(w, err)
			return
		}
		common.RespondXML(w, http.StatusOK, result)
	default:
		maxKeys := 1000
		if v := query.Get("max-keys"); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				maxKeys = n
			}
		}
		result, err := h.engine.ListObjectsV2(bucket,
			query.Get("prefix"), query.Get("delimiter"), maxKeys,
			query.Get("continuation-token"), query.Get("start-after"))
		if err != nil {
			common.RespondXMLError(w, err)
			return
		}
		common.RespondXML(w, http.StatusOK, result)
	}
}

func (h *Handler) bucketPut(w http.ResponseWriter, r *http.Request, bucket string, query url.Values) {
	switch {
	case query.Has("versioning"):
		var config s3core.VersioningConfiguration
		if err := xml.NewDecoder(r.Body).Decode(&config); err != nil {
			common.RespondXMLError(w, malformedXML(err))
			return
		}
		if err := h.engine.PutBucketVersioning(bucket, config.Status); err != nil {
			common.RespondXMLError(w, err)
			return
		}
		w.WriteHeader(http.StatusOK)
	case query.Has("tagging"):
		tags, err := parseTagging(r.Body)
		if err != nil {
			common.RespondXMLError(w, err)
			return
		}
		if err := h.engine.PutBucketTagging(bucket, tags); err != nil {
			common.RespondXMLError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		if err := h.engine.CreateBucket(bucket); err != nil {
			common.RespondXMLError(w, err)
			return
		}
		w.Header().Set("Location", "/"+bucket)
		w.WriteHeader(http.StatusOK)
	}
}

func (h *Handler) bucketDelete(w http.ResponseWriter, bucket string, query url.Values) {
	var err error
	if query.Has("tagging") {
		err = h.engine.DeleteBucketTagging(bucket)
	} else {
		err = h.engine.DeleteBucket(bucket)
	}
	if err != nil {
		common.RespondXMLError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) bucketPost(w http.ResponseWriter, r *http.Request, bucket string, query url.Values) {
	if !query.Has("delete") {
		common.RespondXMLError(w, errMethodNotAllowed())
		return
	}
	var req s3core.DeleteRequest
	if err := xml.NewDecoder(r.Body).Decode(&req); err != nil {
		common.RespondXMLError(w, malformedXML(err))
		return
	}
	keys := make([]string, len(req.Objects))
	for i, o := range req.Objects {
		keys[i] = o.Key
	}
	result, err := h.engine.DeleteObjects(bucket, keys, req.Quiet)
	if err != nil {
		common.RespondXMLError(w, err)
		return
	}
	common.RespondXML(w, http.StatusOK, result)
}

func (h *Handler) objectRequest(w http.ResponseWriter, r *http.Request, bucket, key string) {
	query := r.URL.Query()

	switch r.Method {
	case http.MethodGet:
		h.objectGet(w, r, bucket, key, query)
	case http.MethodPut:
		h.objectPut(w, r, bucket, key, query)
	case http.MethodDelete:
		h.objectDelete(w, bucket, key, query)
	case http.MethodHead:
		h.objectHead(w, bucket, key)
	case http.MethodPost:
		h.objectPost(w, r, bucket, key, query)
	default:
		common.RespondXMLError(w, errMethodNotAllowed())
	}
}

func (h *Handler) objectGet(w http.ResponseWriter, r *http.Request, bucket, key string, query url.Values) {
	switch {
	case query.Has("tagging"):
		tags, err := h.engine.GetObjectTagging(bucket, key)
		if err != nil {
			common.RespondXMLError(w, err)
			return
		}
		common.RespondXML(w, http.StatusOK, tagging(tags))
	case query.Has("uploadId"):
		result, err := h.engine.ListParts(bucket, key, query.Get("uploadId"))
		if err != nil {
			common.RespondXMLError(w, err)
			return
		}
		common.RespondXML(w, http.StatusOK, result)
	default:
		rangeStart, rangeEnd, ranged, err := parseRange(r.Header.Get("Range"), func() (int64, error) {
			obj, headErr := h.engine.HeadObject(bucket, key)
			if headErr != nil {
				return 0, headErr
			}
			return int64(len(obj.Data)), nil
		})
		if err != nil {
			common.RespondXMLError(w, err)
			return
		}

		obj, rangeInfo, err := h.engine.GetObject(bucket, key, rangeStart, rangeEnd, ranged)
		if err != nil {
			common.RespondXMLError(w, err)
			return
		}

		writeObjectHeaders(w, obj)
		if rangeInfo != nil {
			slice := obj.Data[rangeInfo.Start : rangeInfo.End+1]
			w.Header().Set("Content-Range",
				fmt.Sprintf("bytes %d-%d/%d", rangeInfo.Start, rangeInfo.End, rangeInfo.Total))
			w.Header().Set("Content-Length", strconv.Itoa(len(slice)))
			w.WriteHeader(http.StatusPartialContent)
			w.Write(slice)
			return
		}
		w.Header().Set("Content-Length", strconv.Itoa(len(obj.Data)))
		w.WriteHeader(http.StatusOK)
		w.Write(obj.Data)
	}
}

func writeObjectHeaders(w http.ResponseWriter, obj *s3core.Object) {
	w.Header().Set("Content-Type", obj.ContentType)
	w.Header().Set("ETag", quoteETag(obj.ETag))
	w.Header().Set("Last-Modified", obj.LastModified)
	for k, v := range obj.Metadata {
		w.Header().Set("x-amz-meta-"+k, v)
	}
}

func quoteETag(etag string) string {
	if strings.HasPrefix(etag, `"`) {
		return etag
	}
	return `"` + etag + `"`
}

// parseRange interprets a Range header. Suffix ranges (bytes=-n) need the
// object size, fetched lazily.
func parseRange(header string, size func() (int64, error)) (start int64, end *int64, ranged bool, err error) {
	if header == "" {
		return 0, nil, false, nil
	}
	spec, ok := strings.CutPrefix(header, "bytes=")
	if !ok {
		return 0, nil, false, nil
	}
	first, second, ok := strings.Cut(spec, "-")
	if !ok {
		return 0, nil, false, nil
	}

	if first == "" {
		// Suffix form: last n bytes.
		n, parseErr := strconv.ParseInt(second, 10, 64)
		if parseErr != nil {
			return 0, nil, false, nil
		}
		total, sizeErr := size()
		if sizeErr != nil {
			return 0, nil, false, sizeErr
		}
		start = total - n
		if start < 0 {
			start = 0
		}
		return start, nil, true, nil
	}

	start, parseErr := strconv.ParseInt(first, 10, 64)
	if parseErr != nil {
		return 0, nil, false, nil
	}
	if second != "" {
		e, parseErr := strconv.ParseInt(second, 10, 64)
		if parseErr != nil {
			return 0, nil, false, nil
		}
		end = &e
	}
	return start, end, true, nil
}

func (h *Handler) objectPut(w http.ResponseWriter, r *http.Request, bucket, key string, query url.Values) {
	switch {
	case query.Has("tagging"):
		tags, err := parseTagging(r.Body)
		if err != nil {
			common.RespondXMLError(w, err)
			return
		}
		if err := h.engine.PutObjectTagging(bucket, key, tags); err != nil {
			common.RespondXMLError(w, err)
			return
		}
		w.WriteHeader(http.StatusOK)

	case query.Has("partNumber"):
		partNumber, err := strconv.Atoi(query.Get("partNumber"))
		if err != nil {
			common.RespondXMLError(w, awserr.New("InvalidArgument", http.StatusBadRequest, "Invalid partNumber"))
			return
		}
		body, err := io.ReadAll(r.Body)
		if err != nil {
			common.RespondXMLError(w, err)
			return
		}
		etag, err := h.engine.UploadPart(bucket, key, query.Get("uploadId"), partNumber, body)
		if err != nil {
			common.RespondXMLError(w, err)
			return
		}
		w.Header().Set("ETag", etag)
		w.WriteHeader(http.StatusOK)

	case r.Header.Get("x-amz-copy-source") != "":
		srcBucket, srcKey := parseCopySource(r.Header.Get("x-amz-copy-source"))
		result, err := h.engine.CopyObject(bucket, key, srcBucket, srcKey,
			r.Header.Get("x-amz-metadata-directive"),
			r.Header.Get("Content-Type"), extractMetadata(r.Header))
		if err != nil {
			common.RespondXMLError(w, err)
			return
		}
		common.RespondXML(w, http.StatusOK, result)

	default:
		body, err := io.ReadAll(r.Body)
		if err != nil {
			common.RespondXMLError(w, err)
			return
		}
		etag, err := h.engine.PutObject(bucket, key, body, r.Header.Get("Content-Type"), extractMetadata(r.Header))
		if err != nil {
			common.RespondXMLError(w, err)
			return
		}
		w.Header().Set("ETag", quoteETag(etag))
		w.WriteHeader(http.StatusOK)
	}
}

func (h *Handler) objectDelete(w http.ResponseWriter, bucket, key string, query url.Values) {
	var err error
	switch {
	case query.Has("tagging"):
		err = h.engine.DeleteObjectTagging(bucket, key)
	case query.Has("uploadId"):
		err = h.engine.AbortMultipartUpload(bucket, query.Get("uploadId"))
	default:
		err = h.engine.DeleteObject(bucket, key)
	}
	if err != nil {
		common.RespondXMLError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) objectHead(w http.ResponseWriter, bucket, key string) {
	obj, err := h.engine.HeadObject(bucket, key)
	if err != nil {
		w.WriteHeader(common.AsError(err).Status)
		return
	}
	writeObjectHeaders(w, obj)
	w.Header().Set("Content-Length", strconv.Itoa(len(obj.Data)))
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) objectPost(w http.ResponseWriter, r *http.Request, bucket, key string, query url.Values) {
	switch {
	case query.Has("uploads"):
		result, err := h.engine.CreateMultipartUpload(bucket, key,
			r.Header.Get("Content-Type"), extractMetadata(r.Header))
		if err != nil {
			common.RespondXMLError(w, err)
			return
		}
		common.RespondXML(w, http.StatusOK, result)

	case query.Has("uploadId"):
		var req s3core.CompleteMultipartUploadRequest
		if err := xml.NewDecoder(r.Body).Decode(&req); err != nil {
			common.RespondXMLError(w, malformedXML(err))
			return
		}
		result, err := h.engine.CompleteMultipartUpload(bucket, key, query.Get("uploadId"), req.Parts)
		if err != nil {
			common.RespondXMLError(w, err)
			return
		}
		common.RespondXML(w, http.StatusOK, result)

	default:
		common.RespondXMLError(w, errMethodNotAllowed())
	}
}

// --- helpers ---

func extractMetadata(headers http.Header) map[string]string {
	metadata := make(map[string]string)
	for name, values := range headers {
		lower := strings.ToLower(name)
		if meta, ok := strings.CutPrefix(lower, "x-amz-meta-"); ok && len(values) > 0 {
			metadata[meta] = values[0]
		}
	}
	return metadata
}

func parseCopySource(header string) (bucket, key string) {
	path := strings.TrimPrefix(header, "/")
	if decoded, err := url.PathUnescape(path); err == nil {
		path = decoded
	}
	bucket, key, _ = strings.Cut(path, "/")
	return bucket, key
}

func tagging(tags map[string]string) s3core.Tagging {
	out := s3core.Tagging{}
	for k, v := range tags {
		out.TagSet = append(out.TagSet, s3core.Tag{Key: k, Value: v})
	}
	return out
}

func parseTagging(body io.Reader) (map[string]string, error) {
	var t s3core.Tagging
	if err := xml.NewDecoder(body).Decode(&t); err != nil {
		return nil, malformedXML(err)
	}
	tags := make(map[string]string, len(t.TagSet))
	for _, tag := range t.TagSet {
		tags[tag.Key] = tag.Value
	}
	return tags, nil
}

func malformedXML(err error) error {
	return awserr.New("MalformedXML", http.StatusBadRequest,
		fmt.Sprintf("The XML you provided was not well-formed or did not validate: %v", err))
}
