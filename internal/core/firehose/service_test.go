package firehose

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	s := New("000000000000", "us-east-1")
	_, err := s.CreateDeliveryStream("events", "", map[string]any{"BucketARN": "arn:aws:s3:::sink"})
	require.NoError(t, err)
	return s
}

func TestCreateDeliveryStream(t *testing.T) {
	s := newTestService(t)

	stream, err := s.DescribeDeliveryStream("events")
	require.NoError(t, err)
	assert.Equal(t, "arn:aws:firehose:us-east-1:000000000000:deliverystream/events", stream.ARN)
	assert.Equal(t, "ACTIVE", stream.Status)
	assert.Equal(t, "DirectPut", stream.Type)
	assert.Equal(t, 1, stream.VersionID)

	_, err = s.CreateDeliveryStream("events", "", nil)
	assert.Error(t, err, "duplicate stream")

	_, err = s.DescribeDeliveryStream("missing")
	assert.Error(t, err)
}

func TestListAndDeleteDeliveryStreams(t *testing.T) {
	s := newTestService(t)
	_, err := s.CreateDeliveryStream("audit", "DirectPut", nil)
	require.NoError(t, err)

	assert.Equal(t, []string{"audit", "events"}, s.ListDeliveryStreams())

	require.NoError(t, s.DeleteDeliveryStream("audit"))
	assert.Error(t, s.DeleteDeliveryStream("audit"))
	assert.Equal(t, []string{"events"}, s.ListDeliveryStreams())
}

func TestPutRecord(t *testing.T) {
	s := newTestService(t)

	recordID, err := s.PutRecord("events", []byte("payload"))
	require.NoError(t, err)
	assert.NotEmpty(t, recordID)

	stream, err := s.DescribeDeliveryStream("events")
	require.NoError(t, err)
	require.Len(t, stream.Records, 1)
	assert.Equal(t, "payload", string(stream.Records[0].Data))
	assert.Equal(t, recordID, stream.Records[0].RecordID)

	_, err = s.PutRecord("missing", nil)
	assert.Error(t, err)
}

func TestPutRecordBatch(t *testing.T) {
	s := newTestService(t)

	ids, err := s.PutRecordBatch("events", [][]byte{[]byte("a"), []byte("b"), []byte("c")})
	require.NoError(t, err)
	require.Len(t, ids, 3)
	assert.NotEqual(t, ids[0], ids[1])

	stream, err := s.DescribeDeliveryStream("events")
	require.NoError(t, err)
	require.Len(t, stream.Records, 3)
	assert.Equal(t, "a", string(stream.Records[0].Data))
	assert.Equal(t, "c", string(stream.Records[2].Data))

	_, err = s.PutRecordBatch("missing", nil)
	assert.Error(t, err)
}

func TestUpdateDestinationBumpsVersion(t *testing.T) {
	s := newTestService(t)

	require.NoError(t, s.UpdateDestination("events", map[string]any{"BucketARN": "arn:aws:s3:::other"}))

	stream, err := s.DescribeDeliveryStream("events")
	require.NoError(t, err)
	assert.Equal(t, 2, stream.VersionID)
	assert.Equal(t, "arn:aws:s3:::other", stream.Destination["BucketARN"])

	assert.Error(t, s.UpdateDestination("missing", nil))
}

func TestDeliveryStreamTags(t *testing.T) {
	s := newTestService(t)

	require.NoError(t, s.TagDeliveryStream("events", map[string]string{"env": "dev"}))
	tags, err := s.ListTagsForDeliveryStream("events")
	require.NoError(t, err)
	assert.Equal(t, "dev", tags["env"])

	require.NoError(t, s.UntagDeliveryStream("events", []string{"env"}))
	tags, err = s.ListTagsForDeliveryStream("events")
	require.NoError(t, err)
	assert.Empty(t, tags)
}
