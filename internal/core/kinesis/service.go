// Package kinesis implements the record stream service: streams, shards,
// sequenced records and shard iterators.
package kinesis

import (
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/nimbuslocal/nimbus/internal/arn"
	"github.com/nimbuslocal/nimbus/internal/awserr"
	"github.com/nimbuslocal/nimbus/internal/ident"
)

func errResourceNotFound(msg string) *awserr.Error {
	return awserr.New("ResourceNotFoundException", http.StatusBadRequest, msg)
}

func errResourceInUse(msg string) *awserr.Error {
	return awserr.New("ResourceInUseException", http.StatusBadRequest, msg)
}

func errExpiredIterator(msg string) *awserr.Error {
	return awserr.New("ExpiredIteratorException", http.StatusBadRequest, msg)
}

func errInvalidArgument(msg string) *awserr.Error {
	return awserr.New("InvalidArgumentException", http.StatusBadRequest, msg)
}

type Record struct {
	SequenceNumber string
	PartitionKey   string
	Data           []byte
	Arrival        float64
}

type Stream struct {
	Name            string
	ARN             string
	Status          string
	ShardCount      int
	RetentionHours  int
	CreatedAt       float64
	Records         []Record
	Tags            map[string]string
	sequenceCounter uint64
}

type iteratorState struct {
	streamName string
	shardID    string
	position   int
}

// Service is the stream registry guarded by one exclusive lock.
type Service struct {
	mu        sync.Mutex
	streams   map[string]*Stream
	iterators map[string]iteratorState

	accountID string
	region    string
}

func New(accountID, region string) *Service {
	return &Service{
		streams:   make(map[string]*Stream),
		iterators: make(map[string]iteratorState),
		accountID: accountID,
		region:    region,
	}
}

func epoch() float64 {
	return float64(time.Now().UnixNano()) / 1e9
}

func (s *Service) CreateStream(name string, shardCount int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.streams[name]; exists {
		return errResourceInUse(fmt.Sprintf("Stream %s already exists.", name))
	}
	if shardCount <= 0 {
		shardCount = 1
	}
	s.streams[name] = &Stream{
		Name:           name,
		ARN:            arn.New("kinesis", s.region, s.accountID, "stream/"+name),
		Status:         "ACTIVE",
		ShardCount:     shardCount,
		RetentionHours: 24,
		CreatedAt:      epoch(),
		Tags:           make(map[string]string),
	}
	return nil
}

func (s *Service) DeleteStream(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.streams[name]; !ok {
		return errResourceNotFound(fmt.Sprintf("Stream %s not found.", name))
	}
	delete(s.streams, name)
	return nil
}

// resolve accepts a stream name or ARN, the way newer API versions do.
func (s *Service) resolve(name, streamARN string) (*Stream, error) {
	if name == "" && streamARN != "" {
		name = arn.Resource(streamARN)
	}
	stream, ok := s.streams[name]
	if !ok {
		return nil, errResourceNotFound(fmt.Sprintf("Stream %s not found.", name))
	}
	return stream, nil
}

func (s *Service) DescribeStream(name, streamARN string) (*Stream, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resolve(name, streamARN)
}

func (s *Service) ListStreams() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	names := make([]string, 0, len(s.streams))
	for name := range s.streams {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ShardIDs renders the stream's shard identifiers.
func (st *Stream) ShardIDs() []string {
	ids := make([]string, st.ShardCount)
	for i := range ids {
		ids[i] = fmt.Sprintf("shardId-%012d", i)
	}
	return ids
}

func (s *Service) PutRecord(name, streamARN, partitionKey string, data []byte) (string, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stream, err := s.resolve(name, streamARN)
	if err != nil {
		return "", "", err
	}
	if partitionKey == "" {
		return "", "", errInvalidArgument("PartitionKey is required")
	}

	stream.sequenceCounter++
	seq := ident.SequenceNumber(stream.sequenceCounter)
	stream.Records = append(stream.Records, Record{
		SequenceNumber: seq,
		PartitionKey:   partitionKey,
		Data:           data,
		Arrival:        epoch(),
	})
	return "shardId-000000000000", seq, nil
}

type PutRecordsEntry struct {
	PartitionKey string
	Data         []byte
}

type PutRecordsResult struct {
	SequenceNumber string
	ShardID        string
}

func (s *Service) PutRecords(name, streamARN string, entries []PutRecordsEntry) ([]PutRecordsResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stream, err := s.resolve(name, streamARN)
	if err != nil {
		return nil, err
	}

	results := make([]PutRecordsResult, len(entries))
	for i, entry := range entries {
		stream.sequenceCounter++
		seq := ident.SequenceNumber(stream.sequenceCounter)
		stream.Records = append(stream.Records, Record{
			SequenceNumber: seq,
			PartitionKey:   entry.PartitionKey,
			Data:           entry.Data,
			Arrival:        epoch(),
		})
		results[i] = PutRecordsResult{SequenceNumber: seq, ShardID: "shardId-000000000000"}
	}
	return results, nil
}

// GetShardIterator mints an opaque iterator for a read position:
// TRIM_HORIZON, LATEST, or AT/AFTER a sequence number.
func (s *Service) GetShardIterator(name, streamARN, shardID, iteratorType, startingSequenceNumber string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stream, err := s.resolve(name, streamARN)
	if err != nil {
		return "", err
	}

	position := len(stream.Records)
	switch iteratorType {
	case "TRIM_HORIZON":
		position = 0
	case "LATEST":
		position = len(stream.Records)
	case "AT_SEQUENCE_NUMBER", "AFTER_SEQUENCE_NUMBER":
		if startingSequenceNumber == "" {
			position = 0
			break
		}
		for i, r := range stream.Records {
			if r.SequenceNumber == startingSequenceNumber {
				position = i
				if iteratorType == "AFTER_SEQUENCE_NUMBER" {
					position = i + 1
				}
				break
			}
		}
	}

	iterator := ident.B64Encode([]byte(fmt.Sprintf("%s:%s:%d", stream.Name, shardID, position)))
	s.iterators[iterator] = iteratorState{streamName: stream.Name, shardID: shardID, position: position}
	return iterator, nil
}

type GetRecordsOutput struct {
	Records            []Record
	NextShardIterator  string
	MillisBehindLatest int64
}

func (s *Service) GetRecords(shardIterator string, limit int) (*GetRecordsOutput, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, ok := s.iterators[shardIterator]
	if !ok {
		return nil, errExpiredIterator("Iterator expired or invalid")
	}
	stream, ok := s.streams[state.streamName]
	if !ok {
		return nil, errResourceNotFound(fmt.Sprintf("Stream %s not found.", state.streamName))
	}

	if limit <= 0 || limit > 10000 {
		limit = 10000
	}
	position := state.position
	if position > len(stream.Records) {
		position = len(stream.Records)
	}
	take := len(stream.Records) - position
	if take > limit {
		take = limit
	}

	records := make([]Record, take)
	copy(records, stream.Records[position:position+take])

	next := ident.B64Encode([]byte(fmt.Sprintf("%s:%s:%d", stream.Name, state.shardID, position+take)))
	s.iterators[next] = iteratorState{streamName: stream.Name, shardID: state.shardID, position: position + take}

	return &GetRecordsOutput{
		Records:           records,
		NextShardIterator: next,
	}, nil
}

func (s *Service) IncreaseStreamRetentionPeriod(name, streamARN string, hours int) error {
	return s.setRetention(name, streamARN, hours, true)
}

func (s *Service) DecreaseStreamRetentionPeriod(name, streamARN string, hours int) error {
	return s.setRetention(name, streamARN, hours, false)
}

func (s *Service) setRetention(name, streamARN string, hours int, increase bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stream, err := s.resolve(name, streamARN)
	if err != nil {
		return err
	}
	if hours < 24 || hours > 8760 {
		return errInvalidArgument("Retention period must be between 24 and 8760 hours")
	}
	if increase && hours < stream.RetentionHours {
		return errInvalidArgument("New retention period must be greater than current")
	}
	if !increase && hours > stream.RetentionHours {
		return errInvalidArgument("New retention period must be less than current")
	}
	stream.RetentionHours = hours
	return nil
}

func (s *Service) AddTagsToStream(name string, tags map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stream, err := s.resolve(name, "")
	if err != nil {
		return err
	}
	for k, v := range tags {
		stream.Tags[k] = v
	}
	return nil
}

func (s *Service) RemoveTagsFromStream(name string, tagKeys []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stream, err := s.resolve(name, "")
	if err != nil {
		return err
	}
	for _, k := range tagKeys {
		delete(stream.Tags, k)
	}
	return nil
}

func (s *Service) ListTagsForStream(name string) (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stream, err := s.resolve(name, "")
	if err != nil {
		return nil, err
	}
	tags := make(map[string]string, len(stream.Tags))
	for k, v := range stream.Tags {
		tags[k] = v
	}
	return tags, nil
}

// ListShards reports the synthetic shard set.
func (s *Service) ListShards(name, streamARN string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stream, err := s.resolve(name, streamARN)
	if err != nil {
		return nil, err
	}
	return stream.ShardIDs(), nil
}
