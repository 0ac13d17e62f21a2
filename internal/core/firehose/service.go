// Package firehose implements the delivery stream service.
package firehose

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

type Record struct {
	Data      []byte
	RecordID  string
	Arrival   time.Time
}

type DeliveryStream struct {
	Name         string
	ARN          string
	Status       string
	Type         string
	CreatedAt    float64
	Destination  map[string]any
	Records      []Record
	Tags         map[string]string
	VersionID    int
}

// Service is the delivery stream registry guarded by one exclusive lock.
type Service struct {
	mu      sync.Mutex
	streams map[string]*DeliveryStream

	accountID string
	region    string
}

func New(accountID, region string) *Service {
	return &Service{
		streams:   make(map[string]*DeliveryStream),
		accountID: accountID,
		region:    region,
	}
}

func (s *Service) CreateDeliveryStream(name, streamType string, destination map[string]any) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.streams[name]; exists {
		return "", errResourceInUse(fmt.Sprintf("Delivery stream %s already exists.", name))
	}
	if streamType == "" {
		streamType = "DirectPut"
	}
	stream := &DeliveryStream{
		Name:        name,
		ARN:         arn.New("firehose", s.region, s.accountID, "deliverystream/"+name),
		Status:      "ACTIVE",
		Type:        streamType,
		CreatedAt:   float64(time.Now().UnixNano()) / 1e9,
		Destination: destination,
		Tags:        make(map[string]string),
		VersionID:   1,
	}
	s.streams[name] = stream
	return stream.ARN, nil
}

func (s *Service) DeleteDeliveryStream(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.streams[name]; !ok {
		return errResourceNotFound(fmt.Sprintf("Delivery stream %s not found.", name))
	}
	delete(s.streams, name)
	return nil
}

func (s *Service) DescribeDeliveryStream(name string) (*DeliveryStream, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stream(name)
}

func (s *Service) stream(name string) (*DeliveryStream, error) {
	stream, ok := s.streams[name]
	if !ok {
		return nil, errResourceNotFound(fmt.Sprintf("Delivery stream %s not found.", name))
	}
	return stream, nil
}

func (s *Service) ListDeliveryStreams() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	names := make([]string, 0, len(s.streams))
	for name := range s.streams {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (s *Service) UpdateDestination(name string, destination map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stream, err := s.stream(name)
	if err != nil {
		return err
	}
	stream.Destination = destination
	stream.VersionID++
	return nil
}

// PutRecord stores a record and returns its id.
func (s *Service) PutRecord(name string, data []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stream, err := s.stream(name)
	if err != nil {
		return "", err
	}
	recordID := ident.New()
	stream.Records = append(stream.Records, Record{Data: data, RecordID: recordID, Arrival: time.Now()})
	return recordID, nil
}

func (s *Service) PutRecordBatch(name string, records [][]byte) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stream, err := s.stream(name)
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(records))
	for i, data := range records {
		ids[i] = ident.New()
		stream.Records = append(stream.Records, Record{Data: data, RecordID: ids[i], Arrival: time.Now()})
	}
	return ids, nil
}

func (s *Service) TagDeliveryStream(name string, tags map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stream, err := s.stream(name)
	if err != nil {
		return err
	}
	for k, v := range tags {
		stream.Tags[k] = v
	}
	return nil
}

func (s *Service) UntagDeliveryStream(name string, tagKeys []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stream, err := s.stream(name)
	if err != nil {
		return err
	}
	for _, k := range tagKeys {
		delete(stream.Tags, k)
	}
	return nil
}

func (s *Service) ListTagsForDeliveryStream(name string) (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stream, err := s.stream(name)
	if err != nil {
		return nil, err
	}
	tags := make(map[string]string, len(stream.Tags))
	for k, v := range stream.Tags {
		tags[k] = v
	}
	return tags, nil
}
