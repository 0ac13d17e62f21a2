// Package logs implements the log ingestion service: log groups, streams,
// event ingestion and retrieval.
package logs

import (
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"

	"github.com/nimbuslocal/nimbus/internal/arn"
	"github.com/nimbuslocal/nimbus/internal/awserr"
	"github.com/nimbuslocal/nimbus/internal/ident"
)

func errResourceNotFound(msg string) *awserr.Error {
	return awserr.New("ResourceNotFoundException", http.StatusBadRequest, msg)
}

func errResourceAlreadyExists(msg string) *awserr.Error {
	return awserr.New("ResourceAlreadyExistsException", http.StatusBadRequest, msg)
}

type LogEvent struct {
	Timestamp int64  `json:"timestamp"`
	Message   string `json:"message"`
}

type OutputLogEvent struct {
	Timestamp     int64  `json:"timestamp"`
	Message       string `json:"message"`
	IngestionTime int64  `json:"ingestionTime"`
}

type FilteredLogEvent struct {
	LogStreamName string `json:"logStreamName"`
	Timestamp     int64  `json:"timestamp"`
	Message       string `json:"message"`
	IngestionTime int64  `json:"ingestionTime"`
	EventId       string `json:"eventId"`
}

type LogStream struct {
	Name                string
	ARN                 string
	CreatedAt           int64
	Events              []OutputLogEvent
	LastEventTime       int64
	UploadSequenceToken string
}

type LogGroup struct {
	Name            string
	ARN             string
	CreatedAt       int64
	RetentionInDays int
	Streams         map[string]*LogStream
	Tags            map[string]string
}

// Service is the log group registry guarded by one exclusive lock.
type Service struct {
	mu     sync.Mutex
	groups map[string]*LogGroup

	accountID string
	region    string
}

func New(accountID, region string) *Service {
	return &Service{
		groups:    make(map[string]*LogGroup),
		accountID: accountID,
		region:    region,
	}
}

func (s *Service) CreateLogGroup(name string, tags map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.groups[name]; exists {
		return errResourceAlreadyExists(fmt.Sprintf("The specified log group already exists: %s", name))
	}
	group := &LogGroup{
		Name:      name,
		ARN:       arn.New("logs", s.region, s.accountID, "log-group:"+name+":*"),
		CreatedAt: ident.NowMillis(),
		Streams:   make(map[string]*LogStream),
		Tags:      make(map[string]string),
	}
	for k, v := range tags {
		group.Tags[k] = v
	}
	s.groups[name] = group
	return nil
}

func (s *Service) DeleteLogGroup(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.groups[name]; !ok {
		return errResourceNotFound(fmt.Sprintf("The specified log group does not exist: %s", name))
	}
	delete(s.groups, name)
	return nil
}

func (s *Service) DescribeLogGroups(prefix string) []*LogGroup {
	s.mu.Lock()
	defer s.mu.Unlock()

	var groups []*LogGroup
	for name, g := range s.groups {
		if prefix == "" || strings.HasPrefix(name, prefix) {
			groups = append(groups, g)
		}
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].Name < groups[j].Name })
	return groups
}

func (s *Service) group(name string) (*LogGroup, error) {
	g, ok := s.groups[name]
	if !ok {
		return nil, errResourceNotFound(fmt.Sprintf("The specified log group does not exist: %s", name))
	}
	return g, nil
}

func (s *Service) CreateLogStream(groupName, streamName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	group, err := s.group(groupName)
	if err != nil {
		return err
	}
	if _, exists := group.Streams[streamName]; exists {
		return errResourceAlreadyExists(fmt.Sprintf("The specified log stream already exists: %s", streamName))
	}
	group.Streams[streamName] = &LogStream{
		Name:                streamName,
		ARN:                 arn.New("logs", s.region, s.accountID, "log-group:"+groupName+":log-stream:"+streamName),
		CreatedAt:           ident.NowMillis(),
		UploadSequenceToken: "1",
	}
	return nil
}

func (s *Service) DeleteLogStream(groupName, streamName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	group, err := s.group(groupName)
	if err != nil {
		return err
	}
	if _, ok := group.Streams[streamName]; !ok {
		return errResourceNotFound(fmt.Sprintf("The specified log stream does not exist: %s", streamName))
	}
	delete(group.Streams, streamName)
	return nil
}

func (s *Service) DescribeLogStreams(groupName, prefix string) ([]*LogStream, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	group, err := s.group(groupName)
	if err != nil {
		return nil, err
	}
	var streams []*LogStream
	for name, stream := range group.Streams {
		if prefix == "" || strings.HasPrefix(name, prefix) {
			streams = append(streams, stream)
		}
	}
	sort.Slice(streams, func(i, j int) bool { return streams[i].Name < streams[j].Name })
	return streams, nil
}

// PutLogEvents appends events to a stream and advances the sequence token.
func (s *Service) PutLogEvents(groupName, streamName string, events []LogEvent) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	group, err := s.group(groupName)
	if err != nil {
		return "", err
	}
	stream, ok := group.Streams[streamName]
	if !ok {
		return "", errResourceNotFound(fmt.Sprintf("The specified log stream does not exist: %s", streamName))
	}

	now := ident.NowMillis()
	for _, event := range events {
		stream.Events = append(stream.Events, OutputLogEvent{
			Timestamp:     event.Timestamp,
			Message:       event.Message,
			IngestionTime: now,
		})
		if event.Timestamp > stream.LastEventTime {
			stream.LastEventTime = event.Timestamp
		}
	}
	sort.SliceStable(stream.Events, func(i, j int) bool {
		return stream.Events[i].Timestamp < stream.Events[j].Timestamp
	})
	stream.UploadSequenceToken = ident.New()
	return stream.UploadSequenceToken, nil
}

func (s *Service) GetLogEvents(groupName, streamName string, startTime, endTime int64, limit int) ([]OutputLogEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	group, err := s.group(groupName)
	if err != nil {
		return nil, err
	}
	stream, ok := group.Streams[streamName]
	if !ok {
		return nil, errResourceNotFound(fmt.Sprintf("The specified log stream does not exist: %s", streamName))
	}

	if limit <= 0 {
		limit = 10000
	}
	events := []OutputLogEvent{}
	for _, event := range stream.Events {
		if startTime > 0 && event.Timestamp < startTime {
			continue
		}
		if endTime > 0 && event.Timestamp > endTime {
			continue
		}
		events = append(events, event)
		if len(events) >= limit {
			break
		}
	}
	return events, nil
}

// FilterLogEvents scans all streams in a group for events whose message
// contains the filter pattern.
func (s *Service) FilterLogEvents(groupName, pattern string, startTime, endTime int64, limit int) ([]FilteredLogEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	group, err := s.group(groupName)
	if err != nil {
		return nil, err
	}

	if limit <= 0 {
		limit = 10000
	}
	// Strip the pattern's surrounding quotes, the simple-term filter form.
	pattern = strings.Trim(pattern, `"`)

	events := []FilteredLogEvent{}
	for _, stream := range group.Streams {
		for i, event := range stream.Events {
			if startTime > 0 && event.Timestamp < startTime {
				continue
			}
			if endTime > 0 && event.Timestamp > endTime {
				continue
			}
			if pattern != "" && !strings.Contains(event.Message, pattern) {
				continue
			}
			events = append(events, FilteredLogEvent{
				LogStreamName: stream.Name,
				Timestamp:     event.Timestamp,
				Message:       event.Message,
				IngestionTime: event.IngestionTime,
				EventId:       fmt.Sprintf("%s-%d", stream.Name, i),
			})
		}
	}
	sort.SliceStable(events, func(i, j int) bool { return events[i].Timestamp < events[j].Timestamp })
	if len(events) > limit {
		events = events[:limit]
	}
	return events, nil
}

func (s *Service) PutRetentionPolicy(groupName string, retentionInDays int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	group, err := s.group(groupName)
	if err != nil {
		return err
	}
	group.RetentionInDays = retentionInDays
	return nil
}

func (s *Service) DeleteRetentionPolicy(groupName string) error {
	return s.PutRetentionPolicy(groupName, 0)
}

func (s *Service) TagLogGroup(groupName string, tags map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	group, err := s.group(groupName)
	if err != nil {
		return err
	}
	for k, v := range tags {
		group.Tags[k] = v
	}
	return nil
}

func (s *Service) UntagLogGroup(groupName string, tagKeys []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	group, err := s.group(groupName)
	if err != nil {
		return err
	}
	for _, k := range tagKeys {
		delete(group.Tags, k)
	}
	return nil
}

func (s *Service) ListTagsLogGroup(groupName string) (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	group, err := s.group(groupName)
	if err != nil {
		return nil, err
	}
	tags := make(map[string]string, len(group.Tags))
	for k, v := range group.Tags {
		tags[k] = v
	}
	return tags, nil
}
