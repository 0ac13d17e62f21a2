// Package events implements the event bus service: buses, rules, targets
// and event intake. The default bus is preinstalled.
package events

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

type Target struct {
	Id      string `json:"Id"`
	Arn     string `json:"Arn"`
	Input   string `json:"Input,omitempty"`
	RoleArn string `json:"RoleArn,omitempty"`
}

type Rule struct {
	Name               string
	ARN                string
	EventBusName       string
	EventPattern       string
	ScheduleExpression string
	State              string
	Description        string
	Targets            map[string]Target
}

type EventBus struct {
	Name      string
	ARN       string
	Rules     map[string]*Rule
	Tags      map[string]string
}

type PutEventsEntry struct {
	Source       string
	DetailType   string
	Detail       string
	EventBusName string
}

type PutEventsResult struct {
	EventId string `json:"EventId"`
}

// Service is the event bus registry guarded by one exclusive lock.
type Service struct {
	mu    sync.Mutex
	buses map[string]*EventBus

	accountID string
	region    string
}

func New(accountID, region string) *Service {
	s := &Service{
		buses:     make(map[string]*EventBus),
		accountID: accountID,
		region:    region,
	}
	s.buses["default"] = &EventBus{
		Name:  "default",
		ARN:   arn.New("events", region, accountID, "event-bus/default"),
		Rules: make(map[string]*Rule),
		Tags:  make(map[string]string),
	}
	return s
}

func (s *Service) CreateEventBus(name string, tags map[string]string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.buses[name]; exists {
		return "", errResourceAlreadyExists(fmt.Sprintf("Event bus %s already exists.", name))
	}
	bus := &EventBus{
		Name:  name,
		ARN:   arn.New("events", s.region, s.accountID, "event-bus/"+name),
		Rules: make(map[string]*Rule),
		Tags:  make(map[string]string),
	}
	for k, v := range tags {
		bus.Tags[k] = v
	}
	s.buses[name] = bus
	return bus.ARN, nil
}

func (s *Service) DeleteEventBus(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if name == "default" {
		return awserr.New("ValidationException", http.StatusBadRequest, "Cannot delete the default event bus.")
	}
	delete(s.buses, name)
	return nil
}

func (s *Service) DescribeEventBus(name string) (*EventBus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bus(name)
}

func (s *Service) bus(name string) (*EventBus, error) {
	if name == "" {
		name = "default"
	}
	bus, ok := s.buses[name]
	if !ok {
		return nil, errResourceNotFound(fmt.Sprintf("Event bus %s does not exist.", name))
	}
	return bus, nil
}

func (s *Service) ListEventBuses(prefix string) []*EventBus {
	s.mu.Lock()
	defer s.mu.Unlock()

	var buses []*EventBus
	for name, bus := range s.buses {
		if prefix == "" || strings.HasPrefix(name, prefix) {
			buses = append(buses, bus)
		}
	}
	sort.Slice(buses, func(i, j int) bool { return buses[i].Name < buses[j].Name })
	return buses
}

// PutEvents assigns an event id per entry. Entries naming a missing bus
// still succeed, matching the provider's fire-and-forget intake.
func (s *Service) PutEvents(entries []PutEventsEntry) []PutEventsResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	results := make([]PutEventsResult, len(entries))
	for i := range entries {
		results[i] = PutEventsResult{EventId: ident.New()}
	}
	return results
}

func (s *Service) PutRule(busName, ruleName, eventPattern, scheduleExpression, state, description string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	bus, err := s.bus(busName)
	if err != nil {
		return "", err
	}
	if state == "" {
		state = "ENABLED"
	}

	rule, ok := bus.Rules[ruleName]
	if !ok {
		rule = &Rule{
			Name:         ruleName,
			ARN:          arn.New("events", s.region, s.accountID, "rule/"+bus.Name+"/"+ruleName),
			EventBusName: bus.Name,
			Targets:      make(map[string]Target),
		}
		bus.Rules[ruleName] = rule
	}
	rule.EventPattern = eventPattern
	rule.ScheduleExpression = scheduleExpression
	rule.State = state
	rule.Description = description
	return rule.ARN, nil
}

func (s *Service) DeleteRule(busName, ruleName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	bus, err := s.bus(busName)
	if err != nil {
		return err
	}
	delete(bus.Rules, ruleName)
	return nil
}

func (s *Service) DescribeRule(busName, ruleName string) (*Rule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	bus, err := s.bus(busName)
	if err != nil {
		return nil, err
	}
	rule, ok := bus.Rules[ruleName]
	if !ok {
		return nil, errResourceNotFound(fmt.Sprintf("Rule %s does not exist.", ruleName))
	}
	return rule, nil
}

func (s *Service) ListRules(busName, prefix string) ([]*Rule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	bus, err := s.bus(busName)
	if err != nil {
		return nil, err
	}
	var rules []*Rule
	for name, rule := range bus.Rules {
		if prefix == "" || strings.HasPrefix(name, prefix) {
			rules = append(rules, rule)
		}
	}
	sort.Slice(rules, func(i, j int) bool { return rules[i].Name < rules[j].Name })
	return rules, nil
}

func (s *Service) PutTargets(busName, ruleName string, targets []Target) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	bus, err := s.bus(busName)
	if err != nil {
		return err
	}
	rule, ok := bus.Rules[ruleName]
	if !ok {
		return errResourceNotFound(fmt.Sprintf("Rule %s does not exist.", ruleName))
	}
	for _, target := range targets {
		rule.Targets[target.Id] = target
	}
	return nil
}

func (s *Service) RemoveTargets(busName, ruleName string, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	bus, err := s.bus(busName)
	if err != nil {
		return err
	}
	rule, ok := bus.Rules[ruleName]
	if !ok {
		return errResourceNotFound(fmt.Sprintf("Rule %s does not exist.", ruleName))
	}
	for _, id := range ids {
		delete(rule.Targets, id)
	}
	return nil
}

func (s *Service) ListTargetsByRule(busName, ruleName string) ([]Target, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	bus, err := s.bus(busName)
	if err != nil {
		return nil, err
	}
	rule, ok := bus.Rules[ruleName]
	if !ok {
		return nil, errResourceNotFound(fmt.Sprintf("Rule %s does not exist.", ruleName))
	}
	targets := make([]Target, 0, len(rule.Targets))
	for _, target := range rule.Targets {
		targets = append(targets, target)
	}
	sort.Slice(targets, func(i, j int) bool { return targets[i].Id < targets[j].Id })
	return targets, nil
}

func (s *Service) TagResource(resourceARN string, tags map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	bus, err := s.busByARN(resourceARN)
	if err != nil {
		return err
	}
	for k, v := range tags {
		bus.Tags[k] = v
	}
	return nil
}

func (s *Service) UntagResource(resourceARN string, tagKeys []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	bus, err := s.busByARN(resourceARN)
	if err != nil {
		return err
	}
	for _, k := range tagKeys {
		delete(bus.Tags, k)
	}
	return nil
}

func (s *Service) ListTagsForResource(resourceARN string) (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	bus, err := s.busByARN(resourceARN)
	if err != nil {
		return nil, err
	}
	tags := make(map[string]string, len(bus.Tags))
	for k, v := range bus.Tags {
		tags[k] = v
	}
	return tags, nil
}

func (s *Service) busByARN(resourceARN string) (*EventBus, error) {
	for _, bus := range s.buses {
		if bus.ARN == resourceARN {
			return bus, nil
		}
	}
	return nil, errResourceNotFound(fmt.Sprintf("Resource %s does not exist.", resourceARN))
}
