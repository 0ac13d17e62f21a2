// Package stepfunctions implements the workflow engine: state machines and
// executions with a recorded event history.
package stepfunctions

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

func errStateMachineDoesNotExist(msg string) *awserr.Error {
	return awserr.New("StateMachineDoesNotExist", http.StatusBadRequest, msg)
}

func errExecutionDoesNotExist(msg string) *awserr.Error {
	return awserr.New("ExecutionDoesNotExist", http.StatusBadRequest, msg)
}

func errStateMachineAlreadyExists(msg string) *awserr.Error {
	return awserr.New("StateMachineAlreadyExists", http.StatusBadRequest, msg)
}

func errInvalidName(msg string) *awserr.Error {
	return awserr.New("InvalidName", http.StatusBadRequest, msg)
}

func errTaskDoesNotExist(msg string) *awserr.Error {
	return awserr.New("TaskDoesNotExist", http.StatusBadRequest, msg)
}

type HistoryEvent struct {
	Timestamp float64 `json:"timestamp"`
	Type      string  `json:"type"`
	Id        int64   `json:"id"`
	Details   string  `json:"-"`
}

type Execution struct {
	ARN             string
	Name            string
	StateMachineARN string
	Status          string
	Input           string
	Output          string
	StartedAt       float64
	StoppedAt       *float64
	History         []HistoryEvent
}

type StateMachine struct {
	ARN        string
	Name       string
	Definition string
	RoleARN    string
	Type       string
	CreatedAt  float64
	Tags       map[string]string
}

// Service is the workflow registry guarded by one exclusive lock.
type Service struct {
	mu         sync.Mutex
	machines   map[string]*StateMachine
	executions map[string]*Execution

	accountID string
	region    string
}

func New(accountID, region string) *Service {
	return &Service{
		machines:   make(map[string]*StateMachine),
		executions: make(map[string]*Execution),
		accountID:  accountID,
		region:     region,
	}
}

func epoch() float64 {
	return float64(time.Now().UnixNano()) / 1e9
}

func (s *Service) CreateStateMachine(name, definition, roleARN, machineType string, tags map[string]string) (string, float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if name == "" {
		return "", 0, errInvalidName("Name is required")
	}
	machineARN := arn.New("states", s.region, s.accountID, "stateMachine:"+name)
	if _, exists := s.machines[machineARN]; exists {
		return "", 0, errStateMachineAlreadyExists(fmt.Sprintf("State machine already exists: %s", name))
	}
	if machineType == "" {
		machineType = "STANDARD"
	}

	machine := &StateMachine{
		ARN:        machineARN,
		Name:       name,
		Definition: definition,
		RoleARN:    roleARN,
		Type:       machineType,
		CreatedAt:  epoch(),
		Tags:       make(map[string]string),
	}
	for k, v := range tags {
		machine.Tags[k] = v
	}
	s.machines[machineARN] = machine
	return machineARN, machine.CreatedAt, nil
}

func (s *Service) DeleteStateMachine(machineARN string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.machines, machineARN)
	return nil
}

func (s *Service) DescribeStateMachine(machineARN string) (*StateMachine, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.machine(machineARN)
}

func (s *Service) machine(machineARN string) (*StateMachine, error) {
	machine, ok := s.machines[machineARN]
	if !ok {
		return nil, errStateMachineDoesNotExist(fmt.Sprintf("State machine does not exist: %s", machineARN))
	}
	return machine, nil
}

func (s *Service) ListStateMachines() []*StateMachine {
	s.mu.Lock()
	defer s.mu.Unlock()

	machines := make([]*StateMachine, 0, len(s.machines))
	for _, machine := range s.machines {
		machines = append(machines, machine)
	}
	sort.Slice(machines, func(i, j int) bool { return machines[i].Name < machines[j].Name })
	return machines
}

// StartExecution records a RUNNING execution with an ExecutionStarted history
// event. It stays running until it is stopped or completed through a task token.
func (s *Service) StartExecution(machineARN, name, input string) (*Execution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	machine, err := s.machine(machineARN)
	if err != nil {
		return nil, err
	}
	if name == "" {
		name = ident.New()
	}
	if input == "" {
		input = "{}"
	}

	now := epoch()
	execution := &Execution{
		ARN:             arn.New("states", s.region, s.accountID, "execution:"+machine.Name+":"+name),
		Name:            name,
		StateMachineARN: machineARN,
		Status:          "RUNNING",
		Input:           input,
		StartedAt:       now,
		History: []HistoryEvent{
			{Timestamp: now, Type: "ExecutionStarted", Id: 1, Details: input},
		},
	}
	s.executions[execution.ARN] = execution
	return execution, nil
}

func (s *Service) StopExecution(executionARN, errorCode, cause string) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	execution, err := s.execution(executionARN)
	if err != nil {
		return 0, err
	}
	now := epoch()
	if execution.Status == "RUNNING" {
		execution.Status = "ABORTED"
		execution.StoppedAt = &now
		execution.History = append(execution.History, HistoryEvent{
			Timestamp: now,
			Type:      "ExecutionAborted",
			Id:        int64(len(execution.History) + 1),
			Details:   cause,
		})
	}
	return now, nil
}

func (s *Service) execution(executionARN string) (*Execution, error) {
	execution, ok := s.executions[executionARN]
	if !ok {
		return nil, errExecutionDoesNotExist(fmt.Sprintf("Execution does not exist: %s", executionARN))
	}
	return execution, nil
}

func (s *Service) DescribeExecution(executionARN string) (*Execution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.execution(executionARN)
}

func (s *Service) ListExecutions(machineARN, statusFilter string) ([]*Execution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.machine(machineARN); err != nil {
		return nil, err
	}
	var executions []*Execution
	for _, execution := range s.executions {
		if execution.StateMachineARN != machineARN {
			continue
		}
		if statusFilter != "" && execution.Status != statusFilter {
			continue
		}
		executions = append(executions, execution)
	}
	sort.Slice(executions, func(i, j int) bool {
		return executions[i].StartedAt > executions[j].StartedAt
	})
	return executions, nil
}

func (s *Service) GetExecutionHistory(executionARN string) ([]HistoryEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	execution, err := s.execution(executionARN)
	if err != nil {
		return nil, err
	}
	history := make([]HistoryEvent, len(execution.History))
	copy(history, execution.History)
	return history, nil
}

// SendTaskSuccess completes a waiting execution with the given output.
// Task tokens are execution ARNs in this emulator.
func (s *Service) SendTaskSuccess(taskToken, output string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	execution, ok := s.executions[taskToken]
	if !ok {
		return errTaskDoesNotExist(fmt.Sprintf("Task does not exist: %s", taskToken))
	}
	now := epoch()
	execution.Status = "SUCCEEDED"
	execution.Output = output
	execution.StoppedAt = &now
	execution.History = append(execution.History, HistoryEvent{
		Timestamp: now,
		Type:      "ExecutionSucceeded",
		Id:        int64(len(execution.History) + 1),
		Details:   output,
	})
	return nil
}

func (s *Service) SendTaskFailure(taskToken, errorCode, cause string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	execution, ok := s.executions[taskToken]
	if !ok {
		return errTaskDoesNotExist(fmt.Sprintf("Task does not exist: %s", taskToken))
	}
	now := epoch()
	execution.Status = "FAILED"
	execution.StoppedAt = &now
	execution.History = append(execution.History, HistoryEvent{
		Timestamp: now,
		Type:      "ExecutionFailed",
		Id:        int64(len(execution.History) + 1),
		Details:   errorCode + ": " + cause,
	})
	return nil
}

func (s *Service) SendTaskHeartbeat(taskToken string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.executions[taskToken]; !ok {
		return errTaskDoesNotExist(fmt.Sprintf("Task does not exist: %s", taskToken))
	}
	return nil
}

func (s *Service) TagResource(resourceARN string, tags map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	machine, err := s.machine(resourceARN)
	if err != nil {
		return err
	}
	for k, v := range tags {
		machine.Tags[k] = v
	}
	return nil
}

func (s *Service) UntagResource(resourceARN string, tagKeys []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	machine, err := s.machine(resourceARN)
	if err != nil {
		return err
	}
	for _, k := range tagKeys {
		delete(machine.Tags, k)
	}
	return nil
}

func (s *Service) ListTagsForResource(resourceARN string) (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	machine, err := s.machine(resourceARN)
	if err != nil {
		return nil, err
	}
	tags := make(map[string]string, len(machine.Tags))
	for k, v := range machine.Tags {
		tags[k] = v
	}
	return tags, nil
}
