// Package lambda implements the function service registry: functions,
// versions, aliases, event-source mappings and echo invocation.
package lambda

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/nimbuslocal/nimbus/internal/arn"
	"github.com/nimbuslocal/nimbus/internal/awserr"
	"github.com/nimbuslocal/nimbus/internal/ident"
)

func errResourceNotFound(msg string) *awserr.Error {
	return awserr.New("ResourceNotFoundException", http.StatusNotFound, msg)
}

func errResourceConflict(msg string) *awserr.Error {
	return awserr.New("ResourceConflictException", http.StatusConflict, msg)
}

func errInvalidParameter(msg string) *awserr.Error {
	return awserr.New("InvalidParameterValueException", http.StatusBadRequest, msg)
}

type FunctionConfiguration struct {
	FunctionName string            `json:"FunctionName"`
	FunctionArn  string            `json:"FunctionArn"`
	Runtime      string            `json:"Runtime,omitempty"`
	Role         string            `json:"Role,omitempty"`
	Handler      string            `json:"Handler,omitempty"`
	Description  string            `json:"Description,omitempty"`
	Timeout      int               `json:"Timeout"`
	MemorySize   int               `json:"MemorySize"`
	CodeSize     int64             `json:"CodeSize"`
	CodeSha256   string            `json:"CodeSha256,omitempty"`
	Version      string            `json:"Version"`
	LastModified string            `json:"LastModified"`
	State        string            `json:"State"`
	Environment  map[string]any    `json:"Environment,omitempty"`
	Tags         map[string]string `json:"-"`
}

type Function struct {
	Configuration FunctionConfiguration
	Code          []byte
	Versions      []FunctionConfiguration
	Tags          map[string]string
	Policy        map[string]json.RawMessage
}

type Alias struct {
	AliasArn        string `json:"AliasArn"`
	Name            string `json:"Name"`
	FunctionVersion string `json:"FunctionVersion"`
	Description     string `json:"Description,omitempty"`
}

type EventSourceMapping struct {
	UUID           string `json:"UUID"`
	EventSourceArn string `json:"EventSourceArn"`
	FunctionArn    string `json:"FunctionArn"`
	State          string `json:"State"`
	BatchSize      int    `json:"BatchSize"`
	Enabled        bool   `json:"-"`
}

// Service is the function registry guarded by one exclusive lock.
type Service struct {
	mu        sync.Mutex
	functions map[string]*Function
	aliases   map[string]map[string]*Alias
	mappings  map[string]*EventSourceMapping

	accountID string
	region    string
}

func New(accountID, region string) *Service {
	return &Service{
		functions: make(map[string]*Function),
		aliases:   make(map[string]map[string]*Alias),
		mappings:  make(map[string]*EventSourceMapping),
		accountID: accountID,
		region:    region,
	}
}

func lastModified() string {
	return time.Now().UTC().Format("2006-01-02T15:04:05.000+0000")
}

func (s *Service) CreateFunction(name, runtime, role, handler, description string, timeout, memorySize int, code []byte, environment map[string]any) (*FunctionConfiguration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if name == "" {
		return nil, errInvalidParameter("FunctionName is required")
	}
	if _, exists := s.functions[name]; exists {
		return nil, errResourceConflict(fmt.Sprintf("Function already exist: %s", name))
	}
	if timeout <= 0 {
		timeout = 3
	}
	if memorySize <= 0 {
		memorySize = 128
	}

	cfg := FunctionConfiguration{
		FunctionName: name,
		FunctionArn:  arn.New("lambda", s.region, s.accountID, "function:"+name),
		Runtime:      runtime,
		Role:         role,
		Handler:      handler,
		Description:  description,
		Timeout:      timeout,
		MemorySize:   memorySize,
		CodeSize:     int64(len(code)),
		CodeSha256:   ident.SHA256Hex(code),
		Version:      "$LATEST",
		LastModified: lastModified(),
		State:        "Active",
		Environment:  environment,
	}

	s.functions[name] = &Function{
		Configuration: cfg,
		Code:          code,
		Tags:          make(map[string]string),
		Policy:        make(map[string]json.RawMessage),
	}
	return &cfg, nil
}

func (s *Service) GetFunction(name string) (*Function, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.function(name)
}

func (s *Service) function(name string) (*Function, error) {
	fn, ok := s.functions[name]
	if !ok {
		return nil, errResourceNotFound(fmt.Sprintf("Function not found: %s", name))
	}
	return fn, nil
}

func (s *Service) ListFunctions() []FunctionConfiguration {
	s.mu.Lock()
	defer s.mu.Unlock()

	configs := make([]FunctionConfiguration, 0, len(s.functions))
	for _, fn := range s.functions {
		configs = append(configs, fn.Configuration)
	}
	sort.Slice(configs, func(i, j int) bool {
		return configs[i].FunctionName < configs[j].FunctionName
	})
	return configs
}

func (s *Service) DeleteFunction(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.functions[name]; !ok {
		return errResourceNotFound(fmt.Sprintf("Function not found: %s", name))
	}
	delete(s.functions, name)
	delete(s.aliases, name)
	return nil
}

func (s *Service) UpdateFunctionCode(name string, code []byte) (*FunctionConfiguration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	fn, err := s.function(name)
	if err != nil {
		return nil, err
	}
	fn.Code = code
	fn.Configuration.CodeSize = int64(len(code))
	fn.Configuration.CodeSha256 = ident.SHA256Hex(code)
	fn.Configuration.LastModified = lastModified()
	cfg := fn.Configuration
	return &cfg, nil
}

func (s *Service) UpdateFunctionConfiguration(name string, update func(*FunctionConfiguration)) (*FunctionConfiguration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	fn, err := s.function(name)
	if err != nil {
		return nil, err
	}
	update(&fn.Configuration)
	fn.Configuration.LastModified = lastModified()
	cfg := fn.Configuration
	return &cfg, nil
}

// Invoke checks that the function exists and echoes the payload back, the
// way the emulator's canned runtime responds. No invocation record is kept.
func (s *Service) Invoke(name string, payload []byte) ([]byte, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.function(name); err != nil {
		return nil, 0, err
	}
	if len(payload) == 0 {
		payload = []byte("null")
	}
	return payload, http.StatusOK, nil
}

func (s *Service) PublishVersion(name string) (*FunctionConfiguration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	fn, err := s.function(name)
	if err != nil {
		return nil, err
	}
	version := fn.Configuration
	version.Version = strconv.Itoa(len(fn.Versions) + 1)
	version.FunctionArn = fn.Configuration.FunctionArn + ":" + version.Version
	fn.Versions = append(fn.Versions, version)
	return &version, nil
}

func (s *Service) ListVersions(name string) ([]FunctionConfiguration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	fn, err := s.function(name)
	if err != nil {
		return nil, err
	}
	versions := []FunctionConfiguration{fn.Configuration}
	versions = append(versions, fn.Versions...)
	return versions, nil
}

func (s *Service) CreateAlias(functionName, aliasName, functionVersion, description string) (*Alias, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	fn, err := s.function(functionName)
	if err != nil {
		return nil, err
	}
	if s.aliases[functionName] == nil {
		s.aliases[functionName] = make(map[string]*Alias)
	}
	if _, exists := s.aliases[functionName][aliasName]; exists {
		return nil, errResourceConflict(fmt.Sprintf("Alias already exists: %s", aliasName))
	}

	alias := &Alias{
		AliasArn:        fn.Configuration.FunctionArn + ":" + aliasName,
		Name:            aliasName,
		FunctionVersion: functionVersion,
		Description:     description,
	}
	s.aliases[functionName][aliasName] = alias
	return alias, nil
}

func (s *Service) GetAlias(functionName, aliasName string) (*Alias, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	alias, ok := s.aliases[functionName][aliasName]
	if !ok {
		return nil, errResourceNotFound(fmt.Sprintf("Alias not found: %s", aliasName))
	}
	return alias, nil
}

func (s *Service) DeleteAlias(functionName, aliasName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.aliases[functionName], aliasName)
	return nil
}

func (s *Service) ListAliases(functionName string) ([]*Alias, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.function(functionName); err != nil {
		return nil, err
	}
	var aliases []*Alias
	for _, alias := range s.aliases[functionName] {
		aliases = append(aliases, alias)
	}
	sort.Slice(aliases, func(i, j int) bool { return aliases[i].Name < aliases[j].Name })
	return aliases, nil
}

func (s *Service) CreateEventSourceMapping(eventSourceARN, functionName string, batchSize int, enabled bool) (*EventSourceMapping, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	fn, err := s.function(functionName)
	if err != nil {
		return nil, err
	}
	if batchSize <= 0 {
		batchSize = 10
	}

	state := "Enabled"
	if !enabled {
		state = "Disabled"
	}
	mapping := &EventSourceMapping{
		UUID:           ident.New(),
		EventSourceArn: eventSourceARN,
		FunctionArn:    fn.Configuration.FunctionArn,
		State:          state,
		BatchSize:      batchSize,
		Enabled:        enabled,
	}
	s.mappings[mapping.UUID] = mapping
	return mapping, nil
}

func (s *Service) DeleteEventSourceMapping(uuid string) (*EventSourceMapping, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	mapping, ok := s.mappings[uuid]
	if !ok {
		return nil, errResourceNotFound(fmt.Sprintf("Event source mapping not found: %s", uuid))
	}
	delete(s.mappings, uuid)
	mapping.State = "Deleting"
	return mapping, nil
}

func (s *Service) ListEventSourceMappings(functionName string) []*EventSourceMapping {
	s.mu.Lock()
	defer s.mu.Unlock()

	var mappings []*EventSourceMapping
	for _, m := range s.mappings {
		if functionName == "" || arn.Resource(m.FunctionArn) == functionName {
			mappings = append(mappings, m)
		}
	}
	sort.Slice(mappings, func(i, j int) bool { return mappings[i].UUID < mappings[j].UUID })
	return mappings
}

func (s *Service) AddPermission(functionName, statementID string, statement json.RawMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	fn, err := s.function(functionName)
	if err != nil {
		return err
	}
	if _, exists := fn.Policy[statementID]; exists {
		return errResourceConflict(fmt.Sprintf("Statement already exists: %s", statementID))
	}
	fn.Policy[statementID] = statement
	return nil
}

func (s *Service) RemovePermission(functionName, statementID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	fn, err := s.function(functionName)
	if err != nil {
		return err
	}
	if _, ok := fn.Policy[statementID]; !ok {
		return errResourceNotFound(fmt.Sprintf("Statement not found: %s", statementID))
	}
	delete(fn.Policy, statementID)
	return nil
}

func (s *Service) GetPolicy(functionName string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	fn, err := s.function(functionName)
	if err != nil {
		return "", err
	}
	if len(fn.Policy) == 0 {
		return "", errResourceNotFound("The resource you requested does not exist.")
	}
	statements := make([]json.RawMessage, 0, len(fn.Policy))
	for _, st := range fn.Policy {
		statements = append(statements, st)
	}
	policy, _ := json.Marshal(map[string]any{"Version": "2012-10-17", "Statement": statements})
	return string(policy), nil
}

func (s *Service) TagResource(resourceARN string, tags map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	fn, err := s.function(arn.Resource(resourceARN))
	if err != nil {
		return err
	}
	for k, v := range tags {
		fn.Tags[k] = v
	}
	return nil
}

func (s *Service) UntagResource(resourceARN string, tagKeys []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	fn, err := s.function(arn.Resource(resourceARN))
	if err != nil {
		return err
	}
	for _, k := range tagKeys {
		delete(fn.Tags, k)
	}
	return nil
}

func (s *Service) ListTags(resourceARN string) (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	fn, err := s.function(arn.Resource(resourceARN))
	if err != nil {
		return nil, err
	}
	tags := make(map[string]string, len(fn.Tags))
	for k, v := range fn.Tags {
		tags[k] = v
	}
	return tags, nil
}
