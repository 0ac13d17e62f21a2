// Package ssm implements the parameter store.
package ssm

import (
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/nimbuslocal/nimbus/internal/arn"
	"github.com/nimbuslocal/nimbus/internal/awserr"
)

func errParameterNotFound(msg string) *awserr.Error {
	return awserr.New("ParameterNotFound", http.StatusBadRequest, msg)
}

func errParameterAlreadyExists(msg string) *awserr.Error {
	return awserr.New("ParameterAlreadyExists", http.StatusBadRequest, msg)
}

type Parameter struct {
	Name             string
	Type             string
	Value            string
	Version          int64
	Description      string
	KeyID            string
	LastModifiedDate float64
	Tags             map[string]string
}

// Service is the parameter registry guarded by one exclusive lock.
type Service struct {
	mu         sync.Mutex
	parameters map[string]*Parameter

	accountID string
	region    string
}

func New(accountID, region string) *Service {
	return &Service{
		parameters: make(map[string]*Parameter),
		accountID:  accountID,
		region:     region,
	}
}

func epoch() float64 {
	return float64(time.Now().UnixNano()) / 1e9
}

// PutParameter creates or, with overwrite, updates a parameter, bumping
// its version.
func (s *Service) PutParameter(name, paramType, value, description, keyID string, overwrite bool, tags map[string]string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if paramType == "" {
		paramType = "String"
	}

	existing, exists := s.parameters[name]
	if exists && !overwrite {
		return 0, errParameterAlreadyExists(fmt.Sprintf("Parameter %s already exists.", name))
	}

	if exists {
		existing.Type = paramType
		existing.Value = value
		existing.Version++
		if description != "" {
			existing.Description = description
		}
		existing.LastModifiedDate = epoch()
		return existing.Version, nil
	}

	param := &Parameter{
		Name:             name,
		Type:             paramType,
		Value:            value,
		Version:          1,
		Description:      description,
		KeyID:            keyID,
		LastModifiedDate: epoch(),
		Tags:             make(map[string]string),
	}
	for k, v := range tags {
		param.Tags[k] = v
	}
	s.parameters[name] = param
	return 1, nil
}

func (s *Service) GetParameter(name string) (*Parameter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	param, ok := s.parameters[name]
	if !ok {
		return nil, errParameterNotFound(fmt.Sprintf("Parameter %s not found.", name))
	}
	return param, nil
}

// GetParameters splits requested names into found parameters and invalid
// names.
func (s *Service) GetParameters(names []string) ([]*Parameter, []string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var found []*Parameter
	var invalid []string
	for _, name := range names {
		if param, ok := s.parameters[name]; ok {
			found = append(found, param)
		} else {
			invalid = append(invalid, name)
		}
	}
	return found, invalid
}

// GetParametersByPath returns parameters under a path prefix. Without
// recursion only direct children match.
func (s *Service) GetParametersByPath(path string, recursive bool) []*Parameter {
	s.mu.Lock()
	defer s.mu.Unlock()

	if path == "" {
		path = "/"
	}
	prefix := strings.TrimSuffix(path, "/") + "/"

	var params []*Parameter
	for name, param := range s.parameters {
		if !strings.HasPrefix(name, prefix) {
			continue
		}
		if !recursive && strings.Contains(name[len(prefix):], "/") {
			continue
		}
		params = append(params, param)
	}
	sort.Slice(params, func(i, j int) bool { return params[i].Name < params[j].Name })
	return params
}

func (s *Service) DeleteParameter(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.parameters[name]; !ok {
		return errParameterNotFound(fmt.Sprintf("Parameter %s not found.", name))
	}
	delete(s.parameters, name)
	return nil
}

// DeleteParameters removes each named parameter, reporting which were
// deleted and which were missing.
func (s *Service) DeleteParameters(names []string) (deleted, invalid []string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, name := range names {
		if _, ok := s.parameters[name]; ok {
			delete(s.parameters, name)
			deleted = append(deleted, name)
		} else {
			invalid = append(invalid, name)
		}
	}
	return deleted, invalid
}

func (s *Service) DescribeParameters() []*Parameter {
	s.mu.Lock()
	defer s.mu.Unlock()

	params := make([]*Parameter, 0, len(s.parameters))
	for _, param := range s.parameters {
		params = append(params, param)
	}
	sort.Slice(params, func(i, j int) bool { return params[i].Name < params[j].Name })
	return params
}

// ARN renders a parameter's resource name.
func (s *Service) ARN(name string) string {
	return arn.New("ssm", s.region, s.accountID, "parameter"+ensureLeadingSlash(name))
}

func ensureLeadingSlash(name string) string {
	if strings.HasPrefix(name, "/") {
		return name
	}
	return "/" + name
}

func (s *Service) AddTagsToResource(name string, tags map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	param, ok := s.parameters[name]
	if !ok {
		return errParameterNotFound(fmt.Sprintf("Parameter %s not found.", name))
	}
	for k, v := range tags {
		param.Tags[k] = v
	}
	return nil
}

func (s *Service) RemoveTagsFromResource(name string, tagKeys []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	param, ok := s.parameters[name]
	if !ok {
		return errParameterNotFound(fmt.Sprintf("Parameter %s not found.", name))
	}
	for _, k := range tagKeys {
		delete(param.Tags, k)
	}
	return nil
}

func (s *Service) ListTagsForResource(name string) (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	param, ok := s.parameters[name]
	if !ok {
		return nil, errParameterNotFound(fmt.Sprintf("Parameter %s not found.", name))
	}
	tags := make(map[string]string, len(param.Tags))
	for k, v := range param.Tags {
		tags[k] = v
	}
	return tags, nil
}
