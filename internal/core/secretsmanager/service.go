// Package secretsmanager implements the secret store: versioned secrets
// with stage labels and soft deletion with a recovery window.
package secretsmanager

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

func errResourceExists(msg string) *awserr.Error {
	return awserr.New("ResourceExistsException", http.StatusBadRequest, msg)
}

func errInvalidRequest(msg string) *awserr.Error {
	return awserr.New("InvalidRequestException", http.StatusBadRequest, msg)
}

type SecretVersion struct {
	VersionID    string
	SecretString string
	SecretBinary []byte
	Stages       []string
	CreatedAt    float64
}

type Secret struct {
	Name        string
	ARN         string
	Description string
	KmsKeyID    string
	Versions    []*SecretVersion
	Tags        map[string]string
	CreatedAt   float64
	DeletedAt   *float64
}

// Service is the secret registry guarded by one exclusive lock.
type Service struct {
	mu      sync.Mutex
	secrets map[string]*Secret

	accountID string
	region    string
}

func New(accountID, region string) *Service {
	return &Service{
		secrets:   make(map[string]*Secret),
		accountID: accountID,
		region:    region,
	}
}

func epoch() float64 {
	return float64(time.Now().UnixNano()) / 1e9
}

// resolve accepts a secret name or ARN.
func (s *Service) resolve(id string) (*Secret, error) {
	if secret, ok := s.secrets[id]; ok {
		return secret, nil
	}
	for _, secret := range s.secrets {
		if secret.ARN == id {
			return secret, nil
		}
	}
	return nil, errResourceNotFound("Secrets Manager can't find the specified secret.")
}

func (s *Service) CreateSecret(name, description, secretString string, secretBinary []byte, kmsKeyID string, tags map[string]string) (*Secret, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.secrets[name]; exists {
		return nil, "", errResourceExists(fmt.Sprintf("The secret %s already exists.", name))
	}

	version := &SecretVersion{
		VersionID:    ident.New(),
		SecretString: secretString,
		SecretBinary: secretBinary,
		Stages:       []string{"AWSCURRENT"},
		CreatedAt:    epoch(),
	}
	secret := &Secret{
		Name:        name,
		ARN:         arn.New("secretsmanager", s.region, s.accountID, "secret:"+name+"-"+ident.New()[:6]),
		Description: description,
		KmsKeyID:    kmsKeyID,
		Versions:    []*SecretVersion{version},
		Tags:        make(map[string]string),
		CreatedAt:   epoch(),
	}
	for k, v := range tags {
		secret.Tags[k] = v
	}
	s.secrets[name] = secret
	return secret, version.VersionID, nil
}

// GetSecretValue returns the version carrying the requested stage
// (AWSCURRENT when unspecified).
func (s *Service) GetSecretValue(id, versionID, versionStage string) (*Secret, *SecretVersion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	secret, err := s.resolve(id)
	if err != nil {
		return nil, nil, err
	}
	if secret.DeletedAt != nil {
		return nil, nil, errInvalidRequest("You can't perform this operation on the secret because it was marked for deletion.")
	}

	if versionStage == "" && versionID == "" {
		versionStage = "AWSCURRENT"
	}
	for _, version := range secret.Versions {
		if versionID != "" && version.VersionID == versionID {
			return secret, version, nil
		}
		for _, stage := range version.Stages {
			if stage == versionStage {
				return secret, version, nil
			}
		}
	}
	return nil, nil, errResourceNotFound("Secrets Manager can't find the specified secret value.")
}

// PutSecretValue installs a new AWSCURRENT version, demoting the previous
// one to AWSPREVIOUS.
func (s *Service) PutSecretValue(id, secretString string, secretBinary []byte) (*Secret, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	secret, err := s.resolve(id)
	if err != nil {
		return nil, "", err
	}
	versionID := putValueLocked(secret, secretString, secretBinary)
	return secret, versionID, nil
}

func putValueLocked(secret *Secret, secretString string, secretBinary []byte) string {
	for _, version := range secret.Versions {
		stages := version.Stages[:0]
		for _, stage := range version.Stages {
			if stage == "AWSCURRENT" {
				stages = append(stages, "AWSPREVIOUS")
			} else if stage != "AWSPREVIOUS" {
				stages = append(stages, stage)
			}
		}
		version.Stages = stages
	}

	version := &SecretVersion{
		VersionID:    ident.New(),
		SecretString: secretString,
		SecretBinary: secretBinary,
		Stages:       []string{"AWSCURRENT"},
		CreatedAt:    epoch(),
	}
	secret.Versions = append(secret.Versions, version)
	return version.VersionID
}

func (s *Service) DescribeSecret(id string) (*Secret, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resolve(id)
}

func (s *Service) ListSecrets() []*Secret {
	s.mu.Lock()
	defer s.mu.Unlock()

	secrets := make([]*Secret, 0, len(s.secrets))
	for _, secret := range s.secrets {
		secrets = append(secrets, secret)
	}
	sort.Slice(secrets, func(i, j int) bool { return secrets[i].Name < secrets[j].Name })
	return secrets
}

func (s *Service) UpdateSecret(id, description, secretString string, secretBinary []byte, kmsKeyID string) (*Secret, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	secret, err := s.resolve(id)
	if err != nil {
		return nil, err
	}
	if description != "" {
		secret.Description = description
	}
	if kmsKeyID != "" {
		secret.KmsKeyID = kmsKeyID
	}
	if secretString != "" || secretBinary != nil {
		putValueLocked(secret, secretString, secretBinary)
	}
	return secret, nil
}

// DeleteSecret marks the secret for deletion. Forced deletion removes it
// immediately.
func (s *Service) DeleteSecret(id string, recoveryWindowDays int, force bool) (*Secret, float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	secret, err := s.resolve(id)
	if err != nil {
		return nil, 0, err
	}
	if force {
		delete(s.secrets, secret.Name)
		return secret, epoch(), nil
	}
	if recoveryWindowDays == 0 {
		recoveryWindowDays = 30
	}
	deletionDate := epoch() + float64(recoveryWindowDays)*86400
	secret.DeletedAt = &deletionDate
	return secret, deletionDate, nil
}

func (s *Service) RestoreSecret(id string) (*Secret, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	secret, err := s.resolve(id)
	if err != nil {
		return nil, err
	}
	secret.DeletedAt = nil
	return secret, nil
}

func (s *Service) ListSecretVersionIDs(id string) (*Secret, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resolve(id)
}

func (s *Service) TagResource(id string, tags map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	secret, err := s.resolve(id)
	if err != nil {
		return err
	}
	for k, v := range tags {
		secret.Tags[k] = v
	}
	return nil
}

func (s *Service) UntagResource(id string, tagKeys []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	secret, err := s.resolve(id)
	if err != nil {
		return err
	}
	for _, k := range tagKeys {
		delete(secret.Tags, k)
	}
	return nil
}
