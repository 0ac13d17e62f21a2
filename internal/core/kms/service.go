// Package kms implements the key management service. Cryptographic
// operations are simulated: a ciphertext is the base64 form of
// "<keyID>:<plaintext-b64>", which decrypt reverses.
package kms

import (
	"crypto/rand"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/nimbuslocal/nimbus/internal/arn"
	"github.com/nimbuslocal/nimbus/internal/awserr"
	"github.com/nimbuslocal/nimbus/internal/ident"
)

func errNotFound(msg string) *awserr.Error {
	return awserr.New("NotFoundException", http.StatusBadRequest, msg)
}

func errDisabled(msg string) *awserr.Error {
	return awserr.New("DisabledException", http.StatusBadRequest, msg)
}

func errInvalidCiphertext(msg string) *awserr.Error {
	return awserr.New("InvalidCiphertextException", http.StatusBadRequest, msg)
}

func errAlreadyExists(msg string) *awserr.Error {
	return awserr.New("AlreadyExistsException", http.StatusBadRequest, msg)
}

type KeyMetadata struct {
	KeyId        string   `json:"KeyId"`
	Arn          string   `json:"Arn"`
	Description  string   `json:"Description"`
	Enabled      bool     `json:"Enabled"`
	KeyState     string   `json:"KeyState"`
	KeyUsage     string   `json:"KeyUsage"`
	KeySpec      string   `json:"KeySpec"`
	CreationDate float64  `json:"CreationDate"`
	DeletionDate *float64 `json:"DeletionDate,omitempty"`
	AWSAccountId string   `json:"AWSAccountId"`
}

type Key struct {
	Metadata KeyMetadata
	Policy   string
	Tags     map[string]string
}

// Service is the key registry guarded by one exclusive lock.
type Service struct {
	mu      sync.Mutex
	keys    map[string]*Key
	aliases map[string]string

	accountID string
	region    string
}

func New(accountID, region string) *Service {
	return &Service{
		keys:      make(map[string]*Key),
		aliases:   make(map[string]string),
		accountID: accountID,
		region:    region,
	}
}

func epoch() float64 {
	return float64(time.Now().UnixNano()) / 1e9
}

// resolveKeyID accepts a key id, key ARN, alias name or alias ARN.
func (s *Service) resolveKeyID(id string) (string, bool) {
	if _, ok := s.keys[id]; ok {
		return id, true
	}
	if strings.HasPrefix(id, "arn:") {
		resource := id[strings.LastIndex(id, ":")+1:]
		if keyID := strings.TrimPrefix(resource, "key/"); keyID != resource {
			if _, ok := s.keys[keyID]; ok {
				return keyID, true
			}
		}
		if alias := strings.TrimPrefix(resource, "alias/"); alias != resource {
			id = "alias/" + alias
		}
	}
	if keyID, ok := s.aliases[id]; ok {
		return keyID, true
	}
	return "", false
}

func (s *Service) CreateKey(description, keyUsage, keySpec, policy string, tags map[string]string) *KeyMetadata {
	s.mu.Lock()
	defer s.mu.Unlock()

	if keyUsage == "" {
		keyUsage = "ENCRYPT_DECRYPT"
	}
	if keySpec == "" {
		keySpec = "SYMMETRIC_DEFAULT"
	}

	keyID := ident.New()
	key := &Key{
		Metadata: KeyMetadata{
			KeyId:        keyID,
			Arn:          arn.New("kms", s.region, s.accountID, "key/"+keyID),
			Description:  description,
			Enabled:      true,
			KeyState:     "Enabled",
			KeyUsage:     keyUsage,
			KeySpec:      keySpec,
			CreationDate: epoch(),
			AWSAccountId: s.accountID,
		},
		Policy: policy,
		Tags:   make(map[string]string),
	}
	for k, v := range tags {
		key.Tags[k] = v
	}
	s.keys[keyID] = key

	metadata := key.Metadata
	return &metadata
}

func (s *Service) DescribeKey(id string) (*KeyMetadata, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	keyID, ok := s.resolveKeyID(id)
	if !ok {
		return nil, errNotFound(fmt.Sprintf("Invalid keyId %s", id))
	}
	metadata := s.keys[keyID].Metadata
	return &metadata, nil
}

func (s *Service) ListKeys() []KeyMetadata {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys := make([]KeyMetadata, 0, len(s.keys))
	for _, key := range s.keys {
		keys = append(keys, key.Metadata)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].KeyId < keys[j].KeyId })
	return keys
}

func (s *Service) EnableKey(id string) error {
	return s.setEnabled(id, true)
}

func (s *Service) DisableKey(id string) error {
	return s.setEnabled(id, false)
}

func (s *Service) setEnabled(id string, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	keyID, ok := s.resolveKeyID(id)
	if !ok {
		return errNotFound(fmt.Sprintf("Invalid keyId %s", id))
	}
	key := s.keys[keyID]
	key.Metadata.Enabled = enabled
	if enabled {
		key.Metadata.KeyState = "Enabled"
	} else {
		key.Metadata.KeyState = "Disabled"
	}
	return nil
}

func (s *Service) ScheduleKeyDeletion(id string, pendingWindowDays int) (*KeyMetadata, float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	keyID, ok := s.resolveKeyID(id)
	if !ok {
		return nil, 0, errNotFound(fmt.Sprintf("Invalid keyId %s", id))
	}
	if pendingWindowDays == 0 {
		pendingWindowDays = 30
	}
	key := s.keys[keyID]
	deletionDate := epoch() + float64(pendingWindowDays)*86400
	key.Metadata.KeyState = "PendingDeletion"
	key.Metadata.Enabled = false
	key.Metadata.DeletionDate = &deletionDate
	metadata := key.Metadata
	return &metadata, deletionDate, nil
}

func (s *Service) CancelKeyDeletion(id string) (*KeyMetadata, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	keyID, ok := s.resolveKeyID(id)
	if !ok {
		return nil, errNotFound(fmt.Sprintf("Invalid keyId %s", id))
	}
	key := s.keys[keyID]
	key.Metadata.KeyState = "Disabled"
	key.Metadata.DeletionDate = nil
	metadata := key.Metadata
	return &metadata, nil
}

// Encrypt simulates encryption with a marker-prefix ciphertext.
func (s *Service) Encrypt(id, plaintextB64 string) (string, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	keyID, ok := s.resolveKeyID(id)
	if !ok {
		return "", "", errNotFound(fmt.Sprintf("Invalid keyId %s", id))
	}
	key := s.keys[keyID]
	if !key.Metadata.Enabled {
		return "", "", errDisabled(fmt.Sprintf("KMS key %s is disabled", keyID))
	}

	ciphertext := ident.B64Encode([]byte(keyID + ":" + plaintextB64))
	return key.Metadata.Arn, ciphertext, nil
}

// Decrypt reverses the marker-prefix simulation.
func (s *Service) Decrypt(ciphertextB64, explicitKeyID string) (string, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	decoded, err := ident.B64Decode(ciphertextB64)
	if err != nil {
		return "", "", errInvalidCiphertext("Invalid ciphertext")
	}
	keyID, plaintextB64, found := strings.Cut(string(decoded), ":")
	if !found {
		return "", "", errInvalidCiphertext("Malformed ciphertext")
	}

	if explicitKeyID != "" {
		resolved, ok := s.resolveKeyID(explicitKeyID)
		if !ok {
			return "", "", errNotFound(fmt.Sprintf("Invalid keyId %s", explicitKeyID))
		}
		keyID = resolved
	}
	key, ok := s.keys[keyID]
	if !ok {
		return "", "", errInvalidCiphertext("Ciphertext refers to an unknown key")
	}
	if !key.Metadata.Enabled {
		return "", "", errDisabled(fmt.Sprintf("KMS key %s is disabled", keyID))
	}
	return key.Metadata.Arn, plaintextB64, nil
}

// GenerateDataKey mints random key material and its simulated ciphertext.
func (s *Service) GenerateDataKey(id string, numberOfBytes int, includePlaintext bool) (string, string, string, error) {
	if numberOfBytes <= 0 {
		numberOfBytes = 32
	}
	material := make([]byte, numberOfBytes)
	if _, err := rand.Read(material); err != nil {
		return "", "", "", fmt.Errorf("generating key material: %w", err)
	}
	plaintextB64 := ident.B64Encode(material)

	keyARN, ciphertext, err := s.Encrypt(id, plaintextB64)
	if err != nil {
		return "", "", "", err
	}
	if !includePlaintext {
		plaintextB64 = ""
	}
	return keyARN, plaintextB64, ciphertext, nil
}

func (s *Service) GenerateRandom(numberOfBytes int) (string, error) {
	if numberOfBytes <= 0 || numberOfBytes > 1024 {
		numberOfBytes = 32
	}
	buf := make([]byte, numberOfBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating random bytes: %w", err)
	}
	return ident.B64Encode(buf), nil
}

// Sign produces a digest-based simulated signature; Verify recomputes it.
func (s *Service) Sign(id, messageB64, signingAlgorithm string) (string, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	keyID, ok := s.resolveKeyID(id)
	if !ok {
		return "", "", errNotFound(fmt.Sprintf("Invalid keyId %s", id))
	}
	key := s.keys[keyID]
	if !key.Metadata.Enabled {
		return "", "", errDisabled(fmt.Sprintf("KMS key %s is disabled", keyID))
	}
	signature := ident.B64Encode([]byte(ident.SHA256Hex([]byte(keyID + ":" + messageB64 + ":" + signingAlgorithm))))
	return key.Metadata.Arn, signature, nil
}

func (s *Service) Verify(id, messageB64, signatureB64, signingAlgorithm string) (bool, error) {
	_, expected, err := s.Sign(id, messageB64, signingAlgorithm)
	if err != nil {
		return false, err
	}
	return expected == signatureB64, nil
}

// --- Aliases ---

func (s *Service) CreateAlias(aliasName, targetKeyID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !strings.HasPrefix(aliasName, "alias/") {
		return awserr.New("ValidationException", http.StatusBadRequest, "Alias must start with alias/")
	}
	if _, exists := s.aliases[aliasName]; exists {
		return errAlreadyExists(fmt.Sprintf("Alias %s already exists", aliasName))
	}
	keyID, ok := s.resolveKeyID(targetKeyID)
	if !ok {
		return errNotFound(fmt.Sprintf("Invalid keyId %s", targetKeyID))
	}
	s.aliases[aliasName] = keyID
	return nil
}

func (s *Service) DeleteAlias(aliasName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.aliases[aliasName]; !ok {
		return errNotFound(fmt.Sprintf("Alias %s not found", aliasName))
	}
	delete(s.aliases, aliasName)
	return nil
}

type AliasEntry struct {
	AliasName   string `json:"AliasName"`
	AliasArn    string `json:"AliasArn"`
	TargetKeyId string `json:"TargetKeyId"`
}

func (s *Service) ListAliases() []AliasEntry {
	s.mu.Lock()
	defer s.mu.Unlock()

	aliases := make([]AliasEntry, 0, len(s.aliases))
	for name, keyID := range s.aliases {
		aliases = append(aliases, AliasEntry{
			AliasName:   name,
			AliasArn:    arn.New("kms", s.region, s.accountID, name),
			TargetKeyId: keyID,
		})
	}
	sort.Slice(aliases, func(i, j int) bool { return aliases[i].AliasName < aliases[j].AliasName })
	return aliases
}

// --- Policies and tags ---

func (s *Service) GetKeyPolicy(id string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	keyID, ok := s.resolveKeyID(id)
	if !ok {
		return "", errNotFound(fmt.Sprintf("Invalid keyId %s", id))
	}
	policy := s.keys[keyID].Policy
	if policy == "" {
		policy = `{"Version":"2012-10-17","Statement":[]}`
	}
	return policy, nil
}

func (s *Service) PutKeyPolicy(id, policy string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	keyID, ok := s.resolveKeyID(id)
	if !ok {
		return errNotFound(fmt.Sprintf("Invalid keyId %s", id))
	}
	s.keys[keyID].Policy = policy
	return nil
}

func (s *Service) TagResource(id string, tags map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	keyID, ok := s.resolveKeyID(id)
	if !ok {
		return errNotFound(fmt.Sprintf("Invalid keyId %s", id))
	}
	for k, v := range tags {
		s.keys[keyID].Tags[k] = v
	}
	return nil
}

func (s *Service) UntagResource(id string, tagKeys []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	keyID, ok := s.resolveKeyID(id)
	if !ok {
		return errNotFound(fmt.Sprintf("Invalid keyId %s", id))
	}
	for _, k := range tagKeys {
		delete(s.keys[keyID].Tags, k)
	}
	return nil
}

func (s *Service) ListResourceTags(id string) (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	keyID, ok := s.resolveKeyID(id)
	if !ok {
		return nil, errNotFound(fmt.Sprintf("Invalid keyId %s", id))
	}
	tags := make(map[string]string, len(s.keys[keyID].Tags))
	for k, v := range s.keys[keyID].Tags {
		tags[k] = v
	}
	return tags, nil
}
