// Package cognito implements the identity provider: user pools, pool
// clients, users, groups and the password auth flow. Passwords are stored
// as bcrypt hashes; successful auth mints JWT access and id tokens.
package cognito

import (
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/nimbuslocal/nimbus/internal/arn"
	"github.com/nimbuslocal/nimbus/internal/awserr"
	"github.com/nimbuslocal/nimbus/internal/ident"
	"golang.org/x/crypto/bcrypt"
)

func errResourceNotFound(msg string) *awserr.Error {
	return awserr.New("ResourceNotFoundException", http.StatusBadRequest, msg)
}

func errUserNotFound(msg string) *awserr.Error {
	return awserr.New("UserNotFoundException", http.StatusBadRequest, msg)
}

func errUsernameExists(msg string) *awserr.Error {
	return awserr.New("UsernameExistsException", http.StatusBadRequest, msg)
}

func errNotAuthorized(msg string) *awserr.Error {
	return awserr.New("NotAuthorizedException", http.StatusBadRequest, msg)
}

func errInvalidParameter(msg string) *awserr.Error {
	return awserr.New("InvalidParameterException", http.StatusBadRequest, msg)
}

type AttributeType struct {
	Name  string `json:"Name"`
	Value string `json:"Value"`
}

type User struct {
	Username             string
	Sub                  string
	Attributes           []AttributeType
	PasswordHash         []byte
	Enabled              bool
	Status               string
	CreatedAt            float64
	ConfirmationCode     string
	Groups               map[string]struct{}
}

type Group struct {
	GroupName   string
	Description string
	Precedence  int
	CreatedAt   float64
}

type PoolClient struct {
	ClientID     string
	ClientName   string
	GenerateSecret bool
	ClientSecret string
}

type UserPool struct {
	ID        string
	ARN       string
	Name      string
	CreatedAt float64
	Users     map[string]*User
	Clients   map[string]*PoolClient
	Groups    map[string]*Group
	// signingKey signs the pool's JWTs.
	signingKey []byte
}

type AuthResult struct {
	AccessToken  string `json:"AccessToken"`
	IdToken      string `json:"IdToken"`
	RefreshToken string `json:"RefreshToken"`
	ExpiresIn    int    `json:"ExpiresIn"`
	TokenType    string `json:"TokenType"`
}

// Service is the user pool registry guarded by one exclusive lock.
type Service struct {
	mu    sync.Mutex
	pools map[string]*UserPool

	accountID string
	region    string
	counter   int
}

func New(accountID, region string) *Service {
	return &Service{
		pools:     make(map[string]*UserPool),
		accountID: accountID,
		region:    region,
	}
}

func epoch() float64 {
	return float64(time.Now().UnixNano()) / 1e9
}

func (s *Service) CreateUserPool(name string) (*UserPool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if name == "" {
		return nil, errInvalidParameter("PoolName is required")
	}
	s.counter++
	id := fmt.Sprintf("%s_%09d", s.region, s.counter)
	pool := &UserPool{
		ID:         id,
		ARN:        arn.New("cognito-idp", s.region, s.accountID, "userpool/"+id),
		Name:       name,
		CreatedAt:  epoch(),
		Users:      make(map[string]*User),
		Clients:    make(map[string]*PoolClient),
		Groups:     make(map[string]*Group),
		signingKey: []byte(ident.New()),
	}
	s.pools[id] = pool
	return pool, nil
}

func (s *Service) DeleteUserPool(poolID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.pools[poolID]; !ok {
		return errResourceNotFound(fmt.Sprintf("User pool %s does not exist.", poolID))
	}
	delete(s.pools, poolID)
	return nil
}

func (s *Service) DescribeUserPool(poolID string) (*UserPool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pool(poolID)
}

func (s *Service) pool(poolID string) (*UserPool, error) {
	pool, ok := s.pools[poolID]
	if !ok {
		return nil, errResourceNotFound(fmt.Sprintf("User pool %s does not exist.", poolID))
	}
	return pool, nil
}

func (s *Service) ListUserPools() []*UserPool {
	s.mu.Lock()
	defer s.mu.Unlock()

	pools := make([]*UserPool, 0, len(s.pools))
	for _, p := range s.pools {
		pools = append(pools, p)
	}
	sort.Slice(pools, func(i, j int) bool { return pools[i].ID < pools[j].ID })
	return pools
}

// --- Users ---

func (s *Service) AdminCreateUser(poolID, username string, attributes []AttributeType, temporaryPassword string) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pool, err := s.pool(poolID)
	if err != nil {
		return nil, err
	}
	if _, exists := pool.Users[username]; exists {
		return nil, errUsernameExists(fmt.Sprintf("User account already exists: %s", username))
	}

	user := &User{
		Username:   username,
		Sub:        ident.New(),
		Attributes: attributes,
		Enabled:    true,
		Status:     "FORCE_CHANGE_PASSWORD",
		CreatedAt:  epoch(),
		Groups:     make(map[string]struct{}),
	}
	if temporaryPassword != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(temporaryPassword), bcrypt.DefaultCost)
		if err != nil {
			return nil, fmt.Errorf("hashing password: %w", err)
		}
		user.PasswordHash = hash
	}
	pool.Users[username] = user
	return user, nil
}

func (s *Service) AdminDeleteUser(poolID, username string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	pool, err := s.pool(poolID)
	if err != nil {
		return err
	}
	if _, ok := pool.Users[username]; !ok {
		return errUserNotFound(fmt.Sprintf("User does not exist: %s", username))
	}
	delete(pool.Users, username)
	return nil
}

func (s *Service) AdminGetUser(poolID, username string) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.user(poolID, username)
}

func (s *Service) user(poolID, username string) (*User, error) {
	pool, err := s.pool(poolID)
	if err != nil {
		return nil, err
	}
	user, ok := pool.Users[username]
	if !ok {
		return nil, errUserNotFound(fmt.Sprintf("User does not exist: %s", username))
	}
	return user, nil
}

func (s *Service) AdminSetUserPassword(poolID, username, password string, permanent bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, err := s.user(poolID, username)
	if err != nil {
		return err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hashing password: %w", err)
	}
	user.PasswordHash = hash
	if permanent {
		user.Status = "CONFIRMED"
	} else {
		user.Status = "FORCE_CHANGE_PASSWORD"
	}
	return nil
}

func (s *Service) AdminEnableUser(poolID, username string) error {
	return s.setEnabled(poolID, username, true)
}

func (s *Service) AdminDisableUser(poolID, username string) error {
	return s.setEnabled(poolID, username, false)
}

func (s *Service) setEnabled(poolID, username string, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, err := s.user(poolID, username)
	if err != nil {
		return err
	}
	user.Enabled = enabled
	return nil
}

func (s *Service) AdminResetUserPassword(poolID, username string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, err := s.user(poolID, username)
	if err != nil {
		return err
	}
	user.Status = "RESET_REQUIRED"
	return nil
}

func (s *Service) AdminUpdateUserAttributes(poolID, username string, attributes []AttributeType) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, err := s.user(poolID, username)
	if err != nil {
		return err
	}
	for _, attr := range attributes {
		replaced := false
		for i, existing := range user.Attributes {
			if existing.Name == attr.Name {
				user.Attributes[i] = attr
				replaced = true
				break
			}
		}
		if !replaced {
			user.Attributes = append(user.Attributes, attr)
		}
	}
	return nil
}

func (s *Service) ListUsers(poolID string) ([]*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pool, err := s.pool(poolID)
	if err != nil {
		return nil, err
	}
	users := make([]*User, 0, len(pool.Users))
	for _, u := range pool.Users {
		users = append(users, u)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].Username < users[j].Username })
	return users, nil
}

// --- Pool clients ---

func (s *Service) CreateUserPoolClient(poolID, clientName string, generateSecret bool) (*PoolClient, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pool, err := s.pool(poolID)
	if err != nil {
		return nil, err
	}
	client := &PoolClient{
		ClientID:       ident.New(),
		ClientName:     clientName,
		GenerateSecret: generateSecret,
	}
	if generateSecret {
		client.ClientSecret = ident.New()
	}
	pool.Clients[client.ClientID] = client
	return client, nil
}

func (s *Service) DeleteUserPoolClient(poolID, clientID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	pool, err := s.pool(poolID)
	if err != nil {
		return err
	}
	delete(pool.Clients, clientID)
	return nil
}

func (s *Service) DescribeUserPoolClient(poolID, clientID string) (*PoolClient, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pool, err := s.pool(poolID)
	if err != nil {
		return nil, err
	}
	client, ok := pool.Clients[clientID]
	if !ok {
		return nil, errResourceNotFound(fmt.Sprintf("Client %s does not exist.", clientID))
	}
	return client, nil
}

func (s *Service) ListUserPoolClients(poolID string) ([]*PoolClient, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pool, err := s.pool(poolID)
	if err != nil {
		return nil, err
	}
	clients := make([]*PoolClient, 0, len(pool.Clients))
	for _, c := range pool.Clients {
		clients = append(clients, c)
	}
	sort.Slice(clients, func(i, j int) bool { return clients[i].ClientID < clients[j].ClientID })
	return clients, nil
}

// --- Groups ---

func (s *Service) CreateGroup(poolID, groupName, description string, precedence int) (*Group, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pool, err := s.pool(poolID)
	if err != nil {
		return nil, err
	}
	if _, exists := pool.Groups[groupName]; exists {
		return nil, awserr.New("GroupExistsException", http.StatusBadRequest,
			fmt.Sprintf("Group already exists: %s", groupName))
	}
	group := &Group{
		GroupName:   groupName,
		Description: description,
		Precedence:  precedence,
		CreatedAt:   epoch(),
	}
	pool.Groups[groupName] = group
	return group, nil
}

func (s *Service) DeleteGroup(poolID, groupName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	pool, err := s.pool(poolID)
	if err != nil {
		return err
	}
	delete(pool.Groups, groupName)
	for _, user := range pool.Users {
		delete(user.Groups, groupName)
	}
	return nil
}

func (s *Service) GetGroup(poolID, groupName string) (*Group, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pool, err := s.pool(poolID)
	if err != nil {
		return nil, err
	}
	group, ok := pool.Groups[groupName]
	if !ok {
		return nil, errResourceNotFound(fmt.Sprintf("Group not found: %s", groupName))
	}
	return group, nil
}

func (s *Service) ListGroups(poolID string) ([]*Group, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pool, err := s.pool(poolID)
	if err != nil {
		return nil, err
	}
	groups := make([]*Group, 0, len(pool.Groups))
	for _, g := range pool.Groups {
		groups = append(groups, g)
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].GroupName < groups[j].GroupName })
	return groups, nil
}

func (s *Service) AdminAddUserToGroup(poolID, username, groupName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	pool, err := s.pool(poolID)
	if err != nil {
		return err
	}
	user, ok := pool.Users[username]
	if !ok {
		return errUserNotFound(fmt.Sprintf("User does not exist: %s", username))
	}
	if _, ok := pool.Groups[groupName]; !ok {
		return errResourceNotFound(fmt.Sprintf("Group not found: %s", groupName))
	}
	user.Groups[groupName] = struct{}{}
	return nil
}

func (s *Service) AdminRemoveUserFromGroup(poolID, username, groupName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, err := s.user(poolID, username)
	if err != nil {
		return err
	}
	delete(user.Groups, groupName)
	return nil
}

func (s *Service) AdminListGroupsForUser(poolID, username string) ([]*Group, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pool, err := s.pool(poolID)
	if err != nil {
		return nil, err
	}
	user, ok := pool.Users[username]
	if !ok {
		return nil, errUserNotFound(fmt.Sprintf("User does not exist: %s", username))
	}
	var groups []*Group
	for name := range user.Groups {
		if g, ok := pool.Groups[name]; ok {
			groups = append(groups, g)
		}
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].GroupName < groups[j].GroupName })
	return groups, nil
}

func (s *Service) ListUsersInGroup(poolID, groupName string) ([]*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pool, err := s.pool(poolID)
	if err != nil {
		return nil, err
	}
	if _, ok := pool.Groups[groupName]; !ok {
		return nil, errResourceNotFound(fmt.Sprintf("Group not found: %s", groupName))
	}
	var users []*User
	for _, user := range pool.Users {
		if _, member := user.Groups[groupName]; member {
			users = append(users, user)
		}
	}
	sort.Slice(users, func(i, j int) bool { return users[i].Username < users[j].Username })
	return users, nil
}

// --- Auth flows ---

// SignUp registers an unconfirmed user with a confirmation code.
func (s *Service) SignUp(poolID, clientID, username, password string, attributes []AttributeType) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pool, err := s.pool(poolID)
	if err != nil {
		return nil, err
	}
	if _, ok := pool.Clients[clientID]; !ok {
		return nil, errResourceNotFound(fmt.Sprintf("Client %s does not exist.", clientID))
	}
	if _, exists := pool.Users[username]; exists {
		return nil, errUsernameExists(fmt.Sprintf("User account already exists: %s", username))
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hashing password: %w", err)
	}
	user := &User{
		Username:         username,
		Sub:              ident.New(),
		Attributes:       attributes,
		PasswordHash:     hash,
		Enabled:          true,
		Status:           "UNCONFIRMED",
		CreatedAt:        epoch(),
		ConfirmationCode: "123456",
		Groups:           make(map[string]struct{}),
	}
	pool.Users[username] = user
	return user, nil
}

func (s *Service) ConfirmSignUp(poolID, username, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, err := s.user(poolID, username)
	if err != nil {
		return err
	}
	if user.ConfirmationCode != "" && code != user.ConfirmationCode {
		return awserr.New("CodeMismatchException", http.StatusBadRequest,
			"Invalid verification code provided, please try again.")
	}
	user.Status = "CONFIRMED"
	return nil
}

func (s *Service) ForgotPassword(poolID, username string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, err := s.user(poolID, username)
	if err != nil {
		return err
	}
	user.ConfirmationCode = "123456"
	return nil
}

func (s *Service) ConfirmForgotPassword(poolID, username, code, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, err := s.user(poolID, username)
	if err != nil {
		return err
	}
	if code != user.ConfirmationCode {
		return awserr.New("CodeMismatchException", http.StatusBadRequest,
			"Invalid verification code provided, please try again.")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hashing password: %w", err)
	}
	user.PasswordHash = hash
	user.Status = "CONFIRMED"
	return nil
}

// InitiateAuth performs the USER_PASSWORD_AUTH flow and mints the token
// set for the user.
func (s *Service) InitiateAuth(poolID, clientID, username, password string) (*AuthResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pool, err := s.pool(poolID)
	if err != nil {
		return nil, err
	}
	if clientID != "" {
		if _, ok := pool.Clients[clientID]; !ok {
			return nil, errResourceNotFound(fmt.Sprintf("Client %s does not exist.", clientID))
		}
	}
	user, ok := pool.Users[username]
	if !ok {
		return nil, errUserNotFound(fmt.Sprintf("User does not exist: %s", username))
	}
	if !user.Enabled {
		return nil, errNotAuthorized("User is disabled.")
	}
	if err := bcrypt.CompareHashAndPassword(user.PasswordHash, []byte(password)); err != nil {
		return nil, errNotAuthorized("Incorrect username or password.")
	}

	now := time.Now()
	expiry := now.Add(time.Hour)
	claims := jwt.MapClaims{
		"sub":       user.Sub,
		"iss":       fmt.Sprintf("https://cognito-idp.%s.amazonaws.com/%s", s.region, pool.ID),
		"client_id": clientID,
		"username":  user.Username,
		"token_use": "access",
		"iat":       now.Unix(),
		"exp":       expiry.Unix(),
	}
	accessToken, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(pool.signingKey)
	if err != nil {
		return nil, fmt.Errorf("signing access token: %w", err)
	}

	idClaims := jwt.MapClaims{
		"sub":       user.Sub,
		"iss":       claims["iss"],
		"aud":       clientID,
		"token_use": "id",
		"iat":       now.Unix(),
		"exp":       expiry.Unix(),
		"cognito:username": user.Username,
	}
	idToken, err := jwt.NewWithClaims(jwt.SigningMethodHS256, idClaims).SignedString(pool.signingKey)
	if err != nil {
		return nil, fmt.Errorf("signing id token: %w", err)
	}

	return &AuthResult{
		AccessToken:  accessToken,
		IdToken:      idToken,
		RefreshToken: ident.New(),
		ExpiresIn:    3600,
		TokenType:    "Bearer",
	}, nil
}
