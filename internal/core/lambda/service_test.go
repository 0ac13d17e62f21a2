package lambda

import (
	"encoding/json"
	"testing"

	"github.com/nimbuslocal/nimbus/internal/ident"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	return New("000000000000", "us-east-1")
}

func createFunction(t *testing.T, s *Service, name string) *FunctionConfiguration {
	t.Helper()
	cfg, err := s.CreateFunction(name, "go1.x", "arn:aws:iam::000000000000:role/lambda",
		"main", "", 0, 0, []byte("code"), nil)
	require.NoError(t, err)
	return cfg
}

func TestCreateFunctionDefaults(t *testing.T) {
	s := newTestService(t)

	cfg := createFunction(t, s, "handler")
	assert.Equal(t, "arn:aws:lambda:us-east-1:000000000000:function:handler", cfg.FunctionArn)
	assert.Equal(t, "$LATEST", cfg.Version)
	assert.Equal(t, "Active", cfg.State)
	assert.Equal(t, 3, cfg.Timeout)
	assert.Equal(t, 128, cfg.MemorySize)
	assert.Equal(t, int64(4), cfg.CodeSize)
	assert.Equal(t, ident.SHA256Hex([]byte("code")), cfg.CodeSha256)

	_, err := s.CreateFunction("handler", "", "", "", "", 0, 0, nil, nil)
	assert.Error(t, err, "duplicate function")

	_, err = s.CreateFunction("", "", "", "", "", 0, 0, nil, nil)
	assert.Error(t, err, "missing name")
}

func TestListAndDeleteFunctions(t *testing.T) {
	s := newTestService(t)
	createFunction(t, s, "zeta")
	createFunction(t, s, "alpha")

	configs := s.ListFunctions()
	require.Len(t, configs, 2)
	assert.Equal(t, "alpha", configs[0].FunctionName)
	assert.Equal(t, "zeta", configs[1].FunctionName)

	require.NoError(t, s.DeleteFunction("alpha"))
	assert.Error(t, s.DeleteFunction("alpha"))
	assert.Len(t, s.ListFunctions(), 1)
}

func TestUpdateFunctionCode(t *testing.T) {
	s := newTestService(t)
	original := createFunction(t, s, "handler")

	updated, err := s.UpdateFunctionCode("handler", []byte("new code"))
	require.NoError(t, err)
	assert.Equal(t, int64(8), updated.CodeSize)
	assert.NotEqual(t, original.CodeSha256, updated.CodeSha256)

	_, err = s.UpdateFunctionCode("missing", nil)
	assert.Error(t, err)
}

func TestUpdateFunctionConfiguration(t *testing.T) {
	s := newTestService(t)
	createFunction(t, s, "handler")

	updated, err := s.UpdateFunctionConfiguration("handler", func(cfg *FunctionConfiguration) {
		cfg.Timeout = 30
		cfg.Description = "updated"
	})
	require.NoError(t, err)
	assert.Equal(t, 30, updated.Timeout)
	assert.Equal(t, "updated", updated.Description)
}

func TestInvokeEchoesPayload(t *testing.T) {
	s := newTestService(t)
	createFunction(t, s, "handler")

	response, status, err := s.Invoke("handler", []byte(`{"key":"value"}`))
	require.NoError(t, err)
	assert.Equal(t, 200, status)
	assert.Equal(t, `{"key":"value"}`, string(response))

	// An empty payload invokes as JSON null.
	response, _, err = s.Invoke("handler", nil)
	require.NoError(t, err)
	assert.Equal(t, "null", string(response))

	_, _, err = s.Invoke("missing", nil)
	assert.Error(t, err)
}

func TestPublishVersion(t *testing.T) {
	s := newTestService(t)
	createFunction(t, s, "handler")

	first, err := s.PublishVersion("handler")
	require.NoError(t, err)
	assert.Equal(t, "1", first.Version)
	assert.Equal(t, "arn:aws:lambda:us-east-1:000000000000:function:handler:1", first.FunctionArn)

	second, err := s.PublishVersion("handler")
	require.NoError(t, err)
	assert.Equal(t, "2", second.Version)

	versions, err := s.ListVersions("handler")
	require.NoError(t, err)
	require.Len(t, versions, 3)
	assert.Equal(t, "$LATEST", versions[0].Version)
	assert.Equal(t, "2", versions[2].Version)
}

func TestAliasLifecycle(t *testing.T) {
	s := newTestService(t)
	createFunction(t, s, "handler")

	alias, err := s.CreateAlias("handler", "live", "1", "production traffic")
	require.NoError(t, err)
	assert.Equal(t, "arn:aws:lambda:us-east-1:000000000000:function:handler:live", alias.AliasArn)

	_, err = s.CreateAlias("handler", "live", "2", "")
	assert.Error(t, err, "duplicate alias")

	_, err = s.CreateAlias("missing", "live", "1", "")
	assert.Error(t, err, "missing function")

	got, err := s.GetAlias("handler", "live")
	require.NoError(t, err)
	assert.Equal(t, "1", got.FunctionVersion)

	aliases, err := s.ListAliases("handler")
	require.NoError(t, err)
	assert.Len(t, aliases, 1)

	require.NoError(t, s.DeleteAlias("handler", "live"))
	_, err = s.GetAlias("handler", "live")
	assert.Error(t, err)
}

func TestEventSourceMappings(t *testing.T) {
	s := newTestService(t)
	createFunction(t, s, "handler")

	mapping, err := s.CreateEventSourceMapping(
		"arn:aws:sqs:us-east-1:000000000000:orders", "handler", 0, true)
	require.NoError(t, err)
	assert.Equal(t, "Enabled", mapping.State)
	assert.Equal(t, 10, mapping.BatchSize)

	disabled, err := s.CreateEventSourceMapping(
		"arn:aws:kinesis:us-east-1:000000000000:stream/events", "handler", 100, false)
	require.NoError(t, err)
	assert.Equal(t, "Disabled", disabled.State)
	assert.Equal(t, 100, disabled.BatchSize)

	mappings := s.ListEventSourceMappings("handler")
	assert.Len(t, mappings, 2)
	assert.Empty(t, s.ListEventSourceMappings("other"))

	deleted, err := s.DeleteEventSourceMapping(mapping.UUID)
	require.NoError(t, err)
	assert.Equal(t, "Deleting", deleted.State)
	_, err = s.DeleteEventSourceMapping(mapping.UUID)
	assert.Error(t, err)
}

func TestPermissionsAndPolicy(t *testing.T) {
	s := newTestService(t)
	createFunction(t, s, "handler")

	// Policy reads fail until a statement exists.
	_, err := s.GetPolicy("handler")
	assert.Error(t, err)

	statement := json.RawMessage(`{"StatementId":"allow-s3","Action":"lambda:InvokeFunction"}`)
	require.NoError(t, s.AddPermission("handler", "allow-s3", statement))
	assert.Error(t, s.AddPermission("handler", "allow-s3", statement), "duplicate statement")

	policy, err := s.GetPolicy("handler")
	require.NoError(t, err)
	assert.Contains(t, policy, "allow-s3")

	require.NoError(t, s.RemovePermission("handler", "allow-s3"))
	assert.Error(t, s.RemovePermission("handler", "allow-s3"))
}

func TestFunctionTags(t *testing.T) {
	s := newTestService(t)
	cfg := createFunction(t, s, "handler")

	require.NoError(t, s.TagResource(cfg.FunctionArn, map[string]string{"team": "platform"}))
	tags, err := s.ListTags(cfg.FunctionArn)
	require.NoError(t, err)
	assert.Equal(t, "platform", tags["team"])

	require.NoError(t, s.UntagResource(cfg.FunctionArn, []string{"team"}))
	tags, err = s.ListTags(cfg.FunctionArn)
	require.NoError(t, err)
	assert.Empty(t, tags)
}
