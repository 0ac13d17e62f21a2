package ssm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPutParameterVersioning(t *testing.T) {
	s := New("000000000000", "us-east-1")

	version, err := s.PutParameter("/app/db", "String", "v1", "", "", false, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1), version)

	_, err = s.PutParameter("/app/db", "String", "v2", "", "", false, nil)
	assert.Error(t, err, "overwrite required")

	version, err = s.PutParameter("/app/db", "String", "v2", "", "", true, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(2), version)

	param, err := s.GetParameter("/app/db")
	require.NoError(t, err)
	assert.Equal(t, "v2", param.Value)
}

func TestGetParametersSplitsInvalid(t *testing.T) {
	s := New("000000000000", "us-east-1")
	_, err := s.PutParameter("/a", "String", "1", "", "", false, nil)
	require.NoError(t, err)

	found, invalid := s.GetParameters([]string{"/a", "/missing"})
	require.Len(t, found, 1)
	assert.Equal(t, "/a", found[0].Name)
	assert.Equal(t, []string{"/missing"}, invalid)
}

func TestGetParametersByPath(t *testing.T) {
	s := New("000000000000", "us-east-1")
	for _, name := range []string{"/app/db/host", "/app/db/port", "/app/api/key", "/other/x"} {
		_, err := s.PutParameter(name, "String", "v", "", "", false, nil)
		require.NoError(t, err)
	}

	direct := s.GetParametersByPath("/app/db", false)
	require.Len(t, direct, 2)
	assert.Equal(t, "/app/db/host", direct[0].Name)

	recursive := s.GetParametersByPath("/app", true)
	assert.Len(t, recursive, 3)

	shallow := s.GetParametersByPath("/app", false)
	assert.Empty(t, shallow)
}

func TestDeleteParameters(t *testing.T) {
	s := New("000000000000", "us-east-1")
	_, err := s.PutParameter("/a", "String", "1", "", "", false, nil)
	require.NoError(t, err)

	deleted, invalid := s.DeleteParameters([]string{"/a", "/missing"})
	assert.Equal(t, []string{"/a"}, deleted)
	assert.Equal(t, []string{"/missing"}, invalid)

	assert.Error(t, s.DeleteParameter("/a"))
}
