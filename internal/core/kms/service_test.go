package kms

import (
	"testing"

	"github.com/nimbuslocal/nimbus/internal/ident"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncryptDecryptRoundTrip(t *testing.T) {
	s := New("000000000000", "us-east-1")
	key := s.CreateKey("test key", "", "", "", nil)

	plaintext := ident.B64Encode([]byte("secret"))
	keyARN, ciphertext, err := s.Encrypt(key.KeyId, plaintext)
	require.NoError(t, err)
	assert.Equal(t, key.Arn, keyARN)
	assert.NotEqual(t, plaintext, ciphertext)

	_, decrypted, err := s.Decrypt(ciphertext, "")
	require.NoError(t, err)
	assert.Equal(t, plaintext, decrypted)
}

func TestEncryptRejectsDisabledKey(t *testing.T) {
	s := New("000000000000", "us-east-1")
	key := s.CreateKey("test key", "", "", "", nil)
	require.NoError(t, s.DisableKey(key.KeyId))

	_, _, err := s.Encrypt(key.KeyId, "cGxhaW4=")
	assert.Error(t, err)

	require.NoError(t, s.EnableKey(key.KeyId))
	_, _, err = s.Encrypt(key.KeyId, "cGxhaW4=")
	assert.NoError(t, err)
}

func TestDecryptRejectsGarbage(t *testing.T) {
	s := New("000000000000", "us-east-1")
	_, _, err := s.Decrypt("not base64!!", "")
	assert.Error(t, err)
}

func TestAliasResolution(t *testing.T) {
	s := New("000000000000", "us-east-1")
	key := s.CreateKey("test key", "", "", "", nil)

	require.NoError(t, s.CreateAlias("alias/app", key.KeyId))
	assert.Error(t, s.CreateAlias("alias/app", key.KeyId), "duplicate alias")
	assert.Error(t, s.CreateAlias("noprefix", key.KeyId))

	metadata, err := s.DescribeKey("alias/app")
	require.NoError(t, err)
	assert.Equal(t, key.KeyId, metadata.KeyId)

	// Key ARN also resolves.
	metadata, err = s.DescribeKey(key.Arn)
	require.NoError(t, err)
	assert.Equal(t, key.KeyId, metadata.KeyId)

	require.NoError(t, s.DeleteAlias("alias/app"))
	_, err = s.DescribeKey("alias/app")
	assert.Error(t, err)
}

func TestScheduleKeyDeletion(t *testing.T) {
	s := New("000000000000", "us-east-1")
	key := s.CreateKey("test key", "", "", "", nil)

	metadata, deletionDate, err := s.ScheduleKeyDeletion(key.KeyId, 7)
	require.NoError(t, err)
	assert.Equal(t, "PendingDeletion", metadata.KeyState)
	assert.Positive(t, deletionDate)

	metadata, err = s.CancelKeyDeletion(key.KeyId)
	require.NoError(t, err)
	assert.Equal(t, "Disabled", metadata.KeyState)
	assert.Nil(t, metadata.DeletionDate)
}

func TestGenerateDataKey(t *testing.T) {
	s := New("000000000000", "us-east-1")
	key := s.CreateKey("test key", "", "", "", nil)

	_, plaintext, ciphertext, err := s.GenerateDataKey(key.KeyId, 32, true)
	require.NoError(t, err)
	require.NotEmpty(t, plaintext)
	require.NotEmpty(t, ciphertext)

	// The ciphertext decrypts back to the generated material.
	_, decrypted, err := s.Decrypt(ciphertext, "")
	require.NoError(t, err)
	assert.Equal(t, plaintext, decrypted)

	_, withoutPlaintext, _, err := s.GenerateDataKey(key.KeyId, 32, false)
	require.NoError(t, err)
	assert.Empty(t, withoutPlaintext)
}

func TestSignVerify(t *testing.T) {
	s := New("000000000000", "us-east-1")
	key := s.CreateKey("signing key", "SIGN_VERIFY", "RSA_2048", "", nil)

	message := ident.B64Encode([]byte("payload"))
	_, signature, err := s.Sign(key.KeyId, message, "RSASSA_PSS_SHA_256")
	require.NoError(t, err)

	valid, err := s.Verify(key.KeyId, message, signature, "RSASSA_PSS_SHA_256")
	require.NoError(t, err)
	assert.True(t, valid)

	valid, err = s.Verify(key.KeyId, message, "bogus", "RSASSA_PSS_SHA_256")
	require.NoError(t, err)
	assert.False(t, valid)
}
