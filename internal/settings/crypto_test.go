// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package settings

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestCipher(t *testing.T) *Cipher {
	t.Helper()
	key, err := GenerateKey()
	require.NoError(t, err)
	c, err := NewCipher(key)
	require.NoError(t, err)
	return c
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	c := newTestCipher(t)

	plaintexts := []string{
		"hf_abc123def456",
		"",
		"short",
		strings.Repeat("x", 4096),
		"unicode: héllo wörld 日本語",
	}

	for _, pt := range plaintexts {
		enc, err := c.EncryptString(pt)
		if err != nil {
			t.Errorf("encrypt %q: %v", pt, err)
			continue
		}
		dec, err := c.DecryptString(enc)
		if err != nil {
			t.Errorf("decrypt %q: %v", pt, err)
			continue
		}
		if dec != pt {
			t.Errorf("round trip mismatch: got %q, want %q", dec, pt)
		}
	}
}

func TestEncryptedStringFormat(t *testing.T) {
	c := newTestCipher(t)

	enc, err := c.EncryptString("hf_secret_key")
	require.NoError(t, err)

	require.True(t, strings.HasPrefix(enc, EncryptedPrefix))
	require.True(t, IsEncrypted(enc))
	require.NotContains(t, enc, "hf_secret_key")
}

func TestEncryptEmptyStringPassesThrough(t *testing.T) {
	c := newTestCipher(t)

	enc, err := c.EncryptString("")
	require.NoError(t, err)
	require.Equal(t, "", enc)
}

func TestEncryptAlreadyEncryptedPassesThrough(t *testing.T) {
	c := newTestCipher(t)

	enc, err := c.EncryptString("value")
	require.NoError(t, err)

	again, err := c.EncryptString(enc)
	require.NoError(t, err)
	require.Equal(t, enc, again)
}

func TestDecryptPlaintextPassesThrough(t *testing.T) {
	c := newTestCipher(t)

	dec, err := c.DecryptString("not encrypted at all")
	require.NoError(t, err)
	require.Equal(t, "not encrypted at all", dec)
}

func TestTamperedCiphertextRejected(t *testing.T) {
	c := newTestCipher(t)

	enc, err := c.EncryptString("sensitive")
	require.NoError(t, err)

	// Flip a character inside the base64 payload.
	payload := []byte(enc)
	idx := len(EncryptedPrefix) + 5
	if payload[idx] == 'A' {
		payload[idx] = 'B'
	} else {
		payload[idx] = 'A'
	}

	_, err = c.DecryptString(string(payload))
	require.Error(t, err)
}

func TestWrongKeyRejected(t *testing.T) {
	c1 := newTestCipher(t)
	c2 := newTestCipher(t)

	enc, err := c1.EncryptString("sensitive")
	require.NoError(t, err)

	_, err = c2.DecryptString(enc)
	require.ErrorIs(t, err, ErrDecryptionFailed)
}

func TestNonceUniqueness(t *testing.T) {
	c := newTestCipher(t)

	a, err := c.EncryptString("same plaintext")
	require.NoError(t, err)
	b, err := c.EncryptString("same plaintext")
	require.NoError(t, err)

	require.NotEqual(t, a, b, "identical plaintexts must produce distinct ciphertexts")
}

func TestNewCipherRejectsBadKeySize(t *testing.T) {
	_, err := NewCipher([]byte("too short"))
	require.ErrorIs(t, err, ErrInvalidKeySize)
}

func TestPassphraseDerivationIsDeterministic(t *testing.T) {
	salt, err := GenerateSalt()
	require.NoError(t, err)

	k1 := DeriveKey("correct horse battery staple", salt)
	k2 := DeriveKey("correct horse battery staple", salt)
	require.Equal(t, k1, k2)
	require.Len(t, k1, KeySize)

	k3 := DeriveKey("different passphrase", salt)
	require.NotEqual(t, k1, k3)
}

func TestZeroBytes(t *testing.T) {
	buf := []byte{1, 2, 3, 4}
	ZeroBytes(buf)
	for i, b := range buf {
		if b != 0 {
			t.Errorf("byte %d not zeroed: %d", i, b)
		}
	}
}
