package codec

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHexConversions(t *testing.T) {
	b, err := HexToBytes("00ff10Ab")
	require.NoError(t, err)
	assert.Equal(t, []byte{0x00, 0xff, 0x10, 0xab}, b)
	assert.Equal(t, "00FF10AB", BytesToHex(b, true))
	assert.Equal(t, "00ff10ab", BytesToHex(b, false))

	_, err = HexToBytes("abc")
	assert.ErrorIs(t, err, ErrInvalidHex)
	_, err = HexToBytes("zz")
	assert.ErrorIs(t, err, ErrInvalidHex)
}

func TestBase64(t *testing.T) {
	cases := []string{"", "f", "fo", "foo", "foob", "fooba", "foobar", "LSVJ1A2B3C4D5E6F7"}
	for _, c := range cases {
		enc := Base64Encode(c)
		assert.Equal(t, c, Base64Decode(enc), "round trip %q", c)
	}
	assert.Equal(t, "Zm9vYg==", Base64Encode("foob"))
	// decoding stops at the first character outside the alphabet
	assert.Equal(t, "foo", Base64Decode("Zm9v!Zm9v"))
}

func pkcs7(b []byte) []byte {
	n := aes.BlockSize - len(b)%aes.BlockSize
	return append(append([]byte{}, b...), bytes.Repeat([]byte{byte(n)}, n)...)
}

func encrypt(t *testing.T, plain, key, iv []byte) []byte {
	t.Helper()
	block, err := aes.NewCipher(key)
	require.NoError(t, err)
	padded := pkcs7(plain)
	out := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(out, padded)
	return out
}

func TestAESDecrypt(t *testing.T) {
	key := []byte("0123456789abcdef")
	iv := []byte("fedcba9876543210")
	for _, plain := range [][]byte{[]byte("x"), []byte("exactly16bytes!!"), []byte("a longer payload spanning blocks")} {
		ct := encrypt(t, plain, key, iv)
		got, err := AESDecrypt(ct, key, iv)
		require.NoError(t, err)
		assert.Equal(t, plain, got)
	}
}

func TestAESDecryptValidation(t *testing.T) {
	key := []byte("0123456789abcdef")
	iv := []byte("fedcba9876543210")
	_, err := AESDecrypt(make([]byte, 16), key[:8], iv)
	assert.ErrorIs(t, err, ErrInvalidKey)
	_, err = AESDecrypt(make([]byte, 16), key, iv[:4])
	assert.ErrorIs(t, err, ErrInvalidIV)
	_, err = AESDecrypt(nil, key, iv)
	assert.ErrorIs(t, err, ErrInvalidCiphertext)
	_, err = AESDecrypt(make([]byte, 17), key, iv)
	assert.ErrorIs(t, err, ErrInvalidCiphertext)

	ct := encrypt(t, []byte("payload"), key, iv)
	_, err = AESDecrypt(ct, []byte("ffffffffffffffff"), iv)
	if err != nil && !errors.Is(err, ErrInvalidPadding) {
		t.Fatalf("unexpected error kind: %v", err)
	}
}
