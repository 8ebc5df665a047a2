// Package codec holds the small encoding helpers shared by telematics
// daemons: hex and base64 conversions and AES-128-CBC decryption of
// payloads provisioned by the backend.
package codec

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"strings"
)

var (
	ErrInvalidHex        = errors.New("invalid hex string")
	ErrInvalidKey        = errors.New("invalid key length")
	ErrInvalidIV         = errors.New("invalid iv length")
	ErrInvalidCiphertext = errors.New("invalid ciphertext length")
	ErrInvalidPadding    = errors.New("invalid padding")
)

// HexToBytes decodes an even-length hex string.
func HexToBytes(s string) ([]byte, error) {
	if len(s)%2 != 0 {
		return nil, ErrInvalidHex
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, ErrInvalidHex
	}
	return b, nil
}

// BytesToHex encodes b as hex, upper or lower case.
func BytesToHex(b []byte, upper bool) string {
	s := hex.EncodeToString(b)
	if upper {
		return strings.ToUpper(s)
	}
	return s
}

// Base64Encode encodes s with the standard padded alphabet.
func Base64Encode(s string) string {
	return base64.StdEncoding.EncodeToString([]byte(s))
}

// Base64Decode decodes the leading run of standard-alphabet characters in s.
// Decoding stops at the first '=' or any character outside the alphabet;
// a dangling single character is dropped.
func Base64Decode(s string) string {
	end := strings.IndexFunc(s, func(r rune) bool { return !isBase64(r) })
	if end < 0 {
		end = len(s)
	}
	body := s[:end]
	if len(body)%4 == 1 {
		body = body[:len(body)-1]
	}
	out, err := base64.RawStdEncoding.DecodeString(body)
	if err != nil {
		return ""
	}
	return string(out)
}

func isBase64(r rune) bool {
	return (r >= 'A' && r <= 'Z') || (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '+' || r == '/'
}

// AESDecrypt decrypts AES-128-CBC ciphertext and strips PKCS#7 padding.
func AESDecrypt(ciphertext, key, iv []byte) ([]byte, error) {
	if len(key) != 16 {
		return nil, ErrInvalidKey
	}
	if len(iv) != aes.BlockSize {
		return nil, ErrInvalidIV
	}
	if len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
		return nil, ErrInvalidCiphertext
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	plain := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plain, ciphertext)
	return unpad(plain)
}

func unpad(b []byte) ([]byte, error) {
	n := int(b[len(b)-1])
	if n == 0 || n > aes.BlockSize || n > len(b) {
		return nil, ErrInvalidPadding
	}
	if !bytes.Equal(b[len(b)-n:], bytes.Repeat([]byte{byte(n)}, n)) {
		return nil, ErrInvalidPadding
	}
	return b[:len(b)-n], nil
}
