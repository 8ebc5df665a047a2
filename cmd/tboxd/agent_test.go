package main

import (
	"bytes"
	"context"
	"crypto/aes"
	"crypto/cipher"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"path/filepath"
	"testing"

	"github.com/loykin/tbox/internal/codec"
	"github.com/loykin/tbox/internal/kvstore"
)

func encryptValue(t *testing.T, plain string, key, iv []byte) string {
	t.Helper()
	n := aes.BlockSize - len(plain)%aes.BlockSize
	padded := append([]byte(plain), bytes.Repeat([]byte{byte(n)}, n)...)
	block, err := aes.NewCipher(key)
	if err != nil {
		t.Fatal(err)
	}
	out := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(out, padded)
	return base64.StdEncoding.EncodeToString(out)
}

func TestProvisionDecodePlain(t *testing.T) {
	v, err := provisionConfig{}.decode("LSVAU2180N2183294")
	if err != nil || v != "LSVAU2180N2183294" {
		t.Fatalf("decode = %q %v", v, err)
	}
}

func TestProvisionDecodeEncrypted(t *testing.T) {
	key := []byte("0123456789abcdef")
	iv := []byte("fedcba9876543210")
	p := provisionConfig{Encrypted: true, KeyHex: hex.EncodeToString(key), IVHex: hex.EncodeToString(iv)}

	v, err := p.decode(encryptValue(t, "BP-2024-000117", key, iv))
	if err != nil || v != "BP-2024-000117" {
		t.Fatalf("decode = %q %v", v, err)
	}

	bad := p
	bad.KeyHex = "abc"
	if _, err := bad.decode("AAAA"); !errors.Is(err, codec.ErrInvalidHex) {
		t.Fatalf("expected invalid hex, got %v", err)
	}
	short := p
	short.IVHex = "00ff"
	if _, err := short.decode(encryptValue(t, "x", key, iv)); !errors.Is(err, codec.ErrInvalidIV) {
		t.Fatalf("expected invalid iv, got %v", err)
	}
}

func TestRunCommandEncryptedProvisioningKeepsExisting(t *testing.T) {
	dir := t.TempDir()
	key := []byte("0123456789abcdef")
	iv := []byte("fedcba9876543210")
	section := "agent:\n  heartbeat: 20ms\n  run_for: 100ms\n  provision:\n" +
		"    encrypted: true\n" +
		"    key_hex: " + hex.EncodeToString(key) + "\n" +
		"    iv_hex: " + hex.EncodeToString(iv) + "\n" +
		"    vin: \"" + encryptValue(t, "LSVAU2180N2183294", key, iv) + "\"\n" +
		"    battery_pack_code: \"" + encryptValue(t, "BP-2024-000117", key, iv) + "\"\n"
	storePath := writeAgentConfig(t, dir, section)

	ctx := context.Background()
	st := kvstore.NewFileStore(filepath.FromSlash(storePath))
	if err := st.Write(ctx, kvstore.KeyVIN, "EXISTINGVIN000001"); err != nil {
		t.Fatal(err)
	}

	if _, err := execute(t, "run", "--config-dir", dir, "--profile", "dev"); err != nil {
		t.Fatalf("run: %v", err)
	}
	if v, _, _ := st.Read(ctx, kvstore.KeyVIN); v != "EXISTINGVIN000001" {
		t.Fatalf("existing vin overwritten: %q", v)
	}
	if v, ok, _ := st.Read(ctx, kvstore.KeyBatteryPackCode); !ok || v != "BP-2024-000117" {
		t.Fatalf("battery pack code = %q %v", v, ok)
	}
}

func TestRunCommandProvisioningFailureExitsNonZero(t *testing.T) {
	dir := t.TempDir()
	writeAgentConfig(t, dir, "agent:\n  provision:\n    encrypted: true\n    key_hex: zz\n    iv_hex: zz\n    vin: AAAA\n")

	_, err := execute(t, "run", "--config-dir", dir, "--profile", "dev")
	var ee *exitError
	if !errors.As(err, &ee) || ee.code != 1 {
		t.Fatalf("expected exit status 1, got %v", err)
	}
}
