package token

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"testing"
)

// encode is the inverse of Decrypt, used only to build fixtures for
// these tests.
func encode(t *testing.T, password string, descriptor Descriptor) string {
	t.Helper()
	plaintext, err := json.Marshal(descriptor)
	if err != nil {
		t.Fatalf("marshal descriptor: %v", err)
	}

	key := sha256.Sum256([]byte(password))
	block, err := aes.NewCipher(key[:])
	if err != nil {
		t.Fatalf("new cipher: %v", err)
	}

	padLen := block.BlockSize() - len(plaintext)%block.BlockSize()
	padded := append(append([]byte(nil), plaintext...), bytes.Repeat([]byte{byte(padLen)}, padLen)...)

	iv := make([]byte, block.BlockSize())
	if _, err := rand.Read(iv); err != nil {
		t.Fatalf("rand iv: %v", err)
	}
	ciphertext := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(ciphertext, padded)

	return base64.StdEncoding.EncodeToString(iv) + ":" + base64.StdEncoding.EncodeToString(ciphertext)
}

func TestDecrypt_RoundTrip(t *testing.T) {
	want := Descriptor{
		Type:      "RDP",
		Arguments: map[string]string{"hostname": "10.0.0.1", "port": "3389"},
	}
	tok := encode(t, "s3cret", want)

	got, err := Decrypt("s3cret", tok)
	if err != nil {
		t.Fatalf("Decrypt: %v", err)
	}
	if got.Type != "rdp" {
		t.Errorf("Type = %q, want lower-cased %q", got.Type, "rdp")
	}
	if got.Arguments["hostname"] != "10.0.0.1" || got.Arguments["port"] != "3389" {
		t.Errorf("Arguments = %v", got.Arguments)
	}
}

func TestDecrypt_LowercasesArgumentKeys(t *testing.T) {
	tok := encode(t, "pw", Descriptor{
		Type:      "vnc",
		Arguments: map[string]string{"Hostname": "10.0.0.2", "PORT": "5900"},
	})

	got, err := Decrypt("pw", tok)
	if err != nil {
		t.Fatalf("Decrypt: %v", err)
	}
	if got.Arguments["hostname"] != "10.0.0.2" || got.Arguments["port"] != "5900" {
		t.Errorf("Arguments = %v, want lower-cased keys", got.Arguments)
	}
	if _, ok := got.Arguments["Hostname"]; ok {
		t.Error("original mixed-case key should not survive")
	}
}

func TestDecrypt_WrongPassword(t *testing.T) {
	tok := encode(t, "right", Descriptor{Type: "vnc", Arguments: map[string]string{}})
	if _, err := Decrypt("wrong", tok); err == nil {
		t.Fatal("expected error decrypting with wrong password")
	}
}

func TestDecrypt_MalformedBase64(t *testing.T) {
	if _, err := Decrypt("pw", "not-base64!!:also-not-base64!!"); err == nil {
		t.Fatal("expected error for malformed base64")
	}
}

func TestDecrypt_MissingSeparator(t *testing.T) {
	if _, err := Decrypt("pw", "aGVsbG8="); err == nil {
		t.Fatal("expected error for missing ':' separator")
	}
}

func TestDecrypt_MissingTypeField(t *testing.T) {
	tok := encode(t, "pw", Descriptor{Arguments: map[string]string{"a": "b"}})
	if _, err := Decrypt("pw", tok); err == nil {
		t.Fatal("expected error for missing type field")
	}
}
