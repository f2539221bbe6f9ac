package security

import (
	"errors"
	"strings"
	"testing"
)

// ===================================================================
// Encryption tests
// ===================================================================

func TestEncryptor_EncryptDecrypt(t *testing.T) {
	enc, err := NewEncryptor("test-passphrase-1234")
	if err != nil {
		t.Fatal(err)
	}

	plaintext := `{"event":"page_view","ts":1700000000}`
	encrypted, err := enc.Encrypt(plaintext)
	if err != nil {
		t.Fatal(err)
	}

	if strings.Contains(encrypted, "page_view") {
		t.Fatal("ciphertext leaks plaintext")
	}
	if !strings.HasPrefix(encrypted, "enc:v1:") {
		t.Fatal("should be detected as encrypted")
	}

	decrypted, err := enc.Decrypt(encrypted)
	if err != nil {
		t.Fatal(err)
	}
	if decrypted != plaintext {
		t.Fatalf("expected %q, got %q", plaintext, decrypted)
	}
}

func TestEncryptor_DecryptPlaintext(t *testing.T) {
	enc, _ := NewEncryptor("test-passphrase-1234")
	_, err := enc.Decrypt(`{"a":1}`)
	if !errors.Is(err, ErrNotEncrypted) {
		t.Fatalf("err = %v, want ErrNotEncrypted", err)
	}
}

func TestEncryptor_ShortKey(t *testing.T) {
	_, err := NewEncryptor("short")
	if !errors.Is(err, ErrShortKey) {
		t.Fatalf("err = %v, want ErrShortKey", err)
	}
}

func TestEncryptor_DifferentNonces(t *testing.T) {
	enc, _ := NewEncryptor("test-passphrase-1234")
	e1, _ := enc.Encrypt("same-value")
	e2, _ := enc.Encrypt("same-value")
	if e1 == e2 {
		t.Fatal("two encryptions of same value should produce different ciphertext")
	}
	d1, _ := enc.Decrypt(e1)
	d2, _ := enc.Decrypt(e2)
	if d1 != d2 {
		t.Fatal("both should decrypt to same value")
	}
}

func TestEncryptor_WrongKey(t *testing.T) {
	enc1, _ := NewEncryptor("passphrase-one-1234")
	enc2, _ := NewEncryptor("passphrase-two-5678")

	encrypted, _ := enc1.Encrypt("secret")
	if _, err := enc2.Decrypt(encrypted); err == nil {
		t.Fatal("should fail with wrong key")
	}
}

func TestEncryptor_Corrupt(t *testing.T) {
	enc, _ := NewEncryptor("test-passphrase-1234")
	encrypted, _ := enc.Encrypt("payload")

	tests := map[string]string{
		"truncated":  encrypted[:len(encrypted)-6],
		"bad base64": encryptedPrefix + "!!!not-base64!!!",
		"too short":  encryptedPrefix + "AAAA",
		"prefix":     encryptedPrefix,
	}
	for name, in := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := enc.Decrypt(in); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestEncryptor_EmptyString(t *testing.T) {
	enc, _ := NewEncryptor("test-passphrase-1234")
	encrypted, err := enc.Encrypt("")
	if err != nil {
		t.Fatal(err)
	}
	decrypted, err := enc.Decrypt(encrypted)
	if err != nil {
		t.Fatal(err)
	}
	if decrypted != "" {
		t.Fatal("empty string should decrypt to empty")
	}
}

func TestEncryptDecrypt_Functions(t *testing.T) {
	ct, err := Encrypt(`{"a":1}`, "device-key-0001")
	if err != nil {
		t.Fatal(err)
	}
	pt, err := Decrypt(ct, "device-key-0001")
	if err != nil {
		t.Fatal(err)
	}
	if pt != `{"a":1}` {
		t.Fatalf("got %q", pt)
	}
	if _, err := Decrypt(ct, "device-key-0002"); err == nil {
		t.Fatal("expected error with different key")
	}
	if _, err := Encrypt("x", "k"); err == nil {
		t.Fatal("expected error for short key")
	}
}

// ===================================================================
// Masking tests
// ===================================================================

func TestMaskSecret(t *testing.T) {
	tests := []struct {
		value     string
		showChars int
		expected  string
	}{
		{"sk-1234567890abcdef", 4, "sk-1***********cdef"},
		{"short", 4, "*****"},
		{"ab", 2, "**"},
		{"abcdefghij", 2, "ab******ij"},
	}

	for _, tt := range tests {
		got := MaskSecret(tt.value, tt.showChars)
		if got != tt.expected {
			t.Errorf("MaskSecret(%q, %d) = %q, want %q", tt.value, tt.showChars, got, tt.expected)
		}
	}
}

func TestMaskInString(t *testing.T) {
	result := MaskInString("open store with key sk-12345678", "sk-12345678")
	if result != "open store with key sk*******78" {
		t.Fatalf("unexpected: %s", result)
	}
}

func TestMaskInString_ShortSecret(t *testing.T) {
	result := MaskInString("key is abc", "abc")
	if result != "key is abc" {
		t.Fatal("short secrets should not be masked")
	}
}

func TestSecretRegistry_Sanitize(t *testing.T) {
	sr := NewSecretRegistry()
	sr.Register("device-key-abcdefghij")

	text := "decrypt with device-key-abcdefghij failed"
	result := sr.Sanitize(text)
	if strings.Contains(result, "device-key-abcdefghij") {
		t.Fatalf("secret not masked: %s", result)
	}
}

func TestSecretRegistry_Nil(t *testing.T) {
	var sr *SecretRegistry
	if sr.Sanitize("text") != "text" {
		t.Fatal("nil registry should pass text through")
	}
}

func TestSecretRegistry_EmptySecret(t *testing.T) {
	sr := NewSecretRegistry()
	sr.Register("")
	sr.Register("ab")
	if sr.Count() != 0 {
		t.Fatal("empty and short secrets should be rejected")
	}
}
