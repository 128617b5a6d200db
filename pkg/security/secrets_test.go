package security

import (
	"bytes"
	"testing"
)

func TestNewSecretsManager(t *testing.T) {
	tests := []struct {
		name    string
		key     []byte
		wantErr bool
	}{
		{name: "valid 32-byte key", key: make([]byte, 32), wantErr: false},
		{name: "invalid short key", key: make([]byte, 16), wantErr: true},
		{name: "invalid long key", key: make([]byte, 64), wantErr: true},
		{name: "empty key", key: []byte{}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sm, err := NewSecretsManager(tt.key)
			if (err != nil) != tt.wantErr {
				t.Errorf("NewSecretsManager() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if !tt.wantErr && sm == nil {
				t.Error("NewSecretsManager() returned nil without error")
			}
		})
	}
}

func TestNewSecretsManagerFromPassword(t *testing.T) {
	if _, err := NewSecretsManagerFromPassword(""); err == nil {
		t.Error("expected error for empty password")
	}
	if _, err := NewSecretsManagerFromPassword("correct-horse-battery-staple"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestEncryptDecryptRoundtrip(t *testing.T) {
	key := make([]byte, 32)
	copy(key, []byte("test-encryption-key-32-bytes-!!"))
	sm, err := NewSecretsManager(key)
	if err != nil {
		t.Fatalf("NewSecretsManager: %v", err)
	}

	tests := [][]byte{
		[]byte("hello world"),
		[]byte(`{"client_secret":"super-secret-value"}`),
		{0x00, 0x01, 0x02, 0xFF, 0xFE, 0xFD},
		bytes.Repeat([]byte("test"), 1000),
	}

	for _, plaintext := range tests {
		ciphertext, err := sm.Encrypt(plaintext)
		if err != nil {
			t.Fatalf("Encrypt: %v", err)
		}
		if bytes.Equal(ciphertext, plaintext) {
			t.Error("ciphertext should not equal plaintext")
		}
		decrypted, err := sm.Decrypt(ciphertext)
		if err != nil {
			t.Fatalf("Decrypt: %v", err)
		}
		if !bytes.Equal(decrypted, plaintext) {
			t.Errorf("roundtrip mismatch: got %v want %v", decrypted, plaintext)
		}
	}
}

func TestEncryptToStringRoundtrip(t *testing.T) {
	sm, _ := NewSecretsManagerFromPassword("test-password")
	encoded, err := sm.EncryptToString("azure-client-secret-value")
	if err != nil {
		t.Fatalf("EncryptToString: %v", err)
	}
	decoded, err := sm.DecryptFromString(encoded)
	if err != nil {
		t.Fatalf("DecryptFromString: %v", err)
	}
	if decoded != "azure-client-secret-value" {
		t.Errorf("got %q, want original plaintext", decoded)
	}
}

func TestDecryptSecret_Errors(t *testing.T) {
	key := make([]byte, 32)
	sm, _ := NewSecretsManager(key)

	tests := []struct {
		name       string
		ciphertext []byte
	}{
		{name: "empty data", ciphertext: []byte{}},
		{name: "nil data", ciphertext: nil},
		{name: "too short data", ciphertext: []byte{0x01, 0x02}},
		{name: "corrupted data", ciphertext: bytes.Repeat([]byte("x"), 100)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := sm.Decrypt(tt.ciphertext); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}

func TestDecryptWithWrongKey(t *testing.T) {
	key1 := make([]byte, 32)
	copy(key1, []byte("key-one-32-bytes-long-!!!!!!!!!!"))
	key2 := make([]byte, 32)
	copy(key2, []byte("key-two-32-bytes-long-!!!!!!!!!!"))

	sm1, _ := NewSecretsManager(key1)
	sm2, _ := NewSecretsManager(key2)

	ciphertext, err := sm1.Encrypt([]byte("secret data"))
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if _, err := sm2.Decrypt(ciphertext); err == nil {
		t.Error("expected decryption with the wrong key to fail")
	}
}
