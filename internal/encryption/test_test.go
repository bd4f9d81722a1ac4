package encryption

import (
	"bytes"
	"testing"

	"hoard-go/internal/config"
)

func TestFakeEncryptor_RoundTrip(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input []byte
	}{
		{name: "simple text", input: []byte("hello world")},
		{name: "empty", input: []byte{}},
		{name: "large data", input: bytes.Repeat([]byte("abcdef"), 10000)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			e := NewFakeEncryptor()

			var encrypted bytes.Buffer
			if err := e.Encrypt(bytes.NewReader(tt.input), &encrypted); err != nil {
				t.Fatalf("Encrypt() error = %v", err)
			}
			if !bytes.HasPrefix(encrypted.Bytes(), fakeMagic) {
				t.Error("output does not start with the marker")
			}

			dc, err := e.Unlock("anything")
			if err != nil {
				t.Fatalf("Unlock() error = %v", err)
			}
			var decrypted bytes.Buffer
			if err := dc.Decrypt(bytes.NewReader(encrypted.Bytes()), &decrypted); err != nil {
				t.Fatalf("Decrypt() error = %v", err)
			}
			if !bytes.Equal(decrypted.Bytes(), tt.input) {
				t.Errorf("round-trip failed: got %d bytes, want %d", decrypted.Len(), len(tt.input))
			}
		})
	}
}

func TestFakeEncryptor_Passphrase(t *testing.T) {
	t.Parallel()
	e := NewFakeEncryptor()
	if err := e.Setup("secret"); err != nil {
		t.Fatalf("Setup() error = %v", err)
	}
	if _, err := e.Unlock("other"); !ErrWrongPassphrase.Has(err) {
		t.Errorf("Unlock() error = %v, want ErrWrongPassphrase", err)
	}
	if _, err := e.Unlock("secret"); err != nil {
		t.Errorf("Unlock() error = %v", err)
	}
}

func TestFakeDecryptionContext_BadInput(t *testing.T) {
	t.Parallel()
	for _, in := range [][]byte{nil, []byte("HO"), []byte("NOT A FAKE STREAM")} {
		var out bytes.Buffer
		if err := (fakeDecryptionContext{}).Decrypt(bytes.NewReader(in), &out); err == nil {
			t.Errorf("Decrypt(%q) succeeded", in)
		}
	}
}

func TestNewEncryptorFromConfig(t *testing.T) {
	tests := []struct {
		typ     string
		wantErr bool
	}{
		{"", false},
		{"age", false},
		{"test", false},
		{"rot13", true},
	}
	for _, tt := range tests {
		_, err := NewEncryptorFromConfig(config.EncryptionConfig{Type: tt.typ})
		if (err != nil) != tt.wantErr {
			t.Errorf("NewEncryptorFromConfig(%q) error = %v, wantErr %v", tt.typ, err, tt.wantErr)
		}
	}
}
