package encryption

import (
	"bufio"
	"bytes"
	"fmt"
	"io"

	"hoard-go/internal/hoard"
)

// fakeMagic marks output of FakeEncryptor.
var fakeMagic = []byte("HOARDFAKE\n")

// FakeEncryptor frames data with a fixed marker instead of encrypting it.
// Output differs from the input and round-trips without keys, which is
// enough to exercise the snapshot pipeline in tests. Selected with
// encryption type "test".
type FakeEncryptor struct {
	passphrase string
}

var _ hoard.Encryptor = (*FakeEncryptor)(nil)

func NewFakeEncryptor() *FakeEncryptor {
	return &FakeEncryptor{}
}

// Setup remembers the passphrase so Unlock can reject a different one.
func (e *FakeEncryptor) Setup(passphrase string) error {
	e.passphrase = passphrase
	return nil
}

func (e *FakeEncryptor) Encrypt(r io.Reader, w io.Writer) error {
	if _, err := w.Write(fakeMagic); err != nil {
		return fmt.Errorf("writing marker: %w", err)
	}
	if _, err := io.Copy(w, r); err != nil {
		return fmt.Errorf("copying data: %w", err)
	}
	return nil
}

func (e *FakeEncryptor) Unlock(passphrase string) (hoard.DecryptionContext, error) {
	if e.passphrase != "" && passphrase != e.passphrase {
		return nil, ErrWrongPassphrase.New("fake encryptor")
	}
	return fakeDecryptionContext{}, nil
}

func (e *FakeEncryptor) IsConfigured() bool {
	return true
}

type fakeDecryptionContext struct{}

func (fakeDecryptionContext) Decrypt(r io.Reader, w io.Writer) error {
	br := bufio.NewReader(r)
	head := make([]byte, len(fakeMagic))
	if _, err := io.ReadFull(br, head); err != nil {
		return fmt.Errorf("reading marker: %w", err)
	}
	if !bytes.Equal(head, fakeMagic) {
		return fmt.Errorf("input was not produced by FakeEncryptor")
	}
	if _, err := io.Copy(w, br); err != nil {
		return fmt.Errorf("copying data: %w", err)
	}
	return nil
}
