package keystore

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func testKeystore(t *testing.T) (*FileKeystore, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "keys.enc")
	ks, err := NewFileKeystore(path)
	if err != nil {
		t.Fatalf("NewFileKeystore() error = %v", err)
	}
	return ks, path
}

func TestSetAndGet(t *testing.T) {
	ks, _ := testKeystore(t)

	if err := ks.Set("roraos", "sk-secret-123"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	got, err := ks.Get("roraos")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got != "sk-secret-123" {
		t.Errorf("Get() = %q", got)
	}
}

func TestGetMissingKey(t *testing.T) {
	ks, _ := testKeystore(t)

	_, err := ks.Get("nope")
	var notFound *ErrKeyNotFound
	if !errors.As(err, &notFound) {
		t.Errorf("Get() error = %v, want *ErrKeyNotFound", err)
	}
}

func TestDelete(t *testing.T) {
	ks, _ := testKeystore(t)

	_ = ks.Set("a", "value")
	if err := ks.Delete("a"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := ks.Get("a"); err == nil {
		t.Error("Get() after Delete() should fail")
	}

	var notFound *ErrKeyNotFound
	if err := ks.Delete("a"); !errors.As(err, &notFound) {
		t.Errorf("second Delete() error = %v, want *ErrKeyNotFound", err)
	}
}

func TestListSorted(t *testing.T) {
	ks, _ := testKeystore(t)

	for _, name := range []string{"zeta", "alpha", "mid"} {
		_ = ks.Set(name, "v")
	}

	names, err := ks.List()
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	want := []string{"alpha", "mid", "zeta"}
	if len(names) != len(want) {
		t.Fatalf("List() = %v", names)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("List()[%d] = %q, want %q", i, names[i], want[i])
		}
	}
}

func TestListEmpty(t *testing.T) {
	ks, _ := testKeystore(t)
	names, err := ks.List()
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(names) != 0 {
		t.Errorf("List() = %v, want empty", names)
	}
}

func TestFileIsEncrypted(t *testing.T) {
	ks, path := testKeystore(t)
	_ = ks.Set("roraos", "sk-very-secret")

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if string(data[:len(magicHeader)]) != magicHeader {
		t.Errorf("file missing magic header: %q", data[:8])
	}
	if bytes.Contains(data, []byte("sk-very-secret")) {
		t.Error("plaintext key leaked into the keystore file")
	}
}

func TestWrongKeyFailsDecryption(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keys.enc")

	ks1 := NewFileKeystoreWithKey(path, []byte("master-one"))
	if err := ks1.Set("a", "v"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	ks2 := NewFileKeystoreWithKey(path, []byte("master-two"))
	if _, err := ks2.Get("a"); err == nil {
		t.Error("Get() with a different master key should fail")
	}
}

func TestValuesSurviveReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keys.enc")
	master := []byte("stable-master")

	ks1 := NewFileKeystoreWithKey(path, master)
	_ = ks1.Set("roraos", "sk-123")

	ks2 := NewFileKeystoreWithKey(path, master)
	got, err := ks2.Get("roraos")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got != "sk-123" {
		t.Errorf("Get() = %q", got)
	}
}
