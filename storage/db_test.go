package storage

import (
	"bytes"
	"errors"
	"testing"
)

func TestMemDBRoundTrip(t *testing.T) {
	db := NewMemDB()
	if err := db.Put([]byte("ticket/1"), []byte{0x01, 0x02}); err != nil {
		t.Fatalf("put: %v", err)
	}
	got, err := db.Get([]byte("ticket/1"))
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !bytes.Equal(got, []byte{0x01, 0x02}) {
		t.Fatalf("unexpected value %x", got)
	}
	ok, err := db.Has([]byte("ticket/1"))
	if err != nil || !ok {
		t.Fatalf("has: ok=%v err=%v", ok, err)
	}
}

func TestMemDBMissingKey(t *testing.T) {
	db := NewMemDB()
	if _, err := db.Get([]byte("absent")); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMemDBDelete(t *testing.T) {
	db := NewMemDB()
	if err := db.Put([]byte("k"), []byte("v")); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := db.Delete([]byte("k")); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if ok, _ := db.Has([]byte("k")); ok {
		t.Fatal("key should be gone after delete")
	}
	// Deleting an absent key is a no-op, not an error.
	if err := db.Delete([]byte("k")); err != nil {
		t.Fatalf("double delete: %v", err)
	}
}

func TestMemDBCopiesValues(t *testing.T) {
	db := NewMemDB()
	value := []byte{0xAA}
	if err := db.Put([]byte("k"), value); err != nil {
		t.Fatalf("put: %v", err)
	}
	value[0] = 0xBB
	got, err := db.Get([]byte("k"))
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got[0] != 0xAA {
		t.Fatal("stored value must not alias caller's slice")
	}
}
