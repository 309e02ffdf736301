package storage

import "testing"

func TestSQLStoreRoundTrips(t *testing.T) {
	s, err := OpenSQLStore(":memory:")
	if err != nil {
		t.Fatalf("OpenSQLStore: %v", err)
	}

	if _, ok, err := s.Get(BlobNameSettings); err != nil || ok {
		t.Fatalf("expected no settings blob yet, got ok=%v err=%v", ok, err)
	}

	if err := s.Put(BlobNameSettings, []byte("hello")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	got, ok, err := s.Get(BlobNameSettings)
	if err != nil || !ok {
		t.Fatalf("Get: ok=%v err=%v", ok, err)
	}
	if string(got) != "hello" {
		t.Fatalf("expected %q, got %q", "hello", got)
	}
}

func TestSQLStorePutOverwritesExistingBlob(t *testing.T) {
	s, err := OpenSQLStore(":memory:")
	if err != nil {
		t.Fatalf("OpenSQLStore: %v", err)
	}

	if err := s.Put(BlobNameKeys, []byte("first")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := s.Put(BlobNameKeys, []byte("second")); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, ok, err := s.Get(BlobNameKeys)
	if err != nil || !ok {
		t.Fatalf("Get: ok=%v err=%v", ok, err)
	}
	if string(got) != "second" {
		t.Fatalf("expected overwritten value %q, got %q", "second", got)
	}
}

func TestSQLStoreKeepsBlobNamesIndependent(t *testing.T) {
	s, err := OpenSQLStore(":memory:")
	if err != nil {
		t.Fatalf("OpenSQLStore: %v", err)
	}

	_ = s.Put(BlobNameSettings, []byte("settings-blob"))
	_ = s.Put(BlobNameCounters, []byte("counters-blob"))

	got, _, _ := s.Get(BlobNameSettings)
	if string(got) != "settings-blob" {
		t.Fatalf("expected settings blob unaffected by counters write, got %q", got)
	}
}
