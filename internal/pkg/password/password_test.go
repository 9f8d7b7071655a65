package password

import (
	"strings"
	"testing"
)

func TestHashAndVerify(t *testing.T) {
	hash, err := Hash("correct horse")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if !Verify("correct horse", hash) {
		t.Fatal("expected password to verify")
	}
	if Verify("wrong", hash) {
		t.Fatal("wrong password verified")
	}
}

func TestHashRejectsLongPassword(t *testing.T) {
	if _, err := Hash(strings.Repeat("x", 73)); err != ErrTooLong {
		t.Fatalf("expected ErrTooLong, got %v", err)
	}
}
