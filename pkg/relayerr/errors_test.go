package relayerr

import (
	"errors"
	"testing"
)

func TestIsClassification(t *testing.T) {
	err := New(Transient, errors.New("timeout"))
	if !Is(err, Transient) {
		t.Fatal("expected Transient classification")
	}
	if Is(err, Fatal) {
		t.Fatal("did not expect Fatal classification")
	}
}

func TestUnwrap(t *testing.T) {
	cause := errors.New("boom")
	err := New(Invalid, cause)
	if !errors.Is(err, cause) {
		t.Fatal("expected errors.Is to unwrap to cause")
	}
}

func TestIsOnPlainError(t *testing.T) {
	if Is(errors.New("plain"), Transient) {
		t.Fatal("plain errors should never match a Kind")
	}
}
