package guard

import (
	"context"
	"testing"
	"time"

	"github.com/paritytech/parity-bridges-common/pkg/chain"
)

type fakeReader struct {
	version chain.RuntimeVersion
	err     error
}

func (f *fakeReader) RuntimeVersion(context.Context) (chain.RuntimeVersion, error) {
	return f.version, f.err
}

func TestCheckCompatible(t *testing.T) {
	reader := &fakeReader{version: chain.RuntimeVersion{SpecVersion: 100, TransactionVersion: 4}}
	g := New("finality", chain.RuntimeVersion{SpecVersion: 100, TransactionVersion: 4}, reader, Policy{})

	v, err := g.Check(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if v != Compatible {
		t.Fatalf("expected Compatible, got %s", v)
	}
}

func TestCheckSpecOnlyPermissive(t *testing.T) {
	reader := &fakeReader{version: chain.RuntimeVersion{SpecVersion: 101, TransactionVersion: 4}}
	g := New("finality", chain.RuntimeVersion{SpecVersion: 100, TransactionVersion: 4}, reader, Policy{})

	v, err := g.Check(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if v != SpecOnly {
		t.Fatalf("expected SpecOnly, got %s", v)
	}
}

func TestCheckSpecOnlyRestrictive(t *testing.T) {
	reader := &fakeReader{version: chain.RuntimeVersion{SpecVersion: 101, TransactionVersion: 4}}
	g := New("finality", chain.RuntimeVersion{SpecVersion: 100, TransactionVersion: 4}, reader, Policy{SpecOnlyRestrictive: true})

	v, err := g.Check(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if v != Incompatible {
		t.Fatalf("expected Incompatible under restrictive policy, got %s", v)
	}
}

func TestCheckIncompatibleTriggersCallback(t *testing.T) {
	reader := &fakeReader{version: chain.RuntimeVersion{SpecVersion: 100, TransactionVersion: 5}}
	g := New("finality", chain.RuntimeVersion{SpecVersion: 100, TransactionVersion: 4}, reader, Policy{})

	var called bool
	g.OnIncompatible(func(Compatibility, chain.RuntimeVersion) { called = true })

	v, err := g.Check(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if v != Incompatible {
		t.Fatalf("expected Incompatible, got %s", v)
	}
	if !called {
		t.Fatal("expected OnIncompatible callback to fire")
	}
}

func TestRunAbortsWithinOnePollInterval(t *testing.T) {
	reader := &fakeReader{version: chain.RuntimeVersion{SpecVersion: 100, TransactionVersion: 5}}
	g := New("finality", chain.RuntimeVersion{SpecVersion: 100, TransactionVersion: 4}, reader, Policy{})

	done := make(chan error, 1)
	go func() {
		done <- g.Run(context.Background(), 10*time.Millisecond)
	}()

	select {
	case err := <-done:
		if err == nil {
			t.Fatal("expected Run to return an incompatibility error")
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not abort within a reasonable time")
	}
}
