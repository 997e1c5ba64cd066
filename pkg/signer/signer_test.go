package signer

import "testing"

func TestFromDevSeedDeterministic(t *testing.T) {
	s1, err := FromDevSeed("//Alice")
	if err != nil {
		t.Fatal(err)
	}
	s2, err := FromDevSeed("//Alice")
	if err != nil {
		t.Fatal(err)
	}
	if s1.Address() != s2.Address() {
		t.Fatal("expected the same dev seed to derive the same address")
	}

	s3, _ := FromDevSeed("//Bob")
	if s1.Address() == s3.Address() {
		t.Fatal("expected different dev seeds to derive different addresses")
	}
}

func TestFromDevSeedRequiresPrefix(t *testing.T) {
	if _, err := FromDevSeed("Alice"); err == nil {
		t.Fatal("expected error for seed missing // prefix")
	}
}

func TestBuildProducesSignedExtrinsic(t *testing.T) {
	s, err := FromDevSeed("//Alice")
	if err != nil {
		t.Fatal(err)
	}
	ext, err := Build(s, []byte("call-payload"), 5, MortalityPolicy{Period: 64, BirthBlock: 100}, TipPolicy{Tip: 1})
	if err != nil {
		t.Fatal(err)
	}
	if ext.Nonce != 5 {
		t.Fatalf("expected nonce 5, got %d", ext.Nonce)
	}
	if len(ext.Signature) == 0 {
		t.Fatal("expected non-empty signature")
	}
	if ext.Signer != s.Address() {
		t.Fatalf("expected signer %s, got %s", s.Address(), ext.Signer)
	}
}

func TestBuildDifferentNoncesProduceDifferentSignatures(t *testing.T) {
	s, _ := FromDevSeed("//Alice")
	e1, _ := Build(s, []byte("call"), 1, MortalityPolicy{Period: 64}, TipPolicy{})
	e2, _ := Build(s, []byte("call"), 2, MortalityPolicy{Period: 64}, TipPolicy{})
	if string(e1.Signature) == string(e2.Signature) {
		t.Fatal("expected different nonces to change the signed payload")
	}
}
