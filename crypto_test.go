package main

import "testing"

func TestKeygenAddressRoundTrip(t *testing.T) {
	priv, pub, addr, err := keygen()
	if err != nil {
		t.Fatalf("keygen: %v", err)
	}
	if priv == "" || pub == "" {
		t.Fatal("keygen returned empty private or public key")
	}
	if got := addressOf(pub); got != addr {
		t.Errorf("addressOf(pub) = %q, want %q", got, addr)
	}
	if !isValidAddressShape(addr) {
		t.Errorf("keygen address %q does not have a valid shape", addr)
	}
}

func TestDerivePubMatchesKeygen(t *testing.T) {
	priv, pub, _, err := keygen()
	if err != nil {
		t.Fatalf("keygen: %v", err)
	}
	derived, err := derivePub(priv)
	if err != nil {
		t.Fatalf("derivePub: %v", err)
	}
	if derived != pub {
		t.Errorf("derivePub(priv) = %q, want %q", derived, pub)
	}
}

func TestIsValidAddressShape(t *testing.T) {
	_, _, addr, err := keygen()
	if err != nil {
		t.Fatalf("keygen: %v", err)
	}
	cases := []struct {
		name    string
		address string
		want    bool
	}{
		{"valid", addr, true},
		{"too short", "J0000", false},
		{"wrong prefix", "K" + addr[1:], false},
		{"uppercase hex", "J" + "A" + addr[2:], false},
		{"empty", "", false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := isValidAddressShape(c.address); got != c.want {
				t.Errorf("isValidAddressShape(%q) = %v, want %v", c.address, got, c.want)
			}
		})
	}
}

func TestSignAndVerifyMessage(t *testing.T) {
	priv, pub, _, err := keygen()
	if err != nil {
		t.Fatalf("keygen: %v", err)
	}
	msg := []byte("sole transaction payload")

	sig, err := signMessage(priv, msg)
	if err != nil {
		t.Fatalf("signMessage: %v", err)
	}
	if !verifyMessage(pub, sig, msg) {
		t.Error("verifyMessage rejected a valid signature")
	}
	if verifyMessage(pub, sig, []byte("tampered payload")) {
		t.Error("verifyMessage accepted a signature over a different message")
	}

	_, otherPub, _, err := keygen()
	if err != nil {
		t.Fatalf("keygen: %v", err)
	}
	if verifyMessage(otherPub, sig, msg) {
		t.Error("verifyMessage accepted a signature under the wrong public key")
	}
}

func TestVerifyMessageNeverPanicsOnGarbage(t *testing.T) {
	if verifyMessage("not-hex", "also-not-hex", []byte("x")) {
		t.Error("verifyMessage should reject malformed input, not accept it")
	}
	if verifyMessage("", "", nil) {
		t.Error("verifyMessage should reject empty input")
	}
}

func TestRandomIDIsUniqueAndShaped(t *testing.T) {
	a, err := randomID()
	if err != nil {
		t.Fatalf("randomID: %v", err)
	}
	b, err := randomID()
	if err != nil {
		t.Fatalf("randomID: %v", err)
	}
	if a == b {
		t.Error("randomID produced the same id twice")
	}
	if len(a) != 64 {
		t.Errorf("randomID length = %d, want 64", len(a))
	}
}
