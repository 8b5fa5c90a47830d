package apikey

import "testing"

func TestSplitKeyRoundTrip(t *testing.T) {
	id := "b6f3f3f0-6e3a-4c9e-9f3a-6e3a4c9e9f3a"
	secret := "abcDEF123-_xyz"
	plain := keyPrefix + "_" + id + "_" + secret

	gotID, gotSecret, ok := SplitKey(plain)
	if !ok {
		t.Fatalf("expected SplitKey to succeed for %q", plain)
	}
	if gotID != id {
		t.Errorf("id = %q, want %q", gotID, id)
	}
	if gotSecret != secret {
		t.Errorf("secret = %q, want %q", gotSecret, secret)
	}
}

func TestSplitKeyRejectsWrongPrefix(t *testing.T) {
	if _, _, ok := SplitKey("other_id_secret"); ok {
		t.Fatal("expected SplitKey to reject a non-wsk key")
	}
}

func TestSplitKeyRejectsMalformed(t *testing.T) {
	if _, _, ok := SplitKey("wsk_onlyid"); ok {
		t.Fatal("expected SplitKey to reject a key missing a secret segment")
	}
}
