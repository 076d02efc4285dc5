package sign

import (
	"strings"
	"testing"
)

func TestArmorRoundTrip(t *testing.T) {
	kp, err := GenerateKeyPair()
	if err != nil {
		t.Fatalf("generate keypair: %v", err)
	}
	payload := []byte(`{"version":"1.0"}`)
	sig, err := SignCanonical(kp.Private, payload)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	armored, err := Armor(sig)
	if err != nil {
		t.Fatalf("armor: %v", err)
	}
	if !strings.HasPrefix(string(armored), armorHeader+"\n") {
		t.Fatalf("armored output missing header: %q", armored)
	}
	parsed, err := ParseArmor(armored)
	if err != nil {
		t.Fatalf("parse armor: %v", err)
	}
	if parsed != sig {
		t.Fatalf("round trip mismatch: %+v vs %+v", parsed, sig)
	}
	ok, err := VerifyCanonical(kp.Public, parsed, payload)
	if err != nil {
		t.Fatalf("verify parsed signature: %v", err)
	}
	if !ok {
		t.Fatalf("parsed signature did not verify")
	}
}

func TestParseArmorRejectsMissingHeader(t *testing.T) {
	if _, err := ParseArmor([]byte(`{"alg":"ed25519","sig":"x"}`)); err == nil {
		t.Fatalf("expected error for missing header")
	}
}

func TestParseArmorRejectsBadRecord(t *testing.T) {
	if _, err := ParseArmor([]byte(armorHeader + "\nnot-json")); err == nil {
		t.Fatalf("expected error for malformed record")
	}
	if _, err := ParseArmor([]byte(armorHeader + "\n{}")); err == nil {
		t.Fatalf("expected error for incomplete record")
	}
}
