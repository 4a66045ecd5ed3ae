package checksum

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"strings"
	"testing"
)

func TestSignMatchesDefinition(t *testing.T) {
	t.Parallel()

	payload := base64.StdEncoding.EncodeToString([]byte(`{"merchantTransactionId":"MT1"}`))
	salt := Salt{Key: "099eb0cd-02cf-4e2a-8aca-3e6c6aff0399", Index: 1}

	sum := sha256.Sum256([]byte(payload + "/pg/v1/pay" + salt.Key))
	want := hex.EncodeToString(sum[:]) + "###1"

	if got := Sign(salt, payload, "/pg/v1/pay"); got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}

func TestVerifyRoundTrip(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		payload string
		salt    Salt
	}{
		{name: "typical", payload: "eyJzdWNjZXNzIjp0cnVlfQ==", salt: Salt{Key: "k1", Index: 1}},
		{name: "empty_payload", payload: "", salt: Salt{Key: "k2", Index: 2}},
		{name: "large_index", payload: "abc", salt: Salt{Key: "k3", Index: 42}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			header := Sign(tt.salt, tt.payload)
			if !Verify(tt.payload, header, tt.salt) {
				t.Fatalf("expected header %q to verify", header)
			}
		})
	}
}

func TestVerifyRejectsSingleCharacterMutation(t *testing.T) {
	t.Parallel()

	salt := Salt{Key: "secret", Index: 1}
	payload := "eyJjb2RlIjoiUEFZTUVOVF9TVUNDRVNTIn0="
	header := Sign(salt, payload)

	for i := range header {
		b := []byte(header)
		if b[i] == 'a' {
			b[i] = 'b'
		} else {
			b[i] = 'a'
		}
		if Verify(payload, string(b), salt) {
			t.Fatalf("mutation at position %d verified: %q", i, b)
		}
	}
}

func TestVerifyRejectsWrongSaltIndex(t *testing.T) {
	t.Parallel()

	salt := Salt{Key: "secret", Index: 1}
	payload := "cGF5bG9hZA=="
	header := Sign(salt, payload)

	hash, _, ok := SplitHeader(header)
	if !ok {
		t.Fatalf("split %q", header)
	}
	forged := hash + "###2"

	if Verify(payload, forged, salt) {
		t.Fatal("expected header with wrong salt index to be rejected")
	}
	if Verify(payload, forged, Salt{Key: "secret", Index: 2}) {
		t.Fatal("hash computed without index must not verify under index 2 key set")
	}
}

func TestVerifyRejectsWrongKeyAndPayload(t *testing.T) {
	t.Parallel()

	salt := Salt{Key: "secret", Index: 1}
	header := Sign(salt, "payload")

	if Verify("payload", header, Salt{Key: "other", Index: 1}) {
		t.Fatal("expected wrong key to be rejected")
	}
	if Verify("payload2", header, salt) {
		t.Fatal("expected different payload to be rejected")
	}
	if Verify("payload", strings.ToUpper(header), salt) {
		t.Fatal("comparison must be byte exact")
	}
}

func TestSplitHeader(t *testing.T) {
	t.Parallel()

	tests := []struct {
		header string
		hash   string
		index  int
		ok     bool
	}{
		{header: "abc###1", hash: "abc", index: 1, ok: true},
		{header: "abc###", ok: false},
		{header: "abc", ok: false},
		{header: "###1", ok: false},
		{header: "abc###x", ok: false},
	}

	for _, tt := range tests {
		hash, index, ok := SplitHeader(tt.header)
		if ok != tt.ok || hash != tt.hash || index != tt.index {
			t.Fatalf("SplitHeader(%q) = %q, %d, %v", tt.header, hash, index, ok)
		}
	}
}
