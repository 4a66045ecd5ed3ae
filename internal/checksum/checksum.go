// Package checksum computes and verifies the gateway's X-VERIFY header:
// hex(SHA256(parts... + saltKey)) + "###" + saltIndex.
package checksum

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"strconv"
	"strings"
)

const separator = "###"

// Salt is one merchant key pair issued by the gateway.
type Salt struct {
	Key   string
	Index int
}

// Sign returns the header for the concatenation of parts. Callbacks sign the
// base64 payload alone, pay requests sign payload + "/pg/v1/pay", status
// checks sign the request path.
func Sign(salt Salt, parts ...string) string {
	h := sha256.New()
	for _, p := range parts {
		h.Write([]byte(p))
	}
	h.Write([]byte(salt.Key))
	return hex.EncodeToString(h.Sum(nil)) + separator + strconv.Itoa(salt.Index)
}

// Verify reports whether header authenticates payload under salt. The
// comparison covers the hash and the index and runs in constant time.
func Verify(payload, header string, salt Salt) bool {
	want := Sign(salt, payload)
	return subtle.ConstantTimeCompare([]byte(want), []byte(header)) == 1
}

// SplitHeader separates a header into its hash and salt index. ok is false
// when the header is not in hash###index form.
func SplitHeader(header string) (hash string, index int, ok bool) {
	h, idx, found := strings.Cut(header, separator)
	if !found || h == "" {
		return "", 0, false
	}
	n, err := strconv.Atoi(idx)
	if err != nil {
		return "", 0, false
	}
	return h, n, true
}
