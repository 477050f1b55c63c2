package http

import (
	"crypto/hmac"
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"fmt"
	"hash"
	"strings"
)

var hmacAlgorithms = map[string]func() hash.Hash{
	"md5":        md5.New,
	"sha1":       sha1.New,
	"sha256":     sha256.New,
	"sha384":     sha512.New384,
	"sha512":     sha512.New,
	"sha512_224": sha512.New512_224,
	"sha512_256": sha512.New512_256,
}

// HMACHasher signs payloads with crypto/hmac
type HMACHasher struct{}

// Hash returns the HMAC of payload keyed with secret
func (HMACHasher) Hash(algorithm, secret string, payload []byte) ([]byte, error) {
	name := strings.ToLower(strings.ReplaceAll(algorithm, "-", ""))
	newHash, ok := hmacAlgorithms[name]
	if !ok {
		return nil, fmt.Errorf("unsupported hmac algorithm %q", algorithm)
	}
	mac := hmac.New(newHash, []byte(secret))
	mac.Write(payload)
	return mac.Sum(nil), nil
}
