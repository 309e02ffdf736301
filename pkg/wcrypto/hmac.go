package wcrypto

import (
	"crypto/hmac"
	"crypto/sha256"
)

// HMACSHA256 computes HMAC-SHA256(key, concat(messages...)). The origin's
// uw_crypto_hmac_ takes a scatter list of messages for the same reason a
// streaming hash.Hash does: to avoid copying the caveat-signing input into
// one contiguous buffer on a constrained device. Go doesn't need that
// trick; crypto/hmac already streams via Write.
func HMACSHA256(key []byte, messages ...[]byte) []byte {
	mac := hmac.New(sha256.New, key)
	for _, m := range messages {
		mac.Write(m)
	}
	return mac.Sum(nil)
}
