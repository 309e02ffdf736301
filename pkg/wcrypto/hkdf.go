package wcrypto

import (
	"crypto/sha256"
	"io"

	"golang.org/x/crypto/hkdf"
)

// HKDFSHA256 derives exactly 32 bytes from ikm, salt and info. The origin's
// uw_crypto_hkdf_ is a simplified single-round HKDF (extract once, then one
// expand round producing exactly one hash-length block: HMAC(prk,
// info||0x01)), which is precisely RFC 5869 HKDF-Expand for an output no
// longer than the hash size. golang.org/x/crypto/hkdf implements the
// general multi-round RFC 5869 construction, which agrees with the origin
// exactly at this output length.
func HKDFSHA256(ikm, salt, info []byte) ([]byte, error) {
	r := hkdf.New(sha256.New, ikm, salt, info)
	out := make([]byte, sha256.Size)
	if _, err := io.ReadFull(r, out); err != nil {
		return nil, err
	}
	return out, nil
}
