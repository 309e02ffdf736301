package wcrypto

import (
	"crypto/aes"
	"crypto/subtle"
	"errors"
)

// ErrAuthenticationFailed is returned by Open when the tag does not verify.
var ErrAuthenticationFailed = errors.New("wcrypto: eax authentication failed")

func incrementMSB(buf []byte) {
	for i := len(buf) - 1; i >= 0; i-- {
		if buf[i] < 0xff {
			buf[i]++
			return
		}
		buf[i] = 0
	}
}

func tweakBlock(v byte) []byte {
	t := make([]byte, blockSize)
	t[blockSize-1] = v
	return t
}

func concat(parts ...[]byte) []byte {
	n := 0
	for _, p := range parts {
		n += len(p)
	}
	out := make([]byte, 0, n)
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

// eaxCore computes the OMAC1-derived counter seed and the AD/nonce mac, the
// two values shared between Seal and Open.
func eaxCore(key, nonce, ad []byte) (ctr, adMac []byte, err error) {
	ctr, err = CMAC(key, concat(tweakBlock(0), nonce))
	if err != nil {
		return nil, nil, err
	}
	adCMAC, err := CMAC(key, concat(tweakBlock(1), ad))
	if err != nil {
		return nil, nil, err
	}
	adMac = make([]byte, blockSize)
	xorBlock(adMac, adCMAC, ctr)
	return ctr, adMac, nil
}

func ctrCrypt(key, ctr []byte, in []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	counter := append([]byte(nil), ctr...)
	out := make([]byte, len(in))
	keyBlock := make([]byte, blockSize)
	for off := 0; off < len(in); off += blockSize {
		block.Encrypt(keyBlock, counter)
		incrementMSB(counter)
		end := off + blockSize
		if end > len(in) {
			end = len(in)
		}
		chunk := end - off
		xorBlock(out[off:end], in[off:end], keyBlock[:chunk])
	}
	return out, nil
}

// Seal encrypts plaintext under key with the given nonce and associated
// data, appending a tag of tagLength bytes (1..16). This is the EAX
// construction from crypto_eax.c: OMAC1(tweak=0, nonce) seeds the CTR
// keystream, OMAC1(tweak=1, ad) and OMAC1(tweak=2, ciphertext) combine into
// the tag.
func Seal(key, nonce, ad, plaintext []byte, tagLength int) ([]byte, error) {
	if tagLength <= 0 || tagLength > blockSize {
		return nil, errors.New("wcrypto: invalid tag length")
	}
	ctr, adMac, err := eaxCore(key, nonce, ad)
	if err != nil {
		return nil, err
	}
	ciphertext, err := ctrCrypt(key, ctr, plaintext)
	if err != nil {
		return nil, err
	}
	cMac, err := CMAC(key, concat(tweakBlock(2), ciphertext))
	if err != nil {
		return nil, err
	}
	tag := make([]byte, blockSize)
	xorBlock(tag, cMac, adMac)

	out := make([]byte, len(ciphertext)+tagLength)
	copy(out, ciphertext)
	copy(out[len(ciphertext):], tag[:tagLength])
	return out, nil
}

// Open verifies and decrypts a Seal-produced ciphertext. Returns
// ErrAuthenticationFailed (and no plaintext) if the tag does not match.
func Open(key, nonce, ad, sealed []byte, tagLength int) ([]byte, error) {
	if tagLength <= 0 || tagLength > blockSize {
		return nil, errors.New("wcrypto: invalid tag length")
	}
	if len(sealed) < tagLength {
		return nil, ErrAuthenticationFailed
	}
	ciphertext := sealed[:len(sealed)-tagLength]
	gotTag := sealed[len(sealed)-tagLength:]

	ctr, adMac, err := eaxCore(key, nonce, ad)
	if err != nil {
		return nil, err
	}
	cMac, err := CMAC(key, concat(tweakBlock(2), ciphertext))
	if err != nil {
		return nil, err
	}
	wantTag := make([]byte, blockSize)
	xorBlock(wantTag, cMac, adMac)

	if subtle.ConstantTimeCompare(wantTag[:tagLength], gotTag) != 1 {
		return nil, ErrAuthenticationFailed
	}
	return ctrCrypt(key, ctr, ciphertext)
}
