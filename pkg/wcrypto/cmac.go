// Package wcrypto implements the AES-128 based primitives the device core
// layers its session security on: CMAC, EAX authenticated encryption,
// HMAC-SHA256, and HKDF-SHA256. All of it is grounded byte-for-byte on
// original_source/src/libuweave/src/crypto_{cmac,eax,hmac,hkdf}.c.
package wcrypto

import (
	"crypto/aes"
)

const blockSize = aes.BlockSize // 16

// rb is the GF(2^128) reduction constant for AES-CMAC subkey generation
// (NIST SP 800-38B). The origin's doubling_() uses a bit-trick carry value
// (0xE2 / 0x65) that cancels out to the same 0x87 reduction when worked
// through by hand; this is an ordinary RFC 4493 AES-CMAC.
const rb = 0x87

func leftShiftOne(in []byte) []byte {
	out := make([]byte, len(in))
	var carry byte
	for i := len(in) - 1; i >= 0; i-- {
		out[i] = in[i]<<1 | carry
		carry = in[i] >> 7
	}
	return out
}

func cmacSubkeys(key []byte) (k1, k2 []byte, err error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, nil, err
	}
	zero := make([]byte, blockSize)
	l := make([]byte, blockSize)
	block.Encrypt(l, zero)

	k1 = leftShiftOne(l)
	if l[0]&0x80 != 0 {
		k1[blockSize-1] ^= rb
	}
	k2 = leftShiftOne(k1)
	if k1[0]&0x80 != 0 {
		k2[blockSize-1] ^= rb
	}
	return k1, k2, nil
}

func xorBlock(dst, a, b []byte) {
	for i := range dst {
		dst[i] = a[i] ^ b[i]
	}
}

// CMAC computes the AES-128-CMAC of msg under key (both RFC 4493 compliant
// and byte-identical to the origin's uw_cmac_{init,update,final}_ over a
// single concatenated message).
func CMAC(key, msg []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	k1, k2, err := cmacSubkeys(key)
	if err != nil {
		return nil, err
	}

	n := (len(msg) + blockSize - 1) / blockSize
	complete := n > 0 && len(msg)%blockSize == 0
	if n == 0 {
		n = 1
		complete = false
	}

	x := make([]byte, blockSize)
	for i := 0; i < n-1; i++ {
		chunk := msg[i*blockSize : (i+1)*blockSize]
		xorBlock(x, x, chunk)
		block.Encrypt(x, x)
	}

	last := make([]byte, blockSize)
	tail := msg[(n-1)*blockSize:]
	copy(last, tail)
	var mask []byte
	if complete {
		mask = k1
	} else {
		last[len(tail)] = 0x80
		mask = k2
	}
	xorBlock(last, last, mask)
	xorBlock(x, x, last)
	block.Encrypt(x, x)
	return x, nil
}
