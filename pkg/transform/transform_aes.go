package transform

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha256"
	"errors"
	"fmt"
)

// The process-wide key and IV shared by every peer of the game. They only
// obfuscate traffic: anyone holding a client binary holds them too.
var (
	defaultKey = [32]byte{
		0x53, 0x70, 0x61, 0x63, 0x65, 0x4e, 0x65, 0x74, 0x9a, 0x1f, 0xc4, 0x27, 0x6b, 0xe0, 0x3d, 0x88,
		0x12, 0xb7, 0x5e, 0xa9, 0x04, 0xf1, 0x6c, 0x3a, 0xd5, 0x28, 0x97, 0x4b, 0xee, 0x61, 0x0c, 0xb3,
	}
	defaultIV = [aes.BlockSize]byte{
		0x7e, 0x21, 0xc9, 0x58, 0x0f, 0xa4, 0x36, 0xdb, 0x91, 0x4c, 0xe7, 0x02, 0xbd, 0x68, 0x15, 0xfa,
	}
)

var (
	ErrCiphertextSize = errors.New("aescbc: ciphertext is not a multiple of the block size")
	ErrPadding        = errors.New("aescbc: invalid padding")
)

// DefaultKey returns a copy of the process-wide key.
func DefaultKey() []byte {
	k := defaultKey
	return k[:]
}

// DefaultIV returns a copy of the process-wide IV.
func DefaultIV() []byte {
	iv := defaultIV
	return iv[:]
}

// KeyFromPassphrase derives a 256-bit key from a passphrase.
func KeyFromPassphrase(passphrase string) []byte {
	key := sha256.Sum256([]byte(passphrase))
	return key[:]
}

type aesCBCTransform struct {
	block cipher.Block
	iv    [aes.BlockSize]byte
}

// NewAESCBCTransform encrypts with AES in CBC mode and PKCS#7 padding under a
// fixed key and IV. There is no integrity check: decrypting with the wrong
// key yields garbage or, most of the time, ErrPadding.
func NewAESCBCTransform(key, iv []byte) (Transform, error) {
	if len(iv) != aes.BlockSize {
		return nil, fmt.Errorf("aescbc: IV length must be %d, got %d", aes.BlockSize, len(iv))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("aescbc: failed to create cipher block: %w", err)
	}
	t := &aesCBCTransform{block: block}
	copy(t.iv[:], iv)
	return t, nil
}

// NewDefaultAESTransform uses the process-wide key and IV.
func NewDefaultAESTransform() Transform {
	t, err := NewAESCBCTransform(defaultKey[:], defaultIV[:])
	if err != nil {
		panic(err)
	}
	return t
}

func (t *aesCBCTransform) Apply(plaintext []byte) ([]byte, error) {
	padding := aes.BlockSize - len(plaintext)%aes.BlockSize
	buf := make([]byte, len(plaintext)+padding)
	copy(buf, plaintext)
	for i := len(plaintext); i < len(buf); i++ {
		buf[i] = byte(padding)
	}
	cipher.NewCBCEncrypter(t.block, t.iv[:]).CryptBlocks(buf, buf)
	return buf, nil
}

func (t *aesCBCTransform) Reverse(ciphertext []byte) ([]byte, error) {
	if len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
		return nil, ErrCiphertextSize
	}
	buf := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(t.block, t.iv[:]).CryptBlocks(buf, ciphertext)

	padding := int(buf[len(buf)-1])
	if padding == 0 || padding > aes.BlockSize {
		return nil, ErrPadding
	}
	for _, b := range buf[len(buf)-padding:] {
		if int(b) != padding {
			return nil, ErrPadding
		}
	}
	return buf[:len(buf)-padding], nil
}
