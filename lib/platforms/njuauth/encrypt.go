package njuauth

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"encoding/base64"
	"fmt"

	"github.com/mazen160/go-random"
)

const (
	ivLength     = 16
	prefixLength = 64
)

// RandomSource produces the random alphanumeric strings used by the password
// encryption. Implementations outside of tests must be cryptographically secure.
type RandomSource interface {
	AlphaNumeric(n int) (string, error)
}

// CryptoRandom is the default RandomSource, backed by crypto/rand.
type CryptoRandom struct{}

func (CryptoRandom) AlphaNumeric(n int) (string, error) {
	return random.String(n)
}

// EncryptPassword reproduces the authserver's client side password encryption
// (encrypt.js): AES-CBC over a 64 character random prefix + the password, keyed
// with the page's pwdDefaultEncryptSalt, PKCS#7 padded and base64 encoded.
func EncryptPassword(password, salt string, rnd RandomSource) (string, error) {
	iv, err := rnd.AlphaNumeric(ivLength)
	if err != nil {
		return "", fmt.Errorf("generate iv: %w", err)
	}
	prefix, err := rnd.AlphaNumeric(prefixLength)
	if err != nil {
		return "", fmt.Errorf("generate prefix: %w", err)
	}
	return encryptCBC(prefix+password, salt, iv)
}

func encryptCBC(plaintext, key, iv string) (string, error) {
	block, err := aes.NewCipher([]byte(key))
	if err != nil {
		return "", fmt.Errorf("%w: unusable password salt: %w", ErrProtocolShape, err)
	}
	if len(iv) != block.BlockSize() {
		return "", fmt.Errorf("iv must be %d bytes, got %d", block.BlockSize(), len(iv))
	}

	padded := pkcs7Pad([]byte(plaintext), block.BlockSize())
	out := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, []byte(iv)).CryptBlocks(out, padded)

	return base64.StdEncoding.EncodeToString(out), nil
}

// pkcs7Pad always adds at least one byte, a full block when the input is aligned.
func pkcs7Pad(data []byte, blockSize int) []byte {
	n := blockSize - len(data)%blockSize
	return append(data, bytes.Repeat([]byte{byte(n)}, n)...)
}
