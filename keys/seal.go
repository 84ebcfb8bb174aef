package keys

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"io"

	"golang.org/x/crypto/pbkdf2"

	"github.com/georgepadayatti/pdfseal/errs"
)

// Key derivation parameters for sealed containers.
const (
	SealIterations = 100000
	sealSaltSize   = 16
	sealKeySize    = 32
	sealTagSize    = sha256.Size
)

// Seal encrypts blob under password. The output is salt | iv | ciphertext
// | tag, where the ciphertext is AES-256-CBC with PKCS#7 padding and the
// tag is HMAC-SHA256 over everything before it. Both keys come from
// PBKDF2-SHA256.
func Seal(blob []byte, password string) ([]byte, error) {
	const op = "keys.Seal"
	if password == "" {
		return nil, errs.Wrapf(errs.ErrBadPassphrase, op, "empty password")
	}
	salt := make([]byte, sealSaltSize)
	iv := make([]byte, aes.BlockSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, errs.Wrap(errs.ErrSerialization, op, err)
	}
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return nil, errs.Wrap(errs.ErrSerialization, op, err)
	}
	encKey, macKey := deriveSealKeys(password, salt)

	block, err := aes.NewCipher(encKey)
	if err != nil {
		return nil, errs.Wrap(errs.ErrSerialization, op, err)
	}
	padded := pkcs7Pad(blob, aes.BlockSize)
	ciphertext := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(ciphertext, padded)

	out := make([]byte, 0, sealSaltSize+aes.BlockSize+len(ciphertext)+sealTagSize)
	out = append(out, salt...)
	out = append(out, iv...)
	out = append(out, ciphertext...)
	mac := hmac.New(sha256.New, macKey)
	mac.Write(out)
	return mac.Sum(out), nil
}

// Open reverses Seal. A wrong password or a modified container fails
// with errs.ErrBadPassphrase.
func Open(sealed []byte, password string) ([]byte, error) {
	const op = "keys.Open"
	minLen := sealSaltSize + aes.BlockSize + aes.BlockSize + sealTagSize
	if len(sealed) < minLen || (len(sealed)-sealSaltSize-aes.BlockSize-sealTagSize)%aes.BlockSize != 0 {
		return nil, errs.Wrapf(errs.ErrMalformedContainer, op, "sealed data has invalid length %d", len(sealed))
	}
	body, tag := sealed[:len(sealed)-sealTagSize], sealed[len(sealed)-sealTagSize:]
	salt := body[:sealSaltSize]
	iv := body[sealSaltSize : sealSaltSize+aes.BlockSize]
	ciphertext := body[sealSaltSize+aes.BlockSize:]

	encKey, macKey := deriveSealKeys(password, salt)
	mac := hmac.New(sha256.New, macKey)
	mac.Write(body)
	if !hmac.Equal(mac.Sum(nil), tag) {
		return nil, errs.Wrapf(errs.ErrBadPassphrase, op, "authentication failed")
	}

	block, err := aes.NewCipher(encKey)
	if err != nil {
		return nil, errs.Wrap(errs.ErrMalformedContainer, op, err)
	}
	plain := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plain, ciphertext)
	out, ok := pkcs7Unpad(plain, aes.BlockSize)
	if !ok {
		return nil, errs.Wrapf(errs.ErrMalformedContainer, op, "invalid padding")
	}
	return out, nil
}

func deriveSealKeys(password string, salt []byte) (encKey, macKey []byte) {
	k := pbkdf2.Key([]byte(password), salt, SealIterations, 2*sealKeySize, sha256.New)
	return k[:sealKeySize], k[sealKeySize:]
}

func pkcs7Pad(data []byte, size int) []byte {
	n := size - len(data)%size
	return append(append([]byte{}, data...), bytes.Repeat([]byte{byte(n)}, n)...)
}

func pkcs7Unpad(data []byte, size int) ([]byte, bool) {
	if len(data) == 0 || len(data)%size != 0 {
		return nil, false
	}
	n := int(data[len(data)-1])
	if n == 0 || n > size || n > len(data) {
		return nil, false
	}
	for _, b := range data[len(data)-n:] {
		if int(b) != n {
			return nil, false
		}
	}
	return data[:len(data)-n], true
}
