package bridge

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"

	"moff.io/wallet-verify/pkg/errors"
)

var errBadPadding = errors.New("invalid pkcs7 padding")

// Aes256Encrypt encrypts content with AES-256-CBC and PKCS#7 padding.
func Aes256Encrypt(content, encryptionKey, iv []byte) ([]byte, error) {
	bPlaintext := pkcs7Padding(content, aes.BlockSize)
	block, err := aes.NewCipher(encryptionKey)
	if err != nil {
		return nil, errors.Wrap(err, "create new cipher block")
	}
	if len(iv) != aes.BlockSize {
		return nil, errors.Errorf("iv must be %d bytes", aes.BlockSize)
	}
	ciphertext := make([]byte, len(bPlaintext))
	mode := cipher.NewCBCEncrypter(block, iv)
	mode.CryptBlocks(ciphertext, bPlaintext)
	return ciphertext, nil
}

// Aes256Decrypt reverses Aes256Encrypt. cipherText is left untouched.
func Aes256Decrypt(cipherText []byte, encryptionKey []byte, iv []byte) ([]byte, error) {
	block, err := aes.NewCipher(encryptionKey)
	if err != nil {
		return nil, errors.Wrap(err, "create new cipher block")
	}
	if len(iv) != aes.BlockSize {
		return nil, errors.Errorf("iv must be %d bytes", aes.BlockSize)
	}
	if len(cipherText) == 0 || len(cipherText)%aes.BlockSize != 0 {
		return nil, errors.New("cipher text is not a multiple of the block size")
	}
	plain := make([]byte, len(cipherText))
	mode := cipher.NewCBCDecrypter(block, iv)
	mode.CryptBlocks(plain, cipherText)
	return pkcs7Unpadding(plain, aes.BlockSize)
}

func pkcs7Padding(content []byte, blockSize int) []byte {
	padding := blockSize - len(content)%blockSize
	padText := bytes.Repeat([]byte{byte(padding)}, padding)
	return append(append([]byte{}, content...), padText...)
}

func pkcs7Unpadding(content []byte, blockSize int) ([]byte, error) {
	n := len(content)
	if n == 0 {
		return nil, errBadPadding
	}
	padding := int(content[n-1])
	if padding == 0 || padding > blockSize || padding > n {
		return nil, errBadPadding
	}
	for _, b := range content[n-padding:] {
		if int(b) != padding {
			return nil, errBadPadding
		}
	}
	return content[:n-padding], nil
}

func GenerateRandomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	_, err := rand.Read(b)
	if err != nil {
		return nil, err
	}
	return b, nil
}

func HmacSha256(data, secret []byte) []byte {
	h := hmac.New(sha256.New, secret)
	h.Write(data)
	return h.Sum(nil)
}
