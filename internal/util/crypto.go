package util

import (
	"crypto/aes"
	"crypto/cipher"
	"encoding/hex"
	"fmt"
)

// DecryptToken decrypts an AES-GCM encrypted, hex-encoded bot token using the
// hex-encoded key from TOKEN_ENCRYPTION_KEY. When key is empty the token is
// assumed plaintext and returned unchanged.
func DecryptToken(token, key string) (string, error) {
	if key == "" {
		return token, nil
	}
	keyBytes, err := hex.DecodeString(key)
	if err != nil {
		return "", fmt.Errorf("decode encryption key: %w", err)
	}
	data, err := hex.DecodeString(token)
	if err != nil {
		return "", fmt.Errorf("decode token ciphertext: %w", err)
	}

	block, err := aes.NewCipher(keyBytes)
	if err != nil {
		return "", fmt.Errorf("init cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("init gcm: %w", err)
	}
	if len(data) < gcm.NonceSize() {
		return "", fmt.Errorf("token ciphertext too short")
	}
	nonce, ciphertext := data[:gcm.NonceSize()], data[gcm.NonceSize():]
	plain, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("decrypt token: %w", err)
	}
	return string(plain), nil
}
