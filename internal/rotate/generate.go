package rotate

import "crypto/rand"

// DefaultSecretLength is the length of generated replacement values.
const DefaultSecretLength = 32

const secretAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789!@#$%^&*"

// GenerateSecret returns a random value drawn from a shell-safe-ish
// alphabet. Generation policy is not this tool's business; callers who
// care pass an explicit value instead.
func GenerateSecret(length int) string {
	buf := make([]byte, length)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand never fails on supported platforms.
		panic("crypto/rand unavailable: " + err.Error())
	}
	for i, b := range buf {
		buf[i] = secretAlphabet[int(b)%len(secretAlphabet)]
	}
	return string(buf)
}
