package crypto

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"hash"
	"math/big"
)

// GenerateRandomSeed returns a hex-encoded 256-bit random value read from
// the operating system CSPRNG.
func GenerateRandomSeed() (string, error) {
	b := make([]byte, 32)
	_, err := rand.Read(b)
	if err != nil {
		return "", err
	}

	return hex.EncodeToString(b), nil
}

func SHA256(b []byte) string {
	hashed := sha256.Sum256(b)
	return hex.EncodeToString(hashed[:])
}

func HMAC(hashFunc func() hash.Hash, data []byte, secret []byte) string {
	h := hmac.New(hashFunc, secret)
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// VerifyHMAC compares the given signature with the one computed over data
// in constant time.
func VerifyHMAC(hashFunc func() hash.Hash, data, secret []byte, signature string) bool {
	return hmac.Equal([]byte(HMAC(hashFunc, data, secret)), []byte(signature))
}

// RandIntn returns a uniform random value in [0, n). It panics if got a
// non-positive parameter.
func RandIntn(n int) int {
	r, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		panic(err)
	}

	return int(r.Int64())
}
