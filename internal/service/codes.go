package service

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

const (
	// excludes 0, O, 1 and I
	sessionCodeChars  = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	sessionCodeLength = 6
)

func generateSessionCode() (string, error) {
	code := make([]byte, sessionCodeLength)
	max := big.NewInt(int64(len(sessionCodeChars)))
	for i := range code {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("generate session code: %w", err)
		}
		code[i] = sessionCodeChars[n.Int64()]
	}
	return string(code), nil
}
