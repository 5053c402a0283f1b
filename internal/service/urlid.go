package service

import (
	"crypto/rand"
	"math/big"
)

const (
	urlIDAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"
	urlIDLength   = 10
)

// urlID генерирует короткий идентификатор для адреса документа
func urlID() string {
	buf := make([]byte, urlIDLength)
	max := big.NewInt(int64(len(urlIDAlphabet)))
	for i := range buf {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			// crypto/rand на поддерживаемых платформах не отказывает
			panic(err)
		}
		buf[i] = urlIDAlphabet[n.Int64()]
	}
	return string(buf)
}
