package password

import (
	"crypto/rand"
	"math/big"
)

const alphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// DefaultLength совпадает с длиной паролей, которые выдавала старая версия бота.
const DefaultLength = 12

// Generate возвращает случайный алфавитно-цифровой пароль.
func Generate(length int) (string, error) {
	if length <= 0 {
		length = DefaultLength
	}
	out := make([]byte, length)
	max := big.NewInt(int64(len(alphabet)))
	for i := range out {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		out[i] = alphabet[n.Int64()]
	}
	return string(out), nil
}
