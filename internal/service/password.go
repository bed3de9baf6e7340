// password.go — политика паролей и генерация временных паролей.
package service

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

// MinPasswordLength — минимальная длина пароля, задаваемого администратором.
const MinPasswordLength = 8

const (
	lowerChars  = "abcdefghijkmnopqrstuvwxyz"
	upperChars  = "ABCDEFGHJKLMNPQRSTUVWXYZ"
	digitChars  = "23456789"
	symbolChars = "!@#$%^&*-_=+"
)

// ValidatePassword проверяет пароль на соответствие политике.
func ValidatePassword(password string) error {
	if len([]rune(password)) < MinPasswordLength {
		return fmt.Errorf("%w: пароль короче %d символов", ErrValidation, MinPasswordLength)
	}
	return nil
}

// GeneratePassword создаёт случайный пароль заданной длины.
// Пароль содержит хотя бы по одному символу каждого класса.
func GeneratePassword(length int) (string, error) {
	classes := []string{lowerChars, upperChars, digitChars, symbolChars}
	if length < len(classes) {
		return "", fmt.Errorf("длина пароля %d меньше %d", length, len(classes))
	}
	all := lowerChars + upperChars + digitChars + symbolChars

	buf := make([]byte, length)
	for i := range buf {
		set := all
		if i < len(classes) {
			set = classes[i]
		}
		c, err := randomChar(set)
		if err != nil {
			return "", err
		}
		buf[i] = c
	}

	// Перемешиваем, чтобы обязательные символы не стояли в начале
	for i := len(buf) - 1; i > 0; i-- {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(i+1)))
		if err != nil {
			return "", fmt.Errorf("генерация пароля: %w", err)
		}
		j := int(n.Int64())
		buf[i], buf[j] = buf[j], buf[i]
	}

	return string(buf), nil
}

func randomChar(set string) (byte, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(int64(len(set))))
	if err != nil {
		return 0, fmt.Errorf("генерация пароля: %w", err)
	}
	return set[n.Int64()], nil
}
