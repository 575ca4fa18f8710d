package domain

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

var (
	emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)
	cpfStrip   = regexp.MustCompile(`[.\-\s]`)
	cpfDigits  = regexp.MustCompile(`^[0-9]{11}$`)
)

// MaxPixKeyLength is the longest Pix key the DICT accepts (EVP keys are 36, emails up to 77).
const MaxPixKeyLength = 77

// ValidateEmail checks if an email address is valid.
func ValidateEmail(email string) error {
	if email == "" {
		return fmt.Errorf("email is required")
	}
	if !emailRegex.MatchString(email) {
		return fmt.Errorf("invalid email format")
	}
	return nil
}

// ValidatePositiveAmount checks that an amount is positive (in centavos).
func ValidatePositiveAmount(amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("amount must be positive, got %d", amount)
	}
	return nil
}

// NormalizeCPF strips punctuation from a CPF.
func NormalizeCPF(cpf string) string {
	return cpfStrip.ReplaceAllString(cpf, "")
}

// ValidateCPF checks the format and both check digits of a Brazilian CPF.
func ValidateCPF(cpf string) error {
	c := NormalizeCPF(cpf)
	if !cpfDigits.MatchString(c) {
		return fmt.Errorf("cpf must have 11 digits")
	}
	if strings.Count(c, c[:1]) == 11 {
		return fmt.Errorf("invalid cpf")
	}
	for _, n := range []int{9, 10} {
		sum := 0
		for i := 0; i < n; i++ {
			sum += int(c[i]-'0') * (n + 1 - i)
		}
		d := (sum * 10) % 11
		if d == 10 {
			d = 0
		}
		if d != int(c[n]-'0') {
			return fmt.Errorf("invalid cpf")
		}
	}
	return nil
}

// ValidatePixKey checks that a Pix key is present and within DICT length.
func ValidatePixKey(key string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return fmt.Errorf("pix key is required")
	}
	if utf8.RuneCountInString(key) > MaxPixKeyLength {
		return fmt.Errorf("pix key is too long")
	}
	return nil
}
