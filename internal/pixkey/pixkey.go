// Package pixkey validates and normalizes PIX destination keys.
package pixkey

import (
	"errors"
	"net/mail"
	"strings"

	"github.com/google/uuid"
)

type Type string

const (
	CPF   Type = "cpf"
	CNPJ  Type = "cnpj"
	Email Type = "email"
	Phone Type = "phone"
	EVP   Type = "evp"
)

var (
	ErrUnknownType = errors.New("unknown pix key type")
	ErrInvalidKey  = errors.New("invalid pix key")
)

func ParseType(s string) (Type, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "cpf":
		return CPF, nil
	case "cnpj":
		return CNPJ, nil
	case "email", "e-mail":
		return Email, nil
	case "phone", "telefone", "celular":
		return Phone, nil
	case "evp", "random", "aleatoria":
		return EVP, nil
	}
	return "", ErrUnknownType
}

// Normalize validates key against its type and returns the canonical form sent to providers.
func Normalize(typ, key string) (Type, string, error) {
	t, err := ParseType(typ)
	if err != nil {
		return "", "", err
	}
	key = strings.TrimSpace(key)
	switch t {
	case CPF:
		d := digits(key)
		if len(d) != 11 || !validCPF(d) {
			return t, "", ErrInvalidKey
		}
		return t, d, nil
	case CNPJ:
		d := digits(key)
		if len(d) != 14 || !validCNPJ(d) {
			return t, "", ErrInvalidKey
		}
		return t, d, nil
	case Email:
		a, err := mail.ParseAddress(key)
		if err != nil || a.Address != key || len(key) > 77 {
			return t, "", ErrInvalidKey
		}
		return t, strings.ToLower(key), nil
	case Phone:
		d := digits(key)
		if strings.HasPrefix(d, "55") && len(d) > 11 {
			d = d[2:]
		}
		if len(d) < 10 || len(d) > 13 {
			return t, "", ErrInvalidKey
		}
		return t, "+55" + d, nil
	case EVP:
		u, err := uuid.Parse(key)
		if err != nil || u.Version() != 4 {
			return t, "", ErrInvalidKey
		}
		return t, u.String(), nil
	}
	return t, "", ErrUnknownType
}

func digits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func allSame(d string) bool {
	return strings.Count(d, d[:1]) == len(d)
}

func validCPF(d string) bool {
	if allSame(d) {
		return false
	}
	for pos := 9; pos <= 10; pos++ {
		sum := 0
		for i := 0; i < pos; i++ {
			sum += int(d[i]-'0') * (pos + 1 - i)
		}
		check := (sum * 10) % 11
		if check == 10 {
			check = 0
		}
		if check != int(d[pos]-'0') {
			return false
		}
	}
	return true
}

func validCNPJ(d string) bool {
	if allSame(d) {
		return false
	}
	weights := []int{6, 5, 4, 3, 2, 9, 8, 7, 6, 5, 4, 3, 2}
	for pos := 12; pos <= 13; pos++ {
		sum := 0
		w := weights[13-pos:]
		for i := 0; i < pos; i++ {
			sum += int(d[i]-'0') * w[i]
		}
		check := sum % 11
		if check < 2 {
			check = 0
		} else {
			check = 11 - check
		}
		if check != int(d[pos]-'0') {
			return false
		}
	}
	return true
}
