package otp

import (
	"crypto/rand"
	"errors"
	"io"
	"math"
	"math/big"

	"github.com/pquerna/otp"
)

// ErrUnsupportedDigits is returned for lengths other than 6 or 8.
var ErrUnsupportedDigits = errors.New("otp: code length must be 6 or 8")

// Generator produces numeric codes.
type Generator interface {
	Generate() (string, error)
	Length() int
}

// Numeric generates fixed-length decimal codes.
type Numeric struct {
	digits otp.Digits
	max    *big.Int
	rand   io.Reader
}

// NewNumeric returns a generator for codes of the given length.
func NewNumeric(length int) (*Numeric, error) {
	digits := otp.Digits(length)
	if digits != otp.DigitsSix && digits != otp.DigitsEight {
		return nil, ErrUnsupportedDigits
	}

	return &Numeric{
		digits: digits,
		max:    big.NewInt(int64(math.Pow10(length))),
		rand:   rand.Reader,
	}, nil
}

// Generate returns a code in [0, 10^n) padded to n digits.
func (g *Numeric) Generate() (string, error) {
	n, err := rand.Int(g.rand, g.max)
	if err != nil {
		return "", err
	}

	return g.digits.Format(int32(n.Int64())), nil
}

func (g *Numeric) Length() int { return g.digits.Length() }
