package sessions

import (
	"fmt"
	"math/rand"
)

const (
	pinMin         = 100000
	pinMax         = 999999
	maxPinAttempts = 10
)

// PinGenerator returns a candidate six-digit PIN.
type PinGenerator func() string

// RandomPin draws uniformly from 100000..999999.
func RandomPin() string {
	return fmt.Sprintf("%06d", pinMin+rand.Intn(pinMax-pinMin+1))
}
