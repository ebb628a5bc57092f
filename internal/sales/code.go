package sales

import (
	"crypto/rand"
	"fmt"
	"io"
	"regexp"
	"strings"
)

// PickupCodeAlphabet omits 0, O, 1 and I so codes survive being read aloud.
const PickupCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

const (
	pickupCodeGroups    = 3
	pickupCodeGroupSize = 4
	pickupCodeLength    = pickupCodeGroups * pickupCodeGroupSize
)

var pickupCodePattern = regexp.MustCompile(`^[A-HJ-NP-Z2-9]{4}-[A-HJ-NP-Z2-9]{4}-[A-HJ-NP-Z2-9]{4}$`)

// CodeGenerator yields candidate pickup codes.
type CodeGenerator interface {
	Generate() (string, error)
}

// RandomCodes draws codes from a cryptographic source.
type RandomCodes struct {
	source io.Reader
}

// NewRandomCodes uses crypto/rand when source is nil.
func NewRandomCodes(source io.Reader) *RandomCodes {
	if source == nil {
		source = rand.Reader
	}
	return &RandomCodes{source: source}
}

func (g *RandomCodes) Generate() (string, error) {
	return generatePickupCode(g.source)
}

// GeneratePickupCode returns a fresh XXXX-XXXX-XXXX code.
func GeneratePickupCode() (string, error) {
	return generatePickupCode(rand.Reader)
}

func generatePickupCode(source io.Reader) (string, error) {
	buf := make([]byte, pickupCodeLength)
	if _, err := io.ReadFull(source, buf); err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}

	// 256 is a multiple of the alphabet size, so masking keeps the draw uniform.
	var b strings.Builder
	b.Grow(pickupCodeLength + pickupCodeGroups - 1)
	for i, v := range buf {
		if i > 0 && i%pickupCodeGroupSize == 0 {
			b.WriteByte('-')
		}
		b.WriteByte(PickupCodeAlphabet[int(v)&(len(PickupCodeAlphabet)-1)])
	}
	return b.String(), nil
}

// NormalizePickupCode trims and upper-cases user input.
func NormalizePickupCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// IsPickupCode reports whether code has the canonical shape.
func IsPickupCode(code string) bool {
	return pickupCodePattern.MatchString(code)
}
