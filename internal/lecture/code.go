package lecture

import (
	"math/rand"
	"strconv"

	"attendx/internal/subject"
)

const (
	codeMin   = 1000
	codeRange = 9000 // codes span [1000, 9999]
)

// Generator issues lecture codes of the form prefix + 4 digits + suffix.
type Generator struct {
	intn func(n int) int
}

// NewGenerator builds a generator. A nil intn uses math/rand.
func NewGenerator(intn func(n int) int) *Generator {
	if intn == nil {
		intn = rand.Intn
	}
	return &Generator{intn: intn}
}

// Generate returns a fresh code for s. Consecutive calls may repeat a value.
func (g *Generator) Generate(s subject.Subject) string {
	d := codeMin + g.intn(codeRange)
	return s.Prefix + strconv.Itoa(d) + s.Suffix
}
