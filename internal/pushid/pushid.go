// Package pushid generates 20-character lexicographically ordered unique IDs
// for POST (append) operations, modeled after Firebase push IDs.
//
// An ID is 8 characters of millisecond timestamp followed by 12 characters of
// randomness, all drawn from a 64-character alphabet ordered by ASCII. IDs
// generated later always compare greater, even within the same millisecond:
// on a timestamp collision the random suffix is incremented as a big-endian
// base-64 counter instead of being redrawn.
package pushid

import (
	"errors"
	"math/rand/v2"
	"sync"
	"time"
)

// Alphabet is ordered by ASCII so that byte-wise comparison of IDs matches
// chronological order.
const Alphabet = "-0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ_abcdefghijklmnopqrstuvwxyz"

const (
	timestampChars = 8
	randomChars    = 12
	idLength       = timestampChars + randomChars
)

// ErrTimestampOverflow is returned when the current millisecond timestamp
// does not fit in 8 base-64 characters (48 bits). With a sane clock this
// cannot happen before the year 10889.
var ErrTimestampOverflow = errors.New("pushid: timestamp exceeds 48 bits")

// Generator produces push IDs. It is safe for concurrent use; all state is
// guarded by a mutex. The zero value is not usable, call New.
type Generator struct {
	mu       sync.Mutex
	lastMS   int64
	lastRand [randomChars]byte // each value in 0..63

	now       func() time.Time
	randDigit func() byte
}

// New returns a Generator using the wall clock and math/rand randomness.
func New() *Generator {
	return &Generator{
		now:       time.Now,
		randDigit: func() byte { return byte(rand.IntN(64)) },
	}
}

// defaultGenerator is the process-wide instance used by Next. Push IDs are a
// global concern: their ordering guarantee must hold across every logical
// database and request, so the state is deliberately not tied to any store.
var defaultGenerator = New()

// Next returns the next push ID from the process-wide generator.
func Next() (string, error) {
	return defaultGenerator.Next()
}

// Next returns a fresh 20-character push ID.
func (g *Generator) Next() (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now().UnixMilli()
	duplicate := now == g.lastMS

	if duplicate && g.randExhausted() {
		// All twelve random digits are at 63; the counter cannot advance
		// within this millisecond. Spin until the clock moves, then reseed.
		for now <= g.lastMS {
			now = g.now().UnixMilli()
		}
		duplicate = false
	}
	g.lastMS = now

	var id [idLength]byte
	ts := now
	for i := timestampChars - 1; i >= 0; i-- {
		id[i] = Alphabet[ts%64]
		ts /= 64
	}
	if ts != 0 {
		return "", ErrTimestampOverflow
	}

	if duplicate {
		g.incrementRand()
	} else {
		for i := range g.lastRand {
			g.lastRand[i] = g.randDigit()
		}
	}
	for i, v := range g.lastRand {
		id[timestampChars+i] = Alphabet[v]
	}

	return string(id[:]), nil
}

// incrementRand advances the random suffix as a big-endian base-64 counter:
// trailing 63-digits roll over to 0 and the first non-63 digit from the right
// is incremented. randExhausted is checked by the caller, so at least one
// digit is below 63.
func (g *Generator) incrementRand() {
	i := randomChars - 1
	for ; i >= 0; i-- {
		if g.lastRand[i] == 63 {
			g.lastRand[i] = 0
		} else {
			break
		}
	}
	g.lastRand[i]++
}

func (g *Generator) randExhausted() bool {
	for _, v := range g.lastRand {
		if v != 63 {
			return false
		}
	}
	return true
}
