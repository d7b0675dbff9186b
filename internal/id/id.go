// Package id generates run identifiers.
package id

import (
	cryptoRand "crypto/rand"
	"encoding/binary"
	"io"
	"math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

type generator struct {
	mu      sync.Mutex
	entropy io.Reader
}

var runIDs = newGenerator()

func newGenerator() *generator {
	var seed int64
	if err := binary.Read(cryptoRand.Reader, binary.LittleEndian, &seed); err != nil || seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &generator{entropy: ulid.Monotonic(rand.New(rand.NewSource(seed)), 0)}
}

func (g *generator) next(t time.Time) string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(t.UTC()), g.entropy).String()
}

// NewRunID returns a ULID string. Run ids sort by creation time, so the
// journal lists runs in order without a separate timestamp index.
func NewRunID() string {
	return NewRunIDAt(time.Now())
}

// NewRunIDAt returns a ULID string stamped with t.
// Ids stamped within the same millisecond still sort in call order.
func NewRunIDAt(t time.Time) string {
	return runIDs.next(t)
}

// Created returns the time encoded in a run id.
func Created(runID string) (time.Time, error) {
	id, err := ulid.ParseStrict(runID)
	if err != nil {
		return time.Time{}, err
	}
	return ulid.Time(id.Time()).UTC(), nil
}
