package h

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

var (
	generator     *ShortIDGenerator
	generatorOnce sync.Once
)

// ShortIDGenerator creates short, URL-friendly, time ordered ids.
type ShortIDGenerator struct {
	alphabet   string
	lastTime   int64
	counter    uint32
	machineID  uint16
	timeOffset int64
}

// NewShortIDGenerator creates a new generator; machineID is masked to 10 bits.
func NewShortIDGenerator(machineID int) *ShortIDGenerator {
	machineID = machineID & 0x3FF
	return &ShortIDGenerator{
		alphabet:   "0123456789abcdefghijklmnopqrstuvwxyz",
		machineID:  uint16(machineID),
		timeOffset: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC).UnixMilli(),
	}
}

// Generate creates a new 12-character id.
func (g *ShortIDGenerator) Generate() string {
	now := time.Now().UnixMilli()
	last := atomic.LoadInt64(&g.lastTime)

	var count uint32
	if now != last {
		if !atomic.CompareAndSwapInt64(&g.lastTime, last, now) {
			return g.Generate()
		}
		atomic.StoreUint32(&g.counter, 0)
	} else {
		count = atomic.AddUint32(&g.counter, 1)
		if count > 0xFFF {
			time.Sleep(time.Millisecond)
			return g.Generate()
		}
	}

	combined := (uint64(now-g.timeOffset) << 22) | (uint64(g.machineID) << 12) | uint64(count&0xFFF)

	buffer := make([]byte, 12)
	for i := len(buffer) - 1; i >= 0; i-- {
		buffer[i] = g.alphabet[combined%36]
		combined /= 36
	}
	return string(buffer)
}

func InitIdGenerator(machineID int) {
	generatorOnce.Do(func() {
		generator = NewShortIDGenerator(machineID)
	})
}

// NewId generates a new id with optional prefix
func NewId(prefix string) string {
	InitIdGenerator(0)
	value := generator.Generate()
	if len(prefix) == 0 {
		return value
	}
	lastChar := prefix[len(prefix)-1]
	if lastChar == '_' || lastChar == '-' {
		return prefix + value
	}
	return prefix + "_" + value
}

func NewUUID() string {
	return uuid.NewString()
}
