// Package jitter рассчитывает задержки между повторными попытками с экспоненциальным ростом и случайной добавкой,
// чтобы параллельные клиенты не повторяли запросы синхронно.
package jitter

import (
	"context"
	"math/rand"
	"sync"
	"time"
)

// DefaultFactor — стандартный коэффициент джиттера (50%)
const DefaultFactor = 0.5

var (
	globalRand = rand.New(rand.NewSource(time.Now().UnixNano()))
	randMutex  sync.Mutex
)

// Backoff описывает политику экспоненциальной задержки.
type Backoff struct {
	Base   time.Duration // задержка перед первой повторной попыткой
	Max    time.Duration // верхняя граница без учёта джиттера
	Factor float64       // доля случайной добавки, 0.5 = до +50%
	rng    func() float64
}

func NewBackoff(base, max time.Duration, factor float64) *Backoff {
	return &Backoff{
		Base:   base,
		Max:    max,
		Factor: factor,
		rng:    lockedFloat64,
	}
}

// WithSource фиксирует генератор случайных чисел (детерминированные тесты).
func (b *Backoff) WithSource(rng *rand.Rand) *Backoff {
	b.rng = rng.Float64
	return b
}

// Delay возвращает задержку для попытки attempt (нумерация с нуля).
// Результат находится в диапазоне [d, d*(1+Factor)], где d = min(Base*2^attempt, Max).
func (b *Backoff) Delay(attempt int) time.Duration {
	d := b.Base
	for i := 0; i < attempt; i++ {
		d *= 2
		if b.Max > 0 && d >= b.Max {
			d = b.Max
			break
		}
	}

	rng := b.rng
	if rng == nil {
		rng = lockedFloat64
	}

	return d + time.Duration(rng()*b.Factor*float64(d))
}

// Sleep ждёт Delay(attempt) либо отмены контекста.
func (b *Backoff) Sleep(ctx context.Context, attempt int) error {
	timer := time.NewTimer(b.Delay(attempt))
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func lockedFloat64() float64 {
	randMutex.Lock()
	defer randMutex.Unlock()
	return globalRand.Float64()
}
