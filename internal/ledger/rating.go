package ledger

import "math"

// RatingHook computes post-game rates. scoreA는 A 기준 승점 (1/0.5/0).
// 턴 엔진과 분리된 플러그인이며 교체 가능하다.
type RatingHook interface {
	NewRates(rateA, rateB int, scoreA float64) (int, int)
}

// EloHook is the default rating rule.
type EloHook struct {
	K int
}

func (h EloHook) NewRates(rateA, rateB int, scoreA float64) (int, int) {
	k := float64(h.K)
	if k <= 0 {
		k = 32
	}
	expectedA := 1 / (1 + math.Pow(10, float64(rateB-rateA)/400))
	deltaA := int(math.Round(k * (scoreA - expectedA)))
	return rateA + deltaA, rateB - deltaA
}
