package strategy

import (
	"errors"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"strangleexecutor/src/externalmodel"
	"strangleexecutor/src/mapper"
	"strangleexecutor/src/model"
	"strangleexecutor/src/utils"
)

// Selection failures. All of them abort entry; the engine surfaces them to
// the caller instead of downgrading to simulation.
var (
	ErrNoEligibleContracts = errors.New("no contracts within delta range")
	ErrNoEligibleExpiry    = errors.New("no expiry offers both a call and a put in range")
	ErrInvalidExpiry       = errors.New("configured expiry date is invalid")
	ErrExpiredExpiry       = errors.New("configured expiry date already passed")
)

// Selection is the outcome of one pick: exactly one call and one put.
// ExpiryMismatch marks the unconstrained fallback where the legs ended up on
// different expiries; callers proceed but must log it.
type Selection struct {
	Call           *model.OptionContract `json:"call"`
	Put            *model.OptionContract `json:"put"`
	TargetExpiry   string                `json:"target_expiry,omitempty"`
	SelectedExpiry string                `json:"selected_expiry,omitempty"`
	Candidates     []string              `json:"candidates,omitempty"`
	ExpiryMismatch bool                  `json:"expiry_mismatch"`
}

// Selector picks the two legs of a short strangle from a ticker snapshot.
type Selector struct {
	logger *logrus.Entry
	now    func() time.Time
}

func NewSelector(logger *logrus.Entry) *Selector {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}

	return &Selector{logger: logger, now: time.Now}
}

type expiryBucket struct {
	calls []*model.OptionContract
	puts  []*model.OptionContract
}

func (b *expiryBucket) complete() bool {
	return b != nil && len(b.calls) > 0 && len(b.puts) > 0
}

// SelectContracts filters the tickers to the configured |delta| range, groups
// the survivors by expiry, resolves the target expiry and picks the best call
// and put inside it.
//
// Expiry resolution: an explicit configured expiry must parse and be at or
// after today (exchange-local date), otherwise selection fails with
// ErrInvalidExpiry / ErrExpiredExpiry. Without one the target is the date
// bufferHours from now. The selected expiry is the target itself when it has
// both sides, else the nearest complete expiry at or after the target, else
// the nearest complete expiry anywhere. When no expiry has both sides the
// pick runs unconstrained over every surviving call and put, which is the
// only way the two legs can end up on different expiries.
func (s *Selector) SelectContracts(tickers []externalmodel.DeltaTicker, config *model.TradingConfiguration, bufferHours int) (*Selection, error) {
	loc := utils.ExchangeLocation()
	now := s.now().In(loc)

	targetDelta := targetDeltaFor(config.DeltaLow, config.DeltaHigh)

	var (
		filtered     []*model.OptionContract
		buckets      = map[string]*expiryBucket{}
		missingCalls []*model.OptionContract
		missingPuts  []*model.OptionContract
	)

	for i := range tickers {
		contract := mapper.MapTickerToContract(&tickers[i])
		if contract == nil {
			continue
		}
		if contract.Delta < config.DeltaLow || contract.Delta > config.DeltaHigh {
			continue
		}
		filtered = append(filtered, contract)

		if contract.Expiry == "" {
			if contract.IsCall() {
				missingCalls = append(missingCalls, contract)
			} else {
				missingPuts = append(missingPuts, contract)
			}
			continue
		}

		bucket, ok := buckets[contract.Expiry]
		if !ok {
			bucket = &expiryBucket{}
			buckets[contract.Expiry] = bucket
		}
		if contract.IsCall() {
			bucket.calls = append(bucket.calls, contract)
		} else {
			bucket.puts = append(bucket.puts, contract)
		}
	}

	if len(filtered) == 0 {
		return nil, ErrNoEligibleContracts
	}

	targetExpiry, err := s.resolveTargetExpiry(config, now, bufferHours)
	if err != nil {
		return nil, err
	}

	candidates := make([]string, 0, len(buckets))
	for expiry := range buckets {
		candidates = append(candidates, expiry)
	}
	sort.Strings(candidates)

	selectedExpiry := chooseExpiry(buckets, candidates, targetExpiry)

	s.logger.WithFields(logrus.Fields{
		"candidates": candidates,
		"target":     targetExpiry,
		"selected":   selectedExpiry,
	}).Info("expiry selection resolved")

	var calls, puts []*model.OptionContract
	if selectedExpiry != "" {
		calls = buckets[selectedExpiry].calls
		puts = buckets[selectedExpiry].puts
	} else {
		for _, c := range filtered {
			if c.Expiry == "" {
				continue
			}
			if c.IsCall() {
				calls = append(calls, c)
			} else {
				puts = append(puts, c)
			}
		}
		if len(calls) == 0 {
			calls = missingCalls
		}
		if len(puts) == 0 {
			puts = missingPuts
		}
	}

	call := pickBest(calls, targetDelta)
	put := pickBest(puts, targetDelta)
	if call == nil || put == nil {
		return nil, ErrNoEligibleExpiry
	}

	selection := &Selection{
		Call:           call,
		Put:            put,
		TargetExpiry:   targetExpiry,
		SelectedExpiry: selectedExpiry,
		Candidates:     candidates,
		ExpiryMismatch: call.Expiry != put.Expiry,
	}

	if selection.ExpiryMismatch {
		s.logger.WithFields(logrus.Fields{
			"call_expiry": call.Expiry,
			"put_expiry":  put.Expiry,
		}).Warn("selected legs have differing expiries")
	}

	return selection, nil
}

// resolveTargetExpiry validates an explicit configured expiry or derives the
// buffered one. The returned value is a YYYY-MM-DD string so expiry ordering
// reduces to string comparison.
func (s *Selector) resolveTargetExpiry(config *model.TradingConfiguration, now time.Time, bufferHours int) (string, error) {
	if config.ExpiryDate != nil && *config.ExpiryDate != "" {
		parsed, err := utils.ParseExpiryDate(*config.ExpiryDate, now.Location())
		if err != nil {
			s.logger.WithField("expiry_date", *config.ExpiryDate).Warn("configured expiry does not parse")
			return "", ErrInvalidExpiry
		}
		today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
		if parsed.Before(today) {
			s.logger.WithFields(logrus.Fields{
				"expiry_date": *config.ExpiryDate,
				"today":       today.Format("2006-01-02"),
			}).Warn("configured expiry already passed")
			return "", ErrExpiredExpiry
		}
		return parsed.Format("2006-01-02"), nil
	}

	if bufferHours <= 0 {
		bufferHours = 2
	}
	return now.Add(time.Duration(bufferHours) * time.Hour).Format("2006-01-02"), nil
}

// chooseExpiry returns the expiry to pick from, or "" when no expiry has both
// sides and the pick must run unconstrained.
func chooseExpiry(buckets map[string]*expiryBucket, sortedCandidates []string, target string) string {
	if buckets[target].complete() {
		return target
	}
	for _, expiry := range sortedCandidates {
		if expiry >= target && buckets[expiry].complete() {
			return expiry
		}
	}
	for _, expiry := range sortedCandidates {
		if buckets[expiry].complete() {
			return expiry
		}
	}
	return ""
}

// pickBest prefers the highest |delta| in range; equal deltas fall back to
// the one closest to the range midpoint to keep selections stable.
func pickBest(candidates []*model.OptionContract, targetDelta float64) *model.OptionContract {
	var best *model.OptionContract
	for _, c := range candidates {
		if best == nil {
			best = c
			continue
		}
		if c.Delta > best.Delta {
			best = c
			continue
		}
		if c.Delta == best.Delta && distance(c.Delta, targetDelta) < distance(best.Delta, targetDelta) {
			best = c
		}
	}
	return best
}

func targetDeltaFor(low, high float64) float64 {
	if high > low {
		return low + (high-low)/2
	}
	if high > 0 {
		return high
	}
	if low > 0 {
		return low
	}
	return 0.1
}

func distance(a, b float64) float64 {
	if a > b {
		return a - b
	}
	return b - a
}
