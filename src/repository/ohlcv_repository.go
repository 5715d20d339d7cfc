package repository

import (
	"context"
	"errors"
	"time"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"strangleexecutor/src/database"
	"strangleexecutor/src/model"
)

// ErrInvalidInterval rejects aggregation windows the 1m candle store cannot
// build cleanly.
var ErrInvalidInterval = errors.New("invalid interval. allowed: 5m,15m,30m,1h")

// OHLCVRepository reads the underlying spot candles recorded by the
// ohlcv_crypto command. The analytics endpoints chart them next to the
// session P&L history.
type OHLCVRepository struct {
	db *gorm.DB
}

func NewOHLCVRepository() *OHLCVRepository {
	logger.WithField("component", "OHLCVRepository").
		Info("Creating new OHLCVRepository with MainDB")

	return &OHLCVRepository{
		db: database.MainDB,
	}
}

func NewOHLCVRepositoryWithDB(db *gorm.DB) *OHLCVRepository {
	return &OHLCVRepository{
		db: db,
	}
}

// FetchRecent1m returns up to limit 1m candles for symbol at or before to,
// in ascending chronological order.
func (s *OHLCVRepository) FetchRecent1m(
	ctx context.Context,
	symbol string,
	to time.Time,
	limit int,
) ([]model.OHLCVCrypto1m, error) {
	if limit <= 0 {
		limit = 200
	}

	var rows []model.OHLCVCrypto1m
	err := s.db.WithContext(ctx).
		Where("symbol = ? AND datetime <= ?", symbol, to).
		Order("datetime DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	// reverse to ascending chronological order for easier logic
	for i, j := 0, len(rows)-1; i < j; i, j = i+1, j-1 {
		rows[i], rows[j] = rows[j], rows[i]
	}
	return rows, nil
}

// FetchRecentAgg builds up to limitAgg candles of the requested interval
// from the 1m store.
func (s *OHLCVRepository) FetchRecentAgg(
	ctx context.Context,
	symbol string,
	to time.Time,
	interval time.Duration,
	limitAgg int,
) ([]model.OHLCVCrypto1m, error) {
	if limitAgg <= 0 {
		limitAgg = 200
	}

	mult := int(interval.Minutes())
	if mult <= 0 {
		return nil, ErrInvalidInterval
	}
	limit1m := limitAgg*mult + mult // small buffer

	rows1m, err := s.FetchRecent1m(ctx, symbol, to, limit1m)
	if err != nil {
		return nil, err
	}

	agg, err := AggregateOHLCVFrom1m(rows1m, interval)
	if err != nil {
		return nil, err
	}

	// keep only the most recent limitAgg (agg is ascending)
	if len(agg) > limitAgg {
		agg = agg[len(agg)-limitAgg:]
	}
	return agg, nil
}

func bucketStart(t time.Time, interval time.Duration) time.Time {
	// Works for intervals that are multiples of 1 minute.
	// Align to wall-clock boundaries: 12:07 with 5m => 12:05
	secs := t.Unix()
	step := int64(interval.Seconds())
	return time.Unix((secs/step)*step, 0).UTC()
}

// AggregateOHLCVFrom1m rolls ascending 1m candles into interval buckets.
func AggregateOHLCVFrom1m(
	candles []model.OHLCVCrypto1m,
	interval time.Duration,
) ([]model.OHLCVCrypto1m, error) {
	if interval != 5*time.Minute &&
		interval != 15*time.Minute &&
		interval != 30*time.Minute &&
		interval != time.Hour {
		return nil, ErrInvalidInterval
	}

	if len(candles) == 0 {
		return []model.OHLCVCrypto1m{}, nil
	}

	out := make([]model.OHLCVCrypto1m, 0, len(candles)/int(interval.Minutes())+2)

	var cur model.OHLCVCrypto1m
	var curBucket time.Time
	hasCur := false

	for _, c := range candles {
		b := bucketStart(c.Datetime, interval)

		if !hasCur || !b.Equal(curBucket) {
			// flush previous bucket
			if hasCur {
				out = append(out, cur)
			}
			curBucket = b
			hasCur = true
			cur = model.OHLCVCrypto1m{
				Symbol:   c.Symbol,
				Datetime: curBucket, // bucket open time
				Open:     c.Open,
				High:     c.High,
				Low:      c.Low,
				Close:    c.Close,
				Volume:   c.Volume,
			}
			continue
		}

		if c.High.GreaterThan(cur.High) {
			cur.High = c.High
		}
		if c.Low.LessThan(cur.Low) {
			cur.Low = c.Low
		}
		cur.Close = c.Close
		cur.Volume = cur.Volume.Add(c.Volume)
	}

	if hasCur {
		out = append(out, cur)
	}

	return out, nil
}
