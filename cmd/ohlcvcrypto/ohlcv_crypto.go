package ohlcvcrypto

import (
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/nntaoli-project/goex"
	"github.com/nntaoli-project/goex/binance"

	"strangleexecutor/src/model"
)

const (
	Duration1m = "1m"
	Duration1h = "1h"
)

// OHLCVCrypto records spot candles for the strategy underlyings so the
// analytics endpoints can chart the market the strangles trade against.
// One run covers every configured underlying for one interval.
type OHLCVCrypto struct {
	Log      *logger.Entry
	DB       *gorm.DB
	Config   *Config
	exchange goex.API
}

func (o *OHLCVCrypto) Start() error {
	if o.Config == nil {
		o.Config = GetConfig()
	}
	if o.exchange == nil {
		o.exchange = o.newBinanceInstance()
	}

	for _, underlying := range o.Config.Symbols {
		if err := o.recordUnderlying(underlying); err != nil {
			return fmt.Errorf("recording %s candles: %w", underlying, err)
		}
	}
	return nil
}

func (*OHLCVCrypto) newBinanceInstance() *binance.Binance {
	apiConfig := &goex.APIConfig{
		HttpClient: http.DefaultClient,
		Endpoint:   binance.GLOBAL_API_BASE_URL,
	}
	return binance.NewWithConfig(apiConfig)
}

// recordUnderlying fetches the candle window for one underlying and
// upserts it. AUTO_MODE resumes from the newest candle already stored
// instead of the configured window.
func (o *OHLCVCrypto) recordUnderlying(underlying string) error {
	window := candleWindow{start: o.Config.StartDt, end: o.Config.EndDt}
	if o.Config.AutoMode {
		resumed, err := o.resumeWindow(underlying)
		if err != nil {
			return err
		}
		window = resumed
	}

	series, err := o.fetchSeries(underlying, window)
	if err != nil {
		return err
	}
	return o.storeSeries(underlying, series)
}

type candleWindow struct {
	start time.Time
	end   time.Time
}

// resumeWindow starts one interval before the newest stored candle so the
// still-forming bucket gets refreshed on the next run. With nothing
// stored the configured START_DATE applies.
func (o *OHLCVCrypto) resumeWindow(underlying string) (candleWindow, error) {
	window := candleWindow{
		start: o.Config.StartDt.Add(-o.interval()),
		end:   time.Now(),
	}

	var latest sql.NullTime
	result := o.candleModel().
		Select("MAX(datetime)").
		Where("symbol = ?", pairSymbol(underlying, o.Config.Quote)).
		Take(&latest)

	if result.Error != nil {
		if !errors.Is(result.Error, gorm.ErrRecordNotFound) {
			o.Log.WithError(result.Error).Error("Failed to query the newest stored candle")
			return candleWindow{}, result.Error
		}
		o.Log.WithFields(logger.Fields{
			"underlying": underlying,
			"start":      window.start,
		}).Info("No candles stored yet, starting from the configured window")
		return window, nil
	}

	if latest.Valid {
		window.start = latest.Time.Add(-o.interval())
	}
	o.Log.WithFields(logger.Fields{
		"underlying": underlying,
		"start":      window.start,
		"end":        window.end,
	}).Info("Resuming candle ingestion")
	return window, nil
}

func (o *OHLCVCrypto) fetchSeries(underlying string, window candleWindow) ([]goex.Kline, error) {
	pair := goex.NewCurrencyPair(
		goex.Currency{Symbol: underlying},
		goex.Currency{Symbol: o.Config.Quote},
	)

	const millis = 1000
	return o.exchange.GetKlineRecords(
		pair,
		o.klinePeriod(),
		o.Config.Limit,
		goex.OptionalParameter{}.
			Optional("startTime", window.start.Unix()*millis).
			Optional("endTime", window.end.Unix()*millis),
	)
}

// storeSeries upserts each candle on its (datetime, symbol) key so reruns
// over the same window refresh prices instead of duplicating rows.
func (o *OHLCVCrypto) storeSeries(underlying string, series []goex.Kline) error {
	for i := range series {
		k := series[i]
		base := &model.OHLCVBase{
			Datetime: time.Unix(k.Timestamp, 0).UTC(),
			Open:     decimal.NewFromFloat(k.Open),
			High:     decimal.NewFromFloat(k.High),
			Low:      decimal.NewFromFloat(k.Low),
			Close:    decimal.NewFromFloat(k.Close),
			Volume:   decimal.NewFromFloat(k.Vol),
			Symbol:   k.Pair.String(),
		}

		var row interface{}
		switch o.Config.DurationStr {
		case Duration1m:
			row = base.ConvertToOHLCVCrypto1m()
		case Duration1h:
			row = base.ConvertToOHLCVCrypto1h()
		}

		err := o.DB.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "datetime"}, {Name: "symbol"}},
			DoUpdates: clause.AssignmentColumns([]string{"open", "high", "low", "close", "volume"}),
		}).Create(row).Error
		if err != nil {
			o.Log.WithError(err).WithField("underlying", underlying).
				Error("Failed to upsert candle")
			return err
		}
	}

	o.Log.WithFields(logger.Fields{
		"underlying": underlying,
		"interval":   o.Config.DurationStr,
		"candles":    len(series),
	}).Info("Candle window recorded")
	return nil
}

func (o *OHLCVCrypto) interval() time.Duration {
	switch o.Config.DurationStr {
	case Duration1m:
		return time.Minute
	case Duration1h:
		return time.Hour
	default:
		panic("invalid DURATION env var")
	}
}

func (o *OHLCVCrypto) klinePeriod() goex.KlinePeriod {
	switch o.Config.DurationStr {
	case Duration1m:
		return goex.KLINE_PERIOD_1MIN
	case Duration1h:
		return goex.KLINE_PERIOD_1H
	default:
		panic("invalid DURATION env var")
	}
}

func (o *OHLCVCrypto) candleModel() (tx *gorm.DB) {
	switch o.Config.DurationStr {
	case Duration1m:
		tx = o.DB.Model(&model.OHLCVCrypto1m{})
	case Duration1h:
		tx = o.DB.Model(&model.OHLCVCrypto1h{})
	default:
		panic("candleModel, invalid DURATION")
	}
	return tx
}

// pairSymbol is the stored symbol form, matching goex's pair formatting.
func pairSymbol(underlying, quote string) string {
	return underlying + "_" + quote
}
