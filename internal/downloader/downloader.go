package downloader

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/adshao/go-binance/v2"
	"go.uber.org/zap"
)

// Kline is one candle of historical market data.
type Kline struct {
	OpenTime  int64
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
	CloseTime int64
}

// KlineDownloader fetches 1m candles for backtests and caches them as CSV.
type KlineDownloader struct {
	client *binance.Client
	logger *zap.SugaredLogger
}

// NewKlineDownloader creates a downloader. The kline endpoint is public, no
// API key needed.
func NewKlineDownloader(logger *zap.SugaredLogger) *KlineDownloader {
	return &KlineDownloader{
		client: binance.NewClient("", ""),
		logger: logger,
	}
}

// DownloadKlines downloads 1m candles for the symbol over the given range
// into a CSV file. An existing file is used as-is.
func (d *KlineDownloader) DownloadKlines(ctx context.Context, symbol, filePath string, startTime, endTime time.Time) error {
	if _, err := os.Stat(filePath); err == nil {
		d.logger.Infof("Using cached market data: %s", filePath)
		return nil
	}

	d.logger.Infof("Downloading %s klines from %s to %s",
		symbol, startTime.Format("2006-01-02"), endTime.Format("2006-01-02"))

	if err := os.MkdirAll(filepath.Dir(filePath), 0755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	file, err := os.Create(filePath)
	if err != nil {
		return fmt.Errorf("failed to create data file %s: %w", filePath, err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{"open_time", "open", "high", "low", "close", "volume", "close_time"}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}

	for t := startTime; t.Before(endTime); {
		klines, err := d.client.NewKlinesService().
			Symbol(symbol).
			Interval("1m").
			StartTime(t.UnixMilli()).
			EndTime(endTime.UnixMilli()).
			Limit(1000).
			Do(ctx)
		if err != nil {
			return fmt.Errorf("failed to download klines: %w", err)
		}
		if len(klines) == 0 {
			break
		}

		for _, k := range klines {
			record := []string{
				strconv.FormatInt(k.OpenTime, 10),
				k.Open, k.High, k.Low, k.Close, k.Volume,
				strconv.FormatInt(k.CloseTime, 10),
			}
			if err := writer.Write(record); err != nil {
				return fmt.Errorf("failed to write CSV record: %w", err)
			}
		}

		t = time.UnixMilli(klines[len(klines)-1].CloseTime + 1)
		d.logger.Debugf("Downloaded klines up to %s", t.Format("2006-01-02 15:04:05"))

		// Stay under the public endpoint rate limit.
		select {
		case <-time.After(200 * time.Millisecond):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	d.logger.Infof("Saved market data to %s", filePath)
	return nil
}

// LoadKlines reads a cached CSV file back into memory for replay.
func LoadKlines(filePath string) ([]Kline, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open data file %s: %w", filePath, err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read data file %s: %w", filePath, err)
	}
	if len(records) < 2 {
		return nil, fmt.Errorf("data file %s contains no candles", filePath)
	}

	klines := make([]Kline, 0, len(records)-1)
	for i, rec := range records[1:] {
		if len(rec) < 7 {
			return nil, fmt.Errorf("malformed record on line %d of %s", i+2, filePath)
		}
		openTime, err1 := strconv.ParseInt(rec[0], 10, 64)
		open, err2 := strconv.ParseFloat(rec[1], 64)
		high, err3 := strconv.ParseFloat(rec[2], 64)
		low, err4 := strconv.ParseFloat(rec[3], 64)
		closePrice, err5 := strconv.ParseFloat(rec[4], 64)
		volume, err6 := strconv.ParseFloat(rec[5], 64)
		closeTime, err7 := strconv.ParseInt(rec[6], 10, 64)
		for _, e := range []error{err1, err2, err3, err4, err5, err6, err7} {
			if e != nil {
				return nil, fmt.Errorf("malformed record on line %d of %s: %v", i+2, filePath, e)
			}
		}
		klines = append(klines, Kline{
			OpenTime: openTime, Open: open, High: high, Low: low,
			Close: closePrice, Volume: volume, CloseTime: closeTime,
		})
	}
	return klines, nil
}
