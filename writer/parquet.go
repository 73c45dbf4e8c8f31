package writer

import (
	"bytes"
	"fmt"

	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/source"
	"github.com/xitongsys/parquet-go/writer"

	"stratflow/models"
)

// equityRow is the parquet layout of one equity-curve sample.
type equityRow struct {
	Timestamp int64   `parquet:"name=timestamp, type=INT64"`
	Equity    float64 `parquet:"name=equity, type=DOUBLE"`
}

// tradeRow is the parquet layout of one closed trade.
type tradeRow struct {
	ID            string  `parquet:"name=id, type=BYTE_ARRAY, convertedtype=UTF8"`
	Timestamp     int64   `parquet:"name=timestamp, type=INT64"`
	Symbol        string  `parquet:"name=symbol, type=BYTE_ARRAY, convertedtype=UTF8"`
	Action        string  `parquet:"name=action, type=BYTE_ARRAY, convertedtype=UTF8"`
	Quantity      float64 `parquet:"name=quantity, type=DOUBLE"`
	Price         float64 `parquet:"name=price, type=DOUBLE"`
	Value         float64 `parquet:"name=value, type=DOUBLE"`
	Fee           float64 `parquet:"name=fee, type=DOUBLE"`
	StopLoss      float64 `parquet:"name=stop_loss, type=DOUBLE"`
	TakeProfit    float64 `parquet:"name=take_profit, type=DOUBLE"`
	ExitTimestamp int64   `parquet:"name=exit_timestamp, type=INT64"`
	ExitPrice     float64 `parquet:"name=exit_price, type=DOUBLE"`
	ExitFee       float64 `parquet:"name=exit_fee, type=DOUBLE"`
	PnL           float64 `parquet:"name=pnl, type=DOUBLE"`
	PnLPercent    float64 `parquet:"name=pnl_percent, type=DOUBLE"`
	HoldingMs     int64   `parquet:"name=holding_ms, type=INT64"`
	IsWin         bool    `parquet:"name=is_win, type=BOOLEAN"`
	Reason        string  `parquet:"name=reason, type=BYTE_ARRAY, convertedtype=UTF8"`
}

// memoryFile keeps a parquet file in memory so an artifact can be encoded
// and uploaded without touching the local filesystem.
type memoryFile struct {
	buffer *bytes.Buffer
}

func newMemoryFile() *memoryFile {
	return &memoryFile{buffer: &bytes.Buffer{}}
}

func (m *memoryFile) Create(string) (source.ParquetFile, error) {
	return m, nil
}

func (m *memoryFile) Open(string) (source.ParquetFile, error) {
	return m, nil
}

// Seek is part of the ParquetFile contract but writing is append-only here.
func (m *memoryFile) Seek(int64, int) (int64, error) {
	return int64(m.buffer.Len()), nil
}

func (m *memoryFile) Read(p []byte) (int, error) {
	return m.buffer.Read(p)
}

func (m *memoryFile) Write(p []byte) (int, error) {
	return m.buffer.Write(p)
}

func (m *memoryFile) Close() error {
	return nil
}

func (m *memoryFile) Bytes() []byte {
	return m.buffer.Bytes()
}

// encodeEquityCurve renders the equity curve as a snappy-compressed parquet
// file held in memory.
func encodeEquityCurve(curve []models.EquityPoint) ([]byte, error) {
	fw := newMemoryFile()
	pw, err := writer.NewParquetWriter(fw, new(equityRow), 4)
	if err != nil {
		return nil, fmt.Errorf("create parquet writer: %w", err)
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	for _, point := range curve {
		row := equityRow{
			Timestamp: point.Timestamp.UnixMilli(),
			Equity:    point.Equity,
		}
		if err := pw.Write(row); err != nil {
			pw.WriteStop()
			return nil, fmt.Errorf("write equity row: %w", err)
		}
	}

	if err := pw.WriteStop(); err != nil {
		return nil, fmt.Errorf("finalize parquet file: %w", err)
	}
	return fw.Bytes(), nil
}

// encodeTradeLog renders the trade log as a snappy-compressed parquet file
// held in memory.
func encodeTradeLog(trades []models.TradeRecord) ([]byte, error) {
	fw := newMemoryFile()
	pw, err := writer.NewParquetWriter(fw, new(tradeRow), 4)
	if err != nil {
		return nil, fmt.Errorf("create parquet writer: %w", err)
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	for _, trade := range trades {
		row := tradeRow{
			ID:            trade.ID,
			Timestamp:     trade.Timestamp.UnixMilli(),
			Symbol:        trade.Symbol,
			Action:        string(trade.Action),
			Quantity:      trade.Quantity,
			Price:         trade.Price,
			Value:         trade.Value,
			Fee:           trade.Fee,
			StopLoss:      trade.StopLoss,
			TakeProfit:    trade.TakeProfit,
			ExitPrice:     trade.ExitPrice,
			ExitFee:       trade.ExitFee,
			PnL:           trade.PnL,
			PnLPercent:    trade.PnLPercent,
			HoldingMs:     trade.HoldingPeriod.Milliseconds(),
			IsWin:         trade.IsWin,
			Reason:        trade.Reason,
		}
		if !trade.ExitTime.IsZero() {
			row.ExitTimestamp = trade.ExitTime.UnixMilli()
		}
		if err := pw.Write(row); err != nil {
			pw.WriteStop()
			return nil, fmt.Errorf("write trade row: %w", err)
		}
	}

	if err := pw.WriteStop(); err != nil {
		return nil, fmt.Errorf("finalize parquet file: %w", err)
	}
	return fw.Bytes(), nil
}
