package dashboard

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"stratflow/models"
)

// stateStore keeps the most recent pipeline update plus bounded trade and
// equity histories for the dashboard views. The bus consumer writes, HTTP
// handlers read, so every method is safe for concurrent use.
type stateStore struct {
	mu          sync.RWMutex
	latest      models.DashboardUpdate
	seen        bool
	trades      []models.TradeRecord
	equity      []models.EquityPoint
	lastTradeID string
	limit       int
}

func newStateStore(limit int) *stateStore {
	if limit <= 0 {
		limit = 500
	}
	return &stateStore{limit: limit}
}

// apply folds one pipeline update into the store. Updates repeat the most
// recent closed trade on every candle, so the trade log only grows when the
// trade id changes.
func (s *stateStore) apply(update models.DashboardUpdate) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.latest = update
	s.seen = true

	s.equity = append(s.equity, models.EquityPoint{Timestamp: update.Timestamp, Equity: update.Equity})
	if len(s.equity) > s.limit {
		s.equity = append([]models.EquityPoint(nil), s.equity[len(s.equity)-s.limit:]...)
	}

	if update.LastTrade != nil && update.LastTrade.ID != s.lastTradeID {
		s.lastTradeID = update.LastTrade.ID
		s.trades = append(s.trades, *update.LastTrade)
		if len(s.trades) > s.limit {
			s.trades = append([]models.TradeRecord(nil), s.trades[len(s.trades)-s.limit:]...)
		}
	}
}

// status returns the newest update and whether any update has arrived yet.
func (s *stateStore) status() (models.DashboardUpdate, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.latest, s.seen
}

func (s *stateStore) tradeLog() []models.TradeRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.TradeRecord, len(s.trades))
	copy(out, s.trades)
	return out
}

func (s *stateStore) equityCurve() []models.EquityPoint {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.EquityPoint, len(s.equity))
	copy(out, s.equity)
	return out
}

// logRecord is the serialisable representation of a captured log entry that is
// rendered in the dashboard UI.
type logRecord struct {
	Timestamp time.Time              `json:"timestamp"`
	Level     string                 `json:"level"`
	Component string                 `json:"component,omitempty"`
	Message   string                 `json:"message"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
}

// logStore retains the most recent logs that flow through the global logger. The
// store implements the logrus Hook interface so that it can be attached directly to
// the application's logger.
type logStore struct {
	mu      sync.RWMutex
	items   []logRecord
	limit   int
	enabled atomic.Bool
}

func newLogStore(limit int) *logStore {
	if limit <= 0 {
		limit = 200
	}
	ls := &logStore{limit: limit}
	ls.enabled.Store(true)
	return ls
}

func (s *logStore) Levels() []logrus.Level {
	return logrus.AllLevels
}

func (s *logStore) Fire(entry *logrus.Entry) error {
	if !s.enabled.Load() {
		return nil
	}

	record := logRecord{
		Timestamp: entry.Time,
		Level:     entry.Level.String(),
		Message:   entry.Message,
	}

	if component, ok := entry.Data["component"].(string); ok {
		record.Component = component
	}

	if len(entry.Data) > 0 {
		record.Fields = make(map[string]interface{}, len(entry.Data))
		for k, v := range entry.Data {
			if k == "component" {
				continue
			}

			switch val := v.(type) {
			case error:
				record.Fields[k] = val.Error()
			case fmt.Stringer:
				record.Fields[k] = val.String()
			default:
				record.Fields[k] = val
			}
		}
	}

	s.mu.Lock()
	s.items = append(s.items, record)
	if len(s.items) > s.limit {
		s.items = append([]logRecord(nil), s.items[len(s.items)-s.limit:]...)
	}
	s.mu.Unlock()
	return nil
}

func (s *logStore) snapshot() []logRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]logRecord, len(s.items))
	copy(out, s.items)
	return out
}

func (s *logStore) close() {
	s.enabled.Store(false)
}
