package execution

import (
	"sync"

	"github.com/igrmk/treemap/v2"
)

// TradePlaceStats counts order outcomes on one trade place.
type TradePlaceStats struct {
	TradePlace           string `json:"trade_place"`
	OpenedOrdersCount    uint64 `json:"opened_orders_count"`
	CanceledOrdersCount  uint64 `json:"canceled_orders_count"`
	FailedOrdersCount    uint64 `json:"failed_orders_count"`
	CompletedOrdersCount uint64 `json:"completed_orders_count"`
}

// TradePlace keys statistics by account and pair, e.g. "Binance0|phb/btc".
func TradePlace(accountID AccountID, pair CurrencyPair) string {
	return string(accountID) + "|" + pair.String()
}

// StatisticService is an EventSink that counts lifecycle events per trade
// place. An event id among the last statisticsDedupWindow ids is ignored, so
// redelivery does not inflate the counters.
type StatisticService struct {
	mu     sync.Mutex
	places *treemap.TreeMap[string, *TradePlaceStats]

	seen   map[string]struct{}
	recent []string // ring of the ids in seen, oldest at next
	next   int
}

// NewStatisticService creates an empty service.
func NewStatisticService() *StatisticService {
	return newStatisticService(statisticsDedupWindow)
}

func newStatisticService(window int) *StatisticService {
	if window < 1 {
		window = 1
	}
	return &StatisticService{
		places: treemap.New[string, *TradePlaceStats](),
		seen:   make(map[string]struct{}, window),
		recent: make([]string, 0, window),
	}
}

// Publish implements EventSink.
func (s *StatisticService) Publish(events ...*OrderEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, event := range events {
		if !s.rememberLocked(event.ID) {
			continue
		}

		stats := s.placeLocked(TradePlace(event.Order.AccountID, event.Order.CurrencyPair))
		switch event.Type {
		case CreateOrderSucceeded:
			stats.OpenedOrdersCount++
		case CreateOrderFailed:
			stats.FailedOrdersCount++
		case CancelOrderSucceeded:
			stats.CanceledOrdersCount++
		case OrderCompleted:
			stats.CompletedOrdersCount++
		}
	}
}

// rememberLocked records id and reports false if it is already remembered.
// Once the window is full the oldest id is forgotten.
func (s *StatisticService) rememberLocked(id string) bool {
	if _, ok := s.seen[id]; ok {
		return false
	}
	if len(s.recent) < cap(s.recent) {
		s.recent = append(s.recent, id)
	} else {
		delete(s.seen, s.recent[s.next])
		s.recent[s.next] = id
		s.next = (s.next + 1) % len(s.recent)
	}
	s.seen[id] = struct{}{}
	return true
}

func (s *StatisticService) placeLocked(place string) *TradePlaceStats {
	stats, ok := s.places.Get(place)
	if !ok {
		stats = &TradePlaceStats{TradePlace: place}
		s.places.Set(place, stats)
	}
	return stats
}

// Stats returns a copy of the counters of one trade place.
func (s *StatisticService) Stats(place string) (TradePlaceStats, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats, ok := s.places.Get(place)
	if !ok {
		return TradePlaceStats{}, false
	}
	return *stats, true
}

// Snapshot returns the counters of every trade place ordered by trade place.
func (s *StatisticService) Snapshot() []TradePlaceStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := make([]TradePlaceStats, 0, s.places.Len())
	for it := s.places.Iterator(); it.Valid(); it.Next() {
		result = append(result, *it.Value())
	}
	return result
}
