package execution

import (
	"log/slog"
	"os"
	"sync/atomic"
)

var defaultLogger atomic.Pointer[slog.Logger]

func init() {
	defaultLogger.Store(slog.New(slog.NewJSONHandler(os.Stdout, nil)))
}

// SetLogger allows setting a custom logger. It is safe to call while
// background goroutines are logging.
func SetLogger(l *slog.Logger) {
	defaultLogger.Store(l)
}

func logger() *slog.Logger {
	return defaultLogger.Load()
}

// orderLogArgs returns the attributes attached to every order lifecycle log line.
func orderLogArgs(accountID AccountID, clientOrderID ClientOrderID, venueOrderID VenueOrderID) []any {
	args := []any{
		"account_id", accountID,
		"client_order_id", clientOrderID,
	}
	if venueOrderID != "" {
		args = append(args, "venue_order_id", venueOrderID)
	}
	return args
}
