// ABOUTME: Fire-and-forget notification sink for user-visible notices
// ABOUTME: The engine raises success/error/info notices; frontends decide how to show them

package notify

import "log/slog"

// Notifier receives user-visible notices. Implementations must not
// block; no return value is consumed.
type Notifier interface {
	Success(message string)
	Error(message string)
	Info(message string)
}

// LogNotifier writes notices to a slog.Logger. Used as the default sink
// and by headless callers.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier creates a log-backed notifier. Pass nil for default.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger.With("component", "notify")}
}

func (n *LogNotifier) Success(message string) { n.logger.Info("notice", "kind", "success", "message", message) }
func (n *LogNotifier) Error(message string)   { n.logger.Warn("notice", "kind", "error", "message", message) }
func (n *LogNotifier) Info(message string)    { n.logger.Info("notice", "kind", "info", "message", message) }
