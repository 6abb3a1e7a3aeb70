package journal

import "github.com/sirupsen/logrus"

type NoticeLevel string

const (
	NoticeInfo  NoticeLevel = "info"
	NoticeWarn  NoticeLevel = "warn"
	NoticeError NoticeLevel = "error"
)

// Notifier receives user-facing notices from the store. The UI layer plugs in
// its own implementation; the default just logs.
type Notifier interface {
	Notice(level NoticeLevel, message string)
}

type logNotifier struct {
	logger *logrus.Logger
}

func NewLogNotifier(logger *logrus.Logger) Notifier {
	return &logNotifier{logger: logger}
}

func (n *logNotifier) Notice(level NoticeLevel, message string) {
	entry := n.logger.WithField("module", "journal")
	switch level {
	case NoticeError:
		entry.Error(message)
	case NoticeWarn:
		entry.Warn(message)
	default:
		entry.Info(message)
	}
}
