package logger

import (
	"github.com/sirupsen/logrus"
)

// Log - глобальный логгер. До вызова Init пишет текстом с уровнем info,
// поэтому пакеты можно использовать в тестах без инициализации.
var Log = logrus.New()

// Init инициализирует структурированный логгер.
func Init(level string, production bool) {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	Log.SetLevel(lvl)

	// JSON для production, текст для development
	if production {
		Log.SetFormatter(&logrus.JSONFormatter{})
		return
	}
	SetTextFormatter()
}

// SetTextFormatter устанавливает текстовый формат логов (для development).
func SetTextFormatter() {
	Log.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})
}

// ForSession возвращает запись с полями сессии.
func ForSession(sessionID, coupleID interface{}) *logrus.Entry {
	return Log.WithFields(logrus.Fields{
		"session_id": sessionID,
		"couple_id":  coupleID,
	})
}
