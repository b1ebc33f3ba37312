package obs

import (
	"encoding/json"
	"log"
	"os"
	"sync"
)

var (
	loggerOnce sync.Once
	logger     *log.Logger
)

// Logger returns the shared structured logger used across the service.
func Logger() *log.Logger {
	loggerOnce.Do(func() {
		logger = log.New(os.Stdout, "", 0)
	})
	return logger
}

// Log emits a structured JSON log line.
func Log(entry map[string]any) {
	data, err := json.Marshal(entry)
	if err != nil {
		Logger().Println(`{"level":"error","msg":"log marshal failed"}`)
		return
	}
	Logger().Println(string(data))
}

// Error logs an unexpected failure with its component. Details stay
// server-side; callers only ever see the Internal category.
func Error(component string, err error, fields map[string]any) {
	entry := map[string]any{
		"level":     "error",
		"component": component,
		"error":     err.Error(),
	}
	for k, v := range fields {
		entry[k] = v
	}
	Log(entry)
}
