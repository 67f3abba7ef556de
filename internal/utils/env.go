package utils

import (
	"os"
	"strconv"
	"sync"

	"github.com/markphelps/optional"
)

var (
	debugMode optional.Bool
	debugMu   sync.Mutex
)

func GetEnvOrDefault(key string, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

// IsDebug reports whether DEBUG is set to a true value. The first answer is
// kept for the life of the process, so .env files must be loaded before the
// first call. Unparseable values count as false.
func IsDebug() bool {
	debugMu.Lock()
	defer debugMu.Unlock()

	if debug, err := debugMode.Get(); err == nil {
		return debug
	}

	debug, err := strconv.ParseBool(GetEnvOrDefault("DEBUG", "false"))
	debugMode = optional.NewBool(err == nil && debug)
	return debugMode.MustGet()
}
