package util

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dylan-green/promise-idb/lib/codec"
	"github.com/dylan-green/promise-idb/lib/logging"
	"github.com/dylan-green/promise-idb/lib/platform"
	"github.com/dylan-green/promise-idb/lib/platform/engines/memory"
	"github.com/dylan-green/promise-idb/lib/platform/engines/pebble"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	// Wrap is the number of characters to Wrap the help text at
	Wrap int = 50
)

// WrapString wraps a string at Wrap characters
func WrapString(text string) string {
	var wrappedLines []string
	var currentLine strings.Builder
	lineWidth := 0

	for _, word := range strings.Fields(text) {
		wordWidth := len(word)

		// Check if we need to wrap
		if lineWidth > 0 && lineWidth+1+wordWidth > Wrap {
			wrappedLines = append(wrappedLines, currentLine.String())
			currentLine.Reset()
			lineWidth = 0
		}

		// Add space before word (if not first word on line)
		if lineWidth > 0 {
			currentLine.WriteString(" ")
			lineWidth++
		}

		// Add the word
		currentLine.WriteString(word)
		lineWidth += wordWidth
	}

	// Add any remaining text
	if currentLine.Len() > 0 {
		wrappedLines = append(wrappedLines, currentLine.String())
	}

	return strings.Join(wrappedLines, "\n")
}

// SetupEngineFlags adds the common engine selection flags to a command
func SetupEngineFlags(cmd *cobra.Command) {
	key := "engine"
	cmd.PersistentFlags().String(key, "pebble", WrapString("storage engine to use (memory, pebble)"))

	key = "path"
	cmd.PersistentFlags().String(key, "./pidb-data", WrapString("data directory for the pebble engine (ignored for memory)"))

	key = "timeout"
	cmd.PersistentFlags().Int(key, 10, WrapString("The timeout in seconds for one operation"))

	key = "sync-writes"
	cmd.PersistentFlags().Bool(key, true, WrapString("Whether pebble flushes every write to stable storage before acknowledging it"))
}

// InitConfig initializes configuration from environment variables
func InitConfig() {
	// load env files
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	// initialize viper
	viper.SetEnvPrefix("pidb")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv() // read in environment variables that match

	if lvl := viper.GetString("log-level"); lvl != "" {
		_ = logging.SetLevel(lvl)
	}
}

// GetCodec creates a document codec based on configuration
func GetCodec() (codec.ICodec, error) {
	switch viper.GetString("codec") {
	case "json":
		return codec.NewJSONCodec(), nil
	case "gob":
		return codec.NewGOBCodec(), nil
	default:
		return nil, fmt.Errorf("invalid codec %s", viper.GetString("codec"))
	}
}

// GetEnvironment creates a storage engine based on configuration
func GetEnvironment() (platform.Environment, error) {
	c, err := GetCodec()
	if err != nil {
		return nil, err
	}

	switch viper.GetString("engine") {
	case "memory":
		return memory.New(&memory.Options{Codec: c}), nil
	case "pebble":
		return pebble.Open(
			viper.GetString("path"),
			pebble.WithCodec(c),
			pebble.WithSyncWrites(viper.GetBool("sync-writes")),
		)
	default:
		return nil, fmt.Errorf("invalid engine %s", viper.GetString("engine"))
	}
}

// Timeout returns a context bounded by the configured operation timeout
func Timeout() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), time.Duration(viper.GetInt("timeout"))*time.Second)
}

// ParseKey converts a CLI argument into a record key. With numeric=true the
// argument is parsed as a number, otherwise it is taken as a string key.
func ParseKey(arg string, numeric bool) (platform.Key, error) {
	if !numeric {
		return arg, nil
	}
	f, err := strconv.ParseFloat(arg, 64)
	if err != nil {
		return nil, fmt.Errorf("key must be a number: %w", err)
	}
	return f, nil
}

// BindCommandFlags binds a command's flags to viper
func BindCommandFlags(cmd *cobra.Command) error {
	return viper.BindPFlags(cmd.Flags())
}
