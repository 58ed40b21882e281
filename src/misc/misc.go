// contains some misc helper functions etc. for lintrack
package misc

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// ErrorCheck logs a non-nil error and exits
func ErrorCheck(msg error) {
	if msg != nil {
		zap.L().Fatal("terminated", zap.Error(msg))
	}
}

// CheckRequiredFlags reports every flag marked required that was not set on the command line
func CheckRequiredFlags(flags *pflag.FlagSet) error {
	var missing []string
	flags.VisitAll(func(flag *pflag.Flag) {
		if flag.Changed {
			return
		}
		if required := flag.Annotations[cobra.BashCompOneRequiredFlag]; len(required) != 0 && required[0] == "true" {
			missing = append(missing, "--"+flag.Name)
		}
	})
	if len(missing) != 0 {
		return fmt.Errorf("required flags not set: %s", strings.Join(missing, ", "))
	}
	return nil
}

// StartLogging builds the global logger. Console output is always on, when logFile is set a
// JSON copy of every entry is written there and rotated by lumberjack.
func StartLogging(logFile string, level string) (*zap.Logger, error) {
	atom := zap.NewAtomicLevel()
	if err := atom.UnmarshalText([]byte(level)); err != nil {
		atom.SetLevel(zap.InfoLevel)
	}
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("2006-01-02T15:04:05.000Z07:00")
	consoleConfig := encoderConfig
	consoleConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	cores := []zapcore.Core{
		zapcore.NewCore(zapcore.NewConsoleEncoder(consoleConfig), zapcore.Lock(os.Stderr), atom),
	}
	if logFile != "" {
		if dir := filepath.Dir(logFile); dir != "." {
			if err := os.MkdirAll(dir, 0700); err != nil {
				return nil, fmt.Errorf("can't create specified directory for log: %w", err)
			}
		}
		fileWriter := zapcore.AddSync(&lumberjack.Logger{
			Filename:   logFile,
			MaxSize:    50,
			MaxBackups: 3,
			Compress:   true,
		})
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig), fileWriter, atom))
	}
	logger := zap.New(zapcore.NewTee(cores...), zap.AddStacktrace(zap.ErrorLevel)).Named("lintrack")
	zap.ReplaceGlobals(logger)
	return logger, nil
}

// CheckDir returns an error unless dir names an existing directory
func CheckDir(dir string) error {
	if dir == "" {
		return errors.New("no directory given")
	}
	info, err := os.Stat(dir)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return fmt.Errorf("no such directory: %s", dir)
	case err != nil:
		return fmt.Errorf("could not access directory %s: %w", dir, err)
	case !info.IsDir():
		return fmt.Errorf("not a directory: %s", dir)
	}
	return nil
}

// CheckFile returns an error unless file names an existing regular file
func CheckFile(file string) error {
	info, err := os.Stat(file)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return fmt.Errorf("no such file: %s", file)
	case err != nil:
		return fmt.Errorf("could not access file %s: %w", file, err)
	case info.IsDir():
		return fmt.Errorf("expected a file, got a directory: %s", file)
	}
	return nil
}

// CheckExt checks the extension of a file against exts, ignoring a trailing .gz
func CheckExt(file string, exts []string) error {
	ext := strings.TrimPrefix(filepath.Ext(strings.TrimSuffix(file, ".gz")), ".")
	for _, want := range exts {
		if ext == want {
			return nil
		}
	}
	return fmt.Errorf("%s does not end in one of .%s", file, strings.Join(exts, ", ."))
}

// PrintMemUsage describes the heap in use, the memory obtained from the OS and the GC cycles so far
func PrintMemUsage() string {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return fmt.Sprintf("heap=%dMiB sys=%dMiB gc=%d", m.HeapAlloc>>20, m.Sys>>20, m.NumGC)
}
