/*
 * Copyright (c) 2021 VMware, Inc.
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy of this software and
 * associated documentation files (the "Software"), to deal in the Software without restriction, including
 * without limitation the rights to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is furnished to do
 * so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all copies or substantial
 * portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR IMPLIED, INCLUDING BUT
 * NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY, FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT.
 * IN NO EVENT SHALL THE AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER LIABILITY,
 * WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM, OUT OF OR IN CONNECTION WITH THE
 * SOFTWARE OR THE USE OR OTHER DEALINGS IN THE SOFTWARE.
 */

// Package logger provides the logging abstraction used by the library.
// Components never log through a package-level singleton; a Logger is
// injected at construction time and defaults to a logrus-backed console
// logger when the host application supplies nothing.
package logger

// Log level strings understood by Configuration.
const (
	Debug = "debug"
	Info  = "info"
	Warn  = "warn"
	Error = "error"
	Fatal = "fatal"
)

// Fields type, used to pass to WithFields.
type Fields map[string]interface{}

// Logger is the contract for all logging backends.
type Logger interface {
	Debugf(format string, args ...interface{})

	Infof(format string, args ...interface{})

	Warnf(format string, args ...interface{})

	Errorf(format string, args ...interface{})

	Fatalf(format string, args ...interface{})

	Panicf(format string, args ...interface{})

	// WithFields returns a logger with the given structured context attached.
	WithFields(keyValues Fields) Logger
}

// Configuration stores the config for the logger.
// For some loggers there can only be one level across writers, for such
// the level of Console is picked by default.
type Configuration struct {
	EnableConsole     bool
	ConsoleJSONFormat bool
	ConsoleLevel      string

	EnableFile     bool
	FileJSONFormat bool
	FileLevel      string
	Filename       string

	// Rotation settings for the file writer.
	MaxSizeMB  int
	MaxAgeDays int
	MaxBackups int
	LocalTime  bool
}

// GetDefaultLogger returns a logrus-backed logger at info level writing to
// the console. Used by config when the application does not provide one.
func GetDefaultLogger() Logger {
	return NewLogrusLoggerWithConfig(Configuration{
		EnableConsole:     true,
		ConsoleLevel:      Info,
		ConsoleJSONFormat: false,
	})
}

func normalizeConfig(config *Configuration) {
	if config.ConsoleLevel == "" {
		config.ConsoleLevel = Info
	}
	if config.FileLevel == "" {
		config.FileLevel = Info
	}
	if config.EnableFile {
		if config.Filename == "" {
			config.Filename = "ccl.log"
		}
		if config.MaxSizeMB == 0 {
			config.MaxSizeMB = 100
		}
		if config.MaxAgeDays == 0 {
			config.MaxAgeDays = 28
		}
	}
}
