/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: formatter.go
Description: Console log formatter for crashprobe. One line per entry: timestamp, level,
optional caller, message, then key=value fields in sorted order, with ANSI colors when
enabled.
*/

package logging

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// ANSI color codes
const (
	colorRed     = 31
	colorGreen   = 32
	colorYellow  = 33
	colorBlue    = 34
	colorMagenta = 35
	colorCyan    = 36
	colorWhite   = 37
)

// CustomFormatter renders compact single-line entries
type CustomFormatter struct {
	Timestamp bool
	Caller    bool
	Colors    bool
}

// Format formats a log entry
func (f *CustomFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	var b strings.Builder

	if f.Timestamp {
		b.WriteString(f.paint(colorCyan, entry.Time.Format("2006-01-02 15:04:05.000")))
		b.WriteByte(' ')
	}

	level := fmt.Sprintf("%-5s", strings.ToUpper(entry.Level.String()))
	b.WriteString(f.paint(levelColor(entry.Level), level))
	b.WriteByte(' ')

	if f.Caller && entry.HasCaller() {
		caller := fmt.Sprintf("[%s:%d]", filepath.Base(entry.Caller.File), entry.Caller.Line)
		b.WriteString(f.paint(colorYellow, caller))
		b.WriteByte(' ')
	}

	b.WriteString(entry.Message)

	keys := make([]string, 0, len(entry.Data))
	for k := range entry.Data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		b.WriteByte(' ')
		b.WriteString(f.paint(colorBlue, k))
		b.WriteByte('=')
		b.WriteString(f.paint(colorGreen, formatValue(entry.Data[k])))
	}

	b.WriteByte('\n')
	return []byte(b.String()), nil
}

func (f *CustomFormatter) paint(color int, s string) string {
	if !f.Colors {
		return s
	}
	return fmt.Sprintf("\033[%dm%s\033[0m", color, s)
}

func levelColor(level logrus.Level) int {
	switch level {
	case logrus.InfoLevel:
		return colorGreen
	case logrus.WarnLevel:
		return colorYellow
	case logrus.ErrorLevel:
		return colorRed
	case logrus.FatalLevel, logrus.PanicLevel:
		return colorMagenta
	default:
		return colorWhite
	}
}

func formatValue(value interface{}) string {
	switch v := value.(type) {
	case time.Duration:
		return v.String()
	case time.Time:
		return v.Format("15:04:05.000")
	case string:
		if len(v) > 50 {
			return v[:50] + "..."
		}
		return v
	case []byte:
		if len(v) > 20 {
			return fmt.Sprintf("[%d bytes]", len(v))
		}
		return fmt.Sprintf("%x", v)
	case error:
		return v.Error()
	default:
		return fmt.Sprintf("%v", v)
	}
}
