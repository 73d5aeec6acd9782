package firebridge

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/m-mizutani/clog"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/masq"
)

// LogLevelEnv selects the log level: DEBUG, INFO, WARN, ERROR or NONE.
const LogLevelEnv = "FIRESTORE_LOG_LEVEL"

// SetupLogging installs the default logger at the level named by
// LogLevelEnv. Unset or unrecognized values keep INFO.
func SetupLogging(w io.Writer) {
	level := slog.LevelInfo
	discard := false
	switch strings.ToUpper(os.Getenv(LogLevelEnv)) {
	case "DEBUG":
		level = slog.LevelDebug
	case "WARN":
		level = slog.LevelWarn
	case "ERROR":
		level = slog.LevelError
	case "NONE":
		discard = true
	}
	if discard {
		slog.SetDefault(slog.New(slog.NewJSONHandler(io.Discard, nil)))
		return
	}
	slog.SetDefault(NewLogger(w, level))
}

// NewLogger builds a console logger. Credential material is redacted
// before it reaches the writer.
func NewLogger(w io.Writer, level slog.Level) *slog.Logger {
	filter := masq.New(
		masq.WithFieldName("PrivateKey"),
		masq.WithFieldName("APIKey"),
		masq.WithFieldName("Authorization"),
		masq.WithFieldPrefix("secret_"),
	)

	handler := clog.New(
		clog.WithWriter(w),
		clog.WithLevel(level),
		clog.WithReplaceAttr(filter),
		clog.WithAttrHook(goerrValues),
		clog.WithColorMap(&clog.ColorMap{
			Level: map[slog.Level]*color.Color{
				slog.LevelDebug: color.New(color.FgGreen, color.Bold),
				slog.LevelInfo:  color.New(color.FgCyan, color.Bold),
				slog.LevelWarn:  color.New(color.FgYellow, color.Bold),
				slog.LevelError: color.New(color.FgRed, color.Bold),
			},
			LevelDefault: color.New(color.FgBlue, color.Bold),
			Time:         color.New(color.FgWhite),
			Message:      color.New(color.FgHiWhite),
			AttrKey:      color.New(color.FgHiCyan),
			AttrValue:    color.New(color.FgHiWhite),
		}),
	)
	return slog.New(handler)
}

// goerrValues flattens goerr context values into a group instead of
// dumping the stack trace.
func goerrValues(_ []string, attr slog.Attr) *clog.HandleAttr {
	goErr, ok := attr.Value.Any().(*goerr.Error)
	if !ok {
		return nil
	}
	var attrs []any
	for k, v := range goErr.Values() {
		attrs = append(attrs, slog.Any(k, v))
	}
	attrs = append(attrs, slog.Any("cause", goErr.Error()))
	newAttr := slog.Group(attr.Key, attrs...)
	return &clog.HandleAttr{NewAttr: &newAttr}
}
