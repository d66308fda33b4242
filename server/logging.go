package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	logstash "github.com/bshuster-repo/logrus-logstash-hook"
	"github.com/gorilla/handlers"
	"github.com/sirupsen/logrus"

	"github.com/distribution/archiver/configuration"
	"github.com/distribution/archiver/internal/dcontext"
)

// configureLogging prepares the context with a logger using the
// configuration.
func configureLogging(ctx context.Context, config *configuration.Configuration) (context.Context, error) {
	logrus.SetLevel(logLevel(config.Log.Level))
	logrus.SetReportCaller(config.Log.ReportCaller)

	formatter := config.Log.Formatter
	if formatter == "" {
		formatter = "text" // default formatter
	}

	switch formatter {
	case "json":
		logrus.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat:   time.RFC3339Nano,
			DisableHTMLEscape: true,
		})
	case "text":
		logrus.SetFormatter(&logrus.TextFormatter{
			TimestampFormat: time.RFC3339Nano,
		})
	case "logstash":
		logrus.SetFormatter(&logstash.LogstashFormatter{
			Formatter: &logrus.JSONFormatter{TimestampFormat: time.RFC3339Nano},
		})
	default:
		return ctx, fmt.Errorf("unsupported logging formatter: %q", formatter)
	}

	logrus.Debugf("using %q logging formatter", formatter)

	if len(config.Log.Fields) > 0 {
		// build up the static fields, if present.
		var fields []any
		for k := range config.Log.Fields {
			fields = append(fields, k)
		}

		ctx = dcontext.WithValues(ctx, config.Log.Fields)
		ctx = dcontext.WithLogger(ctx, dcontext.GetLogger(ctx, fields...))
	}

	dcontext.SetDefaultLogger(dcontext.GetLogger(ctx))
	return ctx, nil
}

func logLevel(level configuration.Loglevel) logrus.Level {
	l, err := logrus.ParseLevel(string(level))
	if err != nil {
		l = logrus.InfoLevel
		logrus.Warnf("error parsing level %q: %v, using %q", level, err, l)
	}

	return l
}

// accessLogHandler writes one line per request to out. The json and logstash
// formatters get json lines; everything else gets the Combined Log Format.
func accessLogHandler(config *configuration.Configuration, out io.Writer, h http.Handler) http.Handler {
	switch config.Log.Formatter {
	case "json", "logstash":
		return handlers.CustomLoggingHandler(out, h, writeJSONCombinedLog)
	default:
		return handlers.CombinedLoggingHandler(out, h)
	}
}

// jsonLogEntry represents a log entry in JSON format.
type jsonLogEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Method    string    `json:"method"`
	Path      string    `json:"path"`
	Status    int       `json:"status"`
	Size      int       `json:"size"`
	Referer   string    `json:"referer"`
	UserAgent string    `json:"user_agent"`
}

// writeJSONCombinedLog writes a log entry for req to w in JSON format similar to Combined Log Format.
func writeJSONCombinedLog(w io.Writer, params handlers.LogFormatterParams) {
	_ = json.NewEncoder(w).Encode(&jsonLogEntry{
		Timestamp: params.TimeStamp.UTC(),
		Method:    params.Request.Method,
		Path:      params.URL.Path,
		Status:    params.StatusCode,
		Size:      params.Size,
		Referer:   params.Request.Referer(),
		UserAgent: params.Request.UserAgent(),
	})
}
