package middleware

import (
	"fmt"
	"net/http"
	"time"

	"github.com/fatih/color"

	"galleria/pkg/logger"
	"galleria/pkg/utils"
)

// statusWriter captures the status code and body size.
type statusWriter struct {
	http.ResponseWriter
	statusCode int
	length     int
}

func (w *statusWriter) WriteHeader(code int) {
	w.statusCode = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	n, err := w.ResponseWriter.Write(b)
	w.length += n
	return n, err
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

var (
	methodColors = map[string]func(a ...interface{}) string{
		http.MethodGet:    color.New(color.FgHiCyan, color.Bold).SprintFunc(),
		http.MethodPost:   color.New(color.FgHiGreen, color.Bold).SprintFunc(),
		http.MethodPut:    color.New(color.FgHiYellow, color.Bold).SprintFunc(),
		http.MethodDelete: color.New(color.FgHiRed, color.Bold).SprintFunc(),
		http.MethodPatch:  color.New(color.FgHiMagenta, color.Bold).SprintFunc(),
	}
	cDefault = color.New(color.FgWhite, color.Bold).SprintFunc()

	c200 = color.New(color.FgGreen, color.Bold).SprintFunc()
	c400 = color.New(color.FgYellow, color.Bold).SprintFunc()
	c500 = color.New(color.FgRed, color.Bold).SprintFunc()

	cTime = color.New(color.FgHiBlack).SprintFunc()
	cPath = color.New(color.FgWhite).SprintFunc()
)

// LoggerMiddleware prints one colored access line per request.
func LoggerMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := &statusWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(ww, r)

		logger.LogLine(accessLine(r, ww.statusCode, ww.length, start, time.Since(start)))
	})
}

func accessLine(r *http.Request, code, size int, start time.Time, took time.Duration) string {
	var status string
	switch {
	case code >= 500:
		status = c500(code)
	case code >= 400:
		status = c400(code)
	default:
		status = c200(code)
	}

	paint, ok := methodColors[r.Method]
	if !ok {
		paint = cDefault
	}

	return fmt.Sprintf("%s %s %s %s %s %s %s",
		cTime(start.Format("2006-01-02 15:04:05")),
		paint(fmt.Sprintf("%-8s", "["+r.Method+"]")),
		cPath(r.URL.RequestURI()),
		status,
		cTime("|"),
		cTime(took.Round(time.Microsecond).String()),
		cTime(utils.FormatBytes(int64(size))),
	)
}
