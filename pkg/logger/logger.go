package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fatih/color"
)

var (
	cDbg  = color.New(color.FgMagenta).SprintFunc()
	cInf  = color.New(color.FgCyan, color.Bold).SprintFunc()
	cWarn = color.New(color.FgYellow, color.Bold).SprintFunc()
	cErr  = color.New(color.FgRed, color.Bold).SprintFunc()
	cSucc = color.New(color.FgGreen, color.Bold).SprintFunc()
	cFatl = color.New(color.BgRed, color.FgWhite, color.Bold).SprintFunc()
	cTime = color.New(color.FgHiBlack).SprintFunc()
)

var (
	mu     sync.Mutex
	stdout io.Writer = os.Stdout
	stderr io.Writer = os.Stderr

	debugEnabled atomic.Bool
)

func init() {
	log.SetFlags(0)
}

// SetOutput redirects regular and error output. Tests use it to silence the pipeline.
func SetOutput(out, errOut io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	stdout = out
	stderr = errOut
}

// SetDebug toggles LogDebug output.
func SetDebug(enabled bool) {
	debugEnabled.Store(enabled)
}

func timeStamp() string {
	return cTime(time.Now().Format("2006-01-02 15:04:05"))
}

func write(w *io.Writer, level string, format string, v ...interface{}) {
	msg := fmt.Sprintf(format, v...)
	mu.Lock()
	defer mu.Unlock()
	fmt.Fprintf(*w, "%s %s %s\n", timeStamp(), level, msg)
}

// LogLine writes a preformatted line, used by the access log.
func LogLine(line string) {
	mu.Lock()
	defer mu.Unlock()
	fmt.Fprintln(stdout, line)
}

func LogDebug(format string, v ...interface{}) {
	if !debugEnabled.Load() {
		return
	}
	write(&stdout, cDbg("[DBG]"), format, v...)
}

func LogInfo(format string, v ...interface{}) {
	write(&stdout, cInf("[INFO]"), format, v...)
}

func LogSuccess(format string, v ...interface{}) {
	write(&stdout, cSucc("[OK]"), format, v...)
}

func LogWarn(format string, v ...interface{}) {
	write(&stdout, cWarn("[WARN]"), format, v...)
}

func LogError(format string, v ...interface{}) {
	write(&stderr, cErr("[ERR]"), format, v...)
}

func LogFatal(format string, v ...interface{}) {
	write(&stderr, cFatl("[FATAL]"), format, v...)
	os.Exit(1)
}

// ServerBanner describes what the process is running with; printed once at boot.
type ServerBanner struct {
	Port      int
	BaseURL   string
	Storage   string
	Geocoding bool
	TagDevice string // empty when tag suggestion is unavailable
}

func LogServerStart(b ServerBanner) {
	on := func(enabled bool) string {
		if enabled {
			return cSucc("enabled")
		}
		return cWarn("disabled")
	}

	tagger := cWarn("unavailable")
	if b.TagDevice != "" {
		tagger = cSucc(b.TagDevice)
	}

	fmt.Println()
	fmt.Printf("   %s  %s\n", cSucc("⚡ Gallery is Active"), cTime("waiting for uploads..."))
	fmt.Printf("   %s  %s\n", cInf("➜ Local:"), fmt.Sprintf("http://localhost:%d", b.Port))
	fmt.Printf("   %s  %s\n", cInf("➜ Public:"), color.New(color.FgHiBlue, color.Underline).Sprint(b.BaseURL))
	fmt.Printf("   %s  %s\n", cInf("➜ Storage:"), b.Storage)
	fmt.Printf("   %s  %s\n", cInf("➜ Geocoding:"), on(b.Geocoding))
	fmt.Printf("   %s  %s\n", cInf("➜ Tagger:"), tagger)
	fmt.Println()
}
