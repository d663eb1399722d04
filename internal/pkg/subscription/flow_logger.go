package subscription

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	fiberlog "github.com/gofiber/fiber/v2/log"

	"github.com/AndriyMelnyk/FinTrack/internal/pkg/env"
)

// FlowLogger records every step of the payment callback flow to a dedicated
// append-only file, mirroring each line to the application log. The file
// gives a single place to reconstruct what the provider sent and what was
// decided, which the regular log interleaves with everything else.
type FlowLogger struct {
	mu       sync.Mutex
	path     string
	disabled bool
	now      func() time.Time
}

// NewFlowLogger creates a flow logger writing to the given file path. An
// empty path disables file output, log mirroring stays on.
func NewFlowLogger(path string) *FlowLogger {
	return &FlowLogger{
		path:     path,
		disabled: path == "",
		now:      time.Now,
	}
}

// NewFlowLoggerFromEnv creates a flow logger configured from
// PAYMENT_FLOW_LOG_FILE.
func NewFlowLoggerFromEnv() *FlowLogger {
	return NewFlowLogger(env.GetEnv("PAYMENT_FLOW_LOG_FILE", "storage/logs/payment_flow.log"))
}

// Step records one flow step. userID and orderID may be empty when not yet
// known at that point of the flow.
func (l *FlowLogger) Step(step, userID, orderID string, ctx *Context) {
	line := l.formatLine(step, userID, orderID, ctx)
	fiberlog.Infof("[PaymentFlow] %s", line)
	l.appendToFile(line)
}

func (l *FlowLogger) formatLine(step, userID, orderID string, ctx *Context) string {
	var b strings.Builder
	b.WriteString("step=")
	b.WriteString(sanitizeFlowValue(step))
	b.WriteString(" | user=")
	b.WriteString(sanitizeFlowValue(userID))
	b.WriteString(" | order=")
	b.WriteString(sanitizeFlowValue(orderID))
	if ctx.Len() > 0 {
		b.WriteString(" | context=")
		for i, key := range ctx.Keys() {
			if i > 0 {
				b.WriteString(";")
			}
			value, _ := ctx.Get(key)
			b.WriteString(sanitizeFlowValue(key))
			b.WriteString("=")
			b.WriteString(sanitizeFlowValue(value))
		}
	}
	return b.String()
}

func (l *FlowLogger) appendToFile(line string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.disabled {
		return
	}

	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		fiberlog.Errorf("[PaymentFlow] disabling flow log file %s: %v", l.path, err)
		l.disabled = true
		return
	}
	defer f.Close()

	stamp := l.now().UTC().Format(time.RFC3339)
	if _, err := fmt.Fprintf(f, "%s %s\n", stamp, line); err != nil {
		fiberlog.Errorf("[PaymentFlow] disabling flow log file %s: %v", l.path, err)
		l.disabled = true
	}
}

// sanitizeFlowValue collapses line breaks so one flow step is always exactly
// one line in the file.
func sanitizeFlowValue(v string) string {
	if !strings.ContainsAny(v, "\r\n") {
		return v
	}
	v = strings.ReplaceAll(v, "\r\n", " ")
	v = strings.ReplaceAll(v, "\n", " ")
	v = strings.ReplaceAll(v, "\r", " ")
	return v
}
