package resolver

import (
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/miekg/dns"
)

// Logger is a structured key=value line sink, the same shape as the
// teacher's lookupLog.String(): one line per lookup, with a "->"-joined
// composite of the upstream queries that made it up.
type Logger struct {
	l *log.Logger
}

// NewLogger wraps a stdlib *log.Logger writing to os.Stderr by default.
func NewLogger() *Logger {
	return &Logger{l: log.New(os.Stderr, "", log.LstdFlags)}
}

func (lg *Logger) Warnf(format string, args ...interface{}) {
	lg.l.Printf("level=warn "+format, args...)
}

func (lg *Logger) Infof(format string, args ...interface{}) {
	lg.l.Printf("level=info "+format, args...)
}

// queryLog describes one norec exchange with an upstream server.
type queryLog struct {
	Query       dns.Question
	NSAddr      string
	CacheHit    bool
	DNSSECValid bool
	RTT         time.Duration
	Err         error
}

// lookupLog describes one top-level iterative resolution, accumulating
// the queryLogs of every upstream exchange it took.
type lookupLog struct {
	Query     dns.Question
	Started   time.Time
	Latency   time.Duration
	Composite []queryLog
}

func (ll *lookupLog) finish() {
	ll.Latency = time.Since(ll.Started)
}

func (ll *lookupLog) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "query=\"%s IN %s\" started=%d latency=%d",
		ll.Query.Name, dns.TypeToString[ll.Query.Qtype], ll.Started.UnixNano(), ll.Latency.Nanoseconds())
	for _, q := range ll.Composite {
		source := q.NSAddr
		if q.CacheHit {
			source = "cache"
		}
		errStr := ""
		if q.Err != nil {
			errStr = fmt.Sprintf(" error=%q", q.Err.Error())
		}
		fmt.Fprintf(&b, " ->[query=\"%s IN %s\" source=%s dnssec_valid=%t rtt=%d%s]",
			q.Query.Name, dns.TypeToString[q.Query.Qtype], source, q.DNSSECValid, q.RTT.Nanoseconds(), errStr)
	}
	return b.String()
}

// Warn logs ll at WARN with reason, per the error-handling policy that
// every resolution failure logs at WARN with the zone and reason.
func (lg *Logger) Warn(ll *lookupLog, zone string, reason error) {
	lg.Warnf("zone=%s reason=%q %s", zone, reason, ll.String())
}
