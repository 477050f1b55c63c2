package http

import (
	"crypto/tls"
	"net/http/httptrace"
	"sync"
	"time"
)

// Timings breaks a request down the way load tools report it
type Timings struct {
	Blocked        time.Duration // waiting for a free connection
	Connecting     time.Duration // TCP connect
	TLSHandshaking time.Duration
	Sending        time.Duration // writing the request
	Waiting        time.Duration // time to first byte
	Receiving      time.Duration // reading the body
	Duration       time.Duration // sending + waiting + receiving
}

type timingTracer struct {
	mu           sync.Mutex
	begin        time.Time
	gotConn      time.Time
	connectStart time.Time
	connectDone  time.Time
	tlsStart     time.Time
	tlsDone      time.Time
	wroteRequest time.Time
	firstByte    time.Time
}

func newTimingTracer() *timingTracer {
	return &timingTracer{}
}

func (t *timingTracer) start() {
	t.mu.Lock()
	t.begin = time.Now()
	t.mu.Unlock()
}

func (t *timingTracer) mark(dst *time.Time) {
	t.mu.Lock()
	if dst.IsZero() {
		*dst = time.Now()
	}
	t.mu.Unlock()
}

func (t *timingTracer) clientTrace() *httptrace.ClientTrace {
	return &httptrace.ClientTrace{
		ConnectStart:         func(string, string) { t.mark(&t.connectStart) },
		ConnectDone:          func(string, string, error) { t.mark(&t.connectDone) },
		TLSHandshakeStart:    func() { t.mark(&t.tlsStart) },
		TLSHandshakeDone:     func(tls.ConnectionState, error) { t.mark(&t.tlsDone) },
		GotConn:              func(httptrace.GotConnInfo) { t.mark(&t.gotConn) },
		WroteRequest:         func(httptrace.WroteRequestInfo) { t.mark(&t.wroteRequest) },
		GotFirstResponseByte: func() { t.mark(&t.firstByte) },
	}
}

func between(from, to time.Time) time.Duration {
	if from.IsZero() || to.IsZero() || to.Before(from) {
		return 0
	}
	return to.Sub(from)
}

// finish is called once the body has been read
func (t *timingTracer) finish() Timings {
	end := time.Now()
	t.mu.Lock()
	defer t.mu.Unlock()

	timings := Timings{
		Blocked:        between(t.begin, t.gotConn),
		Connecting:     between(t.connectStart, t.connectDone),
		TLSHandshaking: between(t.tlsStart, t.tlsDone),
		Sending:        between(t.gotConn, t.wroteRequest),
		Waiting:        between(t.wroteRequest, t.firstByte),
		Receiving:      between(t.firstByte, end),
	}
	timings.Duration = timings.Sending + timings.Waiting + timings.Receiving
	if timings.Duration == 0 {
		timings.Duration = between(t.begin, end)
	}
	return timings
}
