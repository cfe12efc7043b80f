// Package connectivity checks that ammeters are reachable before a test is
// started, tracing the DNS lookups and TCP connects along the way.
package connectivity

import (
	"context"
	"errors"
	"net"
	"net/http/httptrace"
	"sync"
	"time"

	"github.com/Jigsaw-Code/outline-sdk/transport"
	"github.com/Jigsaw-Code/outline-sdk/x/configurl"

	"ammeter-tester/pkg/config"
)

type Report struct {
	Ammeter   string `json:"ammeter"`
	Endpoint  string `json:"endpoint"`
	Transport string `json:"transport,omitempty"`

	Time           time.Time   `json:"time"`
	DurationMs     int64       `json:"duration_ms"`
	DNSQueries     []dnsReport `json:"dns_queries,omitempty"`
	TCPConnections []tcpReport `json:"tcp_connections,omitempty"`
	Error          *errorJSON  `json:"error"`
}

type dnsReport struct {
	QueryName  string    `json:"query_name"`
	Time       time.Time `json:"time"`
	DurationMs int64     `json:"duration_ms"`
	AnswerIPs  []string  `json:"answer_ips"`
	Error      string    `json:"error,omitempty"`
}

type tcpReport struct {
	Hostname   string    `json:"hostname"`
	IP         string    `json:"ip"`
	Port       string    `json:"port"`
	Error      string    `json:"error,omitempty"`
	Time       time.Time `json:"time"`
	DurationMs int64     `json:"duration_ms"`
}

type errorJSON struct {
	Op         string `json:"op,omitempty"`
	Msg        string `json:"msg,omitempty"`
	MsgVerbose string `json:"msg_verbose,omitempty"`
}

func (r Report) IsSuccess() bool {
	return r.Error == nil
}

func makeErrorRecord(op string, err error) *errorJSON {
	if err == nil {
		return nil
	}
	return &errorJSON{
		Op:         op,
		Msg:        findBaseError(err).Error(),
		MsgVerbose: err.Error(),
	}
}

// findBaseError unwraps an error chain to find the most basic underlying error
func findBaseError(err error) error {
	for err != nil {
		if joined, ok := err.(interface{ Unwrap() []error }); ok {
			errs := joined.Unwrap()
			if len(errs) > 0 {
				// the last joined error is usually the most specific
				err = errs[len(errs)-1]
				continue
			}
		}

		unwrapped := errors.Unwrap(err)
		if unwrapped == nil {
			return err
		}
		err = unwrapped
	}
	return err
}

// tracer collects the DNS and TCP events of one probe.
type tracer struct {
	mu           sync.Mutex
	connectStart map[string]time.Time
	dns          []dnsReport
	tcp          []tcpReport
}

func (t *tracer) dialer() transport.StreamDialer {
	base := &transport.TCPDialer{}
	return transport.FuncStreamDialer(func(ctx context.Context, addr string) (transport.StreamConn, error) {
		hostname, _, err := net.SplitHostPort(addr)
		if err != nil {
			return nil, err
		}

		var dnsStart time.Time
		ctx = httptrace.WithClientTrace(ctx, &httptrace.ClientTrace{
			DNSStart: func(httptrace.DNSStartInfo) {
				dnsStart = time.Now()
			},
			DNSDone: func(di httptrace.DNSDoneInfo) {
				t.onDNS(hostname, dnsStart, di)
			},
			ConnectStart: func(network, addr string) {
				t.mu.Lock()
				t.connectStart[network+"|"+addr] = time.Now()
				t.mu.Unlock()
			},
			ConnectDone: func(network, addr string, connErr error) {
				t.onConnect(hostname, network, addr, connErr)
			},
		})
		return base.DialStream(ctx, addr)
	})
}

func (t *tracer) onDNS(hostname string, start time.Time, di httptrace.DNSDoneInfo) {
	report := dnsReport{
		QueryName:  hostname,
		Time:       start.UTC().Truncate(time.Second),
		DurationMs: time.Since(start).Milliseconds(),
	}
	if di.Err != nil {
		report.Error = di.Err.Error()
	}
	for _, ip := range di.Addrs {
		report.AnswerIPs = append(report.AnswerIPs, ip.IP.String())
	}

	t.mu.Lock()
	t.dns = append(t.dns, report)
	t.mu.Unlock()
}

func (t *tracer) onConnect(hostname, network, addr string, connErr error) {
	ip, port, err := net.SplitHostPort(addr)
	if err != nil {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	start := t.connectStart[network+"|"+addr]
	report := tcpReport{
		Hostname:   hostname,
		IP:         ip,
		Port:       port,
		Time:       start.UTC().Truncate(time.Second),
		DurationMs: time.Since(start).Milliseconds(),
	}
	if connErr != nil {
		report.Error = connErr.Error()
	}
	t.tcp = append(t.tcp, report)
}

// Probe opens and closes one stream to the device through its configured
// transport. No command is sent.
func Probe(ctx context.Context, device config.Device, timeout time.Duration) Report {
	report := Report{
		Ammeter:   device.Name,
		Endpoint:  device.Endpoint(),
		Transport: device.Transport,
	}

	t := &tracer{connectStart: make(map[string]time.Time)}
	configToDialer := configurl.NewDefaultConfigToDialer()
	configToDialer.BaseStreamDialer = t.dialer()

	start := time.Now()
	report.Time = start.UTC().Truncate(time.Second)

	dialer, err := configToDialer.NewStreamDialer(device.Transport)
	if err != nil {
		report.Error = makeErrorRecord("config", err)
		return report
	}

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	conn, err := dialer.DialStream(ctx, device.Endpoint())
	if err == nil {
		conn.Close()
	}

	report.DurationMs = time.Since(start).Milliseconds()
	report.Error = makeErrorRecord("connect", err)

	t.mu.Lock()
	report.DNSQueries = t.dns
	report.TCPConnections = t.tcp
	t.mu.Unlock()

	return report
}

// ProbeAll probes every device concurrently and returns the reports in the
// order of devices.
func ProbeAll(ctx context.Context, devices []config.Device, timeout time.Duration) []Report {
	reports := make([]Report, len(devices))

	var wg sync.WaitGroup
	for i, device := range devices {
		wg.Add(1)
		go func(i int, device config.Device) {
			defer wg.Done()
			reports[i] = Probe(ctx, device, timeout)
		}(i, device)
	}
	wg.Wait()

	return reports
}
