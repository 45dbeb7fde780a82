package bus

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
)

// BrokerCheck is the outcome of probing one broker.
type BrokerCheck struct {
	Addr       string
	OK         bool
	Partitions int
	Detail     string
	Hint       string
	Duration   time.Duration
}

// Probe dials every broker, negotiates API versions and checks that the
// events topic is visible. A missing topic is reported but not fatal when
// the writer may create it on first publish.
func Probe(ctx context.Context, opts KafkaOptions, timeout time.Duration) []BrokerCheck {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	addrs := opts.Addrs()
	checks := make([]BrokerCheck, 0, len(addrs))
	for _, addr := range addrs {
		checks = append(checks, probeBroker(ctx, opts, addr, timeout))
	}
	return checks
}

func probeBroker(ctx context.Context, opts KafkaOptions, addr string, timeout time.Duration) BrokerCheck {
	start := time.Now()
	check := BrokerCheck{Addr: addr}
	defer func() { check.Duration = time.Since(start).Truncate(time.Millisecond) }()

	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		check.Detail = fmt.Sprintf("bad broker address: %v", err)
		check.Hint = "Brokers are host:port."
		return check
	}
	dialer, err := opts.Dialer(host, timeout)
	if err != nil {
		check.Detail = fmt.Sprintf("dialer error: %v", err)
		check.Hint = "Check security protocol and sasl settings."
		return check
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		check.Detail = fmt.Sprintf("broker dial failed: %v", err)
		check.Hint = probeHint(err)
		return check
	}
	defer conn.Close()
	if _, err := conn.ApiVersions(); err != nil {
		check.Detail = fmt.Sprintf("ApiVersions failed: %v", err)
		check.Hint = probeHint(err)
		return check
	}
	parts, err := conn.ReadPartitions(opts.Topic)
	if err != nil {
		if errors.Is(err, kafka.UnknownTopicOrPartition) {
			check.OK = true
			check.Detail = fmt.Sprintf("topic %s does not exist yet", opts.Topic)
			check.Hint = "It is created on first publish if the broker allows auto creation."
			return check
		}
		check.Detail = fmt.Sprintf("ReadPartitions failed: %v", err)
		check.Hint = probeHint(err)
		return check
	}
	check.OK = true
	check.Partitions = len(parts)
	check.Detail = fmt.Sprintf("topic %s visible, partitions=%d", opts.Topic, len(parts))
	return check
}

func probeHint(err error) string {
	var ke kafka.Error
	if errors.As(err, &ke) {
		switch ke {
		case kafka.TopicAuthorizationFailed:
			return "Missing topic ACL: Write and Describe on the events topic."
		case kafka.SASLAuthenticationFailed:
			return "Verify sasl mechanism, credentials and listener SASL config."
		case kafka.LeaderNotAvailable, kafka.NotLeaderForPartition:
			return "Leader not available; check broker health."
		}
	}
	var ne net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &ne) && ne.Timeout()) {
		return "Timed out: check network path, firewall, DNS or advertised.listeners."
	}
	em := strings.ToLower(err.Error())
	switch {
	case strings.Contains(em, "connection refused"):
		return "Nothing listening on that port."
	case strings.Contains(em, "tls") || strings.Contains(em, "certificate") || strings.Contains(em, "eof"):
		return "TLS mismatch; verify the CA file and security protocol."
	}
	return ""
}
