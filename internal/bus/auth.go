package bus

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/segmentio/kafka-go/sasl"
	"github.com/segmentio/kafka-go/sasl/plain"
	"github.com/segmentio/kafka-go/sasl/scram"
)

// KafkaOptions describes how to reach the event brokers.
// SecurityProtocol follows the Kafka client names: PLAINTEXT, SSL,
// SASL_PLAINTEXT or SASL_SSL.
type KafkaOptions struct {
	Brokers          []string
	Topic            string
	Encoding         string
	SecurityProtocol string
	SASLMechanism    string
	Username         string
	Password         string
	CAFile           string
}

// Addrs splits comma-separated broker entries and drops blanks.
func (o KafkaOptions) Addrs() []string {
	var addrs []string
	for _, b := range o.Brokers {
		for _, part := range strings.Split(b, ",") {
			if p := strings.TrimSpace(part); p != "" {
				addrs = append(addrs, p)
			}
		}
	}
	return addrs
}

func (o KafkaOptions) protocol() string {
	p := strings.ToUpper(strings.TrimSpace(o.SecurityProtocol))
	if p == "" {
		return "PLAINTEXT"
	}
	return p
}

// tlsConfig returns nil when the protocol does not use TLS.
func (o KafkaOptions) tlsConfig(serverName string) (*tls.Config, error) {
	switch o.protocol() {
	case "SSL", "SASL_SSL":
	case "PLAINTEXT", "SASL_PLAINTEXT":
		return nil, nil
	default:
		return nil, fmt.Errorf("unsupported security protocol: %s", o.SecurityProtocol)
	}
	conf := &tls.Config{ServerName: serverName, MinVersion: tls.VersionTLS12}
	if o.CAFile != "" {
		pem, err := os.ReadFile(o.CAFile)
		if err != nil {
			return nil, fmt.Errorf("load CA: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, errors.New("bad CA PEM")
		}
		conf.RootCAs = pool
	}
	return conf, nil
}

// mechanism returns nil when no SASL is configured.
func (o KafkaOptions) mechanism() (sasl.Mechanism, error) {
	mech := strings.ToUpper(strings.TrimSpace(o.SASLMechanism))
	switch mech {
	case "PLAIN":
		return plain.Mechanism{Username: o.Username, Password: o.Password}, nil
	case "SCRAM-SHA-256":
		return scram.Mechanism(scram.SHA256, o.Username, o.Password)
	case "SCRAM-SHA-512":
		return scram.Mechanism(scram.SHA512, o.Username, o.Password)
	case "":
		if strings.HasPrefix(o.protocol(), "SASL_") {
			return nil, fmt.Errorf("missing sasl mechanism for security protocol %s", o.protocol())
		}
		return nil, nil
	default:
		return nil, fmt.Errorf("unsupported sasl mechanism: %s", o.SASLMechanism)
	}
}

// Transport builds the writer transport with TLS and SASL applied.
func (o KafkaOptions) Transport(timeout time.Duration) (*kafka.Transport, error) {
	tlsConf, err := o.tlsConfig("")
	if err != nil {
		return nil, fmt.Errorf("tls config: %w", err)
	}
	mech, err := o.mechanism()
	if err != nil {
		return nil, fmt.Errorf("sasl config: %w", err)
	}
	return &kafka.Transport{TLS: tlsConf, SASL: mech, DialTimeout: timeout}, nil
}

// Dialer builds a connection dialer for one broker host.
func (o KafkaOptions) Dialer(host string, timeout time.Duration) (*kafka.Dialer, error) {
	tlsConf, err := o.tlsConfig(host)
	if err != nil {
		return nil, fmt.Errorf("tls config: %w", err)
	}
	mech, err := o.mechanism()
	if err != nil {
		return nil, fmt.Errorf("sasl config: %w", err)
	}
	return &kafka.Dialer{
		Timeout:       timeout,
		DualStack:     true,
		TLS:           tlsConf,
		SASLMechanism: mech,
	}, nil
}
