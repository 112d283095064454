package collector

import (
	"crypto/sha256"
	"crypto/sha512"
	"crypto/tls"
	"fmt"

	"github.com/IBM/sarama"
	"github.com/xdg/scram"

	"github.com/newrelic/mq-telemetry-pipeline/internal/config"
)

var (
	sha256Gen scram.HashGeneratorFcn = sha256.New
	sha512Gen scram.HashGeneratorFcn = sha512.New
)

// xdgSCRAMClient adapts github.com/xdg/scram to sarama's SCRAMClient
// interface for SASL/SCRAM broker authentication.
type xdgSCRAMClient struct {
	*scram.Client
	*scram.ClientConversation
	scram.HashGeneratorFcn
}

func (x *xdgSCRAMClient) Begin(userName, password, authzID string) (err error) {
	x.Client, err = x.HashGeneratorFcn.NewClient(userName, password, authzID)
	if err != nil {
		return err
	}
	x.ClientConversation = x.Client.NewConversation()
	return nil
}

func (x *xdgSCRAMClient) Step(challenge string) (string, error) {
	return x.ClientConversation.Step(challenge)
}

func (x *xdgSCRAMClient) Done() bool {
	return x.ClientConversation.Done()
}

// saramaConfig builds the sarama client configuration for a direct
// broker connection, including SASL when the config asks for it.
func saramaConfig(cfg config.KafkaConfig) (*sarama.Config, error) {
	c := sarama.NewConfig()
	c.ClientID = cfg.ClientID
	if c.ClientID == "" {
		c.ClientID = "mq-telemetry-pipeline"
	}
	c.Version = sarama.V2_8_0_0

	switch cfg.SASLMechanism {
	case "":
		return c, nil
	case config.SASLPlain:
		c.Net.SASL.Mechanism = sarama.SASLTypePlaintext
	case config.SASLScramSHA256:
		c.Net.SASL.Mechanism = sarama.SASLTypeSCRAMSHA256
		c.Net.SASL.SCRAMClientGeneratorFunc = func() sarama.SCRAMClient {
			return &xdgSCRAMClient{HashGeneratorFcn: sha256Gen}
		}
	case config.SASLScramSHA512:
		c.Net.SASL.Mechanism = sarama.SASLTypeSCRAMSHA512
		c.Net.SASL.SCRAMClientGeneratorFunc = func() sarama.SCRAMClient {
			return &xdgSCRAMClient{HashGeneratorFcn: sha512Gen}
		}
	default:
		return nil, fmt.Errorf("unsupported SASL mechanism %q", cfg.SASLMechanism)
	}

	c.Net.SASL.Enable = true
	c.Net.SASL.User = cfg.SASLUsername
	c.Net.SASL.Password = cfg.SASLPassword
	c.Net.SASL.Handshake = true
	c.Net.TLS.Enable = true
	c.Net.TLS.Config = &tls.Config{MinVersion: tls.VersionTLS12}
	return c, nil
}
