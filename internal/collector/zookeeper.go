package collector

import (
	"encoding/json"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/newrelic/infra-integrations-sdk/v3/log"
	"github.com/samuel/go-zookeeper/zk"

	"github.com/newrelic/mq-telemetry-pipeline/internal/errs"
)

const zkSessionTimeout = 10 * time.Second

// zkBrokerEntry is the JSON a Kafka broker registers under
// /brokers/ids/<id> in ZooKeeper.
type zkBrokerEntry struct {
	Host      string   `json:"host"`
	Port      int      `json:"port"`
	Endpoints []string `json:"endpoints"`
}

// discoverBrokers reads the broker registration znodes and returns the
// advertised host:port list, used when no bootstrap servers are
// configured.
func discoverBrokers(hosts []string, root string) ([]string, error) {
	conn, _, err := zk.Connect(hosts, zkSessionTimeout)
	if err != nil {
		return nil, fmt.Errorf("%w: connecting to zookeeper: %v", errs.ErrSourceUnavailable, err)
	}
	defer conn.Close()

	idsPath := path.Join("/", root, "brokers", "ids")
	ids, _, err := conn.Children(idsPath)
	if err != nil {
		return nil, fmt.Errorf("%w: listing %s: %v", errs.ErrSourceUnavailable, idsPath, err)
	}

	var addrs []string
	for _, id := range ids {
		data, _, err := conn.Get(path.Join(idsPath, id))
		if err != nil {
			log.Warn("collector: reading broker znode %s: %v", id, err)
			continue
		}
		var entry zkBrokerEntry
		if err := json.Unmarshal(data, &entry); err != nil {
			log.Warn("collector: decoding broker znode %s: %v", id, err)
			continue
		}
		if addr := entry.addr(); addr != "" {
			addrs = append(addrs, addr)
		}
	}
	if len(addrs) == 0 {
		return nil, fmt.Errorf("%w: no brokers registered under %s", errs.ErrSourceUnavailable, idsPath)
	}
	return addrs, nil
}

func (e zkBrokerEntry) addr() string {
	if e.Host != "" && e.Port > 0 {
		return fmt.Sprintf("%s:%d", e.Host, e.Port)
	}
	for _, ep := range e.Endpoints {
		if i := strings.Index(ep, "://"); i >= 0 {
			return ep[i+3:]
		}
	}
	return ""
}
