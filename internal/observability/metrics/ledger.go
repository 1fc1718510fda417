package metrics

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

type txKey struct {
	contract string
	method   string
	status   string
}

type counterSet struct {
	mu      sync.Mutex
	txs     map[txKey]uint64
	latency map[routeKey]*histogram
}

var ledgerCollector = &counterSet{
	txs:     make(map[txKey]uint64),
	latency: make(map[routeKey]*histogram),
}

// ObserveTransaction records one ledger transaction issued by the butler
// service. status is "success" or the failure kind.
func ObserveTransaction(contract, method, status string, duration time.Duration) {
	ledgerCollector.mu.Lock()
	defer ledgerCollector.mu.Unlock()
	ledgerCollector.txs[txKey{contract: contract, method: method, status: status}]++
	key := routeKey{handler: contract, method: method}
	hist := ledgerCollector.latency[key]
	if hist == nil {
		hist = newHistogram()
		ledgerCollector.latency[key] = hist
	}
	hist.observe(duration.Seconds())
}

func (c *counterSet) render(builder *strings.Builder) {
	c.mu.Lock()
	defer c.mu.Unlock()

	keys := make([]txKey, 0, len(c.txs))
	for key := range c.txs {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].contract != keys[j].contract {
			return keys[i].contract < keys[j].contract
		}
		if keys[i].method != keys[j].method {
			return keys[i].method < keys[j].method
		}
		return keys[i].status < keys[j].status
	})

	builder.WriteString("# HELP butler_ledger_transactions_total Ledger transactions by contract, method and outcome.\n")
	builder.WriteString("# TYPE butler_ledger_transactions_total counter\n")
	for _, key := range keys {
		fmt.Fprintf(builder, "butler_ledger_transactions_total{contract=\"%s\",method=\"%s\",status=\"%s\"} %d\n",
			escape(key.contract), escape(key.method), escape(key.status), c.txs[key])
	}

	routes := make([]routeKey, 0, len(c.latency))
	for key := range c.latency {
		routes = append(routes, key)
	}
	sortRoutes(routes)
	builder.WriteString("# HELP butler_ledger_transaction_duration_seconds Time spent inside ledger transactions.\n")
	builder.WriteString("# TYPE butler_ledger_transaction_duration_seconds summary\n")
	for _, key := range routes {
		hist := c.latency[key]
		fmt.Fprintf(builder, "butler_ledger_transaction_duration_seconds_sum{contract=\"%s\",method=\"%s\"} %s\n",
			escape(key.handler), escape(key.method), formatFloat(hist.sum))
		fmt.Fprintf(builder, "butler_ledger_transaction_duration_seconds_count{contract=\"%s\",method=\"%s\"} %d\n",
			escape(key.handler), escape(key.method), hist.count)
	}
}

type keeperCounters struct {
	mu       sync.Mutex
	outcomes map[string]uint64
	queued   uint64
}

var keeperCollector = &keeperCounters{outcomes: make(map[string]uint64)}

// ObserveKeeperJob records the outcome of one keeper execution attempt:
// executed, skipped or failed.
func ObserveKeeperJob(outcome string) {
	keeperCollector.mu.Lock()
	defer keeperCollector.mu.Unlock()
	keeperCollector.outcomes[outcome]++
}

// ObserveKeeperEnqueued records schedule ids handed to the work queue.
func ObserveKeeperEnqueued(n int) {
	keeperCollector.mu.Lock()
	defer keeperCollector.mu.Unlock()
	keeperCollector.queued += uint64(n)
}

func (k *keeperCounters) render(builder *strings.Builder) {
	k.mu.Lock()
	defer k.mu.Unlock()

	builder.WriteString("# HELP butler_keeper_enqueued_total Schedule ids handed to the keeper queue.\n")
	builder.WriteString("# TYPE butler_keeper_enqueued_total counter\n")
	fmt.Fprintf(builder, "butler_keeper_enqueued_total %d\n", k.queued)

	outcomes := make([]string, 0, len(k.outcomes))
	for outcome := range k.outcomes {
		outcomes = append(outcomes, outcome)
	}
	sort.Strings(outcomes)
	builder.WriteString("# HELP butler_keeper_jobs_total Keeper execution attempts by outcome.\n")
	builder.WriteString("# TYPE butler_keeper_jobs_total counter\n")
	for _, outcome := range outcomes {
		fmt.Fprintf(builder, "butler_keeper_jobs_total{outcome=\"%s\"} %d\n", escape(outcome), k.outcomes[outcome])
	}
}
