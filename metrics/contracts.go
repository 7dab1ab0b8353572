package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// CallStatus is the outcome of a contract call.
type CallStatus string

const (
	CallStatusOK       CallStatus = "ok"
	CallStatusReverted CallStatus = "reverted"
)

// ContractMetrics instruments contract calls executed by the runtime.
type ContractMetrics struct {
	// Counts of contract calls, including nested ones.
	calls *prometheus.CounterVec

	// Latencies of contract calls.
	callLatencies *prometheus.HistogramVec

	// Counts of mined transactions.
	transactions *prometheus.CounterVec
}

// NewDefaultContractMetrics creates Prometheus metric instrumentation
// for contract execution. Default metrics include:
//
// 1. Counts of contract calls, partitioned by contract, method and status.
// 2. Latencies of contract calls.
// 3. Counts of mined transactions, partitioned by status.
func NewDefaultContractMetrics(pkg string) ContractMetrics {
	metrics := ContractMetrics{
		calls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: fmt.Sprintf("%s_contract_calls", pkg),
				Help: "How many contract calls were executed, partitioned by contract, method and status.",
			},
			[]string{"contract", "method", "status"}, // Labels.
		),
		callLatencies: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name: fmt.Sprintf("%s_contract_call_latencies", pkg),
				Help: "How long contract calls take, partitioned by contract and method.",
			},
			[]string{"contract", "method"}, // Labels.
		),
		transactions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: fmt.Sprintf("%s_transactions", pkg),
				Help: "How many transactions were mined, partitioned by status.",
			},
			[]string{"status"}, // Labels.
		),
	}
	metrics.calls = registerOnce(metrics.calls).(*prometheus.CounterVec)
	metrics.callLatencies = registerOnce(metrics.callLatencies).(*prometheus.HistogramVec)
	metrics.transactions = registerOnce(metrics.transactions).(*prometheus.CounterVec)
	return metrics
}

// Calls returns the counter for a contract call.
func (m *ContractMetrics) Calls(contract, method string, status CallStatus) prometheus.Counter {
	return m.calls.WithLabelValues(contract, method, string(status))
}

// CallLatencies returns a new latency timer for a contract call.
func (m *ContractMetrics) CallLatencies(contract, method string) *prometheus.Timer {
	return prometheus.NewTimer(m.callLatencies.WithLabelValues(contract, method))
}

// Transactions returns the counter for mined transactions.
func (m *ContractMetrics) Transactions(status CallStatus) prometheus.Counter {
	return m.transactions.WithLabelValues(string(status))
}
