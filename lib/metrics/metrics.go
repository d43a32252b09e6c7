package metrics

import prom "github.com/prometheus/client_golang/prometheus"

const (
	Namespace = "xnative"

	SubsystemDispatch = "dispatch"
	SubsystemRegistry = "registry"
	SubsystemExecutor = "executor"

	LabelContractName = "contract_name"
	LabelOutcome      = "outcome"
	LabelCallKind     = "kind"
)

// outcomes of a native call
const (
	OutcomeSuccess  = "success"
	OutcomeReverted = "reverted"
	OutcomeOutOfGas = "out_of_gas"
	OutcomeInternal = "internal"
	OutcomePanic    = "panic"
)

// dispatch
var (
	NativeInvokeCounter = prom.NewCounterVec(
		prom.CounterOpts{
			Namespace: Namespace,
			Subsystem: SubsystemDispatch,
			Name:      "invoke_total",
			Help:      "Total number of native contract invocations.",
		},
		[]string{LabelContractName, LabelOutcome})
	NativeInvokeHistogram = prom.NewHistogramVec(
		prom.HistogramOpts{
			Namespace: Namespace,
			Subsystem: SubsystemDispatch,
			Name:      "invoke_seconds",
			Help:      "Histogram of native contract invocation latency.",
			Buckets:   prom.DefBuckets,
		},
		[]string{LabelContractName})
	NativeGasUsedCounter = prom.NewCounterVec(
		prom.CounterOpts{
			Namespace: Namespace,
			Subsystem: SubsystemDispatch,
			Name:      "gas_used_total",
			Help:      "Total gas charged by native contracts.",
		},
		[]string{LabelContractName})
)

// registry
var (
	RegistryContractsGauge = prom.NewGauge(
		prom.GaugeOpts{
			Namespace: Namespace,
			Subsystem: SubsystemRegistry,
			Name:      "contracts",
			Help:      "Number of contracts in the default registry.",
		})
)

// executor
var (
	ExecutorCallCounter = prom.NewCounterVec(
		prom.CounterOpts{
			Namespace: Namespace,
			Subsystem: SubsystemExecutor,
			Name:      "call_total",
			Help:      "Total number of interpreter calls by target kind.",
		},
		[]string{LabelCallKind})
)

func RegisterMetrics() {
	// dispatch
	prom.MustRegister(NativeInvokeCounter)
	prom.MustRegister(NativeInvokeHistogram)
	prom.MustRegister(NativeGasUsedCounter)
	// registry
	prom.MustRegister(RegistryContractsGauge)
	// executor
	prom.MustRegister(ExecutorCallCounter)
}
