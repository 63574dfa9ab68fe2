package metricskey

import "github.com/effective-security/metrics"

// Perf
var (
	// PerfPGPOperation is perf metric
	PerfPGPOperation = metrics.Describe{
		Type:         metrics.TypeSample,
		Name:         "perf_pgp",
		Help:         "perf_pgp provides the sample metrics of message operations",
		RequiredTags: []string{"action"},
	}

	// PerfKeyOperation is perf metric
	PerfKeyOperation = metrics.Describe{
		Type:         metrics.TypeSample,
		Name:         "perf_pgp_keys",
		Help:         "perf_pgp_keys provides the sample metrics of key ring operations",
		RequiredTags: []string{"action"},
	}
)

// Metrics returns slice of metrics from this repo
var Metrics = []*metrics.Describe{
	&PerfPGPOperation,
	&PerfKeyOperation,
}
