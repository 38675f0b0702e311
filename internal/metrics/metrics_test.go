package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectors_Register(t *testing.T) {
	reg := prometheus.NewPedanticRegistry()
	for _, c := range Collectors() {
		require.NoError(t, reg.Register(c))
	}

	TableOperationsTotal.WithLabelValues("metrics_test", OpInsert).Inc()
	assert.Equal(t, 1.0, testutil.ToFloat64(TableOperationsTotal.WithLabelValues("metrics_test", OpInsert)))

	n, err := testutil.GatherAndCount(reg, TableOperationsTotalKey)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, n, 1)
}
