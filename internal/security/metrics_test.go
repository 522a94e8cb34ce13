package security

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMetricsLabels(t *testing.T) {
	labels, err := ParseMetricsLabels("service=booking-service,env=prod")
	require.NoError(t, err)
	assert.Equal(t, prometheus.Labels{"service": "booking-service", "env": "prod"}, labels)
}

func TestParseMetricsLabelsEmpty(t *testing.T) {
	labels, err := ParseMetricsLabels("")
	require.NoError(t, err)
	assert.Nil(t, labels)
}

func TestParseMetricsLabelsExpandsEnv(t *testing.T) {
	t.Setenv("DEPLOY_REGION", "eu-west-1")
	labels, err := ParseMetricsLabels("region=${DEPLOY_REGION}")
	require.NoError(t, err)
	assert.Equal(t, prometheus.Labels{"region": "eu-west-1"}, labels)
}

func TestParseMetricsLabelsRejectsMalformedPairs(t *testing.T) {
	_, err := ParseMetricsLabels("no-equals-sign")
	require.ErrorContains(t, err, "expected key=value")

	_, err = ParseMetricsLabels("bad key=v")
	require.ErrorContains(t, err, "invalid label key")
}
