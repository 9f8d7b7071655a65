package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreditsGrantedCounter(t *testing.T) {
	before := testutil.ToFloat64(CreditsGrantedTotal.WithLabelValues("BONUS", "FREE"))
	CreditsGrantedTotal.WithLabelValues("BONUS", "FREE").Add(10)
	after := testutil.ToFloat64(CreditsGrantedTotal.WithLabelValues("BONUS", "FREE"))

	assert.Equal(t, before+10, after)
}

func TestHandlerExposesCollectors(t *testing.T) {
	CreditsConsumedTotal.Add(1)

	srv := httptest.NewServer(Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(body), "credits_consumed_total"))
}
