package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserveEvaluation(t *testing.T) {
	m := New()

	m.ObserveEvaluation("evaluate", time.Now(), true, nil)
	m.ObserveEvaluation("evaluate", time.Now(), false, map[string]int{"data": 2, "schema": 1})

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Evaluations.WithLabelValues("evaluate", "accepted")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Evaluations.WithLabelValues("evaluate", "rejected")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Violations.WithLabelValues("data")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Violations.WithLabelValues("schema")))
}

func TestObserveReload(t *testing.T) {
	m := New()

	m.ObserveReload(time.Now(), nil)
	m.ObserveReload(time.Now(), errors.New("broken"))
	m.ObserveReload(time.Now(), nil)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Reloads.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Reloads.WithLabelValues("failed")))
}

func TestInstancesDoNotShareRegistries(t *testing.T) {
	a, b := New(), New()
	a.Definitions.Set(3)

	assert.Equal(t, 3.0, testutil.ToFloat64(a.Definitions))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.Definitions))
}

func TestHandler(t *testing.T) {
	m := New()
	m.Definitions.Set(7)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "ontology_definitions 7")
}
