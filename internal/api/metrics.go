package api

import (
	"encoding/json"
	"net/http"

	metrics "github.com/hashicorp/go-metrics"
	"github.com/heysubinoy/keygate/internal/store"
)

// MetricsHandler returns current store metrics as JSON.
// When sink is non-nil its latest interval summary is included as "intervals".
func MetricsHandler(instrumentedStore *store.InstrumentedStore, sink *metrics.InmemSink) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		m := instrumentedStore.GetMetrics()

		response := map[string]interface{}{
			"operations": map[string]uint64{
				"get": m.GetCount,
				"set": m.SetCount,
			},
			"errors": map[string]uint64{
				"get": m.GetErrors,
				"set": m.SetErrors,
			},
			"avg_latency": map[string]string{
				"get": m.GetAvgLatency.String(),
				"set": m.SetAvgLatency.String(),
			},
		}
		if sink != nil {
			if summary, err := sink.DisplayMetrics(w, r); err == nil {
				response["intervals"] = summary
			}
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(response)
	}
}
