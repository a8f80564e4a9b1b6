package registry

import (
	"bytes"
	"fmt"
	"net/http"

	"github.com/prometheus/common/expfmt"
)

// Render gathers every registered family and encodes it in the exposition
// format negotiated from acceptHeader (pass the request's Accept header, or
// "" for the default text format). Gather() takes its own internal
// snapshot, so a Render running concurrently with an Update never observes
// a torn write — the copy-then-render guarantee is client_golang's own.
func (r *Registry) Render(acceptHeader string) (contentType string, body []byte, err error) {
	mfs, err := r.reg.Gather()
	if err != nil {
		return "", nil, fmt.Errorf("registry: gather: %w", err)
	}

	negotiated := expfmt.NegotiateIncludingOpenMetrics(http.Header{"Accept": []string{acceptHeader}})

	var buf bytes.Buffer
	encoder := expfmt.NewEncoder(&buf, negotiated)
	for _, mf := range mfs {
		if err := encoder.Encode(mf); err != nil {
			return "", nil, fmt.Errorf("registry: encode metric family %q: %w", mf.GetName(), err)
		}
	}
	return string(negotiated), buf.Bytes(), nil
}
