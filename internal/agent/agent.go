// Package agent defines the unit-of-work contract executed by the pipeline
// orchestrator. Agents are stateless with respect to the pipeline: their only
// inputs are their parameters and lookups into the audit log, and their only
// output is the payload they return (and record) for their own stage.
package agent

import (
	"context"

	"github.com/Arshim28/nbfc-system/internal/audit"
)

// Params carries the out-of-band inputs an agent may need. Today that is
// only the document directory consumed by the harvest stage.
type Params struct {
	DataDir string
}

// Agent is a single pipeline capability. Makers produce analysis and record
// a completed entry before returning; checkers validate a maker's most
// recent output and record a verified or failed verdict. A returned error,
// or a payload carrying an error indicator, marks the attempt as failed.
type Agent interface {
	Name() string
	Execute(ctx context.Context, log *audit.Log, params Params) (Payload, error)
}
