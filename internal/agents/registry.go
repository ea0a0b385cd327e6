package agents

import (
	"fmt"

	"github.com/Arshim28/nbfc-system/internal/agent"
	"github.com/Arshim28/nbfc-system/internal/genai"
)

// Build returns the full agent roster keyed by the names stage configs refer
// to. uploader may be nil when document upload is unavailable.
func Build(gen genai.Generator, uploader Uploader, company string) map[string]agent.Agent {
	return map[string]agent.Agent{
		"resource_pooler":         NewHarvester(gen, uploader),
		"resource_pooler_checker": NewHarvestChecker(),
		"analyst":                 NewAnalyst(gen),
		"analyst_checker":         NewAnalystChecker(),
		"associate":               NewAssociate(gen),
		"sector_specialist":       NewSectorSpecialist(gen),
		"senior":                  NewSenior(gen, company),
	}
}

// Resolve looks up each configured agent name in the roster, failing on the
// first name with no implementation.
func Resolve(roster map[string]agent.Agent, names []string) (map[string]agent.Agent, error) {
	resolved := make(map[string]agent.Agent, len(names))
	for _, name := range names {
		a, ok := roster[name]
		if !ok {
			return nil, fmt.Errorf("unknown agent %q", name)
		}
		resolved[name] = a
	}
	return resolved, nil
}
