package cli

import (
	"errors"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/example/escalator/internal/core/chain"
	"github.com/example/escalator/internal/ports/primary"
)

// chainDocument is one chain definition in an import file.
type chainDocument struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	OrgID       string `yaml:"org_id"`
	TriggerType string `yaml:"trigger_type"`
	Conditions  struct {
		Severities []string `yaml:"severities"`
		CampusIDs  []string `yaml:"campus_ids"`
	} `yaml:"conditions"`
	Levels []levelDocument `yaml:"levels"`
}

type levelDocument struct {
	Role          string `yaml:"role"`
	User          string `yaml:"user"`
	Method        string `yaml:"method"`
	EscalateAfter struct {
		Value int    `yaml:"value"`
		Unit  string `yaml:"unit"`
	} `yaml:"escalate_after"`
	RequiresAck  bool  `yaml:"requires_ack"`
	AutoEscalate *bool `yaml:"auto_escalate"` // Defaults to true
}

// ParseChainFile reads chain definitions from a YAML stream. The stream may
// hold several documents, each either a single chain or a list of chains.
// Level numbers follow list order.
func ParseChainFile(r io.Reader, tenantID string) ([]primary.CreateChainRequest, error) {
	dec := yaml.NewDecoder(r)
	var reqs []primary.CreateChainRequest
	for doc := 1; ; doc++ {
		var node yaml.Node
		err := dec.Decode(&node)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("document %d: %w", doc, err)
		}

		var chains []chainDocument
		if len(node.Content) > 0 && node.Content[0].Kind == yaml.SequenceNode {
			err = node.Decode(&chains)
		} else {
			var single chainDocument
			err = node.Decode(&single)
			chains = []chainDocument{single}
		}
		if err != nil {
			return nil, fmt.Errorf("document %d: %w", doc, err)
		}

		for _, c := range chains {
			reqs = append(reqs, c.toRequest(tenantID))
		}
	}
	if len(reqs) == 0 {
		return nil, errors.New("no chain definitions found")
	}
	return reqs, nil
}

func (c chainDocument) toRequest(tenantID string) primary.CreateChainRequest {
	levels := make([]chain.Level, len(c.Levels))
	for i, l := range c.Levels {
		auto := true
		if l.AutoEscalate != nil {
			auto = *l.AutoEscalate
		}
		levels[i] = chain.Level{
			Number:                 i + 1,
			ResponsibleRole:        l.Role,
			SpecificUserID:         l.User,
			NotificationMethod:     l.Method,
			EscalateAfter:          chain.Duration{Value: l.EscalateAfter.Value, Unit: chain.Unit(l.EscalateAfter.Unit)},
			RequiresAcknowledgment: l.RequiresAck,
			AutoEscalate:           auto,
		}
	}
	return primary.CreateChainRequest{
		TenantID:    tenantID,
		OrgID:       c.OrgID,
		Name:        c.Name,
		Description: c.Description,
		TriggerType: c.TriggerType,
		Levels:      levels,
		Conditions: chain.Conditions{
			Severities: c.Conditions.Severities,
			CampusIDs:  c.Conditions.CampusIDs,
		},
	}
}
