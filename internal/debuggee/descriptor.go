// ABOUTME: Debuggee descriptor sent on registration, with its stable uniquifier.
// ABOUTME: Source context metadata, when present, salts the uniquifier.

package debuggee

import (
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
)

// AgentVersion identifies this agent to the controller.
const AgentVersion = "debuglet/go/v1.0"

// SourceContext points at the revision of the deployed source.
type SourceContext struct {
	Repository string `json:"repository,omitempty"`
	RevisionID string `json:"revision_id,omitempty"`
	Branch     string `json:"branch,omitempty"`
}

// Descriptor describes the debugged application. Every replica of the same
// deployment must register with an identical descriptor so the controller
// maps them to one debuggee.
type Descriptor struct {
	Project        string            `json:"project"`
	Service        string            `json:"service"`
	Version        string            `json:"version"`
	Description    string            `json:"description,omitempty"`
	AgentVersion   string            `json:"agent_version"`
	Labels         map[string]string `json:"labels,omitempty"`
	SourceContexts []SourceContext   `json:"source_contexts,omitempty"`

	uniquifierOnce sync.Once
	uniquifier     string
}

// NewDescriptor builds a descriptor with the standard labels and description.
func NewDescriptor(project, service, version string, contexts ...SourceContext) *Descriptor {
	d := &Descriptor{
		Project:        project,
		Service:        service,
		Version:        version,
		AgentVersion:   AgentVersion,
		SourceContexts: contexts,
		Labels: map[string]string{
			"projectid": project,
			"module":    service,
			"version":   version,
		},
	}
	d.Description = d.describe()
	return d
}

func (d *Descriptor) describe() string {
	parts := []string{d.Project}
	if d.Service != "" {
		parts = append(parts, d.Service)
	}
	if d.Version != "" {
		parts = append(parts, d.Version)
	}
	return strings.Join(parts, "-")
}

// Uniquifier returns a stable hash of the descriptor. It is computed once.
func (d *Descriptor) Uniquifier() string {
	d.uniquifierOnce.Do(func() {
		h := sha1.New()
		fmt.Fprintf(h, "%s\x00%s\x00%s\x00%s\x00", d.Project, d.Service, d.Version, d.AgentVersion)

		keys := make([]string, 0, len(d.Labels))
		for k := range d.Labels {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(h, "%s=%s\x00", k, d.Labels[k])
		}

		if len(d.SourceContexts) > 0 {
			salt, _ := json.Marshal(d.SourceContexts)
			h.Write(salt)
		}
		d.uniquifier = hex.EncodeToString(h.Sum(nil))
	})
	return d.uniquifier
}

// LoadSourceContext reads a source-context.json file. A missing file is not
// an error and yields no contexts.
func LoadSourceContext(path string) ([]SourceContext, error) {
	if path == "" {
		return nil, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading source context: %w", err)
	}

	// Accept both a single object and a list.
	var many []SourceContext
	if err := json.Unmarshal(data, &many); err == nil {
		return many, nil
	}
	var one SourceContext
	if err := json.Unmarshal(data, &one); err != nil {
		return nil, fmt.Errorf("parsing source context: %w", err)
	}
	return []SourceContext{one}, nil
}
