package sustain

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Node is one database node known to the aggregator: a name plus the
// topology labels its region is resolved from.
type Node struct {
	Name   string            `yaml:"name" json:"name"`
	Labels map[string]string `yaml:"labels" json:"labels"`
}

type nodesFile struct {
	Nodes []Node `yaml:"nodes"`
}

// LoadNodes reads a node inventory from a YAML file. In-cluster deployments
// would feed this from the controller's reconciliation loop instead; the file
// serves standalone and test operation.
func LoadNodes(path string) ([]Node, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "sustain: read nodes file %s", path)
	}
	var nf nodesFile
	if err := yaml.Unmarshal(raw, &nf); err != nil {
		return nil, eris.Wrapf(err, "sustain: parse nodes file %s", path)
	}
	return nf.Nodes, nil
}
