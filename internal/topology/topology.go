// Package topology resolves cluster topology labels to canonical carbon
// regions. Resolution is strict: a node whose labels cannot be mapped is
// reported as unknown rather than guessed at.
package topology

import (
	"os"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/stellar-k8s/carbonsched/internal/carbon"
	"github.com/stellar-k8s/carbonsched/internal/config"
)

// Well-known node labels consulted during resolution.
const (
	// LabelRegion and LabelZone are the standard Kubernetes topology labels.
	LabelRegion = "topology.kubernetes.io/region"
	LabelZone   = "topology.kubernetes.io/zone"
	// LabelVendor names the infrastructure vendor ("aws", "gcp", ...). It is
	// set by the controller from the node's provider ID.
	LabelVendor = "carbon.stellar-k8s.io/vendor"
)

// mappingFile is the on-disk shape of a topology mapping table.
type mappingFile struct {
	// Regions maps "vendor/zone-or-region" keys to canonical regions.
	Regions map[string]string `yaml:"regions"`
}

// Directory maps vendor-qualified zones and regions to canonical regions.
// Explicit entries take precedence over the default vendor:region derivation,
// and zone entries take precedence over region entries.
type Directory struct {
	entries map[string]carbon.Region
}

// New builds a directory from the topology configuration: the optional YAML
// mapping file first, inline entries layered on top.
func New(cfg config.TopologyConfig) (*Directory, error) {
	d := &Directory{entries: make(map[string]carbon.Region)}

	if cfg.MappingFile != "" {
		raw, err := os.ReadFile(cfg.MappingFile)
		if err != nil {
			return nil, eris.Wrapf(err, "topology: read mapping file %s", cfg.MappingFile)
		}
		var mf mappingFile
		if err := yaml.Unmarshal(raw, &mf); err != nil {
			return nil, eris.Wrapf(err, "topology: parse mapping file %s", cfg.MappingFile)
		}
		for key, region := range mf.Regions {
			d.entries[normalizeKey(key)] = carbon.Region(region)
		}
	}

	for key, region := range cfg.Regions {
		d.entries[normalizeKey(key)] = carbon.Region(region)
	}

	return d, nil
}

func normalizeKey(key string) string {
	return strings.ToLower(strings.TrimSpace(key))
}

// Resolve maps a node's topology labels to a canonical region. Zone entries
// override region entries; without an explicit entry, a vendor and region
// label pair derives the canonical "vendor:region" form directly. Anything
// less resolves to ErrUnknownTopology.
func (d *Directory) Resolve(labels map[string]string) (carbon.Region, error) {
	vendor := strings.ToLower(strings.TrimSpace(labels[LabelVendor]))
	zone := strings.ToLower(strings.TrimSpace(labels[LabelZone]))
	region := strings.ToLower(strings.TrimSpace(labels[LabelRegion]))

	if vendor != "" {
		if zone != "" {
			if r, ok := d.entries[vendor+"/"+zone]; ok {
				return r, nil
			}
		}
		if region != "" {
			if r, ok := d.entries[vendor+"/"+region]; ok {
				return r, nil
			}
			return carbon.NewRegion(vendor, region), nil
		}
	} else {
		// Vendorless entries are honored only when explicitly mapped.
		if zone != "" {
			if r, ok := d.entries[zone]; ok {
				return r, nil
			}
		}
		if region != "" {
			if r, ok := d.entries[region]; ok {
				return r, nil
			}
		}
	}

	return "", eris.Wrapf(carbon.ErrUnknownTopology,
		"topology: cannot resolve labels (vendor=%q zone=%q region=%q)", vendor, zone, region)
}

// Known returns the canonical regions named by the mapping table, sorted and
// deduplicated. Used to seed warm-up and the aggregator when no explicit
// region list is configured.
func (d *Directory) Known() []carbon.Region {
	seen := make(map[carbon.Region]struct{}, len(d.entries))
	for _, r := range d.entries {
		seen[r] = struct{}{}
	}
	out := make([]carbon.Region, 0, len(seen))
	for r := range seen {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
