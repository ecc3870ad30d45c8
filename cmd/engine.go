package main

import (
	"github.com/rotisserie/eris"

	"github.com/stellar-k8s/carbonsched/internal/carbon"
	"github.com/stellar-k8s/carbonsched/internal/chain"
	"github.com/stellar-k8s/carbonsched/internal/config"
	"github.com/stellar-k8s/carbonsched/internal/provider"
	"github.com/stellar-k8s/carbonsched/internal/scorer"
	"github.com/stellar-k8s/carbonsched/internal/sustain"
	"github.com/stellar-k8s/carbonsched/internal/topology"
)

// engine bundles the wired core components shared by the CLI commands.
type engine struct {
	chain   *chain.Chain
	dir     *topology.Directory
	scorer  *scorer.Scorer
	regions []carbon.Region
	nodes   []sustain.Node
}

// buildEngine wires providers, chain, directory, and scorer from config.
func buildEngine(cfg *config.Config) (*engine, error) {
	providers, err := provider.FromConfig(cfg.Providers)
	if err != nil {
		return nil, eris.Wrap(err, "build providers")
	}

	dir, err := topology.New(cfg.Topology)
	if err != nil {
		return nil, eris.Wrap(err, "build region directory")
	}

	ch := chain.New(providers, cfg.Cache)

	regions := make([]carbon.Region, 0, len(cfg.Aggregator.Regions))
	for _, r := range cfg.Aggregator.Regions {
		regions = append(regions, carbon.Region(r))
	}
	if len(regions) == 0 {
		regions = dir.Known()
	}

	var nodes []sustain.Node
	if cfg.Aggregator.NodesFile != "" {
		nodes, err = sustain.LoadNodes(cfg.Aggregator.NodesFile)
		if err != nil {
			return nil, eris.Wrap(err, "load node inventory")
		}
	}

	return &engine{
		chain:   ch,
		dir:     dir,
		scorer:  scorer.New(ch, dir, cfg.Scorer),
		regions: regions,
		nodes:   nodes,
	}, nil
}
