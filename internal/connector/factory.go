package connector

import (
	"crypto/tls"
	"fmt"
	"sort"
	"time"

	"github.com/tcplb/tcplb/internal/domain"
)

// PrefixConfig is one entry of an io.l5d.static client config: an override
// applied to destination names under Prefix, per spec.md §6 and
// SPEC_FULL.md §4 (per-prefix connector overrides).
type PrefixConfig struct {
	Prefix           domain.Path
	TLS              *tls.Config
	ConnectTimeoutMs int64
	IdleTimeoutMs    int64
}

// FactoryConfig is the tagged union described in spec.md §6: either a single
// global client config (io.l5d.global) or a list of per-prefix overrides
// (io.l5d.static).
type FactoryConfig struct {
	Kind    string // "io.l5d.global" or "io.l5d.static"
	Global  Config
	Configs []PrefixConfig
}

// Factory builds a Connector for a given destination name, folding together
// whichever prefix overrides match (longest prefix wins, applied in
// ascending-specificity order so later, more specific entries overwrite
// earlier ones) -- mirrors linkerd-tcp's StaticConnectorFactory.mk_connector.
type Factory struct {
	kind    string
	global  Config
	configs []PrefixConfig
}

func NewFactory(cfg FactoryConfig) (*Factory, error) {
	if cfg.Kind == "" {
		cfg.Kind = "io.l5d.global"
	}
	if cfg.Kind != "io.l5d.global" && cfg.Kind != "io.l5d.static" {
		return nil, fmt.Errorf("connector: unknown client kind %q", cfg.Kind)
	}

	configs := append([]PrefixConfig(nil), cfg.Configs...)
	sort.Slice(configs, func(i, j int) bool {
		return len(configs[i].Prefix.Elements()) < len(configs[j].Prefix.Elements())
	})

	return &Factory{kind: cfg.Kind, global: cfg.Global, configs: configs}, nil
}

// MakeConnector returns a Connector scoped to dstName.
func (f *Factory) MakeConnector(dstName domain.Path) (*Connector, error) {
	if f.kind == "io.l5d.global" {
		return New(f.global), nil
	}

	cfg := Config{}
	for _, pc := range f.configs {
		if !dstName.HasPrefix(pc.Prefix) {
			continue
		}
		if pc.TLS != nil {
			cfg.TLS = pc.TLS
		}
		if pc.ConnectTimeoutMs > 0 {
			cfg.ConnectTimeout = time.Duration(pc.ConnectTimeoutMs) * time.Millisecond
		}
		if pc.IdleTimeoutMs > 0 {
			cfg.IdleTimeout = time.Duration(pc.IdleTimeoutMs) * time.Millisecond
		}
	}
	return New(cfg), nil
}
