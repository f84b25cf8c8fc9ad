// Package packs holds the built-in capabilities and the catalog get_more_tools installs from.
package packs

import (
	"fmt"
	"go-autoagent/internal/pack"
	"net/http"
	"time"
	"unicode/utf8"
)

const (
	CategorySystem      = "System"
	CategoryFiles       = "Files"
	CategoryWeb         = "Web"
	CategoryInformation = "Information"
	CategoryMeta        = "Meta"

	defaultOutputLimit = 10000
)

type Config struct {
	// RestrictCodeExecution disables every pack that runs shell commands.
	RestrictCodeExecution bool
	// AutoInstall enables get_more_tools.
	AutoInstall bool
	HTTPClient  *http.Client
	Processes   *Processes
	OutputLimit int
}

func (c *Config) defaults() {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: 20 * time.Second}
	}
	if c.Processes == nil {
		c.Processes = NewProcesses()
	}
	if c.OutputLimit <= 0 {
		c.OutputLimit = defaultOutputLimit
	}
}

// NewRegistry builds the registry every task starts with.
func NewRegistry(cfg Config) (*pack.Registry, error) {
	cfg.defaults()

	registry, err := pack.NewRegistry(Builtins(cfg)...)
	if err != nil {
		return nil, fmt.Errorf("register builtins: %w", err)
	}
	if err := registry.Register(newGetMoreTools(registry, Catalog(cfg))); err != nil {
		return nil, fmt.Errorf("register get_more_tools: %w", err)
	}

	if cfg.RestrictCodeExecution {
		for _, name := range []string{ExecuteCommandPack, ExecuteCommandInBackgroundPack, GetProcessStatusPack} {
			if err := registry.SetDisabled(name, true); err != nil {
				return nil, err
			}
		}
	}
	if !cfg.AutoInstall {
		if err := registry.SetDisabled(GetMoreToolsPack, true); err != nil {
			return nil, err
		}
	}
	return registry, nil
}

func Builtins(cfg Config) []pack.Pack {
	cfg.defaults()
	web := newFetcher(cfg.HTTPClient, cfg.OutputLimit)
	return []pack.Pack{
		exitPack(),
		osInfoPack(),
		readFilePack(cfg.OutputLimit),
		writeFilePack(),
		executeCommandPack(cfg.OutputLimit),
		executeInBackgroundPack(cfg.Processes),
		processStatusPack(cfg.Processes, cfg.OutputLimit),
		websiteTextPack(web),
	}
}

// Catalog is what get_more_tools may install on demand.
func Catalog(cfg Config) []pack.Pack {
	cfg.defaults()
	web := newFetcher(cfg.HTTPClient, cfg.OutputLimit)
	return []pack.Pack{
		htmlContentPack(web),
		listFilesPack(),
	}
}

func truncate(s string, limit int) string {
	if limit <= 0 || len(s) <= limit {
		return s
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "\n...(truncated)"
}
