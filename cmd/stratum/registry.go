package main

import (
	"github.com/alexisbeaulieu97/stratum/internal/plugin"
	artifactplugin "github.com/alexisbeaulieu97/stratum/internal/plugins/artifact"
	interpenvplugin "github.com/alexisbeaulieu97/stratum/internal/plugins/interpenv"
	packagesplugin "github.com/alexisbeaulieu97/stratum/internal/plugins/packages"
	pathvarplugin "github.com/alexisbeaulieu97/stratum/internal/plugins/pathvar"
	permissionplugin "github.com/alexisbeaulieu97/stratum/internal/plugins/permission"
)

// buildRegistry registers every built-in action kind.
func buildRegistry() (*plugin.Registry, error) {
	registry := plugin.NewRegistry()
	for _, p := range []plugin.Plugin{
		packagesplugin.New(),
		interpenvplugin.New(),
		pathvarplugin.New(),
		artifactplugin.New(),
		permissionplugin.New(),
	} {
		if err := registry.Register(p); err != nil {
			return nil, err
		}
	}
	return registry, nil
}
