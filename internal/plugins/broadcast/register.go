package broadcast

import "voiceassistant/pkg/plugin"

func init() {
	plugin.Register(plugin.PluginInfo{
		Slug:        Slug,
		Description: "Sends a spoken message to the relay's peers",
		Order:       50,
		Factory: func(ctx *plugin.Context) (plugin.Plugin, error) {
			return NewPlugin(ctx.Logger), nil
		},
	})
}
