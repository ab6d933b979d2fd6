package echo

import "voiceassistant/pkg/plugin"

func init() {
	plugin.Register(plugin.PluginInfo{
		Slug:        Slug,
		Description: "Repeats what follows the trigger phrase",
		Order:       40,
		Factory: func(ctx *plugin.Context) (plugin.Plugin, error) {
			return NewPlugin(ctx.Logger), nil
		},
	})
}
