package clock

import "voiceassistant/pkg/plugin"

func init() {
	plugin.Register(plugin.PluginInfo{
		Slug:        Slug,
		Description: "Tells the current time and date",
		Order:       30,
		Factory:     createPlugin,
	})
}

func createPlugin(ctx *plugin.Context) (plugin.Plugin, error) {
	return NewPlugin(ctx.Clock, ctx.Timezone, ctx.Logger), nil
}
