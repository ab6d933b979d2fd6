package sun

import (
	"voiceassistant/internal/dayphase"
	"voiceassistant/pkg/plugin"
)

func init() {
	plugin.Register(plugin.PluginInfo{
		Slug:        Slug,
		Description: "Sunrise and sunset times for the configured location",
		Order:       20, // ahead of clock, "几点日出" is a sun question
		Factory:     createPlugin,
	})
}

func createPlugin(ctx *plugin.Context) (plugin.Plugin, error) {
	loc := ctx.Profile.Location
	calc := dayphase.NewCalculator(loc.Latitude, loc.Longitude, ctx.Timezone, ctx.Clock, ctx.Logger.Named("dayphase"))
	return NewPlugin(calc, ctx.Logger), nil
}
