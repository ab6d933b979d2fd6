package todo

import (
	"voiceassistant/internal/command"
	"voiceassistant/pkg/plugin"
)

func init() {
	plugin.Register(plugin.PluginInfo{
		Slug:        Slug,
		Description: "Reminders backed by the TaskWarrior CLI",
		Order:       10, // ahead of clock, "提醒我三点开会" is a reminder
		Factory:     createPlugin,
	})
}

// createPlugin creates a new todo plugin instance from the plugin context.
func createPlugin(ctx *plugin.Context) (plugin.Plugin, error) {
	return NewPlugin(ctx.Profile.Todo.Binary, command.OS{}, ctx.Logger)
}
