// Package todo manages reminders through TaskWarrior.
package todo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"voiceassistant/internal/command"
	"voiceassistant/internal/plugins/phrase"
	"voiceassistant/pkg/plugin"

	"go.uber.org/zap"
)

// Slug identifies the plugin.
const Slug = "todo"

// maxListed bounds how many reminders are read out.
const maxListed = 5

var (
	listPhrases  = phrase.Set{"查看备忘", "检查备忘", "list reminders", "show reminders", "check reminders", "my reminders"}
	addPhrases   = phrase.Set{"添加备忘", "提醒我", "add reminder", "add a reminder", "remind me to"}
	topicPhrases = phrase.Set{"备忘", "reminder"}
)

// Task is one pending TaskWarrior task.
type Task struct {
	ID          int    `json:"id"`
	Description string `json:"description"`
}

// Plugin answers reminder requests.
type Plugin struct {
	binary string
	runner command.Runner
	logger *zap.Logger
}

// NewPlugin creates the plugin running binary through runner.
func NewPlugin(binary string, runner command.Runner, logger *zap.Logger) (*Plugin, error) {
	if binary == "" {
		return nil, errors.New("todo: taskwarrior binary is not configured")
	}
	if runner == nil {
		return nil, errors.New("todo: runner is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Plugin{binary: binary, runner: runner, logger: logger.Named(Slug)}, nil
}

func (p *Plugin) Slug() string { return Slug }

func (p *Plugin) IsValid(text string) bool {
	return listPhrases.Match(text) || addPhrases.Match(text) || topicPhrases.Match(text)
}

func (p *Plugin) Handle(ctx context.Context, text string, sess *plugin.Session) error {
	switch {
	case listPhrases.Match(text):
		return p.list(ctx, text, sess)
	case addPhrases.Match(text):
		description, _ := addPhrases.After(text)
		return p.add(ctx, text, description, sess)
	default:
		return sess.SayCached(ctx, phrase.Pick(text,
			"你可以说添加备忘加上内容，或者说查看备忘。",
			"Say add reminder followed by what to remember, or list reminders."))
	}
}

// Pending returns the pending tasks.
func (p *Plugin) Pending(ctx context.Context) ([]Task, error) {
	out, err := p.runner.Run(ctx, p.binary, "rc.confirmation=off", "rc.verbose=nothing", "status:pending", "export")
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	var tasks []Task
	if err := json.Unmarshal(out, &tasks); err != nil {
		return nil, fmt.Errorf("parse task export: %w", err)
	}
	return tasks, nil
}

func (p *Plugin) list(ctx context.Context, text string, sess *plugin.Session) error {
	tasks, err := p.Pending(ctx)
	if err != nil {
		return err
	}
	p.logger.Debug("Pending reminders", zap.Int("count", len(tasks)))

	if len(tasks) == 0 {
		return sess.SayCached(ctx, phrase.Pick(text, "你没有备忘。", "You have no reminders."))
	}

	descriptions := make([]string, 0, maxListed)
	for i, task := range tasks {
		if i == maxListed {
			break
		}
		descriptions = append(descriptions, task.Description)
	}

	var reply string
	if phrase.Chinese(text) {
		reply = fmt.Sprintf("你有%d条备忘：%s。", len(tasks), strings.Join(descriptions, "；"))
	} else {
		noun := "reminders"
		if len(tasks) == 1 {
			noun = "reminder"
		}
		reply = fmt.Sprintf("You have %d %s: %s.", len(tasks), noun, strings.Join(descriptions, "; "))
	}
	return sess.Say(ctx, reply)
}

func (p *Plugin) add(ctx context.Context, text, description string, sess *plugin.Session) error {
	if description == "" {
		return sess.SayCached(ctx, phrase.Pick(text,
			"要添加什么备忘？请说添加备忘加上内容。",
			"What should I remind you about? Say add reminder followed by the reminder."))
	}

	if _, err := p.runner.Run(ctx, p.binary, "rc.confirmation=off", "rc.verbose=nothing", "add", description); err != nil {
		p.logger.Warn("Failed to add reminder",
			zap.String("description", description),
			zap.Error(err))
		return sess.SayCached(ctx, phrase.Pick(text, "添加备忘失败。", "Sorry, I couldn't add that reminder."))
	}

	p.logger.Info("Reminder added", zap.String("description", description))
	return sess.SayCached(ctx, phrase.Pick(text, "添加备忘成功。", "Reminder added."))
}
