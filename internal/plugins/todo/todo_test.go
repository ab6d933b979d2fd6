package todo

import (
	"context"
	"errors"
	"testing"
	"time"

	"voiceassistant/internal/command"
	"voiceassistant/pkg/plugin"
	"voiceassistant/pkg/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTask struct {
	export []byte
	err    error
	calls  [][]string
}

func (f *fakeTask) runner() command.Runner {
	return command.RunnerFunc(func(ctx context.Context, name string, args ...string) ([]byte, error) {
		f.calls = append(f.calls, append([]string{name}, args...))
		if f.err != nil {
			return nil, f.err
		}
		if args[len(args)-1] == "export" {
			return f.export, nil
		}
		return []byte("Created task 1."), nil
	})
}

func newTestPlugin(t *testing.T, task *fakeTask) (*Plugin, *testutil.PluginEnv) {
	t.Helper()
	env := testutil.NewPluginEnv(time.Date(2024, 6, 21, 9, 0, 0, 0, time.UTC))
	p, err := NewPlugin("task", task.runner(), env.Logger)
	require.NoError(t, err)
	return p, env
}

func TestIsValid(t *testing.T) {
	p, _ := newTestPlugin(t, &fakeTask{})

	tests := []struct {
		text string
		want bool
	}{
		{"查看备忘", true},
		{"添加备忘明天交电费", true},
		{"备忘录", true},
		{"list reminders", true},
		{"Remind me to call mom", true},
		{"现在几点", false},
		{"what time is it", false},
		{"", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, p.IsValid(tt.text), tt.text)
	}
}

func TestList(t *testing.T) {
	task := &fakeTask{export: []byte(`[{"id":1,"description":"交电费"},{"id":2,"description":"买牛奶"}]`)}
	p, env := newTestPlugin(t, task)

	require.NoError(t, env.Handle(p, "查看备忘"))
	assert.Equal(t, []string{"你有2条备忘：交电费；买牛奶。"}, env.Speaker.Texts())
	assert.Equal(t, []string{"task", "rc.confirmation=off", "rc.verbose=nothing", "status:pending", "export"}, task.calls[0])
}

func TestList_English(t *testing.T) {
	task := &fakeTask{export: []byte(`[{"id":1,"description":"call mom"}]`)}
	p, env := newTestPlugin(t, task)

	require.NoError(t, env.Handle(p, "list reminders"))
	assert.Equal(t, []string{"You have 1 reminder: call mom."}, env.Speaker.Texts())
}

func TestList_Truncates(t *testing.T) {
	task := &fakeTask{export: []byte(`[{"description":"a"},{"description":"b"},{"description":"c"},{"description":"d"},{"description":"e"},{"description":"f"}]`)}
	p, env := newTestPlugin(t, task)

	require.NoError(t, env.Handle(p, "show reminders"))
	assert.Equal(t, []string{"You have 6 reminders: a; b; c; d; e."}, env.Speaker.Texts())
}

func TestList_Empty(t *testing.T) {
	p, env := newTestPlugin(t, &fakeTask{export: []byte(`[]`)})

	require.NoError(t, env.Handle(p, "检查备忘"))
	spoken := env.Speaker.Spoken()
	require.Len(t, spoken, 1)
	assert.Equal(t, "你没有备忘。", spoken[0].Text)
	assert.True(t, spoken[0].Cached)
}

func TestList_Errors(t *testing.T) {
	t.Run("taskwarrior fails", func(t *testing.T) {
		p, env := newTestPlugin(t, &fakeTask{err: errors.New("task: not found")})
		err := env.Handle(p, "查看备忘")
		assert.ErrorContains(t, err, "list tasks")
		assert.Empty(t, env.Speaker.Texts())
	})

	t.Run("bad export", func(t *testing.T) {
		p, env := newTestPlugin(t, &fakeTask{export: []byte("not json")})
		assert.ErrorContains(t, env.Handle(p, "查看备忘"), "parse task export")
	})
}

func TestAdd(t *testing.T) {
	task := &fakeTask{}
	p, env := newTestPlugin(t, task)

	require.NoError(t, env.Handle(p, "添加备忘，明天交电费"))
	assert.Equal(t, []string{"添加备忘成功。"}, env.Speaker.Texts())
	require.Len(t, task.calls, 1)
	assert.Equal(t, []string{"task", "rc.confirmation=off", "rc.verbose=nothing", "add", "明天交电费"}, task.calls[0])
}

func TestAdd_English(t *testing.T) {
	task := &fakeTask{}
	p, env := newTestPlugin(t, task)

	require.NoError(t, env.Handle(p, "remind me to water the plants"))
	assert.Equal(t, []string{"Reminder added."}, env.Speaker.Texts())
	assert.Equal(t, "water the plants", task.calls[0][len(task.calls[0])-1])
}

func TestAdd_NoDescription(t *testing.T) {
	task := &fakeTask{}
	p, env := newTestPlugin(t, task)

	require.NoError(t, env.Handle(p, "添加备忘"))
	assert.Empty(t, task.calls)
	assert.Contains(t, env.Speaker.Texts()[0], "要添加什么备忘")
}

func TestAdd_Failure(t *testing.T) {
	p, env := newTestPlugin(t, &fakeTask{err: errors.New("exit status 1")})

	require.NoError(t, env.Handle(p, "添加备忘 买牛奶"))
	assert.Equal(t, []string{"添加备忘失败。"}, env.Speaker.Texts())
}

func TestUsage(t *testing.T) {
	task := &fakeTask{}
	p, env := newTestPlugin(t, task)

	require.NoError(t, env.Handle(p, "备忘"))
	assert.Empty(t, task.calls)
	require.Len(t, env.Speaker.Texts(), 1)
}

func TestNewPlugin_Validation(t *testing.T) {
	_, err := NewPlugin("", command.OS{}, nil)
	assert.Error(t, err)
	_, err = NewPlugin("task", nil, nil)
	assert.Error(t, err)
}

func TestRegistered(t *testing.T) {
	info := plugin.Get(Slug)
	require.NotNil(t, info)
	assert.Equal(t, 10, info.Order)

	env := testutil.NewPluginEnv(time.Now())
	p, err := env.Build(info.Factory)
	require.NoError(t, err)
	assert.Equal(t, Slug, p.Slug())
}

func TestAdd_RemindMe(t *testing.T) {
	task := &fakeTask{}
	p, env := newTestPlugin(t, task)

	require.NoError(t, env.Handle(p, "提醒我三点开会"))
	assert.Equal(t, "三点开会", task.calls[0][len(task.calls[0])-1])
}
