package phrase

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSet_Find(t *testing.T) {
	s := Set{"添加备忘", "Add Reminder"}

	got, ok := s.Find("请帮我添加备忘买牛奶")
	assert.True(t, ok)
	assert.Equal(t, "添加备忘", got)

	got, ok = s.Find("please ADD REMINDER buy milk")
	assert.True(t, ok)
	assert.Equal(t, "Add Reminder", got)

	assert.False(t, s.Match("what time is it"))
	assert.False(t, Set{}.Match("anything"))
}

func TestSet_After(t *testing.T) {
	tests := []struct {
		name string
		set  Set
		text string
		want string
		ok   bool
	}{
		{"chinese", Set{"跟我说"}, "跟我说，你好世界。", "你好世界", true},
		{"english", Set{"repeat after me"}, "Repeat after me: hello there!", "hello there", true},
		{"nothing after", Set{"send message"}, "send message", "", true},
		{"absent", Set{"send message"}, "hello", "", false},
		{"first phrase wins", Set{"添加备忘", "备忘"}, "添加备忘 交电费", "交电费", true},
		{"case mapping changes length", Set{"repeat after me"}, "Repeat after me İstanbul", "İstanbul", true},
		{"length change before phrase", Set{"say after me"}, "İ SAY AFTER ME hello", "hello", true},
		{"mixed case chinese and english", Set{"跟我说"}, "OK 跟我说 Hello", "Hello", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := tt.set.After(tt.text)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestChinese(t *testing.T) {
	assert.True(t, Chinese("现在几点"))
	assert.True(t, Chinese("sunrise 日出"))
	assert.False(t, Chinese("what time is it"))
	assert.Equal(t, "你好", Pick("你好吗", "你好", "hello"))
	assert.Equal(t, "hello", Pick("hi", "你好", "hello"))
}
