package speech

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	pkgspeech "voiceassistant/pkg/speech"

	"github.com/charmbracelet/lipgloss"
	"go.uber.org/zap"
)

var (
	personaStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#7dd3fc"))

	replyStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#e2e8f0"))

	promptStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#94a3b8"))
)

// LocalBackend is the text-mode speech backend: recognized text is read
// line by line from an input stream and speech is printed. Every non-blank
// line counts as a wake phrase followed by a command.
type LocalBackend struct {
	persona string
	prompt  string
	out     io.Writer
	logger  *zap.Logger

	lines chan string
	errs  chan error

	readOnce sync.Once
	in       io.Reader
	outMu    sync.Mutex
}

// NewLocalBackend creates a text backend reading from in and writing to out.
func NewLocalBackend(persona string, in io.Reader, out io.Writer, logger *zap.Logger) *LocalBackend {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LocalBackend{
		persona: persona,
		prompt:  "YOU: ",
		in:      in,
		out:     out,
		logger:  logger.Named("local"),
		lines:   make(chan string),
		errs:    make(chan error, 1),
	}
}

// startReader reads the input on its own goroutine so that listening can
// be cancelled while a read is pending.
func (b *LocalBackend) startReader() {
	b.readOnce.Do(func() {
		go func() {
			scanner := bufio.NewScanner(b.in)
			for scanner.Scan() {
				b.lines <- scanner.Text()
			}
			if err := scanner.Err(); err != nil {
				b.errs <- fmt.Errorf("read input: %w", err)
			} else {
				b.errs <- pkgspeech.ErrInputClosed
			}
			close(b.lines)
		}()
	})
}

func (b *LocalBackend) readLine(ctx context.Context) (string, error) {
	b.startReader()

	b.outMu.Lock()
	fmt.Fprint(b.out, promptStyle.Render(b.prompt))
	b.outMu.Unlock()

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case line, ok := <-b.lines:
		if !ok {
			return "", b.readErr()
		}
		return line, nil
	}
}

func (b *LocalBackend) readErr() error {
	select {
	case err := <-b.errs:
		// Keep reporting the same error on later calls.
		b.errs <- err
		return err
	default:
		return pkgspeech.ErrInputClosed
	}
}

// ListenPassive waits for a line. A blank line is silence.
func (b *LocalBackend) ListenPassive(ctx context.Context) (*pkgspeech.WakeEvent, error) {
	line, err := b.readLine(ctx)
	if err != nil {
		return nil, err
	}
	line = strings.TrimSpace(line)
	if line == "" {
		return nil, nil
	}
	return &pkgspeech.WakeEvent{Phrase: b.persona, Remainder: line}, nil
}

// ListenActive reads the next line as a command.
func (b *LocalBackend) ListenActive(ctx context.Context) (string, error) {
	line, err := b.readLine(ctx)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// Speak prints text prefixed with the persona name.
func (b *LocalBackend) Speak(ctx context.Context, text string, opts pkgspeech.SpeakOptions) error {
	b.outMu.Lock()
	defer b.outMu.Unlock()
	_, err := fmt.Fprintf(b.out, "%s %s\n", personaStyle.Render(b.persona+":"), replyStyle.Render(text))
	return err
}

// Close implements speech.Backend.
func (b *LocalBackend) Close() error {
	return nil
}
