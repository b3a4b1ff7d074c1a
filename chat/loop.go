package chat

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/fabfab/pdf-rag/retrieval"
)

var exitTokens = map[string]struct{}{
	"sair": {},
	"exit": {},
	"quit": {},
}

// IsExitToken reports whether input ends an interactive session.
func IsExitToken(input string) bool {
	_, ok := exitTokens[strings.ToLower(strings.TrimSpace(input))]
	return ok
}

type Answerer interface {
	Answer(ctx context.Context, question string, k int) (string, error)
}

// Loop reads questions line by line and prints one answer per question.
type Loop struct {
	answerer Answerer
	prompt   Prompt
	in       io.Reader
	out      io.Writer
	logger   zerolog.Logger

	// K is the number of chunks retrieved per question.
	K int
	// Timeout bounds each question when positive.
	Timeout time.Duration
}

func NewLoop(answerer Answerer, prompt Prompt, in io.Reader, out io.Writer, logger zerolog.Logger) *Loop {
	if prompt.Template == "" {
		prompt = defaultPrompt
	}
	return &Loop{
		answerer: answerer,
		prompt:   prompt,
		in:       in,
		out:      out,
		logger:   logger,
		K:        retrieval.DefaultK,
	}
}

// Run returns nil on an exit token or end of input. A failed question is
// printed and the loop carries on; only cancellation or a read error stop it.
// Cancellation is honoured while waiting for input.
func (l *Loop) Run(ctx context.Context) error {
	done := make(chan struct{})
	defer close(done)
	lines := readLines(l.in, done)

	fmt.Fprintf(l.out, "%s\n\n", l.prompt.Intro)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		fmt.Fprint(l.out, l.prompt.QuestionLabel)

		var (
			res scanResult
			ok  bool
		)
		select {
		case <-ctx.Done():
			fmt.Fprintln(l.out)
			return ctx.Err()
		case res, ok = <-lines:
		}
		if !ok {
			fmt.Fprintln(l.out)
			return nil
		}
		if res.err != nil {
			return fmt.Errorf("read question: %w", res.err)
		}

		question := strings.TrimSpace(res.line)
		if question == "" {
			continue
		}
		if IsExitToken(question) {
			fmt.Fprintln(l.out, l.prompt.Goodbye)
			return nil
		}

		answer, err := l.ask(ctx, question)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			l.logger.Error().Err(err).Msg("question failed")
			fmt.Fprintf(l.out, "%s%v\n\n", l.prompt.ErrorLabel, err)
			continue
		}

		fmt.Fprintf(l.out, "%s%s\n\n", l.prompt.AnswerLabel, answer)
	}
}

type scanResult struct {
	line string
	err  error
}

// readLines scans r on its own goroutine. The channel closes at end of input;
// a read error is delivered as the last value. Closing done releases the
// goroutine once its pending read returns.
func readLines(r io.Reader, done <-chan struct{}) <-chan scanResult {
	out := make(chan scanResult)
	go func() {
		defer close(out)

		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			select {
			case out <- scanResult{line: scanner.Text()}:
			case <-done:
				return
			}
		}
		if err := scanner.Err(); err != nil {
			select {
			case out <- scanResult{err: err}:
			case <-done:
			}
		}
	}()
	return out
}

func (l *Loop) ask(ctx context.Context, question string) (string, error) {
	if l.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.Timeout)
		defer cancel()
	}
	return l.answerer.Answer(ctx, question, l.K)
}
