package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/jspmic/cj11-mesmerizing-meteors/internal/content"
	"github.com/jspmic/cj11-mesmerizing-meteors/internal/domain"
	"github.com/jspmic/cj11-mesmerizing-meteors/internal/session"
)

// cmdLessons lists lessons known to the daemon
func cmdLessons() error {
	var resp struct {
		Lessons []content.Summary `json:"lessons"`
	}
	if err := getJSON("/v1/lessons", &resp); err != nil {
		return err
	}

	fmt.Println("Lessons")
	fmt.Println("=======")
	for _, l := range resp.Lessons {
		title := l.Title
		if title == "" {
			title = "-"
		}
		fmt.Printf("  %-6s %-30s %d items (%d code)\n", l.ID, title, l.Items, l.Code)
	}
	return nil
}

// sessionView mirrors the daemon's session response
type sessionView struct {
	Session *session.Session `json:"session"`
	Prompt  *domain.Prompt   `json:"prompt"`
}

// cmdPlay runs an interactive lesson loop against the daemon
func cmdPlay(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: meteor play <lesson>")
	}

	var view sessionView
	if err := doJSON(http.MethodPost, "/v1/sessions", map[string]string{"lesson_id": args[0]}, &view); err != nil {
		return err
	}

	p := &player{
		id:   view.Session.ID,
		in:   bufio.NewReader(os.Stdin),
		out:  os.Stdout,
		call: doJSON,
	}
	fmt.Fprintln(p.out, "Type 'hint' for a hint, 'run' to try code in the playground or 'quit' to stop.")
	fmt.Fprintln(p.out, "For code end your input with a line holding a single '.'")
	return p.loop(view.Prompt)
}

// cmdRun runs a file in the daemon's playground and prints its output
func cmdRun(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: meteor run <file.py>")
	}
	src, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}
	var res domain.RunResult
	if err := doJSON(http.MethodPost, "/v1/run", map[string]string{"source": string(src)}, &res); err != nil {
		return err
	}
	fmt.Println(res.Text())
	return nil
}

type player struct {
	id   string
	in   *bufio.Reader
	out  io.Writer
	call func(method, path string, body, out any) error
}

func (p *player) loop(prompt *domain.Prompt) error {
	for prompt != nil {
		fmt.Fprintln(p.out)
		fmt.Fprintln(p.out, prompt.Text())

		answer, err := p.read(prompt.Kind)
		if errors.Is(err, io.EOF) {
			return p.quit()
		}
		if err != nil {
			return err
		}

		switch strings.TrimSpace(answer) {
		case "quit", "exit":
			return p.quit()
		case "hint":
			var res session.HintResult
			if err := p.call(http.MethodPost, "/v1/sessions/"+p.id+"/hint", nil, &res); err != nil {
				return err
			}
			if res.Hint == "" {
				fmt.Fprintln(p.out, "No more hints for this question.")
			}
			// re-render the prompt with the new hint
			var view sessionView
			if err := p.call(http.MethodGet, "/v1/sessions/"+p.id, nil, &view); err != nil {
				return err
			}
			prompt = view.Prompt
			continue
		case "run":
			if err := p.run(); err != nil {
				return err
			}
			continue
		}

		var fb domain.Feedback
		err = p.call(http.MethodPost, "/v1/sessions/"+p.id+"/answer", map[string]string{"answer": answer}, &fb)
		var apiErr *apiError
		if errors.As(err, &apiErr) && apiErr.Status == http.StatusTooManyRequests {
			fmt.Fprintln(p.out, "Slow down a little, then try again.")
			continue
		}
		if err != nil {
			return err
		}

		fmt.Fprintln(p.out, fb.Text())
		if fb.Completed {
			return p.summary()
		}
		prompt = fb.Next
	}
	return p.summary()
}

// read collects one answer. Code answers span lines up to a lone ".".
func (p *player) read(kind domain.ItemKind) (string, error) {
	if kind != domain.KindWriteCode {
		fmt.Fprint(p.out, "> ")
		line, err := p.in.ReadString('\n')
		if err != nil && line == "" {
			return "", err
		}
		return strings.TrimRight(line, "\r\n"), nil
	}

	return p.readCode(true)
}

// readCode collects lines up to a lone "." or the end of input. With
// commands set, a command word on the first line is returned on its own.
func (p *player) readCode(commands bool) (string, error) {
	var lines []string
	for {
		fmt.Fprint(p.out, "... ")
		line, err := p.in.ReadString('\n')
		if err != nil && line == "" {
			if len(lines) == 0 {
				return "", err
			}
			break
		}
		line = strings.TrimRight(line, "\r\n")
		if line == "." {
			break
		}
		if commands && len(lines) == 0 && (line == "quit" || line == "hint" || line == "run") {
			return line, nil
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n"), nil
}

// run reads code and runs it in the playground next to the session. The
// answer is not graded and no attempt is charged.
func (p *player) run() error {
	fmt.Fprintln(p.out, "Playground: enter code, end with '.'")
	src, err := p.readCode(false)
	if err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	if strings.TrimSpace(src) == "" {
		return nil
	}

	var res domain.RunResult
	err = p.call(http.MethodPost, "/v1/run", map[string]string{"source": src, "session_id": p.id}, &res)
	var apiErr *apiError
	if errors.As(err, &apiErr) && (apiErr.Status == http.StatusTooManyRequests || apiErr.Status == http.StatusConflict) {
		fmt.Fprintln(p.out, apiErr.Message)
		return nil
	}
	if err != nil {
		return err
	}
	fmt.Fprintln(p.out, res.Text())
	return nil
}

func (p *player) quit() error {
	var view sessionView
	if err := p.call(http.MethodDelete, "/v1/sessions/"+p.id, nil, &view); err != nil {
		return err
	}
	fmt.Fprintln(p.out, "Session abandoned.")
	return nil
}

func (p *player) summary() error {
	var view sessionView
	if err := p.call(http.MethodGet, "/v1/sessions/"+p.id, nil, &view); err != nil {
		return err
	}
	t := view.Session.Tally
	fmt.Fprintf(p.out, "\nPassed %d, failed %d, %d attempts, %d hints.\n", t.Passed, t.Failed, t.Attempts, t.Hints)
	return nil
}
