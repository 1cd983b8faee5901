package runner

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/jspmic/cj11-mesmerizing-meteors/internal/domain"
	"github.com/jspmic/cj11-mesmerizing-meteors/internal/pyrepr"
)

//go:embed harness.py
var harnessSource string

// HarnessSource returns the Python harness executed by every backend
func HarnessSource() string {
	return harnessSource
}

type harnessPayload struct {
	Preamble   string   `json:"preamble"`
	Submission string   `json:"submission"`
	Probes     []string `json:"probes"`
	MemoryMB   int      `json:"memory_mb,omitempty"`
	Mode       string   `json:"mode,omitempty"`
	// OutputLimit caps printed characters in run mode.
	OutputLimit int `json:"output_limit,omitempty"`
}

const modeRun = "run"

func encodePayload(prog Program, memoryMB int) ([]byte, error) {
	payload := harnessPayload{
		Preamble:   prog.Preamble,
		Submission: ExpandTabs(prog.Submission),
		Probes:     prog.Probes,
		MemoryMB:   memoryMB,
	}
	if prog.Capture {
		payload.Mode = modeRun
		payload.OutputLimit = OutputLimit
		payload.Probes = nil
	}
	if payload.Probes == nil {
		payload.Probes = []string{}
	}
	return json.Marshal(payload)
}

type harnessRecord struct {
	Stage   string        `json:"stage"`
	Index   int           `json:"index"`
	OK      bool          `json:"ok"`
	Value   *pyrepr.Value `json:"value,omitempty"`
	Error   *harnessError `json:"error,omitempty"`
	Message string        `json:"message,omitempty"`
	// output records
	Text      string `json:"text,omitempty"`
	Truncated bool   `json:"truncated,omitempty"`
}

type harnessError struct {
	Type    string   `json:"type"`
	Bases   []string `json:"bases"`
	Message string   `json:"message"`
}

func (r harnessRecord) result() StageResult {
	if r.OK {
		if r.Value == nil {
			return valueResult(pyrepr.None())
		}
		return valueResult(*r.Value)
	}
	if r.Error == nil {
		return failureResult(domain.FailureOther, "unknown error")
	}
	return failureResult(classify(r.Error.Bases), r.Error.Message)
}

// termination describes how the harness process ended
type termination struct {
	budget    time.Duration
	timedOut  bool
	truncated bool
	exitCode  int
	stderr    string
}

func (t termination) missing() StageResult {
	switch {
	case t.timedOut:
		return timeoutResult(t.budget)
	case t.truncated:
		return failureResult(domain.FailureOther, "the result was too large to report")
	default:
		msg := fmt.Sprintf("the program stopped before producing a result (exit code %d)", t.exitCode)
		if tail := lastLine(t.stderr); tail != "" {
			msg += ": " + tail
		}
		return failureResult(domain.FailureOther, msg)
	}
}

// decodeOutcome reads the JSON lines written by the harness. Stages with no
// line are filled in from how the process terminated.
func decodeOutcome(stdout []byte, probes int, term termination) (*Outcome, error) {
	out := &Outcome{Probes: make([]StageResult, probes)}
	seenSetup := false
	seen := make([]bool, probes)
	var printed strings.Builder

	for _, line := range bytes.Split(stdout, []byte("\n")) {
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}
		var rec harnessRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			// A partial last line is expected after a kill or truncation.
			continue
		}
		switch rec.Stage {
		case "setup":
			out.Setup = rec.result()
			seenSetup = true
		case "probe":
			if rec.Index >= 0 && rec.Index < probes {
				out.Probes[rec.Index] = rec.result()
				seen[rec.Index] = true
			}
		case "output":
			printed.WriteString(rec.Text)
			out.OutputTruncated = out.OutputTruncated || rec.Truncated
		case "fatal":
			return nil, fmt.Errorf("%w: %s", ErrHarness, rec.Message)
		}
	}
	out.Output = printed.String()
	if utf8.RuneCountInString(out.Output) > OutputLimit {
		out.Output = string([]rune(out.Output)[:OutputLimit])
		out.OutputTruncated = true
	}

	if !seenSetup {
		out.Setup = term.missing()
	}
	if !out.Setup.OK() {
		for i := range out.Probes {
			out.Probes[i] = out.Setup
		}
		return out, nil
	}
	for i, ok := range seen {
		if !ok {
			out.Probes[i] = term.missing()
		}
	}
	return out, nil
}

func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	}
	return strings.TrimSpace(s)
}

// cappedBuffer keeps at most limit bytes and records whether more arrived.
type cappedBuffer struct {
	mu        sync.Mutex
	buf       bytes.Buffer
	limit     int
	truncated bool
}

func newCappedBuffer(limit int) *cappedBuffer {
	return &cappedBuffer{limit: limit}
}

func (c *cappedBuffer) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	room := c.limit - c.buf.Len()
	if room <= 0 {
		c.truncated = true
		return len(p), nil
	}
	if len(p) > room {
		c.buf.Write(p[:room])
		c.truncated = true
		return len(p), nil
	}
	c.buf.Write(p)
	return len(p), nil
}

func (c *cappedBuffer) Bytes() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.buf.Bytes()
}

func (c *cappedBuffer) String() string {
	return string(c.Bytes())
}

func (c *cappedBuffer) Truncated() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.truncated
}
