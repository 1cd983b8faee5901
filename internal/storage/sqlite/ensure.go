package sqlite

import (
	"github.com/jspmic/cj11-mesmerizing-meteors/internal/sandbox"
	"github.com/jspmic/cj11-mesmerizing-meteors/internal/session"
)

var (
	_ session.Store      = (*SessionStore)(nil)
	_ session.AttemptLog = (*SessionStore)(nil)
	_ sandbox.Store      = (*SandboxStore)(nil)
)
