package conversation

// Command is an output instruction produced by the engine and carried out
// by the CommandExecutor after the loop finishes.
type Command interface {
	commandName() string
}

// SendText sends a rendered template, or Text verbatim when Template is empty.
type SendText struct {
	Template string
	Vars     map[string]string
	Text     string
}

type SendImage struct {
	Path    string
	Caption string
}

// Track records an analytics event about the customer.
type Track struct {
	Event string
	Props map[string]string
}

// NotifyTeam alerts operators without handing the conversation over.
type NotifyTeam struct {
	Reason   string
	Severity string
}

// EscalateHandoff hands the conversation to a human agent.
type EscalateHandoff struct {
	Reason string
}

func (SendText) commandName() string        { return "send_text" }
func (SendImage) commandName() string       { return "send_image" }
func (Track) commandName() string           { return "track" }
func (NotifyTeam) commandName() string      { return "notify_team" }
func (EscalateHandoff) commandName() string { return "escalate_handoff" }

// CommandName returns the wire name of c, for logs.
func CommandName(c Command) string {
	if c == nil {
		return ""
	}
	return c.commandName()
}

// CountOutbound returns how many commands send something to the customer.
func CountOutbound(cmds []Command) int {
	n := 0
	for _, c := range cmds {
		switch c.(type) {
		case SendText, SendImage:
			n++
		}
	}
	return n
}

func text(template string, vars map[string]string) SendText {
	return SendText{Template: template, Vars: vars}
}

func track(event string, props map[string]string) Track {
	return Track{Event: event, Props: props}
}
