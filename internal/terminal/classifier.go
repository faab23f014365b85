package terminal

import "strings"

// ScriptShebang opens a mixed-language script.
const ScriptShebang = "#!/bin/backdoor"

// CommandKind discriminates the classification result.
type CommandKind int

const (
	KindBuiltin CommandKind = iota
	KindShell
	KindLanguage
	KindMixed
)

func (k CommandKind) String() string {
	switch k {
	case KindBuiltin:
		return "builtin"
	case KindShell:
		return "shell"
	case KindLanguage:
		return "language"
	case KindMixed:
		return "mixed"
	}
	return "unknown"
}

// Command is a classified command line. Classification never fails;
// anything unrecognized falls through to the shell path.
type Command struct {
	Kind CommandKind

	// Builtin is the canonical builtin name (KindBuiltin).
	Builtin string
	Args    []string

	// Language and Code carry a single-language command
	// (KindLanguage) or, for KindMixed, Code holds the full script
	// including the shebang.
	Language Language
	Code     string

	// Shell holds the raw command for the shell path, with any
	// trailing " &" removed.
	Shell      string
	Background bool
}

// shellMeta marks a command that needs a real shell even when its
// first word collides with a builtin name (e.g. "pwd | wc -c").
const shellMeta = "|&;<>$`\\\"'*?()"

// builtin aliases, canonicalized.
var builtins = map[string]string{
	"clear":    "clear",
	"cls":      "clear",
	"pwd":      "pwd",
	"help":     "help",
	"language": "language",
	"lang":     "language",
	"history":  "history",
}

// Classify decides how a raw command line executes.
func Classify(raw string) Command {
	text := strings.TrimSpace(raw)

	if strings.HasPrefix(text, ScriptShebang) {
		return Command{Kind: KindMixed, Code: text}
	}

	fields := strings.Fields(text)
	if len(fields) > 0 && !strings.ContainsAny(text, shellMeta) {
		if name, ok := builtins[strings.ToLower(fields[0])]; ok {
			return Command{Kind: KindBuiltin, Builtin: name, Args: fields[1:]}
		}
	}

	if lang, code, ok := splitLanguagePrefix(text); ok {
		return Command{Kind: KindLanguage, Language: lang, Code: code}
	}

	cmd := Command{Kind: KindShell, Shell: text}
	if strings.HasSuffix(text, " &") {
		cmd.Background = true
		cmd.Shell = strings.TrimSpace(strings.TrimSuffix(text, " &"))
	}
	return cmd
}

// splitLanguagePrefix matches a case-insensitive "<tag>:" prefix for a
// known guest language and returns the trimmed remainder as code.
func splitLanguagePrefix(text string) (Language, string, bool) {
	idx := strings.IndexByte(text, ':')
	if idx <= 0 {
		return "", "", false
	}
	switch Language(strings.ToLower(text[:idx])) {
	case Swift:
		return Swift, strings.TrimSpace(text[idx+1:]), true
	case Python:
		return Python, strings.TrimSpace(text[idx+1:]), true
	}
	return "", "", false
}
