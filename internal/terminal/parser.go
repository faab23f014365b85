package terminal

import (
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/google/uuid"

	"github.com/backdoor-sh/termcore/internal/shared/id"
)

// Parse extracts the ordered code blocks from a mixed script and
// builds an execution plan. Blocks look like
//
//	swift: { ... }
//	python: { ... }
//
// and execute in order of appearance. A script with no blocks yields
// an empty plan; an unterminated block body is a ParseError.
//
// The scanner is deliberately explicit rather than regex-based: a tag
// match followed by a nesting-aware brace scan. Adversarial input
// cannot trigger pathological backtracking.
func Parse(script string) (*ExecutionPlan, error) {
	plan := &ExecutionPlan{
		ID:          id.NewPlanID(),
		failedBlock: -1,
	}

	i := 0
	for i < len(script) {
		lang, tagEnd, ok := matchBlockTag(script, i)
		if !ok {
			i++
			continue
		}

		bodyStart, bodyEnd, err := scanBraceBody(script, tagEnd)
		if err != nil {
			return nil, &ParseError{Offset: i, Msg: err.Error()}
		}
		if bodyStart < 0 {
			// Tag without an opening brace is not a block.
			i = tagEnd
			continue
		}

		body := strings.TrimSpace(script[bodyStart:bodyEnd])
		block := CodeBlock{
			Language:    lang,
			Body:        body,
			ImportNames: ExtractImports(lang, body),
			DataFile:    newDataFile(),
		}
		plan.Blocks = append(plan.Blocks, block)
		plan.DataFiles = append(plan.DataFiles, block.DataFile)

		i = bodyEnd + 1
	}

	return plan, nil
}

// matchBlockTag reports whether a "<language>:" tag starts at pos. The
// tag must sit at the start of the script or follow whitespace so that
// identifiers like "myswift:" never match.
func matchBlockTag(script string, pos int) (Language, int, bool) {
	if pos > 0 && !unicode.IsSpace(rune(script[pos-1])) {
		return "", 0, false
	}
	for _, lang := range []Language{Swift, Python} {
		tag := string(lang) + ":"
		end := pos + len(tag)
		if end <= len(script) && strings.EqualFold(script[pos:end], tag) {
			return lang, end, true
		}
	}
	return "", 0, false
}

// scanBraceBody skips whitespace after a tag, then scans a brace
// delimited body with nesting awareness. It returns the body bounds
// (exclusive of the braces), or bodyStart=-1 when no opening brace
// follows on the same region, or an error for an unterminated body.
func scanBraceBody(script string, pos int) (bodyStart, bodyEnd int, err error) {
	i := pos
	for i < len(script) && (script[i] == ' ' || script[i] == '\t') {
		i++
	}
	if i >= len(script) || script[i] != '{' {
		return -1, -1, nil
	}

	depth := 0
	for j := i; j < len(script); j++ {
		switch script[j] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i + 1, j, nil
			}
		}
	}
	return 0, 0, errUnterminatedBlock
}

var errUnterminatedBlock = unterminatedErr{}

type unterminatedErr struct{}

func (unterminatedErr) Error() string { return "unterminated block: missing closing brace" }

// ExtractImports collects cross-language variable references declared
// inside a block body, in first-seen order. Duplicates are kept.
//
// Swift blocks reference Python values as `import python.<name>`;
// Python blocks reference Swift values as `from swift import <name>`.
func ExtractImports(lang Language, body string) []string {
	var names []string
	for _, line := range strings.Split(body, "\n") {
		if name, ok := matchImportLine(lang, line); ok {
			names = append(names, name)
		}
	}
	return names
}

// matchImportLine matches one cross-language import declaration.
func matchImportLine(lang Language, line string) (string, bool) {
	fields := strings.Fields(line)
	switch lang {
	case Swift:
		// import python.<name>
		if len(fields) == 2 && fields[0] == "import" {
			if name, ok := strings.CutPrefix(fields[1], "python."); ok && isIdentifier(name) {
				return name, true
			}
		}
	case Python:
		// from swift import <name>
		if len(fields) == 4 && fields[0] == "from" && fields[1] == "swift" &&
			fields[2] == "import" && isIdentifier(fields[3]) {
			return fields[3], true
		}
	}
	return "", false
}

// isImportLine reports whether a body line is a cross-language import
// declaration. The code generator strips these lines so the emitted
// source stays valid guest-language syntax.
func isImportLine(lang Language, line string) bool {
	_, ok := matchImportLine(lang, line)
	return ok
}

func isIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		if r == '_' || unicode.IsLetter(r) {
			continue
		}
		if i > 0 && unicode.IsDigit(r) {
			continue
		}
		return false
	}
	return true
}

// newDataFile allocates a globally-unique data-passing file path.
func newDataFile() string {
	return filepath.Join(os.TempDir(), "termcore-data-"+uuid.NewString()+".json")
}
