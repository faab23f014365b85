package terminal

import (
	"fmt"
	"strconv"
	"strings"
)

// GenerateSource wraps a block's user code with the boilerplate that
// implements the data-passing channel: an in-memory export table, an
// export primitive, bindings for every imported name read from the
// block's JSON data file, and a trailer that writes the table back to
// the same file when it is non-empty.
//
// The emitted source is self-contained: cross-language import
// declarations are stripped from the body, and a read failure on the
// data file binds the name to an empty string instead of aborting.
func GenerateSource(block CodeBlock) (string, error) {
	switch block.Language {
	case Swift:
		return generateSwift(block), nil
	case Python:
		return generatePython(block), nil
	}
	return "", fmt.Errorf("no code generator for language %q", block.Language)
}

func generateSwift(block CodeBlock) string {
	path := strconv.Quote(block.DataFile)
	var b strings.Builder

	b.WriteString("import Foundation\n\n")
	b.WriteString("var __exports: [String: String] = [:]\n")
	b.WriteString("func export(_ name: String, _ value: Any) {\n")
	b.WriteString("    __exports[name] = String(describing: value)\n")
	b.WriteString("}\n")

	if names := uniqueNames(block.ImportNames); len(names) > 0 {
		b.WriteString("\n")
		for _, name := range names {
			fmt.Fprintf(&b, "var %s = \"\"\n", name)
		}
		fmt.Fprintf(&b, "if let __data = FileManager.default.contents(atPath: %s),\n", path)
		b.WriteString("   let __values = (try? JSONSerialization.jsonObject(with: __data)) as? [String: String] {\n")
		for _, name := range names {
			fmt.Fprintf(&b, "    %s = __values[%s] ?? \"\"\n", name, strconv.Quote(name))
		}
		b.WriteString("}\n")
	}

	b.WriteString("\n")
	b.WriteString(stripImportLines(Swift, block.Body))
	b.WriteString("\n\n")

	b.WriteString("if !__exports.isEmpty {\n")
	b.WriteString("    if let __out = try? JSONSerialization.data(withJSONObject: __exports) {\n")
	fmt.Fprintf(&b, "        try? __out.write(to: URL(fileURLWithPath: %s))\n", path)
	b.WriteString("    }\n")
	b.WriteString("}\n")

	return b.String()
}

func generatePython(block CodeBlock) string {
	path := strconv.Quote(block.DataFile)
	var b strings.Builder

	b.WriteString("import json as __json\n\n")
	b.WriteString("__exports = {}\n\n")
	b.WriteString("def export(name, value=None):\n")
	b.WriteString("    if value is None:\n")
	b.WriteString("        value = globals().get(name, \"\")\n")
	b.WriteString("    __exports[name] = str(value)\n")

	if names := uniqueNames(block.ImportNames); len(names) > 0 {
		b.WriteString("\n")
		for _, name := range names {
			fmt.Fprintf(&b, "%s = \"\"\n", name)
		}
		b.WriteString("try:\n")
		fmt.Fprintf(&b, "    with open(%s) as __f:\n", path)
		b.WriteString("        __values = __json.load(__f)\n")
		for _, name := range names {
			fmt.Fprintf(&b, "    %s = str(__values.get(%s, \"\"))\n", name, strconv.Quote(name))
		}
		b.WriteString("except Exception:\n")
		b.WriteString("    pass\n")
	}

	b.WriteString("\n")
	b.WriteString(stripImportLines(Python, block.Body))
	b.WriteString("\n\n")

	b.WriteString("if __exports:\n")
	fmt.Fprintf(&b, "    with open(%s, \"w\") as __f:\n", path)
	b.WriteString("        __json.dump(__exports, __f)\n")

	return b.String()
}

// stripImportLines removes cross-language import declarations, which
// are directives for the parser rather than valid guest syntax.
func stripImportLines(lang Language, body string) string {
	lines := strings.Split(body, "\n")
	kept := lines[:0]
	for _, line := range lines {
		if !isImportLine(lang, line) {
			kept = append(kept, line)
		}
	}
	return strings.Join(kept, "\n")
}

// uniqueNames preserves first-seen order while dropping duplicate
// import names, which would otherwise redeclare variables in the
// generated source.
func uniqueNames(names []string) []string {
	seen := make(map[string]bool, len(names))
	var out []string
	for _, name := range names {
		if !seen[name] {
			seen[name] = true
			out = append(out, name)
		}
	}
	return out
}
