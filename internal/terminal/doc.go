// Package terminal implements the terminal session and mixed-language
// script execution engine.
//
// A session owns a working directory and at most one foreground
// process. Commands are classified into builtins, shell commands,
// single-language commands (swift:/python:), and mixed scripts opened
// by the #!/bin/backdoor shebang. Mixed scripts are parsed into an
// ordered plan of code blocks; each block is wrapped with
// import/export boilerplate, written to a temp file, and executed by
// the matching guest toolchain, with values passed between blocks
// through per-block JSON data files.
package terminal
