package ui

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// ConfirmDanger asks a yes/no question about a state-changing action on out
// and reads the answer from in.
func ConfirmDanger(in io.Reader, out io.Writer, prompt string) bool {
	fmt.Fprintf(out, "%s [y/N]: ", StyleError.Render("⚠ "+prompt))
	return readYes(in)
}

func readYes(in io.Reader) bool {
	line, _ := bufio.NewReader(in).ReadString('\n')
	line = strings.TrimSpace(strings.ToLower(line))
	return line == "y" || line == "yes"
}
