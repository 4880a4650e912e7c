package cliapp

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/castsync/cast/internal/conflict"
)

// termPrompter renders a conflict's side-by-side diff and reads a
// keep-local/keep-peer/skip choice from the terminal. This is the only
// Prompter implementation the engine ever sees in practice; tests drive
// internal/conflict directly with their own stub.
type termPrompter struct {
	in  *bufio.Reader
	out io.Writer
}

func newTermPrompter(in io.Reader, out io.Writer) *termPrompter {
	return &termPrompter{in: bufio.NewReader(in), out: out}
}

func (p *termPrompter) Prompt(localPath, peerName, localYAML, peerYAML, localBody, peerBody string) (conflict.Resolution, error) {
	fmt.Fprintf(p.out, "\nConflict: %s  (peer: %s)\n", localPath, peerName)
	fmt.Fprintln(p.out, "--- local front matter ---")
	fmt.Fprintln(p.out, localYAML)
	fmt.Fprintln(p.out, "--- peer front matter ---")
	fmt.Fprintln(p.out, peerYAML)
	for _, row := range conflict.RenderSideBySide(localBody, peerBody) {
		fmt.Fprintf(p.out, "%s | %-60s | %s\n", row.Tag, row.Left, row.Right)
	}

	for {
		fmt.Fprint(p.out, "Keep [l]ocal, [p]eer, or [s]kip? ")
		line, err := p.in.ReadString('\n')
		if err != nil {
			return conflict.Skip, err
		}
		switch strings.ToLower(strings.TrimSpace(line)) {
		case "l", "local":
			return conflict.KeepLocal, nil
		case "p", "peer":
			return conflict.KeepPeer, nil
		case "s", "skip", "":
			return conflict.Skip, nil
		}
	}
}
