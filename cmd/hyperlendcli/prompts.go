package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"golang.org/x/term"

	"github.com/ligun0805/hyperlend-runner/internal/gate"
	"github.com/ligun0805/hyperlend-runner/internal/runner"
)

func isInteractive() bool { return term.IsTerminal(int(os.Stdin.Fd())) }

func readLine(r *bufio.Reader, w io.Writer, prompt string) string {
	fmt.Fprint(w, prompt)
	t, _ := r.ReadString('\n')
	return strings.TrimSpace(t)
}

// askThreads reads the thread count; anything unusable means 1.
func askThreads(r *bufio.Reader, w io.Writer) int {
	n := gate.ParseSize(readLine(r, w, "Threads [1]: "))
	fmt.Fprintf(w, "Using %d thread(s)\n", n)
	return n
}

// askOperation prints the numbered menu and reads a choice.
func askOperation(r *bufio.Reader, w io.Writer) (runner.Operation, error) {
	fmt.Fprintln(w, "Operations:")
	for i, op := range runner.Operations() {
		fmt.Fprintf(w, "  %d. %s\n", i+1, op.Label())
	}
	return parseChoice(readLine(r, w, "Choose: "))
}

// parseChoice accepts a menu number or an operation name.
func parseChoice(s string) (runner.Operation, error) {
	if n, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
		ops := runner.Operations()
		if n < 1 || n > len(ops) {
			return 0, fmt.Errorf("%w: menu item %d", runner.ErrUnknownOperation, n)
		}
		return ops[n-1], nil
	}
	return runner.ParseOperation(s)
}

func maskKey(k string) string {
	k = strings.TrimSpace(k)
	if len(k) <= 8 {
		return "***"
	}
	return k[:4] + "…" + k[len(k)-4:]
}

// waitEnter keeps a double-clicked console open until the operator reads it.
func waitEnter(r *bufio.Reader, w io.Writer) {
	fmt.Fprint(w, "Press Enter to close...")
	_, _ = r.ReadString('\n')
}
