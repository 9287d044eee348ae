package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"golang.org/x/term"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// printer writes label/value rows. On a terminal values are aligned and
// digit-grouped; otherwise rows are plain "key=value" lines for scripts.
type printer struct {
	pretty bool
	msg    *message.Printer
	tw     *tabwriter.Writer
}

func newPrinter() *printer {
	return &printer{
		pretty: term.IsTerminal(int(os.Stdout.Fd())),
		msg:    message.NewPrinter(language.English),
		tw:     tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', tabwriter.AlignRight),
	}
}

func (p *printer) row(label string, value any) {
	if quiet {
		return
	}
	if p.pretty {
		p.msg.Fprintf(p.tw, "%s:\t%v\t\n", label, value)
		return
	}
	fmt.Fprintf(os.Stdout, "%s=%v\n", key(label), value)
}

func (p *printer) flush() error {
	return p.tw.Flush()
}

// key turns a label into a snake_case key.
func key(label string) string {
	b := []byte(label)
	for i, c := range b {
		switch {
		case c == ' ' || c == '-':
			b[i] = '_'
		case c >= 'A' && c <= 'Z':
			b[i] = c + 'a' - 'A'
		}
	}
	return string(b)
}
