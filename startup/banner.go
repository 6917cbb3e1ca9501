package startup

import (
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

const (
	reset  = "\033[0m"
	bold   = "\033[1m"
	dim    = "\033[2m"
	cyan   = "\033[36m"
	green  = "\033[32m"
	yellow = "\033[33m"
	white  = "\033[37m"

	indent = "    "
)

type BannerOptions struct {
	Version  string
	LocalURL string
	// Assistant is the assistant endpoint, or empty when the mock is used.
	Assistant string
	Workspace string // Empty if none is selected
	DevMode   bool
}

type printer struct {
	w      io.Writer
	colors bool
}

// colorsEnabled reports whether w is a terminal and NO_COLOR is unset.
func colorsEnabled(w io.Writer) bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

func (p printer) color(code, text string) string {
	if !p.colors {
		return text
	}
	return code + text + reset
}

// PrintBanner writes the startup banner to stdout.
func PrintBanner(opts BannerOptions) {
	WriteBanner(os.Stdout, opts)
}

func WriteBanner(w io.Writer, opts BannerOptions) {
	p := printer{w: w, colors: colorsEnabled(w)}

	fmt.Fprintln(w)

	logo := p.color(cyan, "◆") + "  " + p.color(bold+white, "C H A T P A N E L")
	fmt.Fprintf(w, "%s%s%s%s\n", indent, logo, strings.Repeat(" ", 26), p.color(dim, opts.Version))
	fmt.Fprintln(w)

	fmt.Fprintf(w, "%s%s      %s\n", indent, p.color(dim, "▸ Local"), p.color(green, opts.LocalURL))

	assistant := opts.Assistant
	if assistant == "" {
		assistant = p.color(yellow, "mock (local replies)")
	} else {
		assistant = p.color(green, assistant)
	}
	fmt.Fprintf(w, "%s%s  %s\n", indent, p.color(dim, "▸ Assistant"), assistant)

	workspace := opts.Workspace
	if workspace == "" {
		workspace = p.color(dim, "none")
	}
	fmt.Fprintf(w, "%s%s  %s\n", indent, p.color(dim, "▸ Workspace"), workspace)

	if opts.DevMode {
		fmt.Fprintf(w, "%s%s\n", indent, p.color(yellow, "dev mode"))
	}

	fmt.Fprintln(w)
}

// PrintFooter prints the footer with shutdown instructions.
func PrintFooter() {
	p := printer{w: os.Stdout, colors: colorsEnabled(os.Stdout)}
	fmt.Fprintf(p.w, "%s%s\n", indent, p.color(dim, "Press Ctrl+C to stop"))
	fmt.Fprintln(p.w)
}
