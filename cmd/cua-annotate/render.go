package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/HaozheZhao/cua-annotation-tool/internal/annotations"
)

type statusKind int

const (
	statusInfo statusKind = iota
	statusOK
	statusWarn
	statusError
)

const (
	ansiReset  = "\x1b[0m"
	ansiRed    = "\x1b[31m"
	ansiGreen  = "\x1b[32m"
	ansiYellow = "\x1b[33m"
	ansiBlue   = "\x1b[34m"

	statusLabelWidth = 20
	statusIndent     = "  "
)

var statusStyles = [...]struct{ tag, color string }{
	statusInfo:  {"INFO", ansiBlue},
	statusOK:    {"OK", ansiGreen},
	statusWarn:  {"WARN", ansiYellow},
	statusError: {"ERROR", ansiRed},
}

var titleCaser = cases.Title(language.Und)

// renderStatusLine prints "  Label:   [TAG] message" with the label padded
// so tags line up across a block.
func renderStatusLine(label string, kind statusKind, message string, colorize bool) string {
	style := statusStyles[kind]
	status := "[" + style.tag + "]"
	if message != "" {
		status += " " + message
	}
	line := fmt.Sprintf("%s%-*s %s", statusIndent, statusLabelWidth, label+":", status)
	return paint(line, style.color, colorize)
}

func renderSectionHeader(title string, colorize bool) []string {
	heading := "== " + strings.TrimSpace(title) + " =="
	return []string{
		paint(heading, ansiBlue, colorize),
		paint(strings.Repeat("-", len(heading)), ansiBlue, colorize),
	}
}

func paint(s, color string, colorize bool) string {
	if !colorize || color == "" {
		return s
	}
	return color + s + ansiReset
}

func shouldColorize(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && (isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd()))
}

// verdictLabel renders a verdict for tables, coloured when colorize is set.
func verdictLabel(v annotations.Verdict, colorize bool) string {
	label := titleCaser.String(v.String())
	switch v {
	case annotations.VerdictPass:
		return paint(label, ansiGreen, colorize)
	case annotations.VerdictFail:
		return paint(label, ansiRed, colorize)
	case annotations.VerdictUnclear:
		return paint(label, ansiYellow, colorize)
	}
	return label
}

// scoreSummary renders set scores as "C4 D2 K- V5".
func scoreSummary(s annotations.Scores) string {
	if s.Empty() {
		return "-"
	}
	parts := []struct {
		prefix string
		value  *int
	}{
		{"C", s.Correctness},
		{"D", s.Difficulty},
		{"K", s.KnowledgeRichness},
		{"V", s.TaskValue},
	}
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p.value == nil {
			out = append(out, p.prefix+"-")
			continue
		}
		out = append(out, fmt.Sprintf("%s%d", p.prefix, *p.value))
	}
	return strings.Join(out, " ")
}

func truncate(value string, limit int) string {
	runes := []rune(strings.TrimSpace(value))
	if len(runes) <= limit {
		return string(runes)
	}
	return string(runes[:limit-1]) + "…"
}
