package main

import (
	"github.com/charmbracelet/lipgloss"
)

var (
	namespaceStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245"))

	typeNameStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("45")).
			Bold(true)

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("51"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196"))
)

// termStyler colors type names in default descriptions.
type termStyler struct{}

func newTermStyler() termStyler { return termStyler{} }

func (termStyler) Namespace(ns string) string { return namespaceStyle.Render(ns) }

func (termStyler) TypeName(name string) string { return typeNameStyle.Render(name) }
