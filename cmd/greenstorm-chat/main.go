package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"

	"greenstorm/internal/client"
)

func main() {
	server := flag.String("server", "http://localhost:8080", "chat server base URL")
	name := flag.String("name", "", "first name to log in with")
	flag.Parse()

	if *name == "" {
		fmt.Fprintln(os.Stderr, "usage: greenstorm-chat -name <first name> [-server <url>]")
		os.Exit(1)
	}

	api, err := client.New(*server)
	if err != nil {
		fmt.Fprintf(os.Stderr, "client setup failed: %v\n", err)
		os.Exit(1)
	}
	if err := api.Login(context.Background(), *name); err != nil {
		fmt.Fprintf(os.Stderr, "login failed: %v\n", err)
		os.Exit(1)
	}

	p := tea.NewProgram(client.NewModel(api, *name), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "ui error: %v\n", err)
		os.Exit(1)
	}
}
