package main

import "github.com/pfrederiksen/ace-monitor/internal/cli"

func main() {
	cli.Execute()
}
