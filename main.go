package main

import "github.com/agentic-research/taxa/cmd"

func main() {
	cmd.Execute()
}
