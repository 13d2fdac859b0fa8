package main

import "github.com/waytrack/waytrack/cmd/waytrack/commands"

func main() {
	commands.Execute()
}
