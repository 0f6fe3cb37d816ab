package main

import "github.com/dkeye/voicehub/cmd/voicehub/commands"

func main() {
	commands.Execute()
}
