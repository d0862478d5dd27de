package main

import "github.com/jsphweid/pianobot/cmd"

func main() {
	cmd.Execute()
}
