package main

import "github.com/will-rowe/lintrack/cmd"

func main() {
	cmd.Execute()
}
