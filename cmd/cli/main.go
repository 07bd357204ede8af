package main

import "arkmanager/internal/cli/cmd"

func main() {
	cmd.Execute()
}
