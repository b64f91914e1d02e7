package main

import "github.com/worklogs/worklogs/cmd"

func main() {
	cmd.Execute()
}
