package main

import "github.com/collegemedia/jobrunner/internal/cli"

func main() {
	cli.Execute()
}
