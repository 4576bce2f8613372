package main

import "github.com/project-kessel/userclaims/internal/cli"

func main() {
	cli.Execute()
}
