package main

import "github.com/zapvendas/zapvendas/cmd"

func main() {
	cmd.Execute()
}
