package main

import "github.com/AmosPulse/proof-stamp/cmd"

func main() {
	cmd.Execute()
}
