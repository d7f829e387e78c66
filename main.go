package main

import "igtracker/cmd"

func main() {
	cmd.Execute()
}
