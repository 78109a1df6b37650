package main

import "trophy-manager/cmd"

func main() {
	cmd.Execute()
}
