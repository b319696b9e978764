package main

import "timekeep/cmd"

func main() {
	cmd.Execute()
}
