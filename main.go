package main

import "github.com/akashpal/jobwright/cmd"

func main() {
	cmd.Execute()
}
