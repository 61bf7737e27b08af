package main

import "github.com/L-L777/classGrabber/cmd"

func main() {
	cmd.Execute()
}
