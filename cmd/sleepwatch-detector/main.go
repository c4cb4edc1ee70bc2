package main

import "github.com/oshokin/sleepwatch/cmd/sleepwatch-detector/cmd"

func main() {
	cmd.Execute()
}
