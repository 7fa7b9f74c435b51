package main

import "github.com/audiolibrelab/speechcapture/cmd"

func main() {
	cmd.Execute()
}
