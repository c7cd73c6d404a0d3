package main

import "github.com/oshokin/opus-provision/cmd/opus-provision/cmd"

func main() {
	cmd.Execute()
}
