package main

import (
	"os"

	rotaryclub "github.com/charlieh0tel/rotaryclub/src"
)

func main() {
	os.Exit(rotaryclub.Main(os.Args[1:]))
}
