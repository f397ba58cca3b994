package main

import (
	"github.com/lamassu-labs/sentinel/internal/cli"
)

func main() {
	cli.Execute()
}
