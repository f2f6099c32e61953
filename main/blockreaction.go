package main

import (
	"github.com/danielNg25/block-reaction/cmd/blockreaction"
)

func main() {
	blockreaction.Execute()
}
