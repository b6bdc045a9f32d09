package main

import (
	"github.com/lowtemp/permafrost/cmd"

	_ "github.com/lowtemp/permafrost/cmd/pack"

	_ "github.com/lowtemp/permafrost/cmd/detect"
	_ "github.com/lowtemp/permafrost/cmd/inspect"
)

func main() { cmd.Main() }
