package main

import "github.com/nextlevelbuilder/larkbridge/cmd"

func main() {
	cmd.Execute()
}
