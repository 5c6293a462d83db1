package main

import "github.com/DethRaid/SanityEngine/cmd"

func main() {
	cmd.Execute()
}
