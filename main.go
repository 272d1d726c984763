package main

import "github.com/ethanolivertroy/riskflow/cmd"

func main() {
	cmd.Execute()
}
