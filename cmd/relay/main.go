package main

import "github.com/youmna-rabie/line-relay/internal/cli"

func main() {
	cli.Execute()
}
