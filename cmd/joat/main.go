// Command joat routes each query to the local model best suited to its task.
package main

import "github.com/flynn-ai/joat/internal/cli"

func main() {
	cli.Execute()
}
