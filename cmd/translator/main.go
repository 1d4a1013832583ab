// cmd/translator/main.go
package main

import "translator-back/internal/client/cli"

func main() {
	cli.Execute()
}
