// The main package for the scrapper executable.
package main

import (
	"github.com/bedatse/cf-web-scrapper-worker/cmd"
)

func main() {
	cmd.Execute()
}
