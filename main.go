package main

import (
	"os"

	"github.com/kairos-io/qcowmount/app"
)

var version = "v0.0.0-dev"

func main() {
	os.Exit(app.New(version).Run(os.Args))
}
