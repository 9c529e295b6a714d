// Package main is the entry point for the Bangladesh law question answering
// service.
package main

import (
	_ "go.uber.org/automaxprocs/maxprocs"

	"github.com/kart-io/bdlaw/cmd/bdlaw/app"
)

func main() {
	app.NewApp().Run()
}
