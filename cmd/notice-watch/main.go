package main

import (
	// Embeds the tz database so Asia/Seoul resolves on minimal images.
	_ "time/tzdata"

	"github.com/pfrederiksen/notice-watch/internal/cli"
)

func main() {
	cli.Execute()
}
