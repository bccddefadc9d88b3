package commands

import (
	"os"
	"time"

	"spoccrawler/lib/chrono"

	"github.com/jedib0t/go-pretty/v6/table"
)

func newTable() table.Writer {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.SetOutputMirror(os.Stdout)
	return t
}

func formatMillis(ms int64) string {
	return time.UnixMilli(ms).In(chrono.Location()).Format("2006-01-02 15:04")
}
