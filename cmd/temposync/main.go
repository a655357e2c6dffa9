package main

import (
	"embed"
	"os"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/mattn/go-sqlite3"

	"github.com/insdata/temposync/internal/cli"
)

//go:embed resources/application.yaml
var embeddedConfig []byte

//go:embed all:resources/migrations
var migrationsFS embed.FS

func main() {
	if err := cli.Execute(embeddedConfig, migrationsFS, "resources/migrations"); err != nil {
		os.Exit(1)
	}
}
