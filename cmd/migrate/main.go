// migrate applies the embedded session store schema to DATABASE_URL.
//
//	go run ./cmd/migrate -command up|down|version
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/IFs1991/seikotsuin-no-saas-sub003/internal/config"
	"github.com/IFs1991/seikotsuin-no-saas-sub003/internal/db/migrate"
)

func main() {
	command := flag.String("command", migrate.Up, "up, down, or version")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}

	st, err := migrate.Run(cfg.DatabaseURL, *command)
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		fmt.Fprintln(os.Stderr, "migrate:", err)
		os.Exit(1)
	}
	fmt.Println(st)
}
