package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"notathome.app/internal/migrate"
)

func main() {
	log.SetFlags(0)
	dsn := flag.String("dsn", os.Getenv("NAH_PG_DSN"), "PostgreSQL DSN")
	flag.Parse()

	if *dsn == "" {
		log.Fatal("missing DSN: provide via -dsn or NAH_PG_DSN")
	}
	if len(flag.Args()) == 0 {
		log.Fatal("usage: migrate [up|down|version]")
	}

	var err error
	switch flag.Arg(0) {
	case "up":
		err = migrate.Up(*dsn)
	case "down":
		err = migrate.Down(*dsn)
	case "version":
		var (
			v     uint
			dirty bool
		)
		v, dirty, err = migrate.Version(*dsn)
		if err == nil {
			fmt.Printf("version=%d dirty=%v\n", v, dirty)
		}
	default:
		log.Fatalf("unknown command %q", flag.Arg(0))
	}
	if err != nil {
		log.Fatalf("migrate %s: %v", flag.Arg(0), err)
	}
}
