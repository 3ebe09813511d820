package main

import (
	"flag"
	"log"

	"github.com/danmuck/grebe/internal/config"
)

const defaultPath = "cmd/grebe-random/config.toml"

func main() {
	output := flag.String("output", defaultPath, "output path for config template")
	validate := flag.Bool("validate", false, "validate an existing config file")
	input := flag.String("input", defaultPath, "config path for validation")
	force := flag.Bool("force", false, "overwrite existing config file")
	flag.Parse()

	if *validate {
		cfg, err := config.LoadClientConfig(*input)
		if err != nil {
			log.Fatal(err)
		}
		log.Printf("Validated client config at %s (arbiter %s, game %s)", *input, cfg.Address(), cfg.Game)
		return
	}

	if err := config.WriteTemplate(*output, *force); err != nil {
		log.Fatal(err)
	}
	log.Printf("Wrote client config template to %s", *output)
}
