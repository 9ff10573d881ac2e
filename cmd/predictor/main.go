// Command predictor manages the local prediction file.
//
//	predictor toggle -game 401 -winner home
//	predictor set -game 401 -winner away -home 17 -away 24
//	predictor get -game 401
//	predictor list
//	predictor remove -game 401
//	predictor clear
package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"cfbplayoff/ingestion/internal/config"
	"cfbplayoff/ingestion/internal/logging"
	"cfbplayoff/ingestion/internal/models"
	"cfbplayoff/ingestion/internal/predictions"

	"github.com/rs/zerolog/log"
)

var errUsage = errors.New("usage: predictor <toggle|set|get|list|remove|clear> [flags]")

func main() {
	cfg, err := config.LoadPredictor()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	logging.Setup(cfg.AppEnv, cfg.LogLevel)

	store, err := predictions.Open(cfg.PredictionsPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.PredictionsPath).Msg("Failed to open prediction store")
	}

	err = dispatch(store, os.Args[1:], os.Stdout)
	if cerr := store.Close(); cerr != nil {
		log.Error().Err(cerr).Msg("Failed to close prediction store")
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
}

// dispatch runs one subcommand and writes its result to out as JSON
func dispatch(store *predictions.Store, args []string, out io.Writer) error {
	if len(args) == 0 {
		return errUsage
	}

	fs := flag.NewFlagSet(args[0], flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	gameID := fs.Int("game", 0, "game id")
	winner := fs.String("winner", "", "home or away")
	homeScore := fs.Int("home", -1, "predicted home score")
	awayScore := fs.Int("away", -1, "predicted away score")
	if err := fs.Parse(args[1:]); err != nil {
		return err
	}

	needGame := func() error {
		if *gameID == 0 {
			return fmt.Errorf("%s: -game is required", args[0])
		}
		return nil
	}

	switch args[0] {
	case "toggle":
		if err := needGame(); err != nil {
			return err
		}
		side, err := models.ParseSide(*winner)
		if err != nil {
			return err
		}
		p, err := store.Toggle(*gameID, side)
		if err != nil {
			return err
		}
		return emit(out, p)

	case "set":
		if err := needGame(); err != nil {
			return err
		}
		side, err := models.ParseSide(*winner)
		if err != nil {
			return err
		}
		p, err := store.Set(*gameID, side, optional(fs, "home", *homeScore), optional(fs, "away", *awayScore))
		if err != nil {
			return err
		}
		return emit(out, p)

	case "get":
		if err := needGame(); err != nil {
			return err
		}
		p, err := store.Get(*gameID)
		if err != nil {
			return err
		}
		return emit(out, p)

	case "list":
		all, err := store.All()
		if err != nil {
			return err
		}
		return emit(out, all)

	case "remove":
		if err := needGame(); err != nil {
			return err
		}
		return store.Remove(*gameID)

	case "clear":
		return store.Clear()

	default:
		return errUsage
	}
}

// optional returns a pointer to v only when the flag was given
func optional(fs *flag.FlagSet, name string, v int) *int {
	set := false
	fs.Visit(func(f *flag.Flag) {
		if f.Name == name {
			set = true
		}
	})
	if !set {
		return nil
	}
	return &v
}

func emit(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
