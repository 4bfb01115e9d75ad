// Command precoposto runs the daily fuel-price survey service: photo intake
// with same-day validation, two-tier local persistence and twice-daily
// webhook submission.
package main

import (
	"context"
	"database/sql"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/rs/zerolog"
	kongdotenv "github.com/titusjaka/kong-dotenv-go"
	_ "modernc.org/sqlite"

	"github.com/precoposto/precoposto/internal/api"
	"github.com/precoposto/precoposto/internal/blobstore"
	"github.com/precoposto/precoposto/internal/capture"
	"github.com/precoposto/precoposto/internal/exif"
	"github.com/precoposto/precoposto/internal/models"
	"github.com/precoposto/precoposto/internal/state"
	"github.com/precoposto/precoposto/internal/submit"
)

var cli struct {
	DB          string `help:"Path to the SQLite database." default:"data/precoposto.db" env:"PRECOPOSTO_DB"`
	Addr        string `help:"HTTP listen address." default:":8080" env:"PRECOPOSTO_ADDR"`
	WebhookURL  string `help:"Webhook URL override." env:"PRECOPOSTO_WEBHOOK_URL"`
	Timezone    string `help:"Timezone for capture-date validation." default:"America/Sao_Paulo" env:"PRECOPOSTO_TZ"`
	MaxPhotoDim int    `help:"Longest photo dimension after compression." default:"600" env:"PRECOPOSTO_MAX_PHOTO_DIM"`
	Submit      string `help:"Submit the given period (morning|afternoon) headlessly and exit."`
	Debug       bool   `help:"Enable debug logging."`
}

func main() {
	kong.Parse(&cli,
		kong.Name("precoposto"),
		kong.Description("Daily fuel-price survey service."),
		kong.Configuration(kongdotenv.ENVFileReader, ".env"),
	)

	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if cli.Debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
	log := zerolog.New(os.Stdout).With().Timestamp().Str("service", "precoposto").Logger()

	db, err := sql.Open("sqlite", cli.DB)
	if err != nil {
		log.Fatal().Err(err).Msg("open database")
	}
	defer db.Close()

	db.Exec("PRAGMA journal_mode=WAL")
	db.Exec("PRAGMA busy_timeout=5000")

	loc, err := time.LoadLocation(cli.Timezone)
	if err != nil {
		log.Warn().Err(err).Str("tz", cli.Timezone).Msg("could not load timezone, using UTC")
		loc = time.UTC
	}

	stateSvc, err := state.NewService(db, cli.WebhookURL, log)
	if err != nil {
		log.Fatal().Err(err).Msg("init state store")
	}

	durable, err := blobstore.NewSQLiteBackend(db)
	if err != nil {
		log.Fatal().Err(err).Msg("init blob store")
	}
	blobs := blobstore.New(log, durable, blobstore.NewMemoryBackend())

	extractor := exif.NewExtractor(loc, log)
	validator := capture.NewValidator(extractor, loc, nil)
	orch := capture.New(extractor, validator, blobs, stateSvc, cli.MaxPhotoDim, log)
	submitter := submit.NewSubmitter(stateSvc, submit.NewClient(log), orch, nil, log)

	if cli.Submit != "" {
		period := models.Period(cli.Submit)
		if !period.Valid() {
			log.Fatal().Str("period", cli.Submit).Msg("period must be morning or afternoon")
		}
		if err := submitter.Submit(period); err != nil {
			log.Fatal().Err(err).Msg("submission failed")
		}
		log.Info().Str("period", cli.Submit).Msg("submitted")
		return
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	server := api.NewServer(stateSvc, blobs, orch, submitter, cli.Addr, log)
	if err := server.Run(ctx); err != nil {
		log.Fatal().Err(err).Msg("server")
	}
}
