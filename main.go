package mediavault

import (
	"os"
	"os/signal"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"mediavault/internal/api"
	"mediavault/internal/assets"
	"mediavault/internal/config"
	"mediavault/internal/database"
	"mediavault/internal/files"
	"mediavault/internal/http"
	"mediavault/internal/media"
	"mediavault/internal/queue"
	"mediavault/internal/stream"
	"mediavault/internal/upload"
)

var Service *Main

func init() {
	Service = &Main{
		ServerConfig: &config.Server{},
		MediaConfig:  &config.Media{},
	}
}

type Main struct {
	ServerConfig *config.Server
	MediaConfig  *config.Media

	logger     zerolog.Logger
	apiManager *api.ApiManagerCtx
	transcoder *queue.Queue
	server     *http.HttpManagerCtx
}

func (main *Main) Preflight() {
	main.logger = log.With().Str("service", "main").Logger()
}

func (main *Main) Start() {
	db, err := database.Open(main.MediaConfig.DatabasePath)
	if err != nil {
		main.logger.Panic().Err(err).Msg("unable to open database")
	}

	store := files.NewStore(db)
	resolver := files.NewResolver(main.MediaConfig.StorageRoot)

	prober := media.NewProber(main.MediaConfig.FFprobeBinary, media.NewCommandRunner())
	encoder := media.NewEncoder(main.MediaConfig.FFmpegBinary)

	cache := assets.NewCache(
		assets.NewDiskStorage(main.MediaConfig.StorageRoot),
		encoder,
		assets.Config{AudioVariants: main.MediaConfig.AudioVariants},
	)

	main.transcoder = queue.New(
		queue.NewJobStore(db),
		store,
		resolver,
		queue.NewFFmpegEncoder(encoder),
		queue.Config{
			HLSDir:        main.MediaConfig.HLSDir,
			EncodeTimeout: main.MediaConfig.EncodeTimeout,
		},
	)

	streams := stream.New(
		stream.Config{
			HLSDir:   main.MediaConfig.HLSDir,
			BasePath: "/api/stream",
		},
		store,
		resolver,
		prober,
		encoder,
		main.transcoder,
	)

	enricher := upload.NewMediaEnricher(store, resolver, prober, encoder, cache)
	assembler := upload.NewAssembler(store, resolver, enricher, main.MediaConfig.UploadDir)

	main.apiManager = api.New(store, resolver, assembler, cache, main.transcoder, streams)

	main.server = http.New(main.ServerConfig)
	main.server.Mount(main.apiManager.Mount)

	if main.ServerConfig.PProf {
		main.server.WithDebugPProf("/debug/pprof")
	}

	main.server.Start()
}

func (main *Main) Shutdown() {
	if err := main.server.Shutdown(); err != nil {
		main.logger.Err(err).Msg("server shutdown with an error")
	} else {
		main.logger.Debug().Msg("server shutdown")
	}
}

func (main *Main) ServeCommand(cmd *cobra.Command, args []string) {
	main.logger.Info().Msg("starting main server")
	main.Start()
	main.logger.Info().Msg("main ready")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt)
	sig := <-quit

	main.logger.Warn().Msgf("received %s, attempting graceful shutdown", sig)
	main.Shutdown()
	main.logger.Info().Msg("shutdown complete")
}
