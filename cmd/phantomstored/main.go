// Command phantomstored wires a Phantom State engine to a database file and
// logs its startup counts. It's a minimal entrypoint, not a server: fronting
// the engine with a tool-call or HTTP adapter is out of scope here (see the
// engine package's Kind doc comment), but this shows how
// a process would open and hold one.
package main

import (
	"flag"
	"os"

	"go.uber.org/zap"

	"github.com/barnstorm/phantomstate"
	"github.com/barnstorm/phantomstate/embedding"
)

func main() {
	path := flag.String("db", "phantomstate.db", "path to the SQLite database file")
	dims := flag.Int("dims", 384, "embedding vector width")
	remoteEndpoint := flag.String("remote-endpoint", "", "remote embedding API endpoint; empty uses the local backend")
	remoteModel := flag.String("remote-model", "", "remote embedding model name")
	flag.Parse()

	logger, err := zap.NewProduction()
	if err != nil {
		os.Exit(1)
	}
	defer logger.Sync()

	cfg := phantomstate.DefaultConfig()
	cfg.Path = *path
	cfg.VectorDimensions = *dims
	cfg.Logger = logger

	if *remoteEndpoint != "" {
		cfg.Embedding = embedding.Config{
			Kind:           embedding.Remote,
			Dimensions:     *dims,
			RemoteEndpoint: *remoteEndpoint,
			RemoteModel:    *remoteModel,
			RemoteAPIKey:   os.Getenv("PHANTOMSTATE_EMBEDDING_API_KEY"),
		}
	} else {
		cfg.Embedding = embedding.Config{
			Kind:               embedding.Local,
			Dimensions:         *dims,
			LocalModelPath:     os.Getenv("PHANTOMSTATE_ONNX_MODEL"),
			LocalTokenizerPath: os.Getenv("PHANTOMSTATE_ONNX_TOKENIZER"),
		}
	}

	engine, err := phantomstate.Open(cfg)
	if err != nil {
		logger.Fatal("failed to open engine", zap.Error(err))
	}
	defer engine.Close()

	moments, _ := engine.CountMoments()
	takes, _ := engine.CountTakes()
	characters, _ := engine.CountCharacters()
	logger.Info("engine ready",
		zap.String("path", *path),
		zap.Int("moments", moments),
		zap.Int("takes", takes),
		zap.Int("characters", characters),
	)
}
