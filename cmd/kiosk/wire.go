package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"google.golang.org/api/option"

	"github.com/teslashibe/go-elevatr/internal/config"
	"github.com/teslashibe/go-elevatr/pkg/detection"
	"github.com/teslashibe/go-elevatr/pkg/directory"
	"github.com/teslashibe/go-elevatr/pkg/gallery"
	"github.com/teslashibe/go-elevatr/pkg/journal"
	"github.com/teslashibe/go-elevatr/pkg/matcher"
	"github.com/teslashibe/go-elevatr/pkg/pipeline"
	"github.com/teslashibe/go-elevatr/pkg/priority"
	"github.com/teslashibe/go-elevatr/pkg/speech"
)

// closers releases resources in reverse order of acquisition.
type closers []func() error

func (c *closers) add(f func() error) { *c = append(*c, f) }

func (c closers) close(logger *slog.Logger) {
	for i := len(c) - 1; i >= 0; i-- {
		if err := c[i](); err != nil {
			logger.Warn("close", "error", err)
		}
	}
}

func buildDirectory(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*directory.Client, error) {
	return directory.NewClient(ctx, directory.Config{
		BaseURL:         cfg.Directory.URL,
		CredentialsFile: cfg.Directory.CredentialsFile,
		Timeout:         cfg.Directory.Timeout(),
		Logger:          logger,
	})
}

func buildPredictor(cfg *config.Config) (priority.Predictor, error) {
	if cfg.Predictor.URL == "" {
		return priority.NewTablePredictor(cfg.Predictor.Scores, cfg.Predictor.Default), nil
	}
	return priority.NewHTTPPredictor(cfg.Predictor.URL, cfg.Predictor.Timeout())
}

func buildMatcher(cfg *config.Config, cl *closers, logger *slog.Logger) (*matcher.Index, error) {
	icfg := matcher.IndexConfig{
		Embedder:      matcher.NewEmbeddingClient(cfg.Matcher.EmbeddingURL, cfg.Matcher.Timeout()),
		MaxCandidates: cfg.Matcher.MaxCandidates,
		Logger:        logger,
	}
	if cfg.FaceGateEnabled() {
		det, err := detection.NewYuNet(cfg.Detection, logger)
		if err != nil {
			return nil, fmt.Errorf("face gate: %w", err)
		}
		cl.add(det.Close)
		icfg.Cropper = detection.NewCropper(det, cfg.Detection.Margin, cfg.Detection.Quality)
	}
	return matcher.NewIndex(icfg)
}

func buildSpeaker(cfg *config.Config, logger *slog.Logger) (speech.Speaker, error) {
	switch cfg.Speech.Engine {
	case "openai":
		return speech.NewOpenAI(
			speech.WithAPIKey(cfg.Speech.APIKey),
			speech.WithVoice(cfg.Speech.Voice),
			speech.WithModel(cfg.Speech.Model),
			speech.WithPlayer(cfg.Speech.Player...),
			speech.WithLogger(logger),
		)
	case "command":
		return speech.NewCommandSpeaker(logger, cfg.Speech.Command...), nil
	default:
		return speech.LogSpeaker{Logger: logger}, nil
	}
}

// buildRecorders returns the directory log first, then the local journal.
func buildRecorders(cfg *config.Config, dir *directory.Client, cl *closers) ([]pipeline.Recorder, error) {
	recorders := []pipeline.Recorder{dir}
	if cfg.Journal.Enabled {
		store, err := journal.Open(cfg.Paths.JournalPath)
		if err != nil {
			return nil, err
		}
		cl.add(store.Close)
		recorders = append(recorders, store)
	}
	return recorders, nil
}

var errNoBucket = errors.New("gallery.bucket (or GALLERY_BUCKET) is not set")

func buildGalleryStore(ctx context.Context, cfg *config.Config) (gallery.Store, error) {
	if cfg.Gallery.Bucket == "" {
		return nil, errNoBucket
	}
	if cfg.Gallery.Provider == "s3" {
		return gallery.NewS3Store(ctx, gallery.S3Config{
			Bucket:   cfg.Gallery.Bucket,
			Region:   cfg.Gallery.Region,
			Endpoint: cfg.Gallery.Endpoint,
		})
	}
	var opts []option.ClientOption
	if cfg.Gallery.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.Gallery.CredentialsFile))
	}
	return gallery.NewGCSStore(ctx, cfg.Gallery.Bucket, opts...)
}

func buildGalleryWorker(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*gallery.Worker, error) {
	store, err := buildGalleryStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return gallery.NewWorker(gallery.Config{
		Store:    store,
		Prefix:   cfg.Gallery.Prefix,
		Dir:      cfg.Paths.GalleryDir,
		Interval: cfg.Gallery.SyncInterval(),
		Logger:   logger,
	})
}
