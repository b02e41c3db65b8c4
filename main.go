package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"mazeplay/config"
	"mazeplay/maze"
	"mazeplay/server"
)

var (
	addr    string
	envFile string

	mazeSize int
	mazeSeed int64
)

var rootCmd = &cobra.Command{
	Use:   "mazeplay",
	Short: "Shared maze rooms over websockets",
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the room server",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(envFile)
		if err != nil {
			return err
		}
		if addr != "" {
			cfg.Addr = addr
		}
		return serve(cfg)
	},
}

var mazeCmd = &cobra.Command{
	Use:   "maze",
	Short: "Generate a maze and print it",
	RunE: func(cmd *cobra.Command, args []string) error {
		seed := mazeSeed
		if seed == 0 {
			seed = time.Now().UnixNano()
		}
		g, err := maze.Generate(mazeSize, rand.New(rand.NewSource(seed)))
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "size %d, seed %d\n%s", mazeSize, seed, g)
		return nil
	},
}

func init() {
	serveCmd.Flags().StringVar(&addr, "addr", "", "listen address, overrides MAZE_ADDR")
	serveCmd.Flags().StringVar(&envFile, "env-file", ".env", "optional dotenv file")
	mazeCmd.Flags().IntVar(&mazeSize, "size", 20, "cells per edge")
	mazeCmd.Flags().Int64Var(&mazeSeed, "seed", 0, "random seed, 0 picks one")

	rootCmd.AddCommand(serveCmd, mazeCmd)
}

func serve(cfg config.Config) error {
	if err := server.InitLogger(cfg.LogFile, cfg.LogLevel); err != nil {
		return err
	}
	defer server.SyncLogger()

	s := server.New(cfg)
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: cfg.ReadTimeout,
	}

	errc := make(chan error, 1)
	go func() {
		server.Log.Infof("mazeplay listening on %s, default room %q", cfg.Addr, cfg.DefaultRoom)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errc:
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	case <-quit:
	}

	server.Log.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		server.Log.Warnw("http shutdown", "err", err)
	}
	return s.Close(ctx)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
