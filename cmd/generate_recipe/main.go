package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/yungbote/recipe-backend/internal/app"
)

func main() {
	var file string
	var timeout time.Duration
	flag.StringVar(&file, "file", "", "object path of the video inside the bucket")
	flag.DurationVar(&timeout, "timeout", 10*time.Minute, "overall deadline for the run")
	flag.Parse()

	if strings.TrimSpace(file) == "" {
		fmt.Fprintln(os.Stderr, "usage: generate_recipe -file <objectPath>")
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	application, err := app.New(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init app: %v\n", err)
		os.Exit(1)
	}

	draft, runErr := application.Services.Recipes.Generate(ctx, file)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	_ = application.Shutdown(shutdownCtx)

	if runErr != nil {
		fmt.Fprintf(os.Stderr, "generate recipe: %v\n", runErr)
		os.Exit(1)
	}
	out, err := json.MarshalIndent(draft, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "encode draft: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(string(out))
}
