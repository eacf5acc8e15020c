package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"printproof/internal/infra"
	"printproof/pkg/observer"
)

func main() {
	var (
		jobFlag  string
		urlFlag  string
		pollFlag time.Duration
	)
	flag.StringVar(&jobFlag, "job", "", "Job ID to follow (required)")
	flag.StringVar(&urlFlag, "url", "", "API base URL (fallbacks to PRINTPROOF_URL)")
	flag.DurationVar(&pollFlag, "poll", 3*time.Second, "Poll interval once the stream is considered down")
	flag.Parse()

	jobID := strings.TrimSpace(jobFlag)
	if jobID == "" {
		fmt.Fprintln(os.Stderr, "-job is required")
		os.Exit(2)
	}

	baseURL := strings.TrimSpace(urlFlag)
	if baseURL == "" {
		baseURL = strings.TrimSpace(os.Getenv("PRINTPROOF_URL"))
	}
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}

	logger := infra.NewLogger("development").With().Str("cmd", "watch").Str("job_id", jobID).Logger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := observer.New(baseURL)
	res, err := client.Follow(ctx, jobID, observer.FollowOptions{
		PollInterval: pollFlag,
		OnEvent: func(ev observer.Event) {
			switch ev.Kind {
			case observer.EventProgress:
				logger.Info().Int("stage", ev.Stage).Int("percent", ev.Percent).Msg(ev.Message)
			case observer.EventDone:
				logger.Info().Int("percent", ev.Percent).Msg("inspection finished")
			case observer.EventError:
				logger.Error().Str("reason", ev.Message).Msg("inspection failed")
			}
		},
		OnState: func(s observer.State, failures int) {
			switch s {
			case observer.StateReconnecting:
				logger.Warn().Int("failures", failures).Msg("stream dropped, reconnecting")
			case observer.StatePolling:
				logger.Warn().Msg("stream unavailable, polling job record")
			}
		},
	})
	if err != nil {
		if errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, "interrupted")
			os.Exit(1)
		}
		logger.Error().Err(err).Msg("follow failed")
		os.Exit(1)
	}

	if res.Status == observer.StatusError {
		logger.Error().Str("reason", res.ErrorMessage).Msg("job ended in error")
		os.Exit(1)
	}

	// Terminal outcome is already known; the verdict fetch is informational
	// and must not change the exit code.
	fetchCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if job, err := client.Job(fetchCtx, jobID); err == nil && job.Analysis != nil {
		logger.Info().
			Str("verdict", job.Analysis.Verdict).
			Float64("overall_ssim", job.Analysis.OverallSSIM).
			Int("findings", job.Analysis.TotalFindings).
			Msg(job.Analysis.Summary)
	}
}
