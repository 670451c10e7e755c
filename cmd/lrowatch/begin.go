package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/zgpcy/azure-lro-poller/internal/azure"
	"github.com/zgpcy/azure-lro-poller/internal/checkpoint"
	"github.com/zgpcy/azure-lro-poller/internal/config"
	"github.com/zgpcy/azure-lro-poller/internal/logger"
	"github.com/zgpcy/azure-lro-poller/internal/lro"
	"github.com/zgpcy/azure-lro-poller/internal/transport"
)

// checkpointed is printed when an operation is handed to the watcher
type checkpointed struct {
	ID       string `json:"id"`
	Strategy string `json:"strategy"`
	Status   string `json:"status"`
}

func beginCmd(opts *rootOptions) *cobra.Command {
	var (
		method     string
		url        string
		bodyFile   string
		resultType string
		id         string
		wait       bool
	)

	cmd := &cobra.Command{
		Use:   "begin",
		Short: "Start a long-running operation",
		Long: `Send the initial request of a long-running operation. With --wait the
operation is polled to completion and its final result printed as JSON;
otherwise its resume token is checkpointed for "lrowatch run".`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig(cmd)
			if err != nil {
				return err
			}
			rt, err := azure.LookupResultType(resultType)
			if err != nil {
				return err
			}
			if id != "" {
				if err := checkpoint.ValidateID(id); err != nil {
					return err
				}
			}

			req := transport.NewRequest(method, url)
			if bodyFile != "" {
				if req.Body, err = readBody(cmd.InOrStdin(), bodyFile); err != nil {
					return err
				}
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			log := newLogger(cfg, cmd.ErrOrStderr())

			d, err := newCLIDispatcher(cfg, log)
			if err != nil {
				return err
			}
			p, err := rt.Begin(ctx, d, req)
			if err != nil {
				return fmt.Errorf("begin %s %s: %w", req.Method, req.URL, err)
			}

			if wait || p.Done() {
				return waitAndPrint(ctx, cmd.OutOrStdout(), p)
			}
			return handOff(ctx, cmd.OutOrStdout(), cfg, log, p, id)
		},
	}

	cmd.Flags().StringVarP(&method, "method", "X", http.MethodPut, "HTTP method of the initial request")
	cmd.Flags().StringVar(&url, "url", "", "Request URL, absolute or relative to the configured endpoint")
	cmd.Flags().StringVar(&bodyFile, "body", "", "File with the JSON request body, - for stdin")
	cmd.Flags().StringVar(&resultType, "result-type", azure.ResultRaw,
		"Final result type: "+strings.Join(azure.ResultTypeNames(), ", "))
	cmd.Flags().StringVar(&id, "id", "", "Checkpoint id (a new UUID when empty)")
	cmd.Flags().BoolVar(&wait, "wait", false, "Poll until the operation finishes and print the result")
	_ = cmd.MarkFlagRequired("url")

	return cmd
}

func resumeCmd(opts *rootOptions) *cobra.Command {
	var (
		id         string
		token      string
		resultType string
	)

	cmd := &cobra.Command{
		Use:   "resume",
		Short: "Poll a checkpointed operation to completion",
		Long: `Resume an operation from its checkpoint id or a raw resume token, poll it
to a terminal status and print the final result. A checkpoint resumed by id
is deleted once the operation finishes.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if (id == "") == (token == "") {
				return errors.New("exactly one of --id or --token is required")
			}
			cfg, err := opts.loadConfig(cmd)
			if err != nil {
				return err
			}
			rt, err := azure.LookupResultType(resultType)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			log := newLogger(cfg, cmd.ErrOrStderr())

			var store checkpoint.Store
			if id != "" {
				if store, err = checkpoint.Open(ctx, cfg.Checkpoint, log); err != nil {
					return err
				}
				defer store.Close()
				if token, err = store.Load(ctx, id); err != nil {
					return fmt.Errorf("loading checkpoint %s: %w", id, err)
				}
			}

			d, err := newCLIDispatcher(cfg, log)
			if err != nil {
				return err
			}
			p, err := rt.Resume(d, token)
			if err != nil {
				return err
			}
			err = waitAndPrint(ctx, cmd.OutOrStdout(), p)
			finished := err == nil || errors.Is(err, errNotSucceeded)
			if store != nil && finished {
				if delErr := store.Delete(ctx, id); delErr != nil {
					log.Warn("Failed to delete checkpoint", "checkpoint_id", id, "error", delErr)
				}
			}
			return err
		},
	}

	cmd.Flags().StringVar(&id, "id", "", "Checkpoint id to resume")
	cmd.Flags().StringVar(&token, "token", "", "Resume token to resume")
	cmd.Flags().StringVar(&resultType, "result-type", azure.ResultRaw,
		"Final result type: "+strings.Join(azure.ResultTypeNames(), ", "))

	return cmd
}

var errNotSucceeded = errors.New("operation did not succeed")

func newCLIDispatcher(cfg *config.Config, log *logger.Logger) (*lro.Dispatcher, error) {
	sender, err := newSender(cfg, log)
	if err != nil {
		return nil, err
	}
	return lro.NewDispatcher(sender, lro.Options{
		DefaultDelay: cfg.DefaultPollDelay(),
		Logger:       log,
	}), nil
}

// waitAndPrint polls p to completion and prints the result. Failed and
// Canceled results are printed too, then reported as errNotSucceeded.
func waitAndPrint(ctx context.Context, w io.Writer, p azure.Poller) error {
	res, err := p.Wait(ctx)
	if err != nil {
		return err
	}
	if err := azure.WriteResult(w, res); err != nil {
		return err
	}
	if res.Status != lro.StatusSucceeded {
		return fmt.Errorf("%w: %s", errNotSucceeded, res.Status)
	}
	return nil
}

// handOff checkpoints the resume token for the watcher
func handOff(ctx context.Context, w io.Writer, cfg *config.Config, log *logger.Logger, p azure.Poller, id string) error {
	token, err := p.ResumeToken()
	if err != nil {
		return err
	}
	store, err := checkpoint.Open(ctx, cfg.Checkpoint, log)
	if err != nil {
		return err
	}
	defer store.Close()

	if id == "" {
		id = uuid.NewString()
	}
	if err := store.Save(ctx, id, token); err != nil {
		return fmt.Errorf("saving checkpoint %s: %w", id, err)
	}
	log.Info("Operation checkpointed", "checkpoint_id", id, "strategy", string(p.Kind()))

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(checkpointed{ID: id, Strategy: string(p.Kind()), Status: p.Status()})
}

// readBody reads the request body from path, or from stdin for "-"
func readBody(stdin io.Reader, path string) ([]byte, error) {
	if path == "-" {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return nil, fmt.Errorf("reading body from stdin: %w", err)
		}
		return data, nil
	}
	// #nosec G304 -- body file path is provided by the operator via CLI flag
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading body file: %w", err)
	}
	return data, nil
}
