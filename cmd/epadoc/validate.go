package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/gofhir/epadoc"
	"github.com/gofhir/epadoc/engine"
	"github.com/gofhir/epadoc/internal/config"
	"github.com/gofhir/epadoc/pkg/logger"
	"github.com/gofhir/epadoc/worker"
)

// fileResult is the JSON output for one input.
type fileResult struct {
	Resource string           `json:"resource"`
	Valid    bool             `json:"valid"`
	Errors   int              `json:"errors"`
	Warnings int              `json:"warnings"`
	Info     int              `json:"info"`
	Messages []epadoc.Message `json:"messages,omitempty"`
	Duration string           `json:"duration"`
}

type input struct {
	name string
	data []byte
	err  error
}

func validateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate [flags] file...",
		Short: "Validate documents; '-' reads stdin, patterns are expanded",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runValidate,
	}
	f := cmd.Flags()
	f.Bool("json", false, "print results as JSON")
	f.Int("workers", 0, "parallel validations (default from WORKERS)")
	f.Bool("strict", false, "report unknown profiles and extensible binding misses")
	f.Bool("no-terminology", false, "disable terminology checks")
	f.String("package-file", "", "load the profile package from a .tgz file")
	f.Bool("offline", false, "skip the profile package")
	f.BoolP("verbose", "v", false, "log engine startup")
	return cmd
}

func runValidate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	f := cmd.Flags()
	envFile, _ := f.GetString("env-file")
	asJSON, _ := f.GetBool("json")
	workers, _ := f.GetInt("workers")
	strict, _ := f.GetBool("strict")
	noTerminology, _ := f.GetBool("no-terminology")
	packageFile, _ := f.GetString("package-file")
	offline, _ := f.GetBool("offline")
	verbose, _ := f.GetBool("verbose")

	cfg, err := config.Load(envFile)
	if err != nil {
		return err
	}

	l := logger.New(cmd.ErrOrStderr(), zerolog.WarnLevel, true)
	if verbose {
		l = cfg.Logger()
	}

	opts := cfg.EngineOptions(l)
	if workers > 0 {
		opts = append(opts, epadoc.WithWorkerCount(workers))
	}
	if strict {
		opts = append(opts, epadoc.StrictOptions()...)
	}
	if noTerminology {
		opts = append(opts, epadoc.WithTerminology(false))
	}
	if packageFile != "" {
		opts = append(opts, epadoc.WithPackageFile(packageFile))
	}
	if offline {
		opts = append(opts, epadoc.OfflineOptions()...)
	}

	eng, err := engine.New(ctx, opts...)
	if err != nil {
		return err
	}

	inputs := readInputs(cmd.InOrStdin(), args)
	results := validateAll(ctx, eng, eng.Options().WorkerCount, inputs)

	out := cmd.OutOrStdout()
	valid := true
	for _, r := range results {
		valid = valid && r.Valid
	}
	if asJSON {
		data, err := json.MarshalIndent(results, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(out, string(data))
	} else {
		for _, r := range results {
			printText(out, r)
		}
	}

	if !valid {
		return errInvalid
	}
	return nil
}

// readInputs expands args into named inputs. Unreadable inputs keep their
// error.
func readInputs(stdin io.Reader, args []string) []input {
	var inputs []input
	for _, arg := range args {
		if arg == "-" {
			data, err := io.ReadAll(stdin)
			inputs = append(inputs, input{name: "stdin", data: data, err: err})
			continue
		}
		matches, err := filepath.Glob(arg)
		if err != nil {
			inputs = append(inputs, input{name: arg, err: err})
			continue
		}
		if len(matches) == 0 {
			inputs = append(inputs, input{name: arg, err: fmt.Errorf("no files match pattern: %s", arg)})
			continue
		}
		for _, m := range matches {
			data, err := os.ReadFile(m)
			inputs = append(inputs, input{name: m, data: data, err: err})
		}
	}
	return inputs
}

// validateAll validates the readable inputs on a worker pool and returns
// one result per input, in input order. Inputs still pending when ctx is
// done get an error result.
func validateAll(ctx context.Context, v worker.Validator, workers int, inputs []input) []fileResult {
	results := make([]fileResult, len(inputs))

	var jobs []worker.Job
	for i, in := range inputs {
		if in.err != nil {
			results[i] = toResult(in.name, epadoc.ErrorResponse("Failed to read file: "+in.err.Error()), 0)
			continue
		}
		jobs = append(jobs, worker.Job{ID: strconv.Itoa(i), Data: in.data})
	}
	if len(jobs) == 0 {
		return results
	}

	pool := worker.NewPool(ctx, v, workers)
	defer pool.Close()

	go func() {
		for _, job := range jobs {
			if !pool.Submit(job) {
				return
			}
		}
	}()

	received := make(map[int]bool, len(jobs))
collect:
	for len(received) < len(jobs) {
		select {
		case jr := <-pool.Results():
			i, _ := strconv.Atoi(jr.ID)
			resp := jr.Response
			if jr.Err != nil {
				resp = epadoc.ErrorResponse("Validation error: " + jr.Err.Error())
			}
			results[i] = toResult(inputs[i].name, resp, jr.Duration)
			received[i] = true
		case <-ctx.Done():
			break collect
		}
	}

	for _, job := range jobs {
		i, _ := strconv.Atoi(job.ID)
		if !received[i] {
			results[i] = toResult(inputs[i].name, epadoc.ErrorResponse("Validation error: "+ctx.Err().Error()), 0)
		}
	}
	return results
}

func toResult(name string, resp *epadoc.Response, d time.Duration) fileResult {
	return fileResult{
		Resource: name,
		Valid:    resp.Valid(),
		Errors:   resp.ErrorCount(),
		Warnings: resp.WarningCount(),
		Info:     resp.InformationCount(),
		Messages: resp.Messages(),
		Duration: d.Round(time.Microsecond).String(),
	}
}

func printText(w io.Writer, r fileResult) {
	status := "VALID"
	if !r.Valid {
		status = "INVALID"
	}

	fmt.Fprintf(w, "== %s ==\n", r.Resource)
	fmt.Fprintf(w, "Status: %s\n", status)
	fmt.Fprintf(w, "Errors: %d, Warnings: %d, Info: %d\n", r.Errors, r.Warnings, r.Info)
	fmt.Fprintf(w, "Duration: %s\n", r.Duration)

	if len(r.Messages) > 0 {
		fmt.Fprintln(w, "\nMessages:")
		for _, m := range r.Messages {
			fmt.Fprintf(w, "  %s\n", m)
		}
	}
	fmt.Fprintln(w)
}
