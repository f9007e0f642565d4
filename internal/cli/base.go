package cli

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/azybler/transit_router/pkg/config"
	"github.com/azybler/transit_router/pkg/render"
	"github.com/azybler/transit_router/pkg/request"
	"github.com/azybler/transit_router/pkg/store"
)

type makeBaseOpts struct {
	input  string
	output string
	config string
}

func newMakeBaseCmd() *cobra.Command {
	opts := makeBaseOpts{}

	cmd := &cobra.Command{
		Use:   "make-base",
		Short: "Build a catalog from base requests and save a snapshot",
		Long: `Build a catalog from the base_requests of a JSON document and save it as a binary snapshot.

Routing and render settings come from the document. Routing fields the
document leaves out fall back to the config file, one field at a time. A
document without render_settings uses the built-in render defaults.`,
		Example: `  transit make-base -i base.json -o catalog.bin
  transit make-base -i base.json -o catalog.bin --config config.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMakeBase(cmd, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.input, "input", "i", "-", "base document (- for stdin)")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "snapshot path (defaults to the config snapshot path)")
	cmd.Flags().StringVar(&opts.config, "config", "", "config file (.yaml, .yml or .toml)")

	return cmd
}

func runMakeBase(cmd *cobra.Command, opts makeBaseOpts) error {
	logger := loggerFromContext(cmd.Context())

	cfg, err := loadConfig(opts.config)
	if err != nil {
		return err
	}
	output := opts.output
	if output == "" {
		output = cfg.Snapshot.Path
	}

	in, closeIn, err := openInput(cmd, opts.input)
	if err != nil {
		return err
	}
	defer closeIn()

	prog := newProgress(logger)
	doc, err := request.Decode(in)
	if err != nil {
		return fmt.Errorf("decode %s: %w", opts.input, err)
	}
	c, err := request.BuildCatalog(doc, defaultsFor(cfg))
	if err != nil {
		return err
	}
	st := c.Stats()
	logger.Debug("Catalog built", "stops", st.Stops, "buses", st.Buses, "vertices", st.Vertices, "edges", st.Edges)

	if err := store.Save(output, c); err != nil {
		return err
	}
	prog.done(fmt.Sprintf("Snapshot written to %s", output))
	return nil
}

type processOpts struct {
	snapshot string
	input    string
	output   string
}

func newProcessRequestsCmd() *cobra.Command {
	opts := processOpts{}

	cmd := &cobra.Command{
		Use:   "process-requests",
		Short: "Answer stat requests against a saved snapshot",
		Long: `Load a catalog snapshot and answer stat requests.

The input is either a JSON document with a stat_requests array or a bare
JSON array of stat requests. Answers are written as a JSON array in request
order.`,
		Example: `  transit process-requests -s catalog.bin -i requests.json
  transit process-requests -s catalog.bin -i requests.json -o answers.json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProcessRequests(cmd, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.snapshot, "snapshot", "s", config.DefaultSnapshotPath, "catalog snapshot")
	cmd.Flags().StringVarP(&opts.input, "input", "i", "-", "stat requests (- for stdin)")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "-", "answers (- for stdout)")

	return cmd
}

func runProcessRequests(cmd *cobra.Command, opts processOpts) error {
	logger := loggerFromContext(cmd.Context())

	prog := newProgress(logger)
	c, err := store.Load(opts.snapshot)
	if err != nil {
		return err
	}
	prog.done(fmt.Sprintf("Snapshot loaded from %s", opts.snapshot))

	in, closeIn, err := openInput(cmd, opts.input)
	if err != nil {
		return err
	}
	defer closeIn()

	reqs, err := readStatRequests(in)
	if err != nil {
		return fmt.Errorf("decode %s: %w", opts.input, err)
	}
	logger.Debug("Processing requests", "count", len(reqs))
	answers := request.Process(c, reqs)

	if opts.output == "-" {
		return request.Encode(cmd.OutOrStdout(), answers)
	}
	f, err := os.Create(opts.output)
	if err != nil {
		return fmt.Errorf("create output: %w", err)
	}
	if err := request.Encode(f, answers); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// readStatRequests accepts a bare array or a document carrying stat_requests.
func readStatRequests(r io.Reader) ([]request.StatRequest, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	if trimmed := bytes.TrimSpace(data); len(trimmed) > 0 && trimmed[0] == '[' {
		return request.DecodeStatRequests(bytes.NewReader(trimmed))
	}
	doc, err := request.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	return doc.StatRequests, nil
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Default(), nil
	}
	return config.Load(path)
}

func defaultsFor(cfg *config.Config) request.Defaults {
	return request.Defaults{Routing: cfg.RoutingSettings(), Render: render.DefaultSettings()}
}

// openInput opens path for reading; "-" reads the command's stdin.
func openInput(cmd *cobra.Command, path string) (io.Reader, func(), error) {
	if path == "-" {
		return cmd.InOrStdin(), func() {}, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open input: %w", err)
	}
	return f, func() { f.Close() }, nil
}
