package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/azybler/transit_router/pkg/config"
	"github.com/azybler/transit_router/pkg/osm"
	"github.com/azybler/transit_router/pkg/render"
	"github.com/azybler/transit_router/pkg/request"
	"github.com/azybler/transit_router/pkg/routing"
)

type importOpts struct {
	input  string
	output string
	bbox   string
	detour float64
	wait   float64
	speed  float64
}

func newImportOSMCmd() *cobra.Command {
	opts := importOpts{}

	cmd := &cobra.Command{
		Use:   "import-osm",
		Short: "Convert OSM bus routes into a base document",
		Long: `Read bus route relations and their stop nodes from an .osm.pbf extract and
write a base document that make-base accepts.

Road distances between consecutive stops are estimated as the great-circle
distance times the detour factor.`,
		Example: `  transit import-osm -i singapore.osm.pbf -o base.json
  transit import-osm -i malaysia.osm.pbf --bbox 2.75,101.2,3.5,102.0 -o base.json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImportOSM(cmd, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.input, "input", "i", "", "OSM PBF file (required)")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "-", "base document (- for stdout)")
	cmd.Flags().StringVar(&opts.bbox, "bbox", "", "keep stops inside minLat,minLng,maxLat,maxLng")
	cmd.Flags().Float64Var(&opts.detour, "detour", osm.DefaultDetourFactor, "road distance over great-circle distance")
	cmd.Flags().Float64Var(&opts.wait, "bus-wait-time", config.DefaultBusWaitTime, "routing settings bus_wait_time in minutes")
	cmd.Flags().Float64Var(&opts.speed, "bus-velocity", config.DefaultBusVelocity, "routing settings bus_velocity in km/h")
	cmd.MarkFlagRequired("input")

	return cmd
}

func runImportOSM(cmd *cobra.Command, opts importOpts) error {
	logger := loggerFromContext(cmd.Context())

	osmOpts := osm.Options{DetourFactor: opts.detour}
	if opts.bbox != "" {
		b, err := osm.ParseBBox(opts.bbox)
		if err != nil {
			return err
		}
		osmOpts.BBox = &b
		logger.Info("Using bounding box filter",
			"lat", fmt.Sprintf("[%.4f, %.4f]", b.Min.Lat(), b.Max.Lat()),
			"lng", fmt.Sprintf("[%.4f, %.4f]", b.Min.Lon(), b.Max.Lon()))
	}
	rs := routing.Settings{BusWaitTime: opts.wait, BusVelocity: opts.speed}
	if err := rs.Validate(); err != nil {
		return err
	}

	f, err := os.Open(opts.input)
	if err != nil {
		return fmt.Errorf("open input: %w", err)
	}
	defer f.Close()

	prog := newProgress(logger)
	res, err := osm.Import(cmd.Context(), f, osmOpts)
	if err != nil {
		return err
	}
	prog.done(fmt.Sprintf("Imported %d stops and %d buses", res.NumStops, res.NumBuses))

	vs := render.DefaultSettings()
	doc := &request.Document{
		BaseRequests:    res.BaseRequests,
		RoutingSettings: request.NewRoutingSettings(rs),
		RenderSettings:  &vs,
	}

	if opts.output == "-" {
		return request.Encode(cmd.OutOrStdout(), doc)
	}
	out, err := os.Create(opts.output)
	if err != nil {
		return fmt.Errorf("create output: %w", err)
	}
	if err := request.Encode(out, doc); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
