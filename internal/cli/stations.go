package cli

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/travelrelay/internal/store"
)

// NewStationsCommand creates the stations command.
func NewStationsCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stations",
		Short: "Manage the ÖBB station table",
	}
	cmd.AddCommand(newStationsImportCommand(rootOpts))
	return cmd
}

func newStationsImportCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file.csv>",
		Short: "Replace the ÖBB station table from a CSV file",
		Long: `Replace the table mapping ÖBB station names to EVA numbers, used to
look up ÖBB vehicle compositions. The file has two columns, name and EVA
number; a header row is skipped.

Example:
  travelrelay stations import oebb-stations.csv`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStationsImport(rootOpts, args[0], cmd)
		},
	}
}

func runStationsImport(opts *RootOptions, path string, cmd *cobra.Command) error {
	f, err := os.Open(path)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open station file", err)
	}
	defer f.Close()

	stations, err := readStations(f)
	if err != nil {
		return WrapExitError(ExitFailure, "invalid station file", err)
	}

	a, err := openApp(opts, false)
	if err != nil {
		return err
	}
	defer a.Close()

	n, err := a.store.ImportOEBBStations(context.Background(), stations)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to import stations", err)
	}
	return opts.output(cmd).Success(fmt.Sprintf("Imported %d stations", n), map[string]int{"imported": n})
}

// readStations parses name,eva rows. A first row whose EVA column is not a
// number is a header.
func readStations(r io.Reader) ([]store.OEBBStation, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = 2
	cr.TrimLeadingSpace = true

	var stations []store.OEBBStation
	for line := 1; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return stations, nil
		}
		if err != nil {
			return nil, err
		}
		eva, err := strconv.ParseInt(strings.TrimSpace(rec[1]), 10, 64)
		if err != nil {
			if line == 1 {
				continue
			}
			return nil, fmt.Errorf("line %d: invalid EVA number %q", line, rec[1])
		}
		stations = append(stations, store.OEBBStation{Name: rec[0], EvaNr: eva})
	}
}
