package server

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/spf13/cobra"

	v1 "github.com/distribution/archiver/api/v1"
	"github.com/distribution/archiver/archive"
	"github.com/distribution/archiver/cluster"
	"github.com/distribution/archiver/configuration"
	"github.com/distribution/archiver/internal/dcontext"
	"github.com/distribution/archiver/store"
	"github.com/distribution/archiver/store/factory"
	"github.com/distribution/archiver/version"
)

var (
	showVersion bool
	noPin       bool
)

func init() {
	RootCmd.AddCommand(ServeCmd)
	RootCmd.AddCommand(ArchiveCmd)
	RootCmd.AddCommand(StatusCmd)
	RootCmd.Flags().BoolVarP(&showVersion, "version", "v", false, "show the version and exit")
	ArchiveCmd.Flags().BoolVar(&noPin, "no-pin", false, "do not pin the finished directory")
}

// RootCmd is the main command for the 'archiver' binary.
var RootCmd = &cobra.Command{
	Use:   "archiver",
	Short: "`archiver`",
	Long:  "`archiver` archives batches of links into content-addressed directories.",
	Run: func(cmd *cobra.Command, args []string) {
		if showVersion {
			version.FprintVersion(cmd.OutOrStdout())
			return
		}
		// nolint:errcheck
		cmd.Usage()
	},
}

// ServeCmd is a cobra command for running the archiver.
var ServeCmd = &cobra.Command{
	Use:   "serve <config>",
	Short: "`serve` runs the archiver http api",
	Long:  "`serve` runs the archiver http api.",
	Run: func(cmd *cobra.Command, args []string) {
		// setup context
		ctx := dcontext.WithVersion(dcontext.Background(), version.Version())

		config, err := resolveConfiguration(args)
		if err != nil {
			fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
			// nolint:errcheck
			cmd.Usage()
			os.Exit(1)
		}

		srv, err := NewServer(ctx, config)
		if err != nil {
			dcontext.GetLogger(ctx).Fatal(err)
		}

		if config.HTTP.Debug.Addr != "" {
			configurePrometheus(config)
			go func(addr string) {
				dcontext.GetLogger(ctx).Infof("debug server listening %v", addr)
				if err := http.ListenAndServe(addr, nil); err != nil {
					dcontext.GetLogger(ctx).Fatalf("error listening on debug interface: %v", err)
				}
			}(config.HTTP.Debug.Addr)
		}

		if err = srv.ListenAndServe(); err != nil {
			dcontext.GetLogger(ctx).Fatal(err)
		}
	},
}

// ArchiveCmd is the cobra command that runs a single batch without the http
// api. Links are read one per line from the file, or from stdin when the
// file is omitted or "-".
var ArchiveCmd = &cobra.Command{
	Use:   "archive <config> [links-file]",
	Short: "`archive` archives a batch of links and prints the result",
	Long:  "`archive` archives a batch of links into a new directory, pins it and prints the result as json.",
	Args:  cobra.RangeArgs(0, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, config, err := commandSetup(args)
		if err != nil {
			return err
		}

		in := cmd.InOrStdin()
		if len(args) > 1 && args[1] != "-" {
			f, err := os.Open(args[1])
			if err != nil {
				return err
			}
			defer f.Close()
			in = f
		}

		links, err := readLinks(in)
		if err != nil {
			return err
		}

		s, c, err := newBackends(ctx, config)
		if err != nil {
			return err
		}

		orchestrator, err := archive.NewOrchestrator(s, c, archive.OptionsFromConfiguration(config.Archive))
		if err != nil {
			return err
		}

		result, err := orchestrator.RunBatch(ctx, links)
		if err != nil {
			return err
		}

		resp := v1.AddResponse{
			Data: v1.AddResult{
				IpfsHash:     result.DirectoryCID.String(),
				FailedLinks:  append([]string{}, result.FailedLinks...),
				DroppedLinks: append([]string{}, result.DroppedLinks...),
				Items:        result.Items,
			},
		}
		if !noPin {
			resp.Data.Pin = orchestrator.PinDirectory(ctx, result.DirectoryCID)
		}

		return printJSON(cmd.OutOrStdout(), resp)
	},
}

// StatusCmd is the cobra command that prints the pin status of a directory.
var StatusCmd = &cobra.Command{
	Use:   "status <config> <cid>",
	Short: "`status` prints the pin status of a content identifier",
	Long:  "`status` asks the cluster for the pin status of a content identifier and prints it as json.",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		id := args[len(args)-1]

		ctx, config, err := commandSetup(args[:len(args)-1])
		if err != nil {
			return err
		}

		c, err := cluster.Create(ctx, config.Cluster.Type(), config.Cluster.Parameters())
		if err != nil {
			return fmt.Errorf("failed to construct %s cluster: %v", config.Cluster.Type(), err)
		}

		status, err := archive.NewStatusReporter(c, 0).Status(ctx, id)
		if err != nil {
			return err
		}

		return printJSON(cmd.OutOrStdout(), v1.CheckStatusResponse{Status: status})
	},
}

// commandSetup resolves the configuration and configures logging for the
// one-shot commands.
func commandSetup(args []string) (context.Context, *configuration.Configuration, error) {
	config, err := resolveConfiguration(args)
	if err != nil {
		return nil, nil, fmt.Errorf("configuration error: %v", err)
	}

	ctx := dcontext.WithVersion(dcontext.Background(), version.Version())
	ctx, err = configureLogging(ctx, config)
	if err != nil {
		return nil, nil, fmt.Errorf("unable to configure logging with config: %s", err)
	}

	return ctx, config, nil
}

func newBackends(ctx context.Context, config *configuration.Configuration) (store.Store, cluster.Cluster, error) {
	s, err := factory.Create(ctx, config.Store.Type(), config.Store.Parameters())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to construct %s store: %v", config.Store.Type(), err)
	}

	c, err := cluster.Create(ctx, config.Cluster.Type(), config.Cluster.Parameters())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to construct %s cluster: %v", config.Cluster.Type(), err)
	}

	return s, c, nil
}

// readLinks reads one link per line. Blank lines and lines starting with #
// are skipped.
func readLinks(r io.Reader) ([]string, error) {
	var links []string

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		links = append(links, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	return links, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func resolveConfiguration(args []string) (*configuration.Configuration, error) {
	var configurationPath string

	if len(args) > 0 {
		configurationPath = args[0]
	} else if os.Getenv("ARCHIVER_CONFIGURATION_PATH") != "" {
		configurationPath = os.Getenv("ARCHIVER_CONFIGURATION_PATH")
	}

	if configurationPath == "" {
		return nil, fmt.Errorf("configuration path unspecified")
	}

	fp, err := os.Open(configurationPath)
	if err != nil {
		return nil, err
	}

	defer fp.Close()

	config, err := configuration.Parse(fp)
	if err != nil {
		return nil, fmt.Errorf("error parsing %s: %v", configurationPath, err)
	}

	return config, nil
}
