// Package cmd defines and implements the CLI commands for the scraper executable.
package cmd

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/mrtz90/Libgen-Scraper-CLI/internal/catalog"
	"github.com/mrtz90/Libgen-Scraper-CLI/internal/config"
)

// newRootCmd creates the root command.
func newRootCmd() *cobra.Command {
	v := viper.New()
	var cfgFile string

	cmd := &cobra.Command{
		Use:   "libgen-scraper",
		Short: "Scrapes book metadata and files from a Library Genesis search.",
		Long: `libgen-scraper searches Library Genesis for a keyword, walks the
requested result pages, downloads each book's detail page, cover and file,
stores the metadata in PostgreSQL and writes a report plus a zip archive of
the run folder. Running it without a subcommand is the same as 'scrape'.`,
		Example: `  libgen-scraper --keyword history --output_format json --pages 1 3
  libgen-scraper scrape -k "roman empire" -f xls -p 2,2 --config scraper.yaml`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          scrapeRunE(v, &cfgFile),
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML, TOML or JSON)")
	addRunFlags(cmd)

	cmd.AddCommand(newScrapeCmd(v, &cfgFile))
	cmd.AddCommand(newMigrateCmd(v, &cfgFile))
	return cmd
}

// newScrapeCmd creates the 'scrape' subcommand, which performs one run.
func newScrapeCmd(v *viper.Viper, cfgFile *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scrape",
		Short: "Runs one search from listing harvest to archive",
		Args:  cobra.MaximumNArgs(1),
		RunE:  scrapeRunE(v, cfgFile),
	}
	addRunFlags(cmd)
	return cmd
}

func addRunFlags(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.StringP("keyword", "k", "history", "search term")
	flags.StringP("output_format", "f", "csv", "report format: csv, json or xls")
	flags.IntSliceP("pages", "p", []int{1, 2}, "first and last result page, as start,end or start end")
}

func scrapeRunE(v *viper.Viper, cfgFile *string) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd, v, *cfgFile, args)
		if err != nil {
			return err
		}
		return runScrape(cmd.Context(), cfg)
	}
}

// loadConfig layers CLI flags over file, environment and defaults.
func loadConfig(cmd *cobra.Command, v *viper.Viper, cfgFile string, args []string) (config.Config, error) {
	flags := cmd.Flags()
	if f := flags.Lookup("keyword"); f != nil {
		if err := v.BindPFlag("run.keyword", f); err != nil {
			return config.Config{}, fmt.Errorf("bind keyword flag: %w", err)
		}
	}
	if f := flags.Lookup("output_format"); f != nil {
		if err := v.BindPFlag("run.output_format", f); err != nil {
			return config.Config{}, fmt.Errorf("bind output_format flag: %w", err)
		}
	}
	if flags.Changed("pages") {
		from, to, err := pageRange(flags, args)
		if err != nil {
			return config.Config{}, err
		}
		v.Set("run.from_page", from)
		v.Set("run.to_page", to)
	} else if len(args) > 0 {
		return config.Config{}, fmt.Errorf("unexpected argument %q", args[0])
	}
	return config.LoadWith(v, cfgFile)
}

type intSliceGetter interface {
	GetIntSlice(name string) ([]int, error)
}

// pageRange accepts "--pages 1,3" as well as "--pages 1 3", where the end
// page arrives as the single positional argument.
func pageRange(flags intSliceGetter, args []string) (int, int, error) {
	pages, err := flags.GetIntSlice("pages")
	if err != nil {
		return 0, 0, fmt.Errorf("read pages flag: %w", err)
	}
	if len(pages) == 1 && len(args) == 1 {
		end, err := strconv.Atoi(args[0])
		if err != nil {
			return 0, 0, &catalog.ConfigError{Field: "pages", Reason: fmt.Sprintf("end page %q is not a number", args[0])}
		}
		pages = append(pages, end)
	} else if len(args) > 0 {
		return 0, 0, fmt.Errorf("unexpected argument %q", args[0])
	}
	if len(pages) != 2 {
		return 0, 0, &catalog.ConfigError{Field: "pages", Reason: "expects a start and an end page"}
	}
	return pages[0], pages[1], nil
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "libgen-scraper: %v\n", err)
		os.Exit(1)
	}
}
