// Command seabmc checks the functions of a Go source file for
// reachable panics with the path-based BMC engine.
package main

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/fshaked/seahorn/ai"
	"github.com/fshaked/seahorn/bmc"
	"github.com/fshaked/seahorn/expr"
	"github.com/fshaked/seahorn/frontend"
	"github.com/fshaked/seahorn/smt"
	"github.com/fshaked/seahorn/vcgen"
)

type options struct {
	AIRefine bool   `yaml:"ai-refine"`
	MUC      string `yaml:"muc"`
	Verbose  bool   `yaml:"verbose"`
}

func main() {
	opts := options{MUC: "assumptions"}
	var configPath string
	cmd := &cobra.Command{
		Use:          "seabmc [flags] <file.go>",
		Short:        "Path-based bounded model checking for Go functions",
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(args[0], configPath, opts)
		},
	}
	cmd.Flags().BoolVar(&opts.AIRefine, "ai-refine", false, "refine enumerated paths with the interval analyzer before SMT")
	cmd.Flags().StringVar(&opts.MUC, "muc", "assumptions", "unsat-core strategy: assumptions|naive|binary-search")
	cmd.Flags().BoolVarP(&opts.Verbose, "verbose", "v", false, "debug logging")
	cmd.Flags().StringVar(&configPath, "config", "", "YAML file overriding the flags")
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(file, configPath string, opts options) error {
	if configPath != "" {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return err
		}
		if err := yaml.Unmarshal(data, &opts); err != nil {
			return err
		}
	}

	logger := logrus.New()
	if opts.Verbose {
		logger.SetLevel(logrus.DebugLevel)
	}

	method, err := bmc.ParseMUCMethod(opts.MUC)
	if err != nil {
		return err
	}

	graphs, err := frontend.Build(file, logger.WithField("file", file))
	if err != nil {
		return err
	}

	names := make([]string, 0, len(graphs))
	for name := range graphs {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		g := graphs[name]
		log := logger.WithField("fn", name)
		if g.Err == nil {
			log.Debug("no panic is reachable; nothing to check")
			fmt.Printf("%s: unsat\n", name)
			continue
		}

		f := expr.NewFactory()
		vc := vcgen.New(f, g, log)
		var analyzer bmc.PathAnalyzer
		if opts.AIRefine {
			analyzer = ai.New(log)
		}
		conf := bmc.Config{AIRefine: opts.AIRefine, MUCMethod: method}
		eng := bmc.New(f, vc, smt.NewSatSolver(f), smt.NewZ3Solver(f), analyzer, conf, log)

		res, err := eng.Solve()
		if err != nil {
			log.WithError(err).Error("engine failed")
		}
		fmt.Printf("%s: %s\n", name, res)
		if res == smt.Sat {
			trace, err := eng.Trace()
			if err == nil {
				blocks := make([]string, len(trace))
				for i, b := range trace {
					blocks[i] = b.Name
				}
				fmt.Printf("\ttrace: %s\n", strings.Join(blocks, " -> "))
			}
		}
		stats := eng.Stats()
		log.WithFields(logrus.Fields{
			"iterations": stats.Iterations,
			"by_ai":      stats.PathsByAI,
			"by_smt":     stats.PathsBySMT,
		}).Debug("engine statistics")
	}
	return nil
}
