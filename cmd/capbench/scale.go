package main

import (
	"runtime"

	"github.com/spf13/cobra"

	"github.com/alexshd/capbench"
)

func newScaleCmd(opts *options) *cobra.Command {
	var (
		size   int
		levels []int
		rounds int
	)

	cmd := &cobra.Command{
		Use:   "scale",
		Short: "Fit the Universal Scalability Law to each parallel variant",
		Long: `Times every parallel variant over one test set on pools of increasing
size and fits C(N) = λN / (1 + α(N-1) + βN(N-1)) to the throughput.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			variants, err := capbench.Select(opts.variants)
			if err != nil {
				return err
			}

			cfg := capbench.DefaultScaleConfig()
			cfg.Size = size
			cfg.Levels = levels
			cfg.Rounds = rounds
			cfg.Variants = variants
			cfg.Seed = opts.seed
			cfg.Out = cmd.OutOrStdout()

			_, err = capbench.RunScaling(cmd.Context(), cfg)
			return err
		},
	}

	cmd.Flags().IntVar(&size, "size", 10_000_000, "input size of the test set")
	cmd.Flags().IntSliceVar(&levels, "levels", capbench.DefaultLevels(runtime.GOMAXPROCS(0)), "worker counts to measure")
	cmd.Flags().IntVar(&rounds, "rounds", 5, "test-set passes per level and variant")
	return cmd
}
