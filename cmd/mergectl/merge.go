package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/maruthi2426/merge-bot/internal/config"
	"github.com/maruthi2426/merge-bot/internal/ffmpeg"
	"github.com/maruthi2426/merge-bot/internal/merge"
)

// parseOp accepts a menu tag (op_vv) or its suffix (vv).
func parseOp(s string) (merge.Operation, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if !strings.HasPrefix(s, "op_") {
		s = "op_" + s
	}
	return merge.ParseOperation(s)
}

// localInputs names each input after its path.
func localInputs(args []string) []ffmpeg.Input {
	inputs := make([]ffmpeg.Input, len(args))
	for i, a := range args {
		inputs[i] = ffmpeg.Input{URL: a, Name: filepath.Base(a)}
	}
	return inputs
}

type buildFlags struct {
	op        string
	ffmpegBin string
	rwTimeout time.Duration
}

func (f *buildFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.op, "op", "", "operation: vv, aa, vs or va")
	cmd.Flags().StringVar(&f.ffmpegBin, "ffmpeg", envOr("FFMPEG_BIN", config.DefaultFFmpegBin), "ffmpeg binary")
	cmd.Flags().DurationVar(&f.rwTimeout, "rw-timeout", config.DefaultInputTimeout, "network input read timeout")
	_ = cmd.MarkFlagRequired("op")
}

func (f *buildFlags) build(args []string) (ffmpeg.Command, error) {
	op, err := parseOp(f.op)
	if err != nil {
		return ffmpeg.Command{}, err
	}
	return ffmpeg.NewBuilder(f.ffmpegBin, f.rwTimeout).Build(op, localInputs(args))
}

func newPlanCmd() *cobra.Command {
	var bf buildFlags
	cmd := &cobra.Command{
		Use:   "plan --op <op> <input>...",
		Short: "Print the merge command for the inputs",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := bf.build(args)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), c.String())
			return nil
		},
	}
	bf.register(cmd)
	return cmd
}

func newMergeCmd() *cobra.Command {
	var (
		bf      buildFlags
		out     string
		timeout time.Duration
	)
	cmd := &cobra.Command{
		Use:   "merge --op <op> -o <output.mkv> <input>...",
		Short: "Run a merge locally and write the Matroska output to a file",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := bf.build(args)
			if err != nil {
				return err
			}
			n, err := runLocal(cmd, c, out, timeout)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %d bytes to %s\n", n, out)
			return nil
		},
	}
	bf.register(cmd)
	cmd.Flags().StringVarP(&out, "output", "o", "merged.mkv", "output file")
	cmd.Flags().DurationVar(&timeout, "timeout", config.DefaultMergeTimeout, "merge timeout")
	return cmd
}

// runLocal streams the process output into path. A partial file is removed.
func runLocal(cmd *cobra.Command, c ffmpeg.Command, path string, timeout time.Duration) (n int64, err error) {
	f, err := os.Create(path)
	if err != nil {
		return 0, err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			_ = os.Remove(path)
		}
	}()

	proc, err := ffmpeg.NewRunner(timeout).Start(cmd.Context(), c)
	if err != nil {
		return 0, err
	}

	var g errgroup.Group
	g.Go(proc.Wait)
	g.Go(func() error {
		var cerr error
		n, cerr = io.Copy(f, proc.Output())
		if cerr != nil {
			proc.Kill()
		}
		return cerr
	})
	if err := g.Wait(); err != nil {
		return n, err
	}
	return n, nil
}
