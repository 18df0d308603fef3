package main

import (
	"fmt"
	"strings"

	"github.com/mrzor/file-tracer/internal/eventbus"
	"github.com/mrzor/file-tracer/internal/filetrace"
	"github.com/mrzor/file-tracer/internal/sink"
	"github.com/mrzor/file-tracer/internal/tracing"

	"github.com/spf13/cobra"
)

func newTracersCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "tracers",
		Short: "List the available tracers; the current one is in brackets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			registry := tracing.NewRegistry(tracing.NewSession(sink.NewRing(1)), a.logger)
			t, err := filetrace.Load(eventbus.New(), registry, filetrace.WithLogger(a.logger))
			if err != nil {
				return err
			}
			defer t.Unload()

			current := registry.Current()
			names := registry.Available()
			for i, name := range names {
				if name == current {
					names[i] = "[" + name + "]"
				}
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), strings.Join(names, " "))
			return err
		},
	}
}
