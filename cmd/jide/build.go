package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dusk-indust/jide/internal/dex"
	"github.com/dusk-indust/jide/internal/extract"
	"github.com/dusk-indust/jide/internal/orchestrator"
)

var errBuildFailed = errors.New("build failed")

func newBuildCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "build",
		Short: "Compile the Java sources and convert them to classes.dex",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			h, err := a.ide().Build(cmd.Context(), a.settings)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for ev := range h.Events() {
				fmt.Fprintln(out, orchestrator.FormatEvent(ev))
			}
			res, err := h.Wait(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintln(out, orchestrator.FormatResult(res))
			if !res.Succeeded() {
				fmt.Fprintln(cmd.ErrOrStderr(), res.Diagnostic)
				return errBuildFailed
			}
			return nil
		},
	}
}

func newClassesCmd(a *app) *cobra.Command {
	var noBuild bool
	cmd := &cobra.Command{
		Use:   "classes",
		Short: "List the classes of classes.dex, building first when it is missing",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			core := a.ide()
			var (
				listing dex.Listing
				err     error
			)
			if noBuild {
				listing, err = core.ListClasses(cmd.Context(), a.settings)
			} else {
				listing, err = core.AwaitClasses(cmd.Context(), a.settings)
			}
			if err != nil {
				return err
			}
			if listing.State == dex.NotBuilt {
				return fmt.Errorf("no classes.dex yet, a build was started")
			}
			if len(listing.Classes) > 0 {
				fmt.Fprintln(cmd.OutOrStdout(), strings.Join(listing.Classes, "\n"))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&noBuild, "no-wait", false, "do not wait for the build a missing DEX triggers")
	return cmd
}

func newExtractCmd(a *app, name, short string) *cobra.Command {
	return &cobra.Command{
		Use:   name + " <class>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := extract.ParseKind(name)
			if err != nil {
				return err
			}
			res := a.ide().Extract(cmd.Context(), extract.Request{Kind: kind, Class: args[0], Settings: a.settings})
			if !res.Succeeded() {
				fmt.Fprintln(cmd.ErrOrStderr(), res.Diagnostic)
				return fmt.Errorf("%s %s failed", name, args[0])
			}
			fmt.Fprint(cmd.OutOrStdout(), res.Text)
			return nil
		},
	}
}

func newProvisionCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "provision",
		Short: "Install the platform jars the language level needs into the classpath directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rep, err := a.ide().Provision(cmd.Context(), a.settings)
			out := cmd.OutOrStdout()
			for _, name := range rep.Installed {
				fmt.Fprintf(out, "  installed %s\n", name)
			}
			for _, name := range rep.Present {
				fmt.Fprintf(out, "  present   %s\n", name)
			}
			for _, name := range rep.Skipped {
				fmt.Fprintf(out, "  skipped   %s (not needed at %s)\n", name, a.settings.LanguageLevel)
			}
			return err
		},
	}
}
