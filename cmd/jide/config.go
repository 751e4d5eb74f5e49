package main

import (
	"bytes"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/dusk-indust/jide/internal/config"
)

func newConfigCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Read or change the project settings in jide.yml",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "get [key]",
			Short: "Print the effective settings, or one key of them",
			Args:  cobra.MaximumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				data, err := yaml.Marshal(a.settings)
				if err != nil {
					return err
				}
				if len(args) == 0 {
					_, err = cmd.OutOrStdout().Write(data)
					return err
				}
				v := viper.New()
				v.SetConfigType("yaml")
				if err := v.ReadConfig(bytes.NewReader(data)); err != nil {
					return err
				}
				if !v.IsSet(args[0]) {
					return fmt.Errorf("unknown or unset key %q", args[0])
				}
				fmt.Fprintln(cmd.OutOrStdout(), v.Get(args[0]))
				return nil
			},
		},
		&cobra.Command{
			Use:   "set <key> <value>",
			Short: "Change one setting and save jide.yml",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				s, err := config.Load(a.root)
				if err != nil {
					return err
				}
				if err := setKey(&s, args[0], args[1]); err != nil {
					return err
				}
				if err := config.Save(a.root, s); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s = %s\n", args[0], args[1])
				return nil
			},
		},
	)
	return cmd
}

func setKey(s *config.Settings, key, value string) error {
	switch key {
	case "languageLevel":
		s.LanguageLevel = config.LanguageLevel(value)
		return s.LanguageLevel.Validate()
	case "currentFile":
		s.CurrentFile = value
	case "javaDir":
		s.JavaDir = value
	case "buildDir":
		s.BuildDir = value
	case "classpathDir":
		s.ClasspathDir = value
	case "assetsDir":
		s.AssetsDir = value
	case "workers":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("workers: %w", err)
		}
		s.Workers = n
	case "keepOutputs":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("keepOutputs: %w", err)
		}
		s.KeepOutputs = b
	default:
		return fmt.Errorf("unknown key %q (settable: languageLevel, currentFile, javaDir, buildDir, classpathDir, assetsDir, workers, keepOutputs)", key)
	}
	return nil
}
