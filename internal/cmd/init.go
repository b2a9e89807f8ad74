package cmd

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/adamancini/launchkit/internal/config"
	"github.com/adamancini/launchkit/internal/templates"
)

func newInitCmd() *cobra.Command {
	var templateName string
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a new Launchfile from a template",
		Long: `Create a new Launchfile from a built-in template.

Available templates:
  minimal    - One update directory, defaults everywhere
  full       - Every option, with launcher self-update and snapshots

The file is written to --config, or to $XDG_CONFIG_HOME/launchkit/Launchfile.yaml.
LAUNCHKIT_SERVER and LAUNCHKIT_PUBLIC_KEY are expanded when the Launchfile is loaded.

Examples:
  launchkit init                              # Interactive mode
  launchkit init --template=minimal           # Direct template selection
  launchkit init --config ./Launchfile.yaml   # Custom output location`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInit(cmd.InOrStdin(), cmd.OutOrStdout(), cmd.ErrOrStderr(), templateName, configPath, force)
		},
	}

	cmd.Flags().StringVarP(&templateName, "template", "t", "", "Template name")
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite existing Launchfile")

	_ = cmd.RegisterFlagCompletionFunc("template", func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		var completions []string
		for _, name := range templates.List() {
			completions = append(completions, fmt.Sprintf("%s\t%s", name, templates.GetDescription(name)))
		}
		return completions, cobra.ShellCompDirectiveNoFileComp
	})

	return cmd
}

// runInit executes the init workflow.
func runInit(stdin io.Reader, stdout, stderr io.Writer, templateName, outputPath string, force bool) error {
	reader := bufio.NewReader(stdin)

	if outputPath == "" {
		outputPath = defaultLaunchfilePath()
	}
	outputPath = expandHomePath(outputPath)

	if _, err := os.Stat(outputPath); err == nil && !force {
		_, _ = fmt.Fprintf(stderr, "Launchfile already exists at %s\n", outputPath)
		_, _ = fmt.Fprintf(stdout, "Overwrite? [y/N]: ")
		answer, err := reader.ReadString('\n')
		if err != nil && err != io.EOF {
			return fmt.Errorf("failed to read input: %w", err)
		}
		answer = strings.TrimSpace(strings.ToLower(answer))
		if answer != "y" && answer != "yes" {
			_, _ = fmt.Fprintln(stdout, "Aborted.")
			return nil
		}
	}

	if templateName == "" {
		selected, err := selectTemplateInteractive(reader, stdout)
		if err != nil {
			return err
		}
		templateName = selected
	}

	tmpl, err := templates.Get(templateName)
	if err != nil {
		return fmt.Errorf("failed to load template: %w", err)
	}
	if err := validateTemplateContent(tmpl.Content); err != nil {
		return fmt.Errorf("invalid template: %w", err)
	}

	parentDir := filepath.Dir(outputPath)
	if err := os.MkdirAll(parentDir, 0o755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", parentDir, err)
	}
	if err := os.WriteFile(outputPath, tmpl.Content, 0o644); err != nil {
		return fmt.Errorf("failed to write Launchfile: %w", err)
	}

	_, _ = fmt.Fprintf(stdout, "\nCreated %s\n", outputPath)
	_, _ = fmt.Fprintln(stdout, "\nNext steps:")
	_, _ = fmt.Fprintln(stdout, "  1. Set the server address and copy the server public key next to it")
	_, _ = fmt.Fprintln(stdout, "  2. Run 'launchkit update' to compare directories with the server")
	_, _ = fmt.Fprintln(stdout, "  3. Run 'launchkit self-update' to install the launcher")

	return nil
}

// selectTemplateInteractive shows a numbered menu of templates.
func selectTemplateInteractive(reader *bufio.Reader, stdout io.Writer) (string, error) {
	templateList := templates.List()

	_, _ = fmt.Fprintln(stdout, "\nSelect a Launchfile template:")
	for i, name := range templateList {
		_, _ = fmt.Fprintf(stdout, "  %d. %-12s - %s\n", i+1, name, templates.GetDescription(name))
	}
	_, _ = fmt.Fprintf(stdout, "\nSelect [1-%d]: ", len(templateList))

	answer, err := reader.ReadString('\n')
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("failed to read input: %w", err)
	}
	answer = strings.TrimSpace(answer)

	num, err := strconv.Atoi(answer)
	if err != nil || num < 1 || num > len(templateList) {
		return "", fmt.Errorf("invalid selection: %s", answer)
	}
	return templateList[num-1], nil
}

// validateTemplateContent parses content the way Load would, without
// touching the destination.
func validateTemplateContent(content []byte) error {
	tmpFile, err := os.CreateTemp("", "Launchfile-*.yaml")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmpFile.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmpFile.Write(content); err != nil {
		_ = tmpFile.Close()
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	_, err = config.Load(tmpName)
	return err
}

// defaultLaunchfilePath returns the first location FindLaunchfile searches.
func defaultLaunchfilePath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "launchkit", "Launchfile.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "Launchfile.yaml"
	}
	return filepath.Join(home, ".config", "launchkit", "Launchfile.yaml")
}

// expandHomePath expands ~ to the user's home directory.
func expandHomePath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
