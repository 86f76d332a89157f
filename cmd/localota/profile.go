package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/muurk/localota/internal/config"
	"github.com/muurk/localota/internal/ui"
)

var (
	profileAddress     string
	profileEnv         string
	profileProjectDir  string
	profilePort        int
	profileManifestURL string
	profileHTTPTimeout int
	profileMakeDefault bool
)

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Manage saved device profiles",
	Long: `Profiles remember a device address and how its firmware is built.
They live in the config file (` + "`localota profile path`" + ` prints it).`,
}

var profileListCmd = &cobra.Command{
	Use:   "list",
	Short: "List profiles",
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		reg, err := config.LoadRegistry()
		if err != nil {
			return err
		}
		names := reg.ProfileNames()
		if len(names) == 0 {
			fmt.Println("No profiles. Create one with: localota profile set <name> --address <host>")
			return nil
		}
		p := ui.NewPrinter(os.Stdout)
		for _, name := range names {
			p.Println(profileResult(reg, name).SetWidth(p.Width()).Render())
		}
		return nil
	},
}

var profileSetCmd = &cobra.Command{
	Use:   "set <name>",
	Short: "Create or update a profile",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		reg, err := config.LoadRegistry()
		if err != nil {
			return err
		}
		name := args[0]
		p := reg.EnsureProfile(name)

		flags := cmd.Flags()
		if flags.Changed("address") {
			p.Address = profileAddress
		}
		if flags.Changed("env") {
			p.Env = profileEnv
		}
		if flags.Changed("project-dir") {
			p.ProjectDir = profileProjectDir
		}
		if flags.Changed("port") {
			p.Port = profilePort
		}
		if flags.Changed("default-manifest-url") {
			p.DefaultManifestURL = profileManifestURL
		}
		if flags.Changed("timeout") {
			p.HTTPTimeout = profileHTTPTimeout
		}
		if profileMakeDefault {
			reg.Preferences.DefaultProfile = name
		}

		if err := reg.Save(); err != nil {
			return fmt.Errorf("failed to save config: %w", err)
		}
		ui.NewPrinter(os.Stdout).PrintResult(profileResult(reg, name))
		return nil
	},
}

var profileRemoveCmd = &cobra.Command{
	Use:   "remove <name>",
	Short: "Delete a profile",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		reg, err := config.LoadRegistry()
		if err != nil {
			return err
		}
		if !reg.RemoveProfile(args[0]) {
			return fmt.Errorf("no profile named %q", args[0])
		}
		if err := reg.Save(); err != nil {
			return fmt.Errorf("failed to save config: %w", err)
		}
		fmt.Printf("Removed profile %s\n", args[0])
		return nil
	},
}

var profilePathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the config file location",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(config.GetConfigPath())
	},
}

func init() {
	profileSetCmd.Flags().StringVar(&profileAddress, "address", "", "Device address, host[:port]")
	profileSetCmd.Flags().StringVar(&profileEnv, "env", "", "Build environment")
	profileSetCmd.Flags().StringVar(&profileProjectDir, "project-dir", "", "Firmware project directory")
	profileSetCmd.Flags().IntVar(&profilePort, "port", 0, "Local manifest server port")
	profileSetCmd.Flags().StringVar(&profileManifestURL, "default-manifest-url", "", "Manifest URL restored after each session")
	profileSetCmd.Flags().IntVar(&profileHTTPTimeout, "timeout", 0, "Device call timeout in seconds")
	profileSetCmd.Flags().BoolVar(&profileMakeDefault, "default", false, "Make this the default profile")

	profileCmd.AddCommand(profileListCmd)
	profileCmd.AddCommand(profileSetCmd)
	profileCmd.AddCommand(profileRemoveCmd)
	profileCmd.AddCommand(profilePathCmd)
	rootCmd.AddCommand(profileCmd)
}

func profileResult(reg *config.Registry, name string) *ui.Result {
	p := reg.Profile(name)
	title := name
	if reg.Preferences != nil && reg.Preferences.DefaultProfile == name {
		title += " (default)"
	}
	res := ui.NewSuccessResult(title)
	if p == nil {
		return res
	}
	res.AddDetail("Address", p.Address).
		AddDetail("Env", p.Env).
		AddDetail("Project", p.ProjectDir).
		AddDetail("Default manifest", p.DefaultManifestURL).
		AddDetail("Last version", p.LastVersion).
		AddDetail("Last outcome", p.LastOutcome)
	if p.Port > 0 {
		res.AddDetail("Port", strconv.Itoa(p.Port))
	}
	if p.HTTPTimeout > 0 {
		res.AddDetail("Timeout", strconv.Itoa(p.HTTPTimeout)+"s")
	}
	if !p.LastSeen.IsZero() {
		res.AddDetail("Last seen", p.LastSeen.Local().Format("2006-01-02 15:04"))
	}
	return res
}
